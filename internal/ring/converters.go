package ring

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/gostonefire/flashring/internal/conf"
	"github.com/gostonefire/flashring/internal/model"
)

// headerToBytes - Converts a Header struct to a slice of bytes.
// The checksum is calculated over the serialized header with the crc field still zero
// and then placed in the crc field, matching how headerIsValid verifies it.
func headerToBytes(header model.Header) (buf []byte) {
	buf = make([]byte, conf.HeaderLength)
	binary.LittleEndian.PutUint32(buf[conf.MagicOffset:], header.Magic)
	binary.LittleEndian.PutUint32(buf[conf.FrontOffset:], uint32(header.Front))
	binary.LittleEndian.PutUint32(buf[conf.RecordNumOffset:], uint32(header.RecordNum))
	binary.LittleEndian.PutUint32(buf[conf.SequenceOffset:], header.Sequence)

	crc := crc32.ChecksumIEEE(buf)
	binary.LittleEndian.PutUint32(buf[conf.CrcOffset:], crc)

	return
}

// bytesToHeader - Converts a slice of bytes to a Header struct
func bytesToHeader(buf []byte) (header model.Header) {
	header = model.Header{
		Magic:     binary.LittleEndian.Uint32(buf[conf.MagicOffset:]),
		Front:     int64(binary.LittleEndian.Uint32(buf[conf.FrontOffset:])),
		RecordNum: int64(binary.LittleEndian.Uint32(buf[conf.RecordNumOffset:])),
		Sequence:  binary.LittleEndian.Uint32(buf[conf.SequenceOffset:]),
		Crc:       binary.LittleEndian.Uint32(buf[conf.CrcOffset:]),
	}

	return
}

// headerIsValid - Returns true if the serialized header carries the ring magic number and
// its checksum verifies
func headerIsValid(buf []byte) bool {
	if binary.LittleEndian.Uint32(buf[conf.MagicOffset:]) != conf.RingMagic {
		return false
	}

	scratch := make([]byte, conf.HeaderLength)
	copy(scratch, buf)
	binary.LittleEndian.PutUint32(scratch[conf.CrcOffset:], 0)

	return crc32.ChecksumIEEE(scratch) == binary.LittleEndian.Uint32(buf[conf.CrcOffset:])
}

// sequenceIsNewer - Returns true if sequence a is newer than sequence b taking wrap-around of
// the 32 bit sequence counter into account, i.e. 0 is newer than the max uint32 value.
func sequenceIsNewer(a, b uint32) bool {
	return int32(a-b) > 0
}
