package ring

import (
	"github.com/gostonefire/flashring/crt"
	"github.com/gostonefire/flashring/internal/conf"
	"github.com/gostonefire/flashring/internal/model"
	"go.uber.org/zap"
)

// headerState - Represents one header slot as read at mount time
type headerState struct {
	header model.Header
	valid  bool
}

// slotOffset - Returns the byte offset of a header slot, slot 0 sits at the start of the
// partition and slot 1 right after it at the next sector boundary that clears the header
func (R *Ring) slotOffset(slot int64) int64 {
	return slot * R.slotSectors * R.sectorSize
}

// readHeaderSlot - Reads and classifies one of the two header slots.
// A slot is valid iff the magic number matches and the checksum verifies, and additionally
// the stored state has to be plausible for the mounted geometry so that a header written
// under a different record size can never put the ring into an inconsistent state.
func (R *Ring) readHeaderSlot(slot int64) (state headerState, err error) {
	buf := make([]byte, conf.HeaderLength)
	e := R.part.Read(R.slotOffset(slot), buf)
	if e != nil {
		err = crt.Io{Err: e}
		return
	}

	if !headerIsValid(buf) {
		return
	}

	header := bytesToHeader(buf)
	if !R.plausible(header) {
		R.log.Warn("discarding header with implausible state",
			zap.Int64("slot", slot),
			zap.Int64("front", header.Front),
			zap.Int64("recordNum", header.RecordNum),
		)
		return
	}

	state = headerState{header: header, valid: true}

	return
}

// plausible - Returns true if the header state fits the mounted geometry: front addresses a
// record slot inside the data ring and the record count does not exceed capacity
func (R *Ring) plausible(header model.Header) bool {
	if header.Front < 0 || header.Front >= R.dataSectors*R.sectorSize {
		return false
	}
	if header.Front%R.recordSize != 0 {
		return false
	}
	if header.Front%R.sectorSize >= R.recordsPerSector*R.recordSize {
		return false
	}
	if header.RecordNum > R.maxRecords() {
		return false
	}

	return true
}

// writeHeader - Publishes the current in-memory state to flash.
// The slot to write is selected by the incremented sequence number, which alternates between
// the two slots and guarantees the slot holding the last durable state is never the one
// being erased. The in-memory sequence is advanced only after the write succeeded.
func (R *Ring) writeHeader() (err error) {
	sequence := R.sequence + 1
	slot := int64(sequence % 2)

	e := R.part.EraseRange(R.slotOffset(slot), R.slotSectors*R.sectorSize)
	if e != nil {
		err = crt.Io{Err: e}
		return
	}

	buf := headerToBytes(model.Header{
		Magic:     conf.RingMagic,
		Front:     R.front,
		RecordNum: R.recordNum,
		Sequence:  sequence,
	})

	e = R.part.Write(R.slotOffset(slot), buf)
	if e != nil {
		err = crt.Io{Err: e}
		return
	}

	R.sequence = sequence

	return
}

// resetHeaders - Erases both header slots and publishes a blank state.
// The sequence is seeded to the max uint32 value so the first publication wraps to
// sequence 0 and lands in slot 0, keeping the alternation rule intact from the start.
func (R *Ring) resetHeaders() (err error) {
	e := R.part.EraseRange(0, 2*R.slotSectors*R.sectorSize)
	if e != nil {
		err = crt.Io{Err: e}
		return
	}

	R.front = 0
	R.recordNum = 0
	R.sequence = ^uint32(0)

	return R.writeHeader()
}
