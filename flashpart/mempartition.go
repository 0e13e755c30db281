package flashpart

import (
	"fmt"

	"github.com/gostonefire/flashring/crt"
)

// MemPartition - Represents a flash partition held in memory, mainly used in tests and
// simulations. It enforces the full flash adapter contract: erases have to be sector
// aligned and writes may only touch bytes in erased state (0xFF), which flushes out any
// caller that forgets the erase-before-write rule.
type MemPartition struct {
	sectorSize int64
	data       []byte
}

// NewMemPartition - Returns a pointer to a new in-memory partition with the whole body in
// erased state.
//   - sectorSize is the emulated flash sector size, must be a power of two
//   - size is the emulated partition size, must be a multiple of the sector size
//
// It returns:
//   - part which is a pointer to the created instance
//   - err which is a standard Go type of error
func NewMemPartition(sectorSize, size int64) (part *MemPartition, err error) {
	if sectorSize <= 0 || sectorSize&(sectorSize-1) != 0 {
		err = crt.InvalidSize{}
		return
	}
	if size <= 0 || size%sectorSize != 0 {
		err = crt.InvalidSize{}
		return
	}

	data := make([]byte, size)
	for i := range data {
		data[i] = 0xFF
	}

	part = &MemPartition{sectorSize: sectorSize, data: data}

	return
}

// SectorSize - Returns the emulated flash sector size
func (M *MemPartition) SectorSize() int64 {
	return M.sectorSize
}

// Size - Returns the emulated partition size
func (M *MemPartition) Size() int64 {
	return int64(len(M.data))
}

// Read - Reads len(buf) bytes starting at offset
func (M *MemPartition) Read(offset int64, buf []byte) (err error) {
	if offset < 0 || offset+int64(len(buf)) > int64(len(M.data)) {
		err = fmt.Errorf("read of %d bytes at offset %d is outside the partition", len(buf), offset)
		return
	}

	copy(buf, M.data[offset:])

	return
}

// Write - Writes len(buf) bytes starting at offset.
// Fails if any target byte is not in erased state.
func (M *MemPartition) Write(offset int64, buf []byte) (err error) {
	if offset < 0 || offset+int64(len(buf)) > int64(len(M.data)) {
		err = fmt.Errorf("write of %d bytes at offset %d is outside the partition", len(buf), offset)
		return
	}

	for i := range buf {
		if M.data[offset+int64(i)] != 0xFF {
			err = fmt.Errorf("write at offset %d touches unerased flash", offset+int64(i))
			return
		}
	}

	copy(M.data[offset:], buf)

	return
}

// EraseRange - Erases the given sector aligned range back to 0xFF
func (M *MemPartition) EraseRange(offset int64, length int64) (err error) {
	if offset%M.sectorSize != 0 || length%M.sectorSize != 0 {
		err = fmt.Errorf("erase range %d+%d is not sector aligned", offset, length)
		return
	}
	if offset < 0 || length < 0 || offset+length > int64(len(M.data)) {
		err = fmt.Errorf("erase range %d+%d is outside the partition", offset, length)
		return
	}

	for i := offset; i < offset+length; i++ {
		M.data[i] = 0xFF
	}

	return
}

// Snapshot - Returns a deep copy of the partition contents, used together with Restore to
// replay crash traces in tests
func (M *MemPartition) Snapshot() (data []byte) {
	data = make([]byte, len(M.data))
	copy(data, M.data)

	return
}

// Restore - Replaces the partition contents with a snapshot taken earlier
func (M *MemPartition) Restore(data []byte) (err error) {
	if int64(len(data)) != int64(len(M.data)) {
		err = crt.InvalidSize{}
		return
	}

	copy(M.data, data)

	return
}
