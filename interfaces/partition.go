package interfaces

// Partition - Interface that permits an implementation using the RingBuffer to supply its own
// flash partition, typically a wear levelling layer on real hardware or a partition image file
// when running on a host system.
//
// Writes between erasures may only clear bits, hence a byte range has to be erased (set to 0xFF)
// before it can be written again.
type Partition interface {
	// SectorSize - Returns the number of bytes per erase unit, always a power of two
	SectorSize() int64
	// Size - Returns the total partition size in bytes, always a multiple of the sector size
	Size() int64
	// Read - Reads len(buf) bytes starting at offset, no granularity restrictions
	Read(offset int64, buf []byte) error
	// Write - Writes len(buf) bytes starting at offset.
	// May only be called on bytes that are in erased state (0xFF).
	Write(offset int64, buf []byte) error
	// EraseRange - Erases the given range back to 0xFF.
	// Both offset and length must be sector aligned.
	EraseRange(offset int64, length int64) error
}
