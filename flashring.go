// Package flashring implements a persistent circular record buffer on top of a wear
// levelled flash partition. It offers a durable FIFO queue of fixed-size records that
// survives power loss at any point, suitable for embedded devices that buffer telemetry,
// log entries or outbound events between acquisition and upload.
//
// Consistency is kept through two redundant header copies at the start of the partition.
// Every state change is published by erasing and rewriting the header slot the current
// one is not stored in, carrying an incremented sequence number and a CRC-32, so a power
// loss at any point leaves at least one coherent header to mount from.
package flashring

import (
	"github.com/gostonefire/flashring/flashpart"
	"github.com/gostonefire/flashring/interfaces"
	"github.com/gostonefire/flashring/internal/model"
	"github.com/gostonefire/flashring/internal/ring"
	"go.uber.org/zap"
)

// Config - Is a struct to be passed in the call to Open or New and contains configuration
// that affects how the ring buffer is mounted and operated.
//   - RecordSize is the fixed size of every record, must be within (0, sector size]
//   - Overwrite is whether pushing into a full ring drops the oldest sector instead of failing
//   - Recovery is whether mounting with exactly one corrupt header also scans for a record
//     whose header update was lost
//   - Logger is an optional logger for mount time events, nil disables logging
type Config struct {
	RecordSize int64
	Overwrite  bool
	Recovery   bool
	Logger     *zap.Logger
}

// RingInfo - Information structure containing some information about the ring buffer mounted
//   - SectorSize is the flash sector size of the underlying partition
//   - DataSectors is the number of sectors available for records after the header slots
//   - RecordsPerSector is the number of record slots per sector
//   - MaxRecords is the capacity of the ring in records
//   - PartitionSize is the total size of the underlying partition
type RingInfo struct {
	SectorSize       int64
	DataSectors      int64
	RecordsPerSector int64
	MaxRecords       int64
	PartitionSize    int64
}

// RingBuffer - The main implementation struct
type RingBuffer struct {
	engine *ring.Ring
	name   string
	// CloseFiles - Closes the underlying partition if it is backed by a file. Use this
	// preferably in a "defer" directly after an Open or New.
	CloseFiles func()
}

// Open - Resolves a partition image by name through the flashpart package and mounts a ring
// buffer on it. A missing image results in a crt.NotFound error.
//   - name is the name of an existing partition image
//   - config is a Config struct providing mount parameters
//
// It returns:
//   - ringBuffer is a pointer to a RingBuffer struct
//   - ringInfo is a RingInfo struct containing some data regarding the ring buffer mounted
//   - err is a normal Go Error which should be nil if everything went ok
func Open(name string, config Config) (ringBuffer *RingBuffer, ringInfo RingInfo, err error) {
	part, err := flashpart.OpenFilePartition(name)
	if err != nil {
		return
	}

	ringBuffer, ringInfo, err = New(part, config)
	if err != nil {
		part.CloseFile()
		return
	}
	ringBuffer.name = name

	return
}

// New - Mounts a ring buffer on an already opened partition. Use this entry when the
// partition comes from somewhere else than a flashpart image, e.g. a wear levelling layer
// on real hardware.
//   - partition is any implementation of the interfaces.Partition interface
//   - config is a Config struct providing mount parameters
//
// It returns:
//   - ringBuffer is a pointer to a RingBuffer struct
//   - ringInfo is a RingInfo struct containing some data regarding the ring buffer mounted
//   - err is a normal Go Error which should be nil if everything went ok
func New(partition interfaces.Partition, config Config) (ringBuffer *RingBuffer, ringInfo RingInfo, err error) {
	engine, err := ring.NewRing(ring.RingConf{
		Partition:  partition,
		RecordSize: config.RecordSize,
		Overwrite:  config.Overwrite,
		Recovery:   config.Recovery,
		Logger:     config.Logger,
	})
	if err != nil {
		return
	}

	ringBuffer = &RingBuffer{
		engine: engine,
		CloseFiles: func() {
			if closer, ok := partition.(interface{ CloseFile() }); ok {
				closer.CloseFile()
			}
		},
	}

	ringInfo = newRingInfo(engine.GetRingParameters())

	return
}

// newRingInfo - Converts internal ring parameters to the exported info struct
func newRingInfo(params model.RingParameters) (ringInfo RingInfo) {
	ringInfo = RingInfo{
		SectorSize:       params.SectorSize,
		DataSectors:      params.DataSectors,
		RecordsPerSector: params.RecordsPerSector,
		MaxRecords:       params.MaxRecords,
		PartitionSize:    params.PartitionSize,
	}

	return
}

// PushBack - Appends one record at the back of the ring buffer.
// When the buffer is full the push either fails with a crt.OutOfSpace error or, with
// Overwrite set in the config, drops the oldest sector of records to make room.
//   - src holds the record to append and must be exactly RecordSize bytes
func (R *RingBuffer) PushBack(src []byte) (err error) {
	return R.engine.PushBack(src)
}

// PeekFront - Reads the oldest record without removing it. Fails with a crt.Empty error
// when the buffer holds no records.
//   - dest receives the record and must be exactly RecordSize bytes
func (R *RingBuffer) PeekFront(dest []byte) (err error) {
	return R.engine.PeekFront(dest)
}

// PopFront - Reads the oldest record and removes it. Fails with a crt.Empty error when the
// buffer holds no records, in which case nothing is removed.
//   - dest receives the record and must be exactly RecordSize bytes
func (R *RingBuffer) PopFront(dest []byte) (err error) {
	return R.engine.PopFront(dest)
}

// DeleteFront - Removes the oldest record without reading it. Fails with a crt.Empty error
// when the buffer holds no records.
func (R *RingBuffer) DeleteFront() (err error) {
	return R.engine.DeleteFront()
}

// RecordNum - Returns the number of records currently in the ring buffer
func (R *RingBuffer) RecordNum() int64 {
	return R.engine.RecordNum()
}

// MaxRecords - Returns the capacity of the ring buffer in records
func (R *RingBuffer) MaxRecords() int64 {
	return R.engine.MaxRecords()
}
