package ring

import (
	"fmt"

	"github.com/gostonefire/flashring/crt"
	"github.com/gostonefire/flashring/interfaces"
	"github.com/gostonefire/flashring/internal/conf"
	"github.com/gostonefire/flashring/internal/model"
	"github.com/gostonefire/flashring/internal/utils"
	"go.uber.org/zap"
)

// RingConf - Is a struct to be passed in the call to NewRing and contains configuration that
// affects how the ring is mounted and operated.
//   - Partition is the flash partition to mount the ring on
//   - RecordSize is the fixed size of every record, must be within (0, sector size]
//   - Overwrite is whether a push into a full ring drops the oldest sector instead of failing
//   - Recovery is whether mounting with exactly one corrupt header also scans the back slot
//     for a record whose header update was lost
//   - Logger is an optional logger for mount time events, nil disables logging
type RingConf struct {
	Partition  interfaces.Partition
	RecordSize int64
	Overwrite  bool
	Recovery   bool
	Logger     *zap.Logger
}

// Ring - Represents a mounted ring buffer over a flash partition.
// The data region is a ring of dataSectors sectors following the two header slots. Records
// never straddle sector boundaries, each sector holds recordsPerSector slots starting at its
// base and any trailing bytes are unused padding.
//
// The engine holds no locks, callers that need concurrent access to one instance have to
// serialise externally.
type Ring struct {
	part             interfaces.Partition
	log              *zap.Logger
	sectorSize       int64
	recordSize       int64
	overwrite        bool
	slotSectors      int64
	dataSectors      int64
	recordsPerSector int64
	front            int64
	recordNum        int64
	sequence         uint32
}

// NewRing - Returns a pointer to a new Ring instance mounted on the given partition.
// A blank or fully corrupt partition is initialised to an empty ring. With exactly one
// valid header the surviving state is adopted, in recovery mode followed by a back-scan.
//   - ringConf is a RingConf struct providing the partition and mount parameters
//
// It returns:
//   - ring which is a pointer to the mounted instance
//   - err which is a standard Go type of error
func NewRing(ringConf RingConf) (ring *Ring, err error) {
	if ringConf.Partition == nil {
		err = fmt.Errorf("no partition given to mount the ring on")
		return
	}

	logger := ringConf.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sectorSize := ringConf.Partition.SectorSize()
	partitionSize := ringConf.Partition.Size()

	if ringConf.RecordSize <= 0 || ringConf.RecordSize > sectorSize {
		err = crt.InvalidSize{}
		return
	}

	slotSectors := (conf.HeaderLength + sectorSize - 1) / sectorSize
	dataSectors := partitionSize/sectorSize - 2*slotSectors
	if dataSectors < 1 {
		err = crt.InvalidSize{}
		return
	}

	ring = &Ring{
		part:             ringConf.Partition,
		log:              logger,
		sectorSize:       sectorSize,
		recordSize:       ringConf.RecordSize,
		overwrite:        ringConf.Overwrite,
		slotSectors:      slotSectors,
		dataSectors:      dataSectors,
		recordsPerSector: sectorSize / ringConf.RecordSize,
	}

	err = ring.mount(ringConf.Recovery)
	if err != nil {
		ring = nil
		return
	}

	return
}

// mount - Selects the authoritative header state from the two slots.
// With both slots valid the one with the newer sequence wins. With exactly one valid slot
// the surviving state is adopted, and in recovery mode additionally followed by a back-scan
// for a record whose header update was lost. With no valid slot the ring resets to empty.
func (R *Ring) mount(recovery bool) (err error) {
	slotA, err := R.readHeaderSlot(0)
	if err != nil {
		return
	}
	slotB, err := R.readHeaderSlot(1)
	if err != nil {
		return
	}

	switch {
	case slotA.valid && slotB.valid:
		adopted := slotA.header
		if sequenceIsNewer(slotB.header.Sequence, slotA.header.Sequence) {
			adopted = slotB.header
		}
		R.front = adopted.Front
		R.recordNum = adopted.RecordNum
		R.sequence = adopted.Sequence

	case slotA.valid || slotB.valid:
		adopted := slotA.header
		if slotB.valid {
			adopted = slotB.header
		}
		R.front = adopted.Front
		R.recordNum = adopted.RecordNum
		R.sequence = adopted.Sequence
		R.log.Info("adopted single valid header",
			zap.Int64("front", R.front),
			zap.Int64("recordNum", R.recordNum),
			zap.Uint32("sequence", R.sequence),
		)

		if recovery {
			err = R.backScan()
		}

	default:
		R.log.Info("no valid header found, initialising empty ring")
		err = R.resetHeaders()
	}

	return
}

// backScan - Probes the slot the next push would write for a record that was durably written
// but whose header publication was lost. The probe is only meaningful when the back offset
// sits mid-sector, a sector aligned back may point into an unerased stale sector where the
// erased state of the bytes tells nothing. Recovers at most one record.
func (R *Ring) backScan() (err error) {
	back := R.getBack()
	if back%R.sectorSize == 0 {
		return
	}

	buf := make([]byte, R.recordSize)
	e := R.part.Read(back+R.headerOffset(), buf)
	if e != nil {
		err = crt.Io{Err: e}
		return
	}

	if utils.IsErased(buf) {
		return
	}

	R.recordNum++
	R.log.Info("recovered orphaned tail record", zap.Int64("recordNum", R.recordNum))

	return R.writeHeader()
}

// headerOffset - Returns the byte offset of the data ring, i.e. the size of both header slots
func (R *Ring) headerOffset() int64 {
	return 2 * R.slotSectors * R.sectorSize
}

// maxRecords - Returns the total number of record slots in the data ring
func (R *Ring) maxRecords() int64 {
	return R.dataSectors * R.recordsPerSector
}

// remainingInFrontSector - Returns the number of record slots from front to the end of the
// sector containing front
func (R *Ring) remainingInFrontSector() int64 {
	return (R.sectorSize - R.front%R.sectorSize) / R.recordSize
}

// getBack - Derives the byte offset within the data ring at which the next push will write.
// The sector containing front is only partially usable from front onward, hence the extra
// sector step once the records spill past it.
func (R *Ring) getBack() int64 {
	remFront := R.remainingInFrontSector()
	if remFront > R.recordNum {
		return R.front + R.recordNum*R.recordSize
	}

	remaining := R.recordNum - remFront
	fullSectors := remaining / R.recordsPerSector
	frontSector := R.front / R.sectorSize
	backSector := (frontSector + fullSectors + 1) % R.dataSectors

	return backSector*R.sectorSize + (remaining%R.recordsPerSector)*R.recordSize
}

// isFull - Returns true when the sector the next push would write is the sector containing
// front, i.e. writing would require erasing live records
func (R *Ring) isFull() bool {
	remFront := R.remainingInFrontSector()
	if remFront > R.recordNum {
		return false
	}

	remaining := R.recordNum - remFront
	fullSectors := remaining / R.recordsPerSector
	frontSector := R.front / R.sectorSize

	return (frontSector+fullSectors+1)%R.dataSectors == frontSector
}

// PushBack - Appends one record at the back of the ring.
// When the ring is full the push either fails with OutOfSpace or, in overwrite mode, drops
// the entire sector containing front before the back offset is derived again from the
// updated state. A sector aligned back is erased before the record is written since writing
// into unerased flash is forbidden by the adapter contract. The push is durable exactly when
// the header publication succeeded.
//   - src holds the record to append and must be exactly the configured record size
func (R *Ring) PushBack(src []byte) (err error) {
	if int64(len(src)) != R.recordSize {
		err = crt.InvalidSize{}
		return
	}

	if R.isFull() {
		if !R.overwrite {
			err = crt.OutOfSpace{}
			return
		}

		frontSector := R.front / R.sectorSize
		dropped := R.remainingInFrontSector()
		R.front = ((frontSector + 1) % R.dataSectors) * R.sectorSize
		R.recordNum -= dropped
	}

	back := R.getBack()

	if back%R.sectorSize == 0 {
		e := R.part.EraseRange(back+R.headerOffset(), R.sectorSize)
		if e != nil {
			err = crt.Io{Err: e}
			return
		}
	}

	e := R.part.Write(back+R.headerOffset(), src)
	if e != nil {
		err = crt.Io{Err: e}
		return
	}

	R.recordNum++

	return R.writeHeader()
}

// PeekFront - Reads the oldest record without removing it.
//   - dest receives the record and must be exactly the configured record size
func (R *Ring) PeekFront(dest []byte) (err error) {
	if int64(len(dest)) != R.recordSize {
		err = crt.InvalidSize{}
		return
	}
	if R.recordNum == 0 {
		err = crt.Empty{}
		return
	}

	e := R.part.Read(R.front+R.headerOffset(), dest)
	if e != nil {
		err = crt.Io{Err: e}
		return
	}

	return
}

// DeleteFront - Removes the oldest record.
// Front advances within its sector only while at least two record slots remain after the
// advance, otherwise it jumps to the start of the next sector. Once a single slot remains it
// is the record just consumed, skipping forward keeps reads sector aligned and lets the next
// full sector erase proceed without a stale tail slot obstructing it.
func (R *Ring) DeleteFront() (err error) {
	if R.recordNum == 0 {
		err = crt.Empty{}
		return
	}

	if R.sectorSize-R.front%R.sectorSize > 2*R.recordSize {
		R.front += R.recordSize
	} else {
		R.front = (R.front/R.sectorSize + 1) % R.dataSectors * R.sectorSize
	}
	R.recordNum--

	return R.writeHeader()
}

// PopFront - Reads the oldest record and removes it.
// A failing read surfaces without mutating state.
//   - dest receives the record and must be exactly the configured record size
func (R *Ring) PopFront(dest []byte) (err error) {
	err = R.PeekFront(dest)
	if err != nil {
		return
	}

	return R.DeleteFront()
}

// RecordNum - Returns the number of valid records currently in the ring
func (R *Ring) RecordNum() int64 {
	return R.recordNum
}

// MaxRecords - Returns the capacity of the ring in records
func (R *Ring) MaxRecords() int64 {
	return R.maxRecords()
}

// GetRingParameters - Returns the derived geometry of the mounted ring
func (R *Ring) GetRingParameters() (params model.RingParameters) {
	params = model.RingParameters{
		SectorSize:       R.sectorSize,
		PartitionSize:    R.part.Size(),
		RecordSize:       R.recordSize,
		SlotSectors:      R.slotSectors,
		HeaderOffset:     R.headerOffset(),
		DataSectors:      R.dataSectors,
		RecordsPerSector: R.recordsPerSector,
		MaxRecords:       R.maxRecords(),
	}

	return
}
