//go:build unit

package ring

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/gostonefire/flashring/crt"
	"github.com/gostonefire/flashring/flashpart"
	"github.com/gostonefire/flashring/internal/conf"
	"github.com/gostonefire/flashring/internal/model"
	"github.com/gostonefire/flashring/internal/utils"
	"github.com/stretchr/testify/assert"
)

// Test geometry: 8 sectors of 4096 bytes, two used by the header slots, leaving a data
// ring of 6 sectors with 256 records of 16 bytes each, i.e. a capacity of 1536 records.
const testSectorSize int64 = 4096
const testPartitionSize int64 = 32768
const testRecordSize int64 = 16

const testDataOffset int64 = 2 * testSectorSize
const testCapacity int64 = 1536

// testRecord - Returns a distinguishable record payload for the given ordinal
func testRecord(i int) (buf []byte) {
	buf = make([]byte, testRecordSize)
	binary.LittleEndian.PutUint32(buf, uint32(i))
	for j := 4; j < len(buf); j++ {
		buf[j] = byte(i)
	}

	return
}

// newTestPartition - Returns a blank in-memory partition with the test geometry
func newTestPartition(t *testing.T) (part *flashpart.MemPartition) {
	part, err := flashpart.NewMemPartition(testSectorSize, testPartitionSize)
	assert.NoError(t, err, "create mem partition")

	return
}

// mountTestRing - Mounts a ring with the test record size on the given partition
func mountTestRing(t *testing.T, part *flashpart.MemPartition, overwrite, recovery bool) (ring *Ring) {
	ring, err := NewRing(RingConf{Partition: part, RecordSize: testRecordSize, Overwrite: overwrite, Recovery: recovery})
	assert.NoError(t, err, "mount ring")

	return
}

// adapterOp - Represents one recorded adapter call
type adapterOp struct {
	op     string
	offset int64
	length int64
}

// recordingPartition - Partition wrapper that records every adapter call, used to verify
// erase-before-write and header slot alternation
type recordingPartition struct {
	inner *flashpart.MemPartition
	ops   []adapterOp
}

func (P *recordingPartition) SectorSize() int64 { return P.inner.SectorSize() }

func (P *recordingPartition) Size() int64 { return P.inner.Size() }

func (P *recordingPartition) Read(offset int64, buf []byte) error {
	P.ops = append(P.ops, adapterOp{op: "read", offset: offset, length: int64(len(buf))})
	return P.inner.Read(offset, buf)
}

func (P *recordingPartition) Write(offset int64, buf []byte) error {
	P.ops = append(P.ops, adapterOp{op: "write", offset: offset, length: int64(len(buf))})
	return P.inner.Write(offset, buf)
}

func (P *recordingPartition) EraseRange(offset int64, length int64) error {
	P.ops = append(P.ops, adapterOp{op: "erase", offset: offset, length: length})
	return P.inner.EraseRange(offset, length)
}

// failingPartition - Partition wrapper that fails the n:th write call, simulating a power
// loss in the middle of an operation
type failingPartition struct {
	inner       *flashpart.MemPartition
	failOnWrite int
	writeCalls  int
}

func (P *failingPartition) SectorSize() int64 { return P.inner.SectorSize() }

func (P *failingPartition) Size() int64 { return P.inner.Size() }

func (P *failingPartition) Read(offset int64, buf []byte) error { return P.inner.Read(offset, buf) }

func (P *failingPartition) Write(offset int64, buf []byte) error {
	P.writeCalls++
	if P.writeCalls == P.failOnWrite {
		return fmt.Errorf("simulated power loss")
	}
	return P.inner.Write(offset, buf)
}

func (P *failingPartition) EraseRange(offset int64, length int64) error {
	return P.inner.EraseRange(offset, length)
}

// tracingPartition - Partition wrapper that snapshots the partition contents after every
// mutating adapter call, used to replay crash traces
type tracingPartition struct {
	inner *flashpart.MemPartition
	snaps [][]byte
}

func (P *tracingPartition) SectorSize() int64 { return P.inner.SectorSize() }

func (P *tracingPartition) Size() int64 { return P.inner.Size() }

func (P *tracingPartition) Read(offset int64, buf []byte) error { return P.inner.Read(offset, buf) }

func (P *tracingPartition) Write(offset int64, buf []byte) error {
	err := P.inner.Write(offset, buf)
	if err == nil {
		P.snaps = append(P.snaps, P.inner.Snapshot())
	}
	return err
}

func (P *tracingPartition) EraseRange(offset int64, length int64) error {
	err := P.inner.EraseRange(offset, length)
	if err == nil {
		P.snaps = append(P.snaps, P.inner.Snapshot())
	}
	return err
}

func TestNewRing(t *testing.T) {
	t.Run("mounts an empty ring on a blank partition", func(t *testing.T) {
		// Prepare
		part := newTestPartition(t)

		// Execute
		ring := mountTestRing(t, part, false, false)

		// Check
		assert.Equal(t, int64(0), ring.RecordNum())
		assert.Equal(t, testCapacity, ring.MaxRecords())

		params := ring.GetRingParameters()
		assert.Equal(t, testSectorSize, params.SectorSize)
		assert.Equal(t, int64(6), params.DataSectors)
		assert.Equal(t, int64(256), params.RecordsPerSector)
		assert.Equal(t, testDataOffset, params.HeaderOffset)
	})

	t.Run("rejects invalid record sizes", func(t *testing.T) {
		// Prepare
		part := newTestPartition(t)

		// Execute / Check
		_, err := NewRing(RingConf{Partition: part, RecordSize: 0})
		assert.ErrorAs(t, err, &crt.InvalidSize{}, "record size zero is rejected")

		_, err = NewRing(RingConf{Partition: part, RecordSize: testSectorSize + 1})
		assert.ErrorAs(t, err, &crt.InvalidSize{}, "record size above sector size is rejected")
	})

	t.Run("rejects a partition with no room for data sectors", func(t *testing.T) {
		// Prepare
		part, err := flashpart.NewMemPartition(testSectorSize, 2*testSectorSize)
		assert.NoError(t, err, "create mem partition")

		// Execute
		_, err = NewRing(RingConf{Partition: part, RecordSize: testRecordSize})

		// Check
		assert.ErrorAs(t, err, &crt.InvalidSize{}, "partition holding only the header slots is rejected")
	})
}

func TestPushPeekPop(t *testing.T) {
	t.Run("pushes and pops in FIFO order", func(t *testing.T) {
		// Prepare
		part := newTestPartition(t)
		ring := mountTestRing(t, part, false, false)

		// Execute
		err := ring.PushBack(testRecord(1))
		assert.NoError(t, err, "push first record")
		err = ring.PushBack(testRecord(2))
		assert.NoError(t, err, "push second record")

		// Check
		buf := make([]byte, testRecordSize)
		err = ring.PopFront(buf)
		assert.NoError(t, err, "pop first record")
		assert.True(t, utils.IsEqual(testRecord(1), buf), "pop returns the first record")

		err = ring.PeekFront(buf)
		assert.NoError(t, err, "peek second record")
		assert.True(t, utils.IsEqual(testRecord(2), buf), "peek returns the second record")
		assert.Equal(t, int64(1), ring.RecordNum())
	})

	t.Run("fails empty operations on an empty ring", func(t *testing.T) {
		// Prepare
		part := newTestPartition(t)
		ring := mountTestRing(t, part, false, false)
		buf := make([]byte, testRecordSize)

		// Execute / Check
		assert.ErrorAs(t, ring.PeekFront(buf), &crt.Empty{})
		assert.ErrorAs(t, ring.PopFront(buf), &crt.Empty{})
		assert.ErrorAs(t, ring.DeleteFront(), &crt.Empty{})
	})

	t.Run("rejects a wrongly sized payload", func(t *testing.T) {
		// Prepare
		part := newTestPartition(t)
		ring := mountTestRing(t, part, false, false)

		// Execute / Check
		assert.ErrorAs(t, ring.PushBack(make([]byte, testRecordSize-1)), &crt.InvalidSize{})
		assert.ErrorAs(t, ring.PeekFront(make([]byte, testRecordSize+1)), &crt.InvalidSize{})
	})
}

func TestFifoOrder(t *testing.T) {
	t.Run("keeps order over an interleaved workload", func(t *testing.T) {
		// Prepare
		part := newTestPartition(t)
		ring := mountTestRing(t, part, false, false)
		buf := make([]byte, testRecordSize)

		// Execute, keep a couple of records in flight so pushes and pops interleave
		next := 0
		for i := 0; i < 200; i++ {
			err := ring.PushBack(testRecord(i))
			assert.NoError(t, err, "push record")

			if i%2 == 1 {
				err = ring.PopFront(buf)
				assert.NoError(t, err, "pop record")
				assert.True(t, utils.IsEqual(testRecord(next), buf), "pop in push order")
				next++
			}
		}

		// Check, drain the rest
		for ring.RecordNum() > 0 {
			err := ring.PopFront(buf)
			assert.NoError(t, err, "drain record")
			assert.True(t, utils.IsEqual(testRecord(next), buf), "drain in push order")
			next++
		}
		assert.Equal(t, 200, next, "all pushed records observed")
	})
}

func TestRemountKeepsState(t *testing.T) {
	t.Run("remount yields the state of the last successful operation", func(t *testing.T) {
		// Prepare
		part := newTestPartition(t)
		ring := mountTestRing(t, part, false, false)

		for i := 0; i < 5; i++ {
			assert.NoError(t, ring.PushBack(testRecord(i)), "push record")
		}
		buf := make([]byte, testRecordSize)
		assert.NoError(t, ring.PopFront(buf), "pop record")

		// Execute
		ring2 := mountTestRing(t, part, false, false)

		// Check
		assert.Equal(t, int64(4), ring2.RecordNum())
		assert.NoError(t, ring2.PeekFront(buf), "peek after remount")
		assert.True(t, utils.IsEqual(testRecord(1), buf), "head survived the remount")
	})
}

func TestSectorBoundaryErase(t *testing.T) {
	t.Run("erases a sector before the first write into it", func(t *testing.T) {
		// Prepare
		inner := newTestPartition(t)
		part := &recordingPartition{inner: inner}
		ring, err := NewRing(RingConf{Partition: part, RecordSize: testRecordSize})
		assert.NoError(t, err, "mount ring")

		// Execute, record 256 fills sector 0 so record 257 starts sector 1
		for i := 0; i < 257; i++ {
			assert.NoError(t, ring.PushBack(testRecord(i)), "push record")
		}

		// Check, every write landing on a sector boundary is preceded by an erase of it
		boundaryWrites := 0
		for i, op := range part.ops {
			if op.op == "write" && op.offset%testSectorSize == 0 {
				boundaryWrites++
				assert.Greater(t, i, 0, "boundary write cannot be the first op")
				prev := part.ops[i-1]
				assert.Equal(t, "erase", prev.op, "erase issued right before boundary write")
				assert.LessOrEqual(t, prev.offset, op.offset, "erase covers the written sector")
				assert.Greater(t, prev.offset+prev.length, op.offset, "erase covers the written sector")
			}
		}
		assert.Greater(t, boundaryWrites, 0, "workload hit sector boundaries")

		// Check, the push crossing into sector 1 erased it first
		sector1 := testDataOffset + testSectorSize
		found := false
		for i, op := range part.ops {
			if op.op == "write" && op.offset == sector1 {
				found = true
				assert.Equal(t, adapterOp{op: "erase", offset: sector1, length: testSectorSize}, part.ops[i-1])
				break
			}
		}
		assert.True(t, found, "record 257 was written at the start of sector 1")
	})
}

func TestFullWithoutOverwrite(t *testing.T) {
	t.Run("fails the push beyond capacity and leaves state unchanged", func(t *testing.T) {
		// Prepare
		part := newTestPartition(t)
		ring := mountTestRing(t, part, false, false)

		for i := 0; i < int(testCapacity); i++ {
			assert.NoError(t, ring.PushBack(testRecord(i)), "push record")
		}

		// Execute
		err := ring.PushBack(testRecord(9999))

		// Check
		assert.ErrorAs(t, err, &crt.OutOfSpace{})
		assert.Equal(t, testCapacity, ring.RecordNum())

		buf := make([]byte, testRecordSize)
		assert.NoError(t, ring.PeekFront(buf), "peek after failed push")
		assert.True(t, utils.IsEqual(testRecord(0), buf), "front unchanged by failed push")
	})
}

func TestOverwriteDropsSector(t *testing.T) {
	t.Run("drops the front sector when pushing into a full ring", func(t *testing.T) {
		// Prepare
		part := newTestPartition(t)
		ring := mountTestRing(t, part, true, false)

		// Execute
		for i := 0; i <= int(testCapacity); i++ {
			assert.NoError(t, ring.PushBack(testRecord(i)), "push record")
		}

		// Check, the 1537:th push dropped the 256 records of sector 0
		assert.Equal(t, testCapacity-256+1, ring.RecordNum())

		buf := make([]byte, testRecordSize)
		assert.NoError(t, ring.PopFront(buf), "pop after overwrite")
		assert.True(t, utils.IsEqual(testRecord(256), buf), "records 0..255 are gone")
	})

	t.Run("keeps the tail records readable after many wraps", func(t *testing.T) {
		// Prepare
		part := newTestPartition(t)
		ring := mountTestRing(t, part, true, false)

		// Execute, five times around the ring
		total := int(testCapacity) * 5
		for i := 0; i < total; i++ {
			assert.NoError(t, ring.PushBack(testRecord(i)), "push record")
		}

		// Check, the oldest retained records are from the tail of the pushes, front starts
		// at a sector boundary after the overwrite drops so 250 pops stay within one sector
		remaining := int(ring.RecordNum())
		assert.GreaterOrEqual(t, remaining, int(testCapacity)-255)
		assert.LessOrEqual(t, remaining, int(testCapacity))

		buf := make([]byte, testRecordSize)
		for i := 0; i < 250; i++ {
			assert.NoError(t, ring.PopFront(buf), "pop record")
			assert.True(t, utils.IsEqual(testRecord(total-remaining+i), buf), "tail records in push order")
		}
	})
}

func TestDeleteFront(t *testing.T) {
	t.Run("jumps to the next sector when a single slot remains", func(t *testing.T) {
		// Prepare, fill sector 0 and a few records of sector 1
		part := newTestPartition(t)
		ring := mountTestRing(t, part, false, false)
		for i := 0; i < 266; i++ {
			assert.NoError(t, ring.PushBack(testRecord(i)), "push record")
		}

		// Execute, consuming the first 255 records walks front through sector 0
		buf := make([]byte, testRecordSize)
		for i := 0; i < 255; i++ {
			assert.NoError(t, ring.PopFront(buf), "pop record")
			assert.True(t, utils.IsEqual(testRecord(i), buf), "pop in push order")
		}

		// Check, front jumped past the last slot of sector 0, consuming it with the jump
		assert.Equal(t, int64(11), ring.RecordNum())
		assert.NoError(t, ring.PeekFront(buf), "peek after sector jump")
		assert.True(t, utils.IsEqual(testRecord(256), buf), "front sits at the start of sector 1")
	})
}

func TestHeaderAlternation(t *testing.T) {
	t.Run("publishes successive headers into alternating slots", func(t *testing.T) {
		// Prepare
		inner := newTestPartition(t)
		part := &recordingPartition{inner: inner}
		ring, err := NewRing(RingConf{Partition: part, RecordSize: testRecordSize})
		assert.NoError(t, err, "mount ring")

		// Execute
		for i := 0; i < 4; i++ {
			assert.NoError(t, ring.PushBack(testRecord(i)), "push record")
		}
		assert.NoError(t, ring.DeleteFront(), "delete record")

		// Check, collect header slot writes (the data region starts after both slots)
		var slots []int64
		for _, op := range part.ops {
			if op.op == "write" && op.offset < testDataOffset {
				slots = append(slots, op.offset/testSectorSize)
			}
		}
		assert.Equal(t, []int64{0, 1, 0, 1, 0, 1}, slots, "reset plus five operations alternate slots")
	})
}

func TestCrashBeforeHeaderWrite(t *testing.T) {
	// The mount publishes one header write, and each push issues one payload write followed
	// by one header write. Failing the seventh write call kills the header publication of
	// the third push right after its payload landed on flash.
	prepare := func(t *testing.T) *flashpart.MemPartition {
		inner := newTestPartition(t)
		part := &failingPartition{inner: inner, failOnWrite: 7}
		ring, err := NewRing(RingConf{Partition: part, RecordSize: testRecordSize})
		assert.NoError(t, err, "mount ring")

		assert.NoError(t, ring.PushBack(testRecord(0)), "push first record")
		assert.NoError(t, ring.PushBack(testRecord(1)), "push second record")
		assert.ErrorAs(t, ring.PushBack(testRecord(2)), &crt.Io{}, "third push dies on the header write")

		return inner
	}

	t.Run("recovery mode adopts the orphaned record", func(t *testing.T) {
		// Prepare
		inner := prepare(t)

		// Execute
		ring, err := NewRing(RingConf{Partition: inner, RecordSize: testRecordSize, Recovery: true})
		assert.NoError(t, err, "remount with recovery")

		// Check
		assert.Equal(t, int64(3), ring.RecordNum())

		buf := make([]byte, testRecordSize)
		for i := 0; i < 3; i++ {
			assert.NoError(t, ring.PopFront(buf), "pop record")
			assert.True(t, utils.IsEqual(testRecord(i), buf), "records including the orphan in order")
		}
	})

	t.Run("without recovery mode the in-flight push is forgotten", func(t *testing.T) {
		// Prepare
		inner := prepare(t)

		// Execute
		ring, err := NewRing(RingConf{Partition: inner, RecordSize: testRecordSize, Recovery: false})
		assert.NoError(t, err, "remount without recovery")

		// Check
		assert.Equal(t, int64(2), ring.RecordNum())
	})
}

func TestCrashTraceConsistency(t *testing.T) {
	t.Run("any truncated trace remounts to the pre or post state", func(t *testing.T) {
		// Prepare, two durable records and a trace of every flash mutation of a third push
		inner := newTestPartition(t)
		part := &tracingPartition{inner: inner}
		ring, err := NewRing(RingConf{Partition: part, RecordSize: testRecordSize})
		assert.NoError(t, err, "mount ring")

		assert.NoError(t, ring.PushBack(testRecord(0)), "push first record")
		assert.NoError(t, ring.PushBack(testRecord(1)), "push second record")

		opStart := len(part.snaps)
		assert.NoError(t, ring.PushBack(testRecord(2)), "push third record")

		// Execute / Check, every intermediate flash state mounts to recordNum 2 or 3 with
		// an untouched front
		buf := make([]byte, testRecordSize)
		for i := opStart; i < len(part.snaps); i++ {
			replay, err := flashpart.NewMemPartition(testSectorSize, testPartitionSize)
			assert.NoError(t, err, "create replay partition")
			assert.NoError(t, replay.Restore(part.snaps[i]), "restore snapshot")

			remounted, err := NewRing(RingConf{Partition: replay, RecordSize: testRecordSize, Recovery: true})
			assert.NoError(t, err, "remount truncated trace")

			assert.Contains(t, []int64{2, 3}, remounted.RecordNum(), "pre or post state only")
			assert.NoError(t, remounted.PeekFront(buf), "peek after remount")
			assert.True(t, utils.IsEqual(testRecord(0), buf), "front unchanged by the crash")
		}
	})
}

func TestSequenceWrap(t *testing.T) {
	t.Run("selects the wrapped sequence as the newer header", func(t *testing.T) {
		// Prepare, slot 0 at the max sequence and slot 1 wrapped around to 0
		part := newTestPartition(t)
		err := part.Write(0, headerToBytes(model.Header{
			Magic: conf.RingMagic, Front: 16, RecordNum: 1, Sequence: ^uint32(0),
		}))
		assert.NoError(t, err, "write slot 0")
		err = part.Write(testSectorSize, headerToBytes(model.Header{
			Magic: conf.RingMagic, Front: 32, RecordNum: 2, Sequence: 0,
		}))
		assert.NoError(t, err, "write slot 1")

		// Execute
		ring := mountTestRing(t, part, false, false)

		// Check
		assert.Equal(t, int64(2), ring.RecordNum())
		assert.Equal(t, int64(32), ring.front)
		assert.Equal(t, uint32(0), ring.sequence)
	})
}

func TestImplausibleHeader(t *testing.T) {
	t.Run("falls back to the other slot when a header does not fit the geometry", func(t *testing.T) {
		// Prepare, slot 0 checksums fine but front is no record slot boundary
		part := newTestPartition(t)
		err := part.Write(0, headerToBytes(model.Header{
			Magic: conf.RingMagic, Front: 8, RecordNum: 1, Sequence: 10,
		}))
		assert.NoError(t, err, "write slot 0")
		err = part.Write(testSectorSize, headerToBytes(model.Header{
			Magic: conf.RingMagic, Front: 48, RecordNum: 3, Sequence: 2,
		}))
		assert.NoError(t, err, "write slot 1")

		// Execute
		ring := mountTestRing(t, part, false, false)

		// Check
		assert.Equal(t, int64(3), ring.RecordNum())
		assert.Equal(t, int64(48), ring.front)
	})

	t.Run("resets when no slot holds a usable header", func(t *testing.T) {
		// Prepare
		part := newTestPartition(t)
		err := part.Write(0, headerToBytes(model.Header{
			Magic: conf.RingMagic, Front: 8, RecordNum: 1, Sequence: 10,
		}))
		assert.NoError(t, err, "write slot 0")

		// Execute
		ring := mountTestRing(t, part, false, true)

		// Check
		assert.Equal(t, int64(0), ring.RecordNum())
		assert.Equal(t, int64(0), ring.front)
	})
}

func TestBackScan(t *testing.T) {
	t.Run("skips the scan when back sits on a sector boundary", func(t *testing.T) {
		// Prepare, a single valid header describing exactly one full sector, back then
		// points at the unerased start of sector 1 where probing tells nothing
		part := newTestPartition(t)
		err := part.Write(0, headerToBytes(model.Header{
			Magic: conf.RingMagic, Front: 0, RecordNum: 256, Sequence: 4,
		}))
		assert.NoError(t, err, "write slot 0")

		// Execute
		ring := mountTestRing(t, part, false, true)

		// Check
		assert.Equal(t, int64(256), ring.RecordNum(), "no record recovered on a sector boundary")
	})
}
