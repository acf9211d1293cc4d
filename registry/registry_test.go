/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package registry

import (
	"testing"

	"github.com/cloudwego/ebpftrace/shm"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, capacity uint32) *ThreadRegistry {
	t.Helper()
	var now uint64
	clock := func() uint64 { now++; return now }
	return NewThreadRegistry(capacity, nil, clock)
}

func TestRegisterClaimsNewSlot(t *testing.T) {
	r := newTestRegistry(t, 4)
	ts, ok := r.Register(100)
	require.True(t, ok)
	require.NotNil(t, ts)
	require.Equal(t, uint64(100), ts.ThreadID)
	require.Equal(t, uint32(0), ts.SlotIndex)
	require.True(t, ts.Active())
	require.Equal(t, uint32(1), r.ThreadCount())
}

func TestRegisterReturnsExistingForSameThread(t *testing.T) {
	r := newTestRegistry(t, 4)
	first, ok := r.Register(100)
	require.True(t, ok)
	second, ok := r.Register(100)
	require.True(t, ok)
	require.Same(t, first, second)
	require.Equal(t, uint32(1), r.ThreadCount())
}

func TestRegisterDistinctThreadsGetDistinctSlots(t *testing.T) {
	r := newTestRegistry(t, 4)
	a, _ := r.Register(1)
	b, _ := r.Register(2)
	require.NotEqual(t, a.SlotIndex, b.SlotIndex)
	require.Equal(t, uint32(2), r.ThreadCount())
}

func TestRegisterFailsWhenFull(t *testing.T) {
	r := newTestRegistry(t, 2)
	_, ok := r.Register(1)
	require.True(t, ok)
	_, ok = r.Register(2)
	require.True(t, ok)
	_, ok = r.Register(3)
	require.False(t, ok)
	require.Equal(t, uint32(2), r.ThreadCount())
}

func TestRegisterFailsWhenNotAccepting(t *testing.T) {
	r := newTestRegistry(t, 4)
	r.StopAccepting()
	_, ok := r.Register(1)
	require.False(t, ok)
}

func TestThreadAtReturnsNilForUnclaimedSlot(t *testing.T) {
	r := newTestRegistry(t, 4)
	require.Nil(t, r.ThreadAt(0))
	r.Register(1)
	require.NotNil(t, r.ThreadAt(0))
	require.Nil(t, r.ThreadAt(1))
}

func TestThreadAtOutOfRangeReturnsNil(t *testing.T) {
	r := newTestRegistry(t, 4)
	require.Nil(t, r.ThreadAt(99))
}

func TestInitSlotWiresLanesAndPools(t *testing.T) {
	r := newTestRegistry(t, 4)
	ts, ok := r.Register(7)
	require.True(t, ok)
	require.NotNil(t, ts.IndexLane)
	require.NotNil(t, ts.DetailLane)
	require.NotNil(t, ts.IndexPool)
	require.NotNil(t, ts.DetailPool)
	require.Len(t, ts.IndexRings, RingsPerIndexLane)
	require.Len(t, ts.DetailRings, RingsPerDetailLane)
	require.NotNil(t, ts.Metrics)
}

func TestMetricsSourceReflectsRegisteredThreads(t *testing.T) {
	r := newTestRegistry(t, 4)
	src := r.MetricsSource()
	require.Equal(t, uint32(4), src.Capacity())

	_, _, _, ok := src.ThreadAt(0)
	require.False(t, ok)

	r.Register(42)
	tm, indexDepth, detailDepth, ok := src.ThreadAt(0)
	require.True(t, ok)
	require.NotNil(t, tm)
	require.Equal(t, uint32(0), indexDepth)
	require.Equal(t, uint32(0), detailDepth)
}

func TestRecordEventUpdatesCountersAndTimestamp(t *testing.T) {
	r := newTestRegistry(t, 4)
	ts, _ := r.Register(1)
	ts.RecordEvent(123)
	require.Equal(t, uint64(1), ts.EventsGenerated())
	require.Equal(t, uint64(123), ts.LastEventTimestamp())
	ts.RecordEvent(456)
	require.Equal(t, uint64(2), ts.EventsGenerated())
	require.Equal(t, uint64(456), ts.LastEventTimestamp())
}

func TestShutdownRequestedFlag(t *testing.T) {
	r := newTestRegistry(t, 4)
	require.False(t, r.ShutdownRequested())
	r.RequestShutdown()
	require.True(t, r.ShutdownRequested())
}

func TestDefaultCapacityUsedWhenZero(t *testing.T) {
	r := NewThreadRegistry(0, nil, nil)
	require.Equal(t, uint32(Capacity), r.Capacity())
}

func TestNewThreadRegistryInArenaSubAllocatesRingsFromOneRegion(t *testing.T) {
	dir := shm.NewDirectory(nil)
	var now uint64
	clock := func() uint64 { now++; return now }

	r, allocator, err := NewThreadRegistryInArena(2, dir, clock)
	require.NoError(t, err)
	require.Equal(t, uint32(1), dir.Count())
	require.Equal(t, RingsMemoryBytes(2), allocator.Size())

	a, ok := r.Register(1)
	require.True(t, ok)
	b, ok := r.Register(2)
	require.True(t, ok)

	base := allocator.Base()
	var offsets []uint64
	for _, ring := range a.IndexRings {
		offsets = append(offsets, allocator.OffsetOf(ring.Bytes()))
	}
	for _, ring := range a.DetailRings {
		offsets = append(offsets, allocator.OffsetOf(ring.Bytes()))
	}
	for _, ring := range b.IndexRings {
		offsets = append(offsets, allocator.OffsetOf(ring.Bytes()))
	}
	for _, ring := range b.DetailRings {
		offsets = append(offsets, allocator.OffsetOf(ring.Bytes()))
	}

	// Every ring is a sub-slice of the single reserved region, addressed
	// by a strictly increasing offset rather than an independent
	// allocation — the layer the review asked for.
	seen := make(map[uint64]bool)
	for i, off := range offsets {
		require.False(t, seen[off], "duplicate offset %d at ring %d", off, i)
		seen[off] = true
		require.Less(t, off, allocator.Size())
		if i > 0 {
			require.Greater(t, off, offsets[i-1])
		}
	}
	require.NotNil(t, base)
	require.Equal(t, allocator.Used(), allocator.Size())
}

func TestRingsMemoryBytesScalesWithCapacity(t *testing.T) {
	require.Equal(t, RingsMemoryBytes(2), 2*RingsMemoryBytes(1))
}
