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

package metrics

import "sync/atomic"

// MaxThreads bounds both the registry slot table and the collector's
// previous-swap-sample bookkeeping arrays.
const MaxThreads = 64

// Source is the read surface the global collector needs from a thread
// registry: its fixed slot capacity, and, per slot, the ThreadMetrics
// living there (if any) plus the current index/detail submit-queue
// depths. Defined here rather than imported from package registry to
// avoid a metrics<->registry import cycle — registry implements this
// interface instead of metrics depending on registry's types.
type Source interface {
	Capacity() uint32
	ThreadAt(slot uint32) (tm *ThreadMetrics, indexQueueDepth, detailQueueDepth uint32, ok bool)
}

// Totals accumulates system-wide counters across one collection pass.
type Totals struct {
	TotalEventsWritten  uint64
	TotalEventsDropped  uint64
	TotalEventsFiltered uint64
	TotalBytesWritten   uint64
	ActiveThreadCount   uint32
}

// Rates accumulates system-wide rates across one collection pass.
type Rates struct {
	SystemEventsPerSecond float64
	SystemBytesPerSecond  float64
	LastWindowNS          uint64
}

// Global is the interval-gated collector that walks a Source's active
// slots, refreshing per-thread rate estimates and snapshots and
// accumulating system totals/rates. Safe for concurrent Collect callers
// only in the sense that at most one will win the CAS each interval;
// the snapshot buffer itself is single-writer (the drain).
type Global struct {
	snapshots        []Snapshot
	snapshotCount    uint64 // atomic
	collectionInterval uint64 // atomic, ns
	lastCollectionNS   uint64 // atomic, ns
	collectionEnabled  uint32 // atomic bool

	totals Totals
	rates  Rates

	previousSwapCount     [MaxThreads]uint64
	previousSwapTimestamp [MaxThreads]uint64
	previousThreadID      [MaxThreads]uint64
}

// NewGlobal returns a Global collector with the given snapshot buffer
// capacity (must be >= MaxThreads to never truncate a full registry
// walk) and the default 100ms collection interval, enabled.
func NewGlobal(capacity int) *Global {
	g := &Global{
		snapshots: make([]Snapshot, capacity),
	}
	atomic.StoreUint64(&g.collectionInterval, WindowNS)
	atomic.StoreUint32(&g.collectionEnabled, 1)
	return g
}

// SetEnabled turns collection on or off.
func (g *Global) SetEnabled(enabled bool) {
	var v uint32
	if enabled {
		v = 1
	}
	atomic.StoreUint32(&g.collectionEnabled, v)
}

// SetInterval changes the collection interval. A zero value is ignored.
func (g *Global) SetInterval(intervalNS uint64) {
	if intervalNS == 0 {
		return
	}
	atomic.StoreUint64(&g.collectionInterval, intervalNS)
}

func computeQueueDepth(depth uint32) uint32 { return depth }

func (g *Global) computeSwapsPerSecond(slot uint32, threadID, swapCount, nowNS uint64) float64 {
	if slot >= MaxThreads {
		return 0
	}
	if g.previousThreadID[slot] != threadID {
		g.previousThreadID[slot] = threadID
		g.previousSwapCount[slot] = swapCount
		g.previousSwapTimestamp[slot] = nowNS
		return 0
	}
	prevCount := g.previousSwapCount[slot]
	prevTS := g.previousSwapTimestamp[slot]
	g.previousSwapCount[slot] = swapCount
	g.previousSwapTimestamp[slot] = nowNS

	if nowNS <= prevTS || swapCount <= prevCount {
		return 0
	}
	deltaCount := swapCount - prevCount
	deltaNS := nowNS - prevTS
	if deltaNS == 0 {
		return 0
	}
	return float64(deltaCount) * 1e9 / float64(deltaNS)
}

// Collect performs one interval-gated pass over src, if collection is
// enabled and the interval has elapsed. Returns false otherwise (the
// common case — most calls arrive between intervals and are cheap
// no-ops). The calling drain owns nowNS, matching the C code's
// caller-supplied monotonic clock.
func (g *Global) Collect(src Source, nowNS uint64) bool {
	if atomic.LoadUint32(&g.collectionEnabled) == 0 {
		return false
	}
	last := atomic.LoadUint64(&g.lastCollectionNS)
	interval := atomic.LoadUint64(&g.collectionInterval)
	if interval == 0 {
		interval = WindowNS
	}
	if last != 0 && nowNS-last < interval {
		return false
	}
	if !atomic.CompareAndSwapUint64(&g.lastCollectionNS, last, nowNS) {
		return false
	}

	g.totals = Totals{}
	g.rates = Rates{}

	snapshotIndex := 0
	capacity := src.Capacity()
	for i := uint32(0); i < capacity; i++ {
		tm, indexDepth, detailDepth, ok := src.ThreadAt(i)
		if !ok || tm == nil {
			continue
		}
		if snapshotIndex >= len(g.snapshots) {
			break
		}

		depth := computeQueueDepth(indexDepth) + computeQueueDepth(detailDepth)
		tm.ObserveQueueDepth(depth)

		events := atomic.LoadUint64(&tm.eventsWritten)
		bytes := atomic.LoadUint64(&tm.bytesWritten)
		rate := sampleRate(tm, nowNS, events, bytes)

		snap := Capture(tm, nowNS)
		snap.ApplyRates(rate.EventsPerSecond, rate.BytesPerSecond)
		swapsPerSecond := g.computeSwapsPerSecond(snap.SlotIndex, snap.ThreadID, snap.SwapCount, nowNS)
		snap.SetSwapRate(swapsPerSecond)

		g.snapshots[snapshotIndex] = snap
		snapshotIndex++

		g.totals.TotalEventsWritten += snap.EventsWritten
		g.totals.TotalEventsDropped += snap.EventsDropped
		g.totals.TotalEventsFiltered += snap.EventsFiltered
		g.totals.TotalBytesWritten += snap.BytesWritten
		g.totals.ActiveThreadCount++

		g.rates.SystemEventsPerSecond += snap.EventsPerSecond
		g.rates.SystemBytesPerSecond += snap.BytesPerSecond
		g.rates.LastWindowNS = rate.WindowDurationNS
	}

	if snapshotIndex == 0 {
		g.rates.SystemEventsPerSecond = 0
		g.rates.SystemBytesPerSecond = 0
		g.rates.LastWindowNS = 0
	}

	atomic.StoreUint64(&g.snapshotCount, uint64(snapshotIndex))
	return true
}

// SnapshotCount returns the number of valid entries from the most
// recent Collect pass.
func (g *Global) SnapshotCount() int { return int(atomic.LoadUint64(&g.snapshotCount)) }

// Snapshots returns the valid prefix of the snapshot buffer from the
// most recent Collect pass. The returned slice aliases Global's
// internal buffer and is only stable until the next Collect call.
func (g *Global) Snapshots() []Snapshot { return g.snapshots[:g.SnapshotCount()] }

// Totals returns the system totals from the most recent Collect pass.
func (g *Global) Totals() Totals { return g.totals }

// Rates returns the system rates from the most recent Collect pass.
func (g *Global) Rates() Rates { return g.rates }
