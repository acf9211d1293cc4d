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

// Package metrics implements per-thread counters and a global collector
// over a thread registry, at the cadence the hot producer path can
// actually afford: every hot-path recorder here is one or two relaxed
// atomic operations, with one compare-and-swap loop reserved for the
// max-queue-depth high-water mark.
package metrics

import "sync/atomic"

// RateHistory is the number of samples kept for the sliding-window rate
// estimate.
const RateHistory = 8

// WindowNS is the sliding window width used by the rate estimator.
const WindowNS = uint64(100_000_000) // 100ms

// cachePad separates the field groups by 56 bytes, echoing the
// _Alignas(CACHE_LINE_SIZE) grouping in the original struct; the Go
// struct is not cache-line aligned, so a group is not guaranteed to
// start its own cache line. It carries no meaning of its own.
type cachePad = [56]byte

// rateSample is one sliding-window observation.
type rateSample struct {
	timestampNS uint64
	events      uint64
	bytes       uint64
}

// ThreadMetrics holds one thread's hot-path counters plus the
// lower-frequency swap/rate bookkeeping a collector reads out of band.
type ThreadMetrics struct {
	ThreadID  uint64
	SlotIndex uint32

	_ cachePad
	// counters
	eventsWritten  uint64
	eventsDropped  uint64
	eventsFiltered uint64
	bytesWritten   uint64

	_ cachePad
	// pressure
	poolExhaustionCount uint64
	ringFullCount       uint64
	allocationFailures  uint64
	maxQueueDepth       uint64

	_ cachePad
	// swaps
	swapCount           uint64
	lastSwapTimestampNS uint64
	totalSwapDurationNS uint64
	ringsInRotation     uint32

	_ cachePad
	// rate (owned by a single collector goroutine; not hot-path)
	sampleHead        uint32
	sampleCount       uint32
	windowDurationNS  uint64
	windowEvents      uint64
	windowBytes       uint64
	eventsPerSecond   float64
	bytesPerSecond    float64
	samples           [RateHistory]rateSample
}

// NewThreadMetrics returns an initialized ThreadMetrics for the given
// thread and registry slot.
func NewThreadMetrics(threadID uint64, slotIndex uint32) *ThreadMetrics {
	m := &ThreadMetrics{}
	m.Reset()
	m.ThreadID = threadID
	m.SlotIndex = slotIndex
	return m
}

// Reset zeroes every field, including rate history.
func (m *ThreadMetrics) Reset() {
	m.ThreadID = 0
	m.SlotIndex = 0
	atomic.StoreUint64(&m.eventsWritten, 0)
	atomic.StoreUint64(&m.eventsDropped, 0)
	atomic.StoreUint64(&m.eventsFiltered, 0)
	atomic.StoreUint64(&m.bytesWritten, 0)
	atomic.StoreUint64(&m.poolExhaustionCount, 0)
	atomic.StoreUint64(&m.ringFullCount, 0)
	atomic.StoreUint64(&m.allocationFailures, 0)
	atomic.StoreUint64(&m.maxQueueDepth, 0)
	atomic.StoreUint64(&m.swapCount, 0)
	atomic.StoreUint64(&m.lastSwapTimestampNS, 0)
	atomic.StoreUint64(&m.totalSwapDurationNS, 0)
	atomic.StoreUint32(&m.ringsInRotation, 0)
	m.sampleHead = 0
	m.sampleCount = 0
	m.windowDurationNS = 0
	m.windowEvents = 0
	m.windowBytes = 0
	m.eventsPerSecond = 0
	m.bytesPerSecond = 0
	m.samples = [RateHistory]rateSample{}
}

// RecordEventWritten bumps the written-events/bytes counters. Hot path.
func (m *ThreadMetrics) RecordEventWritten(bytes uint64) {
	atomic.AddUint64(&m.eventsWritten, 1)
	atomic.AddUint64(&m.bytesWritten, bytes)
}

// RecordEventsWrittenBulk bumps written-events/bytes by arbitrary
// amounts in one call, for batched writers.
func (m *ThreadMetrics) RecordEventsWrittenBulk(events, bytes uint64) {
	if events != 0 {
		atomic.AddUint64(&m.eventsWritten, events)
	}
	if bytes != 0 {
		atomic.AddUint64(&m.bytesWritten, bytes)
	}
}

// RecordEventDropped bumps the dropped-events counter. Hot path.
func (m *ThreadMetrics) RecordEventDropped() { atomic.AddUint64(&m.eventsDropped, 1) }

// RecordEventFiltered bumps the filtered-events counter. Hot path.
func (m *ThreadMetrics) RecordEventFiltered() { atomic.AddUint64(&m.eventsFiltered, 1) }

// RecordRingFull bumps the ring-full counter. Hot path.
func (m *ThreadMetrics) RecordRingFull() { atomic.AddUint64(&m.ringFullCount, 1) }

// RecordPoolExhaustion bumps the pool-exhaustion counter. Hot path.
func (m *ThreadMetrics) RecordPoolExhaustion() { atomic.AddUint64(&m.poolExhaustionCount, 1) }

// RecordAllocationFailure bumps the allocation-failure counter.
func (m *ThreadMetrics) RecordAllocationFailure() { atomic.AddUint64(&m.allocationFailures, 1) }

// ObserveQueueDepth CAS-updates the max-queue-depth high-water mark.
func (m *ThreadMetrics) ObserveQueueDepth(depth uint32) {
	d := uint64(depth)
	for {
		cur := atomic.LoadUint64(&m.maxQueueDepth)
		if d <= cur {
			return
		}
		if atomic.CompareAndSwapUint64(&m.maxQueueDepth, cur, d) {
			return
		}
	}
}

// SetRingsInRotation records the current ring-rotation width.
func (m *ThreadMetrics) SetRingsInRotation(rings uint32) {
	atomic.StoreUint32(&m.ringsInRotation, rings)
}

// SwapToken is an opaque guard returned by SwapBegin and consumed by
// SwapEnd, carrying the start timestamp without a heap allocation.
type SwapToken struct {
	metrics  *ThreadMetrics
	startNS  uint64
}

// SwapBegin opens a swap-duration measurement.
func SwapBegin(m *ThreadMetrics, startNS uint64) SwapToken {
	return SwapToken{metrics: m, startNS: startNS}
}

// SwapEnd closes a swap-duration measurement, recording the swap count,
// the last-swap timestamp, accumulated duration, and ring rotation
// width. If endNS precedes the token's start (clock noise), it is
// clamped to start so duration never goes negative.
func SwapEnd(token *SwapToken, endNS uint64, ringsInRotation uint32) {
	if token == nil || token.metrics == nil {
		return
	}
	if endNS < token.startNS {
		endNS = token.startNS
	}
	duration := endNS - token.startNS
	m := token.metrics
	atomic.AddUint64(&m.swapCount, 1)
	atomic.StoreUint64(&m.lastSwapTimestampNS, endNS)
	atomic.AddUint64(&m.totalSwapDurationNS, duration)
	m.SetRingsInRotation(ringsInRotation)
}

// UpdateRate feeds one (timestamp, cumulative events, cumulative bytes)
// observation into the sliding-window rate estimator and stores the
// resulting rates on the metrics object. Not hot-path: called only by
// the drain/collector, which owns this ThreadMetrics' rate fields
// exclusively (no concurrent writer).
func (m *ThreadMetrics) UpdateRate(timestampNS, events, bytes uint64) RateResult {
	result := sampleRate(m, timestampNS, events, bytes)
	m.eventsPerSecond = result.EventsPerSecond
	m.bytesPerSecond = result.BytesPerSecond
	return result
}

// Snapshot is a stable point-in-time copy of a ThreadMetrics, safe to
// hand to a reader outside the collector.
type Snapshot struct {
	ThreadID  uint64
	SlotIndex uint32
	Timestamp uint64

	EventsWritten  uint64
	EventsDropped  uint64
	EventsFiltered uint64
	BytesWritten   uint64

	EventsPerSecond float64
	BytesPerSecond  float64
	DropRatePercent float64

	PoolExhaustionCount uint64
	RingFullCount       uint64
	AllocationFailures  uint64
	MaxQueueDepth       uint64

	SwapCount           uint64
	SwapsPerSecond      float64
	AvgSwapDurationNS   uint64
	LastSwapTimestampNS uint64
	RingsInRotation     uint32
}

// Capture takes a stable snapshot of m as of timestampNS.
func Capture(m *ThreadMetrics, timestampNS uint64) Snapshot {
	written := atomic.LoadUint64(&m.eventsWritten)
	dropped := atomic.LoadUint64(&m.eventsDropped)
	swapCount := atomic.LoadUint64(&m.swapCount)
	totalSwapDur := atomic.LoadUint64(&m.totalSwapDurationNS)

	var dropPct float64
	if total := written + dropped; total > 0 {
		dropPct = float64(dropped) * 100.0 / float64(total)
	}
	var avgSwap uint64
	if swapCount > 0 {
		avgSwap = totalSwapDur / swapCount
	}

	return Snapshot{
		ThreadID:            m.ThreadID,
		SlotIndex:           m.SlotIndex,
		Timestamp:           timestampNS,
		EventsWritten:       written,
		EventsDropped:       dropped,
		EventsFiltered:      atomic.LoadUint64(&m.eventsFiltered),
		BytesWritten:        atomic.LoadUint64(&m.bytesWritten),
		DropRatePercent:     dropPct,
		PoolExhaustionCount: atomic.LoadUint64(&m.poolExhaustionCount),
		RingFullCount:       atomic.LoadUint64(&m.ringFullCount),
		AllocationFailures:  atomic.LoadUint64(&m.allocationFailures),
		MaxQueueDepth:       atomic.LoadUint64(&m.maxQueueDepth),
		SwapCount:           swapCount,
		AvgSwapDurationNS:   avgSwap,
		LastSwapTimestampNS: atomic.LoadUint64(&m.lastSwapTimestampNS),
		RingsInRotation:     atomic.LoadUint32(&m.ringsInRotation),
	}
}

// ApplyRates fills in the events/bytes-per-second fields of a snapshot
// already captured by Capture.
func (s *Snapshot) ApplyRates(eventsPerSecond, bytesPerSecond float64) {
	s.EventsPerSecond = eventsPerSecond
	s.BytesPerSecond = bytesPerSecond
}

// SetSwapRate fills in the swaps-per-second field of a snapshot,
// computed by the global collector from per-slot previous bookkeeping.
func (s *Snapshot) SetSwapRate(swapsPerSecond float64) {
	s.SwapsPerSecond = swapsPerSecond
}
