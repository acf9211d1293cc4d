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

// Package lane implements one lane (index or detail) of a thread's ring
// pool: a set of ring-buffer indices, one of which is active at a time,
// a submit queue the producer uses to hand full rings to the drain, and
// a free queue the drain uses to hand emptied rings back.
package lane

import "sync/atomic"

// Lane owns ring_count rings (identified by index into the owning
// registry's ring array, never by pointer) plus the submit/free SPSC
// queues that move those indices between the producer and the drain.
type Lane struct {
	ringCount uint32
	activeIdx uint32 // atomic

	submit *spscQueue // producer -> drain
	free   *spscQueue // drain -> producer

	markedEventSeen uint32 // atomic bool, detail-lane trigger flag

	eventsWritten   uint64 // atomic
	eventsDropped   uint64 // atomic
	ringSwaps       uint32 // atomic
	poolExhaustions uint32 // atomic
}

// New creates a Lane over ringCount rings, with the free queue
// pre-loaded with every ring except the one initially active.
func New(ringCount uint32, submitQueueDepth, freeQueueDepth uint32) *Lane {
	l := &Lane{
		ringCount: ringCount,
		submit:    newSPSCQueue(submitQueueDepth),
		free:      newSPSCQueue(freeQueueDepth),
	}
	for i := uint32(1); i < ringCount; i++ {
		l.free.push(i)
	}
	return l
}

// RingCount returns the number of rings owned by this lane.
func (l *Lane) RingCount() uint32 { return l.ringCount }

// ActiveIndex returns the currently active ring index.
func (l *Lane) ActiveIndex() uint32 { return atomic.LoadUint32(&l.activeIdx) }

// ExchangeActive atomically swaps in newIdx as the active ring index and
// returns the previous value, mirroring the acq_rel exchange in the
// original ring pool swap.
func (l *Lane) ExchangeActive(newIdx uint32) uint32 {
	return atomic.SwapUint32(&l.activeIdx, newIdx)
}

// GetFreeRing pops one index from the free queue, or NoRing if none is
// available.
func (l *Lane) GetFreeRing() uint32 {
	v, ok := l.free.pop()
	if !ok {
		return NoRing
	}
	return v
}

// SubmitRing pushes idx onto the submit queue for the drain to pick up.
func (l *Lane) SubmitRing(idx uint32) bool {
	ok := l.submit.push(idx)
	if ok {
		atomic.AddUint32(&l.ringSwaps, 1)
	}
	return ok
}

// TakeRing pops the oldest index from the submit queue — used both by
// the drain's normal path and by the eviction policy reaching in to
// steal the oldest submitted ring under pool exhaustion.
func (l *Lane) TakeRing() uint32 {
	v, ok := l.submit.pop()
	if !ok {
		return NoRing
	}
	return v
}

// ReturnRing pushes idx onto the free queue, making it available to the
// producer again.
func (l *Lane) ReturnRing(idx uint32) bool {
	return l.free.push(idx)
}

// FreeCount reports how many ring indices currently sit in the free
// queue — used by backpressure sampling.
func (l *Lane) FreeCount() uint32 { return l.free.len() }

// SubmitCount reports how many ring indices are waiting for the drain.
func (l *Lane) SubmitCount() uint32 { return l.submit.len() }

// MarkEvent arms the detail-lane trigger flag. A no-op has no meaning
// for index lanes; callers gate that decision (see pool.RingPool).
func (l *Lane) MarkEvent() { atomic.StoreUint32(&l.markedEventSeen, 1) }

// HasMarkedEvent reports whether MarkEvent has been called since the
// last reset.
func (l *Lane) HasMarkedEvent() bool { return atomic.LoadUint32(&l.markedEventSeen) != 0 }

// ClearMarkedEvent resets the detail-lane trigger flag.
func (l *Lane) ClearMarkedEvent() { atomic.StoreUint32(&l.markedEventSeen, 0) }

// RecordEventWritten increments the lane's written-event counter.
func (l *Lane) RecordEventWritten() { atomic.AddUint64(&l.eventsWritten, 1) }

// RecordEventDropped increments the lane's dropped-event counter.
func (l *Lane) RecordEventDropped() { atomic.AddUint64(&l.eventsDropped, 1) }

// EventsWritten returns the lane's lifetime written-event count.
func (l *Lane) EventsWritten() uint64 { return atomic.LoadUint64(&l.eventsWritten) }

// EventsDropped returns the lane's lifetime dropped-event count.
func (l *Lane) EventsDropped() uint64 { return atomic.LoadUint64(&l.eventsDropped) }

// RingSwaps returns the lifetime count of successful active-ring swaps.
func (l *Lane) RingSwaps() uint32 { return atomic.LoadUint32(&l.ringSwaps) }

// PoolExhaustions returns the lifetime count of pool-exhaustion events.
func (l *Lane) PoolExhaustions() uint32 { return atomic.LoadUint32(&l.poolExhaustions) }

// RecordPoolExhaustion increments the lane's pool-exhaustion counter.
func (l *Lane) RecordPoolExhaustion() { atomic.AddUint32(&l.poolExhaustions, 1) }
