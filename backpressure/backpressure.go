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

// Package backpressure tracks one lane's free-ring pressure: the total
// ring count it was bound to, the most recently sampled free count, and
// running exhaustion/drop counters. It is cheap enough to update after
// every operation that changes free-queue depth, the way the ring pool
// facade does.
package backpressure

import "sync/atomic"

// State is a per-lane backpressure tracker. One lives per (thread,
// lane) pair, alongside that lane's ThreadMetrics.
type State struct {
	totalRings     uint32 // atomic
	lastFreeCount  uint32 // atomic
	lastSampleNS   uint64 // atomic
	exhaustionHits uint64 // atomic
	dropEvents     uint64 // atomic
	dropBytes      uint64 // atomic
}

// SetTotalRings records how many rings the bound lane owns, used to
// turn a free count into a pressure ratio.
func (s *State) SetTotalRings(n uint32) { atomic.StoreUint32(&s.totalRings, n) }

// Sample records the current free-ring count and sample timestamp.
func (s *State) Sample(freeCount uint32, nowNS uint64) {
	atomic.StoreUint32(&s.lastFreeCount, freeCount)
	atomic.StoreUint64(&s.lastSampleNS, nowNS)
}

// OnExhaustion records one pool-exhaustion event.
func (s *State) OnExhaustion(nowNS uint64) {
	atomic.AddUint64(&s.exhaustionHits, 1)
	atomic.StoreUint64(&s.lastSampleNS, nowNS)
}

// OnDrop records one event drop of the given byte size. Called even
// when bytes is zero, to count exhaustion attempts against an
// already-empty ring.
func (s *State) OnDrop(bytes uint64, nowNS uint64) {
	atomic.AddUint64(&s.dropEvents, 1)
	if bytes != 0 {
		atomic.AddUint64(&s.dropBytes, bytes)
	}
	atomic.StoreUint64(&s.lastSampleNS, nowNS)
}

// TotalRings returns the last-bound ring count.
func (s *State) TotalRings() uint32 { return atomic.LoadUint32(&s.totalRings) }

// LastFreeCount returns the most recently sampled free-ring count.
func (s *State) LastFreeCount() uint32 { return atomic.LoadUint32(&s.lastFreeCount) }

// ExhaustionHits returns the lifetime pool-exhaustion count.
func (s *State) ExhaustionHits() uint64 { return atomic.LoadUint64(&s.exhaustionHits) }

// DropEvents returns the lifetime drop-event count.
func (s *State) DropEvents() uint64 { return atomic.LoadUint64(&s.dropEvents) }

// DropBytes returns the lifetime dropped-byte count.
func (s *State) DropBytes() uint64 { return atomic.LoadUint64(&s.dropBytes) }

// Pressure returns the fraction of rings currently NOT free, in [0,1].
// A lane with zero bound rings reports zero pressure rather than
// dividing by zero.
func (s *State) Pressure() float64 {
	total := s.TotalRings()
	if total == 0 {
		return 0
	}
	free := s.LastFreeCount()
	if free > total {
		free = total
	}
	return float64(total-free) / float64(total)
}
