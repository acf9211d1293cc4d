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

// Package pool implements the ring pool facade sitting between a
// producer and a single Lane: swapping in a fresh active ring when the
// current one fills, evicting the oldest submitted ring under pool
// exhaustion, and bracketing every swap with backpressure sampling and
// swap-duration metrics.
package pool

import (
	"github.com/cloudwego/ebpftrace/backpressure"
	"github.com/cloudwego/ebpftrace/lane"
	"github.com/cloudwego/ebpftrace/metrics"
	"github.com/cloudwego/ebpftrace/ringbuf"
)

// LaneType distinguishes the index lane from the detail lane; only the
// detail lane's mark_detail/is_detail_marked calls do anything.
type LaneType int

const (
	IndexLane LaneType = iota
	DetailLane
)

// Clock returns the current monotonic time in nanoseconds. It is
// injected so tests can control time without sleeping.
type Clock func() uint64

// RingPool binds one Lane to its backing ring buffers and the
// metrics/backpressure state a producer thread updates alongside it.
type RingPool struct {
	lane     *lane.Lane
	rings    []*ringbuf.Ring
	laneType LaneType
	metrics  *metrics.ThreadMetrics
	bp       *backpressure.State
	now      Clock
}

// New binds a RingPool to the given lane and its backing rings (indexed
// the same way the lane's ring indices are). metrics/bp may be nil, in
// which case the pool silently skips that bookkeeping (mirrors the
// original's null-checked weak bindings).
func New(laneType LaneType, l *lane.Lane, rings []*ringbuf.Ring, tm *metrics.ThreadMetrics, bp *backpressure.State, clock Clock) *RingPool {
	if clock == nil {
		clock = func() uint64 { return 0 }
	}
	p := &RingPool{lane: l, rings: rings, laneType: laneType, metrics: tm, bp: bp, now: clock}
	if bp != nil {
		bp.SetTotalRings(l.RingCount())
		p.sampleBP()
	}
	return p
}

func (p *RingPool) sampleBP() {
	if p.bp == nil {
		return
	}
	p.bp.Sample(p.lane.FreeCount(), p.now())
}

// SwapActive swaps in a fresh active ring, submitting the old one to
// the drain. Returns (oldIdx, true) on success; (0, false) only when
// the pool has genuinely no alternative (single-ring lane with its one
// ring both active and exhausted).
func (p *RingPool) SwapActive() (oldIdx uint32, ok bool) {
	p.sampleBP()

	swapStart := p.now()
	var token metrics.SwapToken
	if p.metrics != nil {
		token = metrics.SwapBegin(p.metrics, swapStart)
	}

	newIdx := p.lane.GetFreeRing()
	if newIdx == lane.NoRing {
		if p.metrics != nil {
			p.metrics.RecordRingFull()
		}
		if p.HandleExhaustion() {
			newIdx = p.lane.GetFreeRing()
		}
		if newIdx == lane.NoRing {
			ringCount := p.lane.RingCount()
			if ringCount > 1 {
				cur := p.lane.ActiveIndex()
				newIdx = (cur + 1) % ringCount
			} else {
				p.sampleBP()
				if p.metrics != nil {
					metrics.SwapEnd(&token, p.now(), ringCount)
				}
				return 0, false
			}
		}
	}

	old := p.lane.ExchangeActive(newIdx)
	p.lane.SubmitRing(old)

	p.sampleBP()
	if p.metrics != nil {
		metrics.SwapEnd(&token, p.now(), p.lane.RingCount())
	}
	return old, true
}

// HandleExhaustion evicts the oldest submitted ring's oldest event and
// returns that ring to the free queue. Returns false if the submit
// queue itself was empty (nothing to evict).
func (p *RingPool) HandleExhaustion() bool {
	p.sampleBP()
	if p.bp != nil {
		p.bp.OnExhaustion(p.now())
	}
	if p.metrics != nil {
		p.metrics.RecordPoolExhaustion()
	}

	oldest := p.lane.TakeRing()
	if oldest == lane.NoRing {
		p.sampleBP()
		return false
	}

	if int(oldest) < len(p.rings) && p.rings[oldest] != nil {
		r := p.rings[oldest]
		dropped := r.DropOldest()
		var droppedBytes uint64
		if dropped {
			droppedBytes = uint64(r.SlotSize())
		}
		if p.bp != nil {
			p.bp.OnDrop(droppedBytes, p.now())
		}
		if dropped && p.metrics != nil {
			p.metrics.RecordEventDropped()
			p.metrics.RecordRingFull()
		}
	}

	returned := p.lane.ReturnRing(oldest)
	p.sampleBP()
	return returned
}

// ActiveRing returns the currently active ring for direct pushes by the
// producer.
func (p *RingPool) ActiveRing() *ringbuf.Ring {
	idx := p.lane.ActiveIndex()
	if int(idx) >= len(p.rings) {
		return nil
	}
	return p.rings[idx]
}

// MarkDetail arms the lane's detail trigger flag. A no-op (returns true
// without doing anything) on an index lane, matching the original's
// lane-type gate.
func (p *RingPool) MarkDetail() bool {
	if p.laneType != DetailLane {
		return true
	}
	p.lane.MarkEvent()
	return true
}

// IsDetailMarked reports the detail lane's trigger flag. Always false
// on an index lane.
func (p *RingPool) IsDetailMarked() bool {
	if p.laneType != DetailLane {
		return false
	}
	return p.lane.HasMarkedEvent()
}

// Lane exposes the bound lane, for callers (e.g. the drain) that need
// direct access beyond the facade.
func (p *RingPool) Lane() *lane.Lane { return p.lane }
