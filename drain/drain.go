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

// Package drain is the single background consumer that walks a thread
// registry's lanes, pulls submitted rings off them, and turns their
// contents into the on-disk ATF files under a session directory. It is
// the only part of this module that opens a file: the producer side
// (package agent) never blocks on I/O, and drain is where that
// deferred cost is finally paid, on its own goroutine, at its own
// adaptive pace.
package drain

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/cloudwego/ebpftrace/atf"
	"github.com/cloudwego/ebpftrace/lane"
	"github.com/cloudwego/ebpftrace/metrics"
	"github.com/cloudwego/ebpftrace/registry"
	"github.com/cloudwego/ebpftrace/tracelog"
)

// Clock returns the current monotonic time in nanoseconds.
type Clock func() uint64

// threadState is the drain's own per-thread bookkeeping: the lazily
// opened ATF writer, and any detail payloads popped ahead of the index
// event that will claim them. A thread's index and detail rings are
// swapped out independently by the producer, so a drain pass can
// easily pop more detail payloads than it has detail-bearing index
// events for (or vice versa) — pendingDetail carries the surplus
// across passes instead of dropping it.
type threadState struct {
	writer        *atf.ThreadWriter
	pendingDetail [][]byte
}

// Drain owns the registry walk, the per-thread ATF writers, and the
// metrics collector. It is meant to run on exactly one goroutine (via
// Start); nothing in this type is safe for concurrent use from more
// than one caller.
type Drain struct {
	reg        *registry.ThreadRegistry
	sessionDir string
	clockType  uint8
	clock      Clock
	global     *metrics.Global

	states map[uint64]*threadState
	ticker *BackoffTicker

	stop chan struct{}
	done chan struct{}

	wg sync.WaitGroup
}

// New builds a Drain over reg, writing each thread's ATF files under
// sessionDir (following the session package's thread_<id>/index.atf,
// thread_<id>/detail.atf layout, which atf.NewThreadWriter already
// constructs internally). clock supplies timestamps for the periodic
// metrics collection pass; it may be nil, which disables metrics
// collection.
func New(reg *registry.ThreadRegistry, sessionDir string, clockType uint8, clock Clock, global *metrics.Global) *Drain {
	return &Drain{
		reg:        reg,
		sessionDir: sessionDir,
		clockType:  clockType,
		clock:      clock,
		global:     global,
		states:     make(map[uint64]*threadState),
		ticker:     NewBackoffTicker(),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the drain loop on a new goroutine. Call Stop to shut
// it down gracefully.
func (d *Drain) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop requests a graceful shutdown: the registry stops accepting new
// registrations, the loop runs one final drain pass over every thread,
// finalizes every open ATF writer, and Stop returns once that settles.
// Safe to call at most once.
func (d *Drain) Stop() {
	d.reg.StopAccepting()
	d.reg.RequestShutdown()
	close(d.stop)
	d.wg.Wait()
}

func (d *Drain) run() {
	defer d.wg.Done()
	defer close(d.done)
	defer func() {
		if r := recover(); r != nil {
			tracelog.Errorf("drain: panic in drain loop: %v: %s", r, debug.Stack())
		}
	}()

	tracelog.Infof("drain: started for session %s", d.sessionDir)
	for {
		select {
		case <-d.stop:
			d.finalPass()
			tracelog.Infof("drain: stopped for session %s", d.sessionDir)
			return
		default:
		}

		if d.passOnce() {
			d.ticker.OnDrainedPass()
		} else {
			d.ticker.OnEmptyPass()
		}

		select {
		case <-d.stop:
			d.finalPass()
			tracelog.Infof("drain: stopped for session %s", d.sessionDir)
			return
		case <-time.After(d.ticker.Interval()):
		}
	}
}

// finalPass drains every thread one more time (catching anything
// submitted between the last pass and shutdown) and finalizes every
// writer this drain ever opened.
func (d *Drain) finalPass() {
	d.passOnce()
	for threadID, st := range d.states {
		if err := st.writer.Finalize(); err != nil {
			tracelog.Warnf("drain: thread %d: finalize failed: %v", threadID, err)
		}
	}
}

// passOnce drains every active thread slot once and runs one
// interval-gated metrics collection. It returns whether any event was
// written to any thread's ATF files, or any detail payload was popped
// and buffered, during the pass — the signal the
// backoff ticker uses to decide whether to speed up or slow down.
func (d *Drain) passOnce() bool {
	wrote := false
	for i := uint32(0); i < d.reg.Capacity(); i++ {
		ts := d.reg.ThreadAt(i)
		if ts == nil {
			continue
		}
		if d.drainThread(ts) {
			wrote = true
		}
	}

	if d.global != nil && d.clock != nil {
		d.global.Collect(d.reg.MetricsSource(), d.clock())
	}
	return wrote
}

func (d *Drain) drainThread(ts *registry.ThreadLaneSet) bool {
	st, err := d.stateFor(ts.ThreadID)
	if err != nil {
		tracelog.Errorf("drain: thread %d: opening ATF writer failed: %v", ts.ThreadID, err)
		return false
	}

	detailDrained := d.drainDetailRing(ts, st)
	events, indexDrained := d.drainIndexRing(ts)
	if !indexDrained {
		return detailDrained
	}

	wrote := false
	for _, ev := range events {
		var payload []byte
		if ev.HasDetail() {
			if len(st.pendingDetail) > 0 {
				payload = st.pendingDetail[0]
				st.pendingDetail = st.pendingDetail[1:]
			} else {
				tracelog.Warnf("drain: thread %d: index event at %d expects a detail payload but none is pending yet", ts.ThreadID, ev.TimestampNS)
			}
		}

		if _, err := st.writer.WriteEvent(ev.TimestampNS, ev.FunctionID, ev.EventKind, ev.CallDepth, trimDetailPayload(payload)); err != nil {
			tracelog.Warnf("drain: thread %d: write event failed: %v", ts.ThreadID, err)
			continue
		}
		wrote = true
	}
	return wrote || detailDrained
}

// drainIndexRing pops one submitted index ring (if any is waiting) and
// decodes every slot in it. The ring itself goes back to the lane's
// free queue once fully drained.
func (d *Drain) drainIndexRing(ts *registry.ThreadLaneSet) ([]atf.IndexEvent, bool) {
	idx := ts.IndexLane.TakeRing()
	if idx == lane.NoRing {
		return nil, false
	}
	ring := ts.IndexRings[idx]

	var events []atf.IndexEvent
	buf := make([]byte, atf.IndexEventSize)
	for ring.Pop(buf) {
		events = append(events, atf.DecodeIndexEvent(buf))
	}
	ring.Reset()
	ts.IndexLane.ReturnRing(idx)
	return events, true
}

// drainDetailRing pops one submitted detail ring (if any is waiting)
// and appends every slot's payload to st.pendingDetail in order.
func (d *Drain) drainDetailRing(ts *registry.ThreadLaneSet, st *threadState) bool {
	idx := ts.DetailLane.TakeRing()
	if idx == lane.NoRing {
		return false
	}
	ring := ts.DetailRings[idx]

	any := false
	for {
		buf := make([]byte, registry.DetailEventSize)
		if !ring.Pop(buf) {
			break
		}
		st.pendingDetail = append(st.pendingDetail, buf)
		any = true
	}
	ring.Reset()
	ts.DetailLane.ReturnRing(idx)
	return any
}

// trimDetailPayload slices a popped, zero-padded ring slot down to its
// actually-used length: the arch's fixed fields plus however many
// stack bytes were really captured, recovered from the stack_size
// field the producer patched in after capture.
func trimDetailPayload(payload []byte) []byte {
	if payload == nil {
		return nil
	}
	arch := atf.CurrentArch()
	total := atf.DetailPayloadFixedSize(arch) + int(atf.DetailPayloadStackSize(arch, payload))
	if total > len(payload) {
		total = len(payload)
	}
	return payload[:total]
}

func (d *Drain) stateFor(threadID uint64) (*threadState, error) {
	if st, ok := d.states[threadID]; ok {
		return st, nil
	}
	w, err := atf.NewThreadWriter(d.sessionDir, uint32(threadID), d.clockType)
	if err != nil {
		return nil, err
	}
	st := &threadState{writer: w}
	d.states[threadID] = st
	return st, nil
}
