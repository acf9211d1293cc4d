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

// Package control implements the shared control block: the one
// well-known region a producer and the drain both consult to decide
// whether to record at all, and what to record. It is reachable at a
// name derivable from (role=CONTROL, host_pid, session_id) and embeds
// the session's shm.Directory so any process that maps it can resolve
// every other named region from there.
package control

import (
	"sync/atomic"

	"github.com/cloudwego/ebpftrace/shm"
)

// ProcessState mirrors the host controller's lifecycle state machine.
type ProcessState uint32

const (
	Uninitialized ProcessState = iota
	Initialized
	Spawning
	Suspended
	Attaching
	Attached
	Running
	Detaching
	Failed
)

// FlightState gates whether the detail lane is actively recording.
type FlightState uint32

const (
	Idle FlightState = iota
	Recording
)

// Block is the shared control block. All fields are read/written
// through atomics so producers on arbitrary threads and the drain can
// observe updates without a lock; writes are expected to be rare
// (lifecycle transitions), so relaxed atomics are enough.
type Block struct {
	processState uint32
	flightState  uint32

	indexLaneEnabled     uint32
	detailLaneEnabled    uint32
	captureStackSnapshot uint32

	preRollMS  uint32
	postRollMS uint32

	// Directory resolves every other named region (registry arena,
	// per-thread ring segments) this session publishes.
	Directory *shm.Directory
}

// NewBlock returns a Block with both lanes enabled, stack-snapshot
// capture on, and no pre/post-roll window — the permissive default a
// freshly attached session starts from. dir may be nil, in which case
// a process-local Directory is created (same-process embedding).
func NewBlock(dir *shm.Directory) *Block {
	if dir == nil {
		dir = shm.NewDirectory(nil)
	}
	b := &Block{Directory: dir}
	b.SetProcessState(Initialized)
	b.SetFlightState(Idle)
	b.SetIndexLaneEnabled(true)
	b.SetDetailLaneEnabled(true)
	b.SetCaptureStackSnapshot(true)
	return b
}

func (b *Block) ProcessState() ProcessState {
	return ProcessState(atomic.LoadUint32(&b.processState))
}

func (b *Block) SetProcessState(s ProcessState) {
	atomic.StoreUint32(&b.processState, uint32(s))
}

func (b *Block) FlightState() FlightState {
	return FlightState(atomic.LoadUint32(&b.flightState))
}

func (b *Block) SetFlightState(s FlightState) {
	atomic.StoreUint32(&b.flightState, uint32(s))
}

func (b *Block) IndexLaneEnabled() bool {
	return atomic.LoadUint32(&b.indexLaneEnabled) != 0
}

func (b *Block) SetIndexLaneEnabled(v bool) {
	atomic.StoreUint32(&b.indexLaneEnabled, boolToUint32(v))
}

func (b *Block) DetailLaneEnabled() bool {
	return atomic.LoadUint32(&b.detailLaneEnabled) != 0
}

func (b *Block) SetDetailLaneEnabled(v bool) {
	atomic.StoreUint32(&b.detailLaneEnabled, boolToUint32(v))
}

func (b *Block) CaptureStackSnapshot() bool {
	return atomic.LoadUint32(&b.captureStackSnapshot) != 0
}

func (b *Block) SetCaptureStackSnapshot(v bool) {
	atomic.StoreUint32(&b.captureStackSnapshot, boolToUint32(v))
}

// PreRollMS and PostRollMS bound the flight recorder's window around a
// trigger; zero means no rolling window is kept.
func (b *Block) PreRollMS() uint32  { return atomic.LoadUint32(&b.preRollMS) }
func (b *Block) PostRollMS() uint32 { return atomic.LoadUint32(&b.postRollMS) }

func (b *Block) SetPreRollMS(ms uint32)  { atomic.StoreUint32(&b.preRollMS, ms) }
func (b *Block) SetPostRollMS(ms uint32) { atomic.StoreUint32(&b.postRollMS, ms) }

// ShouldRecord reports whether the producer should attempt to write
// events at all: the process must be RUNNING. The flight state is not
// consulted here.
func (b *Block) ShouldRecord() bool {
	return b.ProcessState() == Running
}

func boolToUint32(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
