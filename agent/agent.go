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

// Package agent is the producer side of the hot path: the code a hook
// call site invokes directly on entry and exit of a traced function.
// It never blocks and never touches a file; it only formats events and
// pushes them into a thread's rings, leaving everything past that
// point to the drain.
//
// Go has no per-thread-local storage a hook call can reach the way the
// reference agent's TLS block does, so the reentrancy guard and call
// depth this package keeps are addressed explicitly by the caller's
// threadID rather than discovered from the running thread.
package agent

import (
	"sync"

	"github.com/cloudwego/ebpftrace/atf"
	"github.com/cloudwego/ebpftrace/backpressure"
	"github.com/cloudwego/ebpftrace/control"
	"github.com/cloudwego/ebpftrace/internal/bufpool"
	"github.com/cloudwego/ebpftrace/registry"
	"github.com/cloudwego/ebpftrace/ringbuf"
)

// Clock returns the current monotonic time in nanoseconds.
type Clock func() uint64

// StackCapture fills dst with up to len(dst) bytes of the calling
// frame's stack starting at sp and returns how many bytes it managed
// to copy. The default used by New is a safe no-op (returns 0): taking
// a real stack snapshot requires platform- and arch-specific unsafe
// memory access that belongs in a hook shim, not in this package.
type StackCapture func(dst []byte, sp uint64) int

func noStackCapture([]byte, uint64) int { return 0 }

// InterceptorHooks is the contract an external interceptor — the
// out-of-process or cgo-bridged component that actually instruments
// target functions and is out of this module's scope (see spec
// Non-goals) — drives on every traced call: one OnEnter at function
// entry, one OnLeave at function exit. *Agent implements it.
type InterceptorHooks interface {
	OnEnter(threadID, functionID uint64, frame Frame) bool
	OnLeave(threadID, functionID uint64, frame Frame) bool
}

// Frame is the arch-agnostic register snapshot a hook call site
// passes to OnEnter/OnLeave. Regs holds the 8 argument/return slots
// DetailFunctionPayloadARM64's x_regs / DetailFunctionPayloadAMD64's
// g_regs expect, in that struct's order; LR is ignored when the
// running binary is amd64 (x86_64 keeps its return address on the
// stack, not in a register).
type Frame struct {
	Regs [8]uint64
	LR   uint64
	FP   uint64
	SP   uint64
}

// perThreadState is the Go analogue of the reference agent's
// ThreadLocalData: call depth and the reentrancy guard, keyed
// explicitly by threadID instead of living in real TLS.
type perThreadState struct {
	callDepth          uint32
	inHandler          bool
	reentrancyAttempts uint64
}

// Agent is the producer: it holds no file handles and performs no I/O,
// only ring pushes gated by the control block.
type Agent struct {
	registry *registry.ThreadRegistry
	control  *control.Block
	policy   backpressure.MarkPolicy
	clock    Clock
	capture  StackCapture

	mu                sync.Mutex
	states            map[uint64]*perThreadState
	reentrancyBlocked uint64
}

var _ InterceptorHooks = (*Agent)(nil)

// New builds an Agent over reg and cb. policy, clock, and capture may
// all be nil: policy defaults to backpressure.DefaultMarkPolicy, clock
// defaults to a zero clock (fine for tests, wrong for production —
// callers should always supply a real monotonic clock), and capture
// defaults to a no-op that captures zero stack bytes.
func New(reg *registry.ThreadRegistry, cb *control.Block, policy backpressure.MarkPolicy, clock Clock, capture StackCapture) *Agent {
	if policy == nil {
		policy = backpressure.DefaultMarkPolicy
	}
	if clock == nil {
		clock = func() uint64 { return 0 }
	}
	if capture == nil {
		capture = noStackCapture
	}
	return &Agent{
		registry: reg,
		control:  cb,
		policy:   policy,
		clock:    clock,
		capture:  capture,
		states:   make(map[uint64]*perThreadState),
	}
}

func (a *Agent) stateFor(threadID uint64) *perThreadState {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.states[threadID]
	if !ok {
		s = &perThreadState{}
		a.states[threadID] = s
	}
	return s
}

// ReentrancyBlocked returns the lifetime count of OnEnter/OnLeave calls
// short-circuited by the reentrancy guard, across every thread.
func (a *Agent) ReentrancyBlocked() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reentrancyBlocked
}

// OnEnter records a function-call event for threadID. functionID
// identifies the hooked symbol (see the hook package's registry).
// Returns false if the call was dropped — the reentrancy guard fired,
// the process isn't in a recording state, or a ring was full even
// after one swap attempt.
func (a *Agent) OnEnter(threadID uint64, functionID uint64, frame Frame) bool {
	return a.handle(threadID, functionID, atf.EventKindCall, frame, true)
}

// OnLeave records a function-return event for threadID, then
// decrements the thread's call depth (floored at zero).
func (a *Agent) OnLeave(threadID uint64, functionID uint64, frame Frame) bool {
	ok := a.handle(threadID, functionID, atf.EventKindReturn, frame, false)
	s := a.stateFor(threadID)
	a.mu.Lock()
	if s.callDepth > 0 {
		s.callDepth--
	}
	a.mu.Unlock()
	return ok
}

func (a *Agent) handle(threadID, functionID uint64, eventKind uint32, frame Frame, isEnter bool) bool {
	if a.control != nil && !a.control.ShouldRecord() {
		return false
	}

	s := a.stateFor(threadID)

	a.mu.Lock()
	if s.inHandler {
		s.reentrancyAttempts++
		a.reentrancyBlocked++
		a.mu.Unlock()
		return false
	}
	s.inHandler = true
	if isEnter {
		s.callDepth++
	}
	callDepth := s.callDepth
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		s.inHandler = false
		a.mu.Unlock()
	}()

	ts, ok := a.registry.Register(threadID)
	if !ok {
		return false
	}

	now := a.clock()
	wroteAny := false

	if a.control == nil || a.control.IndexLaneEnabled() {
		if a.writeIndex(ts, now, functionID, uint32(threadID), eventKind, callDepth, isEnter) {
			wroteAny = true
		}
	}

	if a.shouldWriteDetail(isEnter) {
		if a.writeDetail(ts, functionID, eventKind, callDepth, frame) {
			wroteAny = true
		}
	}

	if wroteAny {
		ts.RecordEvent(now)
	}
	return wroteAny
}

// shouldWriteDetail mirrors the reference agent's asymmetric gate:
// on_enter writes a detail event whenever the detail lane is enabled,
// but on_leave additionally requires the control block to be actively
// in the RECORDING flight state.
func (a *Agent) shouldWriteDetail(isEnter bool) bool {
	if a.control == nil {
		return true
	}
	if !a.control.DetailLaneEnabled() {
		return false
	}
	if isEnter {
		return true
	}
	return a.control.FlightState() == control.Recording
}

func (a *Agent) writeIndex(ts *registry.ThreadLaneSet, now, functionID uint64, threadID32 uint32, eventKind, callDepth uint32, isEnter bool) bool {
	detailSeq := uint32(atf.NoDetailSeq)
	if a.shouldWriteDetail(isEnter) {
		detailSeq = 0
	}

	ev := atf.IndexEvent{
		TimestampNS: now,
		FunctionID:  functionID,
		ThreadID:    threadID32,
		EventKind:   eventKind,
		CallDepth:   callDepth,
		DetailSeq:   detailSeq,
	}
	buf := make([]byte, atf.IndexEventSize)
	atf.EncodeIndexEvent(ev, buf)

	return pushWithRetry(ts.IndexPool, buf)
}

func (a *Agent) writeDetail(ts *registry.ThreadLaneSet, functionID uint64, eventKind, callDepth uint32, frame Frame) bool {
	payload := bufpool.Get(int(registry.DetailEventSize))
	defer bufpool.Free(payload)
	for i := range payload {
		payload[i] = 0
	}

	fixedLen := a.encodeFrame(payload, functionID, frame)

	if a.control == nil || a.control.CaptureStackSnapshot() {
		stackDst := payload[fixedLen:]
		if len(stackDst) > atf.MaxStackSnapshotBytes {
			stackDst = stackDst[:atf.MaxStackSnapshotBytes]
		}
		stackLen := a.capture(stackDst, frame.SP)
		patchStackSize(payload, uint16(stackLen))
	}

	// The slot is already zero-padded past fixedLen+stackLen; the drain
	// recovers the real length from the arch-specific stack_size field
	// instead of us trimming the slice (Push requires exactly
	// SlotSize bytes, so trimming here would only force a reallocation
	// back up to size).
	ok := pushWithRetry(ts.DetailPool, payload)
	if ok && a.policy.ShouldMark(backpressure.EventKind(eventKind), callDepth) {
		ts.DetailPool.MarkDetail()
	}
	return ok
}

// encodeFrame writes frame into payload using the running binary's
// architecture and returns the fixed-field length (the offset the
// stack snapshot, if any, should be appended at).
func (a *Agent) encodeFrame(payload []byte, functionID uint64, frame Frame) int {
	if atf.CurrentArch() == atf.ArchARM64 {
		p := atf.DetailFunctionPayloadARM64{
			FunctionID: functionID,
			XRegs:      frame.Regs,
			LR:         frame.LR,
			FP:         frame.FP,
			SP:         frame.SP,
		}
		return atf.EncodeDetailPayloadARM64(p, payload)
	}
	p := atf.DetailFunctionPayloadAMD64{
		FunctionID: functionID,
		GRegs:      frame.Regs,
		BP:         frame.FP,
		SP:         frame.SP,
	}
	return atf.EncodeDetailPayloadAMD64(p, payload)
}

// patchStackSize rewrites the stack_size field in an already-encoded
// payload after the actual captured length is known.
func patchStackSize(payload []byte, n uint16) {
	fixedLen := atf.DetailPayloadFixedSize(atf.CurrentArch())
	off := fixedLen - 2
	payload[off] = byte(n)
	payload[off+1] = byte(n >> 8)
}

// ringPool is the subset of *pool.RingPool this package drives, kept
// narrow so pushWithRetry can be exercised in tests against a fake.
type ringPool interface {
	ActiveRing() *ringbuf.Ring
	SwapActive() (uint32, bool)
}

// pushWithRetry pushes data to the pool's active ring, swapping in a
// fresh one and retrying exactly once if the active ring is full —
// mirroring the reference agent's caller, which never spins past a
// single swap attempt on the hot path.
func pushWithRetry(p ringPool, data []byte) bool {
	if r := p.ActiveRing(); r != nil && r.Push(data) {
		return true
	}
	if _, ok := p.SwapActive(); !ok {
		return false
	}
	r := p.ActiveRing()
	return r != nil && r.Push(data)
}
