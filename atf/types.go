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

// Package atf implements the ATF v2 on-disk trace format: a fixed
// 32-byte index event stream with a 64-byte header/footer, and an
// optional variable-length detail event stream (24-byte header per
// event) linked to the index by sequence number.
package atf

import "runtime"

// Architecture values, matching the on-disk arch byte.
const (
	ArchX86_64 = 1
	ArchARM64  = 2
)

// OS values, matching the on-disk os byte.
const (
	OSiOS     = 1
	OSAndroid = 2
	OSMacOS   = 3
	OSLinux   = 4
	OSWindows = 5
)

// Clock type values, matching the on-disk clock_type byte.
const (
	ClockMachContinuous = 1
	ClockQPC            = 2
	ClockBoottime       = 3
)

// Event kind values (Index Event).
const (
	EventKindCall      = 1
	EventKindReturn    = 2
	EventKindException = 3
)

// Detail event type values (Detail Event Header).
const (
	DetailEventFunctionCall   = 3
	DetailEventFunctionReturn = 4
)

// NoDetailSeq marks an Index Event with no associated Detail Event.
const NoDetailSeq = ^uint32(0)

// IndexFlagHasDetailFile is set in the index header once a detail
// file has been lazily created for this thread.
const IndexFlagHasDetailFile = uint32(1) << 0

// Sizes, in bytes, of the fixed on-disk structures.
const (
	IndexHeaderSize       = 64
	IndexEventSize        = 32
	IndexFooterSize       = 64
	DetailHeaderSize      = 64
	DetailEventHeaderSize = 24
	DetailFooterSize      = 64
)

// MaxStackSnapshotBytes bounds the captured-stack window in a detail
// payload (0-256 bytes, matching the reference agent's fixed capture
// buffer).
const MaxStackSnapshotBytes = 256

// DetailPayloadCapacity is the largest a register-snapshot-plus-stack
// detail payload can be on either supported architecture
// (DetailFunctionPayloadARM64's 98 fixed bytes is the wider of the two
// shapes) plus MaxStackSnapshotBytes, rounded up. It sizes the detail
// lane's fixed ring slot: the producer encodes a bounded payload
// straight into that slot rather than handing the drain a pointer,
// since the same ring memory may be attached from a different process
// than the one that wrote it.
const DetailPayloadCapacity = 384

var (
	indexMagic        = [4]byte{'A', 'T', 'I', '2'}
	indexFooterMagic  = [4]byte{'2', 'I', 'T', 'A'}
	detailMagic       = [4]byte{'A', 'T', 'D', '2'}
	detailFooterMagic = [4]byte{'2', 'D', 'T', 'A'}
)

// CurrentArch returns the ATF arch byte for the running binary's
// architecture, defaulting to x86_64 for anything unrecognized (the
// original source's own fallback).
func CurrentArch() uint8 {
	switch runtime.GOARCH {
	case "arm64":
		return ArchARM64
	case "amd64":
		return ArchX86_64
	default:
		return ArchX86_64
	}
}

// CurrentOS returns the ATF os byte for the running binary's OS,
// defaulting to Linux (the original source's own fallback for
// anything besides Darwin/Linux/Windows).
func CurrentOS() uint8 {
	switch runtime.GOOS {
	case "darwin":
		return OSMacOS
	case "linux":
		return OSLinux
	case "windows":
		return OSWindows
	default:
		return OSLinux
	}
}

// IndexEvent is one fixed 32-byte index record.
type IndexEvent struct {
	TimestampNS uint64
	FunctionID  uint64
	ThreadID    uint32
	EventKind   uint32
	CallDepth   uint32
	DetailSeq   uint32
}

// HasDetail reports whether this event links to a Detail Event.
func (e IndexEvent) HasDetail() bool { return e.DetailSeq != NoDetailSeq }

// DetailEventHeader is the fixed 24-byte prefix of every Detail Event;
// a variable-length payload follows it in the file.
type DetailEventHeader struct {
	TotalLength uint32
	EventType   uint16
	Flags       uint16
	IndexSeq    uint32
	ThreadID    uint32
	Timestamp   uint64
}

// DetailEventTypeFor maps an IndexEvent's event kind to the detail
// event type recorded alongside it; EXCEPTION shares FUNCTION_CALL's
// type, matching the reference writer's default case.
func DetailEventTypeFor(eventKind uint32) uint16 {
	switch eventKind {
	case EventKindCall:
		return DetailEventFunctionCall
	case EventKindReturn:
		return DetailEventFunctionReturn
	default:
		return DetailEventFunctionCall
	}
}

// DetailFunctionPayloadARM64 is the ARM64 register-snapshot payload:
// 8 general-purpose argument/return registers, link/frame/stack
// pointers, and a bounded stack window.
type DetailFunctionPayloadARM64 struct {
	FunctionID uint64
	XRegs      [8]uint64
	LR         uint64
	FP         uint64
	SP         uint64
	StackSize  uint16
	// StackSnapshot follows, StackSize bytes.
}

// DetailFunctionPayloadAMD64 is the x86_64 analogue of
// DetailFunctionPayloadARM64: 8 general-purpose registers covering the
// System V argument/return set, frame/stack pointers in place of
// ARM64's fp/sp, and the same bounded stack window shape. There is no
// link register on x86_64 (the return address lives on the stack), so
// that slot is simply absent rather than repurposed.
type DetailFunctionPayloadAMD64 struct {
	FunctionID uint64
	GRegs      [8]uint64 // rax, rbx, rcx, rdx, rsi, rdi, r8, r9
	BP         uint64
	SP         uint64
	StackSize  uint16
	// StackSnapshot follows, StackSize bytes.
}
