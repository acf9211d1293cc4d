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

// Package ringbuf implements the fixed-size, single-producer/single-consumer
// byte ring that backs one index or detail ring in a Lane. A ring is a
// header followed by capacity*slotSize bytes of slot storage, all living
// in a caller-provided []byte view (typically a window into a shared
// memory arena); Attach lets a drain-side consumer re-open a ring it
// does not own by construction, mirroring ring_buffer_attach in the
// original implementation.
package ringbuf

import (
	"encoding/binary"
	"errors"
	"sync/atomic"
)

// Magic identifies a live ring header; it is written once at Init and
// never rewritten, so Attach can sanity-check the memory it is given.
const Magic uint32 = 0x52494e47 // "RING"

// HeaderSize is the fixed byte size of Header as stored in the arena.
const HeaderSize = 32

// Header is the fixed-layout prefix of a ring's memory region.
//
//	magic            uint32
//	capacitySlots     uint32 (power of two)
//	slotSize         uint32
//	writePos         uint32 (atomic, producer-owned)
//	readPos          uint32 (atomic, drain-owned)
//	overflowCount    uint32 (atomic)
//	_reserved        [8]byte
type Header struct {
	Magic         uint32
	CapacitySlots uint32
	SlotSize      uint32
	WritePos      uint32
	ReadPos       uint32
	OverflowCount uint32
	_reserved     [8]byte
}

var (
	// ErrBadMagic is returned by Attach when the memory region does not
	// begin with a valid ring header.
	ErrBadMagic = errors.New("ringbuf: bad magic")
	// ErrCapacityNotPow2 is returned by Init when capacitySlots is not a
	// power of two.
	ErrCapacityNotPow2 = errors.New("ringbuf: capacity must be a power of two")
	// ErrShortBuffer is returned when the supplied memory is too small
	// to hold the header plus capacitySlots*slotSize bytes.
	ErrShortBuffer = errors.New("ringbuf: buffer too small")
)

// Ring is a view over a byte region: a Header followed by slot storage.
// All fields are read through the mem slice so a Ring constructed via
// Attach shares state with any other attachment of the same memory,
// including one living in a different process.
type Ring struct {
	mem  []byte // full region: header + slots
	slot []byte // mem[HeaderSize:]
}

func isPow2(x uint32) bool { return x != 0 && x&(x-1) == 0 }

// Init formats mem as a fresh ring of the given capacity (in slots) and
// slot size, and returns a Ring backed by it. mem must be at least
// HeaderSize + capacitySlots*slotSize bytes.
func Init(mem []byte, capacitySlots, slotSize uint32) (*Ring, error) {
	if !isPow2(capacitySlots) {
		return nil, ErrCapacityNotPow2
	}
	need := uint64(HeaderSize) + uint64(capacitySlots)*uint64(slotSize)
	if uint64(len(mem)) < need {
		return nil, ErrShortBuffer
	}
	binary.LittleEndian.PutUint32(mem[0:4], Magic)
	binary.LittleEndian.PutUint32(mem[4:8], capacitySlots)
	binary.LittleEndian.PutUint32(mem[8:12], slotSize)
	binary.LittleEndian.PutUint32(mem[12:16], 0) // writePos
	binary.LittleEndian.PutUint32(mem[16:20], 0) // readPos
	binary.LittleEndian.PutUint32(mem[20:24], 0) // overflowCount
	return &Ring{mem: mem, slot: mem[HeaderSize:]}, nil
}

// Attach opens an existing, already-initialized ring without
// reinitializing its header, the way a drain-side consumer or a test
// harness reopens a ring it did not create. size is the expected total
// region size (header + slots) and eventSize the expected slot size;
// both are cross-checked against the stored header, and a mismatch on
// either is reported as ErrShortBuffer.
func Attach(mem []byte, size int, eventSize uint32) (*Ring, error) {
	if len(mem) < HeaderSize {
		return nil, ErrShortBuffer
	}
	if binary.LittleEndian.Uint32(mem[0:4]) != Magic {
		return nil, ErrBadMagic
	}
	if len(mem) < size {
		return nil, ErrShortBuffer
	}
	capSlots := binary.LittleEndian.Uint32(mem[4:8])
	slotSize := binary.LittleEndian.Uint32(mem[8:12])
	if uint64(size) != uint64(HeaderSize)+uint64(capSlots)*uint64(slotSize) || slotSize != eventSize {
		return nil, ErrShortBuffer
	}
	return &Ring{mem: mem[:size], slot: mem[HeaderSize:size]}, nil
}

func (r *Ring) capacitySlots() uint32 { return binary.LittleEndian.Uint32(r.mem[4:8]) }
func (r *Ring) slotSize() uint32      { return binary.LittleEndian.Uint32(r.mem[8:12]) }

func (r *Ring) writePosPtr() *uint32      { return (*uint32)(atomicPtr(r.mem[12:16])) }
func (r *Ring) readPosPtr() *uint32       { return (*uint32)(atomicPtr(r.mem[16:20])) }
func (r *Ring) overflowCountPtr() *uint32 { return (*uint32)(atomicPtr(r.mem[20:24])) }

// CapacitySlots returns the ring's fixed slot capacity.
func (r *Ring) CapacitySlots() uint32 { return r.capacitySlots() }

// SlotSize returns the fixed size in bytes of each slot.
func (r *Ring) SlotSize() uint32 { return r.slotSize() }

// Bytes returns the ring's whole backing memory, header included — the
// same slice Init was given. Callers use this to recover the ring's
// offset within a larger arena region (shm.RegionAllocator.OffsetOf),
// not to read or write ring contents directly.
func (r *Ring) Bytes() []byte { return r.mem }

// OverflowCount returns the number of rejected writes since Init.
func (r *Ring) OverflowCount() uint32 {
	return atomic.LoadUint32(r.overflowCountPtr())
}

// Len returns the number of live (unread) slots.
func (r *Ring) Len() uint32 {
	cap := r.capacitySlots()
	w := atomic.LoadUint32(r.writePosPtr())
	rp := atomic.LoadUint32(r.readPosPtr())
	return (w - rp) & (cap - 1)
}

// Full reports whether the ring has no room for another write: one slot
// is always reserved as a sentinel so full and empty remain
// distinguishable from the head/tail positions alone.
func (r *Ring) Full() bool {
	return r.Len() == r.capacitySlots()-1
}

// Empty reports whether the ring has no live slots.
func (r *Ring) Empty() bool {
	return r.Len() == 0
}

// Push writes one slot's worth of bytes (len(data) must equal SlotSize)
// into the ring. It is called only by the owning producer. On overflow
// it increments OverflowCount and returns false without blocking.
func (r *Ring) Push(data []byte) bool {
	if uint32(len(data)) != r.slotSize() {
		return false
	}
	if r.Full() {
		atomic.AddUint32(r.overflowCountPtr(), 1)
		return false
	}
	cap := r.capacitySlots()
	w := atomic.LoadUint32(r.writePosPtr())
	off := uint64(w&(cap-1)) * uint64(r.slotSize())
	copy(r.slot[off:off+uint64(r.slotSize())], data)
	atomic.StoreUint32(r.writePosPtr(), w+1)
	return true
}

// Pop reads and removes the oldest slot into dst (len(dst) must equal
// SlotSize). It is called only by the drain. Returns false if empty.
func (r *Ring) Pop(dst []byte) bool {
	if uint32(len(dst)) != r.slotSize() {
		return false
	}
	if r.Empty() {
		return false
	}
	cap := r.capacitySlots()
	rp := atomic.LoadUint32(r.readPosPtr())
	off := uint64(rp&(cap-1)) * uint64(r.slotSize())
	copy(dst, r.slot[off:off+uint64(r.slotSize())])
	atomic.StoreUint32(r.readPosPtr(), rp+1)
	return true
}

// DropOldest discards the oldest live slot without copying it out,
// advancing readPos by one. Returns false if the ring was already
// empty — the caller (ring pool eviction) still counts the attempt.
func (r *Ring) DropOldest() bool {
	if r.Empty() {
		return false
	}
	atomic.AddUint32(r.readPosPtr(), 1)
	return true
}

// Reset rewinds the ring to empty, for reuse once returned to a free
// queue. It must only be called when the ring is not concurrently
// accessed by its producer or consumer.
func (r *Ring) Reset() {
	atomic.StoreUint32(r.writePosPtr(), 0)
	atomic.StoreUint32(r.readPosPtr(), 0)
}
