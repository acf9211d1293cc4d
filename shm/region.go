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

package shm

import (
	"errors"
	"unsafe"
)

// ErrRegionExhausted names the condition of a region having no more
// room for a requested size. Allocate does not return it: Allocate
// reports exhaustion by returning nil.
var ErrRegionExhausted = errors.New("shm: region exhausted")

// RegionAllocator is a bump allocator over a single mapped region: the
// one arena every ring, lane, and thread-registry slot in a session is
// carved out of by offset, rather than each issuing its own Arena
// reservation. Every Allocate call returns a sub-slice of the same
// underlying base at the next free offset, and OffsetOf recovers the
// byte offset a reader attaching to the same arena from a different
// process would use in place of a pointer. Not safe for concurrent
// Allocate calls — callers sub-allocate once, at setup time, from a
// single goroutine, the same way the reference implementation carves
// up its arena before any producer thread registers.
type RegionAllocator struct {
	base   []byte
	offset uint64
}

// NewRegionAllocatorOverBase wraps an already-mapped region (typically
// the result of Directory.Create or an Arena.Reserve/Open call) with
// offset sub-allocation.
func NewRegionAllocatorOverBase(base []byte) *RegionAllocator {
	return &RegionAllocator{base: base}
}

// Allocate hands back the next n bytes of the region as base[off:off+n]
// for the allocator's current offset, or nil if fewer than n bytes
// remain. It never issues a separate allocation of its own.
func (a *RegionAllocator) Allocate(n int) []byte {
	if n <= 0 {
		return nil
	}
	need := uint64(n)
	if a.offset+need > uint64(len(a.base)) {
		return nil
	}
	off := a.offset
	a.offset += need
	return a.base[off : off+need]
}

// Base returns the whole region this allocator carves offsets out of.
func (a *RegionAllocator) Base() []byte { return a.base }

// Size returns the total region size.
func (a *RegionAllocator) Size() uint64 { return uint64(len(a.base)) }

// Used returns how many bytes have been handed out so far.
func (a *RegionAllocator) Used() uint64 { return a.offset }

// Remaining returns how many bytes are still free.
func (a *RegionAllocator) Remaining() uint64 { return uint64(len(a.base)) - a.offset }

// OffsetOf returns region's byte offset from this allocator's base —
// the value that crosses the address-space boundary in place of a
// pointer, per spec.md's offset-addressing requirement, given that
// region was itself returned by a prior Allocate call on this
// allocator. Passing any other slice is a programming error, not a
// runtime condition a caller recovers from, so OffsetOf panics rather
// than returning an error.
func (a *RegionAllocator) OffsetOf(region []byte) uint64 {
	if len(region) == 0 || len(a.base) == 0 {
		return 0
	}
	base := uintptr(unsafe.Pointer(&a.base[0]))
	ptr := uintptr(unsafe.Pointer(&region[0]))
	if ptr < base || ptr > base+uintptr(len(a.base)) {
		panic("shm: region is not a sub-allocation of this RegionAllocator's base")
	}
	return uint64(ptr - base)
}

// CreateRegionAllocator reserves a size-byte region named name the same
// way Create does, and wraps it as a RegionAllocator so callers
// sub-allocate many fixed-size structures — ring headers and slots,
// thread-registry bookkeeping — as offsets into that one region
// instead of issuing one Arena.Reserve call per structure. This is the
// one directory entry a whole session's worth of per-thread rings
// needs, regardless of thread or ring count, keeping well clear of
// MaxEntries.
func (d *Directory) CreateRegionAllocator(name string, size uint64) (*RegionAllocator, error) {
	region, err := d.Create(name, size)
	if err != nil {
		return nil, err
	}
	return NewRegionAllocatorOverBase(region), nil
}
