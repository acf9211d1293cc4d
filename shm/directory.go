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

// Package shm implements the shared-memory directory: a small, fixed
// table of named regions (ring pools, control block, thread registry)
// that a tracer process maps and a separate reader process (or, in a
// single-process embedding, the same process) resolves back into local
// base pointers by name.
package shm

import (
	"errors"
	"sync"
)

// MaxEntries bounds the directory the way the reference implementation
// bounds its g_mappings table.
const MaxEntries = 8

// MaxNameLen is the longest name an Entry can carry.
const MaxNameLen = 64

var (
	ErrDirectoryFull = errors.New("shm: directory full")
	ErrNameTooLong   = errors.New("shm: name exceeds MaxNameLen")
	ErrNotFound      = errors.New("shm: no such mapping")
)

// Entry describes one named region: a handle the Directory owns plus
// the size that was requested when it was created.
type Entry struct {
	Name string
	Size uint64
}

// mapping is a locally resolved Entry: its Arena-backed memory plus
// bookkeeping for clean teardown.
type mapping struct {
	name   string
	region []byte
	inUse  bool
}

// Directory is the set of named regions a tracer session publishes.
// It is safe for concurrent use; registration happens once per region
// at session start, lookups happen continuously from hot paths.
type Directory struct {
	arena Arena

	mu       sync.RWMutex
	entries  []Entry
	mappings [MaxEntries]mapping
	count    uint32
}

// NewDirectory creates an empty directory backed by arena. A nil arena
// defaults to ProcessArena{}, which services every request with plain
// heap-allocated byte slices — enough for same-process embedding and
// for tests, but not for cross-process sharing.
func NewDirectory(arena Arena) *Directory {
	if arena == nil {
		arena = ProcessArena{}
	}
	return &Directory{arena: arena}
}

// Create reserves a new named region of size bytes, maps it locally,
// and records it in the directory. Returns the mapped memory.
func (d *Directory) Create(name string, size uint64) ([]byte, error) {
	if len(name) == 0 || len(name) > MaxNameLen {
		return nil, ErrNameTooLong
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.count >= MaxEntries {
		return nil, ErrDirectoryFull
	}
	region, err := d.arena.Reserve(name, size)
	if err != nil {
		return nil, err
	}
	idx := d.count
	d.entries = append(d.entries, Entry{Name: name, Size: size})
	d.mappings[idx] = mapping{name: name, region: region, inUse: true}
	d.count++
	return region, nil
}

// MapLocalBases re-resolves every directory entry to a local base
// pointer, discarding any bases mapped by a prior call. Mirrors the
// reference implementation's "clear, then remap everything" semantics
// for reattaching to an existing directory (e.g. after a fork or in a
// reader process that only has the entry list, not the live mappings).
func (d *Directory) MapLocalBases() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearLocked()
	var ok uint32
	for i, e := range d.entries {
		if i >= MaxEntries {
			break
		}
		if e.Name == "" || e.Size == 0 {
			continue
		}
		region, err := d.arena.Open(e.Name, e.Size)
		if err != nil {
			continue
		}
		d.mappings[i] = mapping{name: e.Name, region: region, inUse: true}
		ok++
	}
	return ok > 0, nil
}

// ClearLocalBases unmaps every local base and forgets them, without
// touching the entry list itself.
func (d *Directory) ClearLocalBases() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearLocked()
}

func (d *Directory) clearLocked() {
	for i := range d.mappings {
		if d.mappings[i].inUse {
			d.arena.Release(d.mappings[i].region)
			d.mappings[i] = mapping{}
		}
	}
}

// Base returns the mapped memory for the region at idx, or ErrNotFound
// if idx is out of range or unmapped.
func (d *Directory) Base(idx uint32) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if idx >= MaxEntries || !d.mappings[idx].inUse {
		return nil, ErrNotFound
	}
	return d.mappings[idx].region, nil
}

// BaseByName looks up a mapped region by the name it was created with.
func (d *Directory) BaseByName(name string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for i, e := range d.entries {
		if e.Name == name && i < MaxEntries && d.mappings[i].inUse {
			return d.mappings[i].region, nil
		}
	}
	return nil, ErrNotFound
}

// Entries returns a snapshot of the registered (name, size) pairs.
func (d *Directory) Entries() []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Entry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Count returns the number of registered entries.
func (d *Directory) Count() uint32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.count
}
