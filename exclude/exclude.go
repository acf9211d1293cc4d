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

// Package exclude implements a lightweight, high-performance set of
// symbol names to skip instrumenting — hot allocator/libc/runtime
// entry points and reentrancy-prone APIs that would otherwise trip
// the interceptor while it is itself running.
package exclude

import (
	"strings"

	"github.com/cloudwego/ebpftrace/internal/xhash"
)

const (
	minCapacity   = 8
	loadFactorNum = 7
	loadFactorDen = 10
)

// Set is an open-addressed hash table of symbol-name hashes, sized for
// O(1) average Contains checks on the hot instrumentation path.
type Set struct {
	slots    []uint64
	capacity uint64
	count    uint64
}

// New creates an empty Set with capacityHint rounded up to a power of
// two slots (minimum 8; 0 uses a default of 128). Add grows the table
// once the load factor would exceed 0.7, so fewer than capacityHint
// entries fit before the first resize.
func New(capacityHint int) *Set {
	if capacityHint <= 0 {
		capacityHint = 128
	}
	cap := nextPow2(uint64(capacityHint))
	return &Set{slots: make([]uint64, cap), capacity: cap}
}

func nextPow2(x uint64) uint64 {
	if x < minCapacity {
		return minCapacity
	}
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	return x + 1
}

// Add inserts name into the set, resizing first if the load factor
// would exceed 0.7. Returns false only on an empty name.
func (s *Set) Add(name string) bool {
	if name == "" {
		return false
	}
	if (s.count+1)*uint64(loadFactorDen) > s.capacity*uint64(loadFactorNum) {
		s.grow()
	}
	return s.insertHash(xhash.HashSymbol64(name))
}

func (s *Set) grow() {
	old := s.slots
	newCap := s.capacity << 1
	s.slots = make([]uint64, newCap)
	s.capacity = newCap
	s.count = 0
	for _, h := range old {
		if h != 0 {
			s.insertHash(h)
		}
	}
}

func (s *Set) insertHash(h uint64) bool {
	mask := s.capacity - 1
	i := h & mask
	for probe := uint64(0); probe < s.capacity; probe++ {
		if s.slots[i] == 0 {
			s.slots[i] = h
			s.count++
			return true
		}
		if s.slots[i] == h {
			return true
		}
		i = (i + 1) & mask
	}
	return false
}

// ContainsHash reports whether hash h is present without hashing again
// — used when the caller already hashed a symbol name for another
// purpose (e.g. the function_id).
func (s *Set) ContainsHash(h uint64) bool {
	if h == 0 || s.capacity == 0 {
		return false
	}
	mask := s.capacity - 1
	i := h & mask
	for probe := uint64(0); probe < s.capacity; probe++ {
		slot := s.slots[i]
		if slot == 0 {
			return false
		}
		if slot == h {
			return true
		}
		i = (i + 1) & mask
	}
	return false
}

// Contains reports whether name is in the set.
func (s *Set) Contains(name string) bool {
	return s.ContainsHash(xhash.HashSymbol64(name))
}

// Len returns the number of distinct entries in the set.
func (s *Set) Len() uint64 { return s.count }

// defaultSymbols are hot allocator/runtime/reentrancy-prone entry
// points excluded regardless of user configuration.
var defaultSymbols = []string{
	"malloc", "free", "calloc", "realloc",
	"memcpy", "memmove", "memset", "bzero",
	"strcpy", "strncpy", "strlen", "strcmp",
	"objc_msgSend", "objc_release", "objc_retain",
	"pthread_mutex_lock", "pthread_mutex_unlock",
	"pthread_once", "pthread_create",
	"gum_interceptor_attach", "gum_interceptor_detach",
	"gum_interceptor_begin_transaction", "gum_interceptor_end_transaction",
	"_malloc", "_free",
}

// AddDefaults adds the built-in platform-agnostic exclusion set.
func (s *Set) AddDefaults() {
	for _, name := range defaultSymbols {
		s.Add(name)
	}
}

// AddCSV parses a comma- or semicolon-separated list of symbol names,
// trims surrounding whitespace from each, and adds the non-empty ones.
func (s *Set) AddCSV(csv string) {
	if csv == "" {
		return
	}
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' || csv[i] == ';' {
			field := strings.TrimSpace(csv[start:i])
			if field != "" {
				s.Add(field)
			}
			start = i + 1
		}
	}
}
