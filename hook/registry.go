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

// Package hook maps (module path, symbol) pairs to stable 64-bit
// function ids: the upper 32 bits identify the module (a case-folded
// FNV-1a-32 hash of its path), the lower 32 bits are a per-module,
// monotonically assigned index. The mapping is built once per process
// as symbols are instrumented and never changes afterward, so readers
// of the resulting trace files can resolve function ids back to
// (module, symbol) via the same registry's reverse lookup or a
// recorded symbol table.
package hook

import (
	"sync"

	"github.com/cloudwego/ebpftrace/internal/xhash"
)

// ModuleExports is the input a platform-specific symbol discovery walk
// (external to this module — see spec Non-goals) hands the registry:
// one module's path plus every exported symbol name found in it, and,
// parallel to Symbols, the name of the section each symbol was found
// in (Sections may be nil or shorter than Symbols when the discovery
// walk has no section data — the section predicates then simply never
// match for those entries).
type ModuleExports struct {
	ModulePath string
	Symbols    []string
	Sections   []string
}

func (e ModuleExports) sectionAt(i int) string {
	if i < len(e.Sections) {
		return e.Sections[i]
	}
	return ""
}

// RegisterModule runs every symbol in exports through filter and
// registers the ones it does not exclude, in exports.Symbols order.
// Returns the assigned function id for each entry of exports.Symbols,
// in the same order, with 0 standing in for any entry filter excluded
// — the combined ExcludeSet + Swift stub/metadata/section + toggle
// decision spec.md's symbol filter describes, applied once per
// discovered symbol at hook-attach time rather than one predicate at
// a time by the caller.
func (r *Registry) RegisterModule(exports ModuleExports, filter SymbolFilter) []uint64 {
	ids := make([]uint64, len(exports.Symbols))
	for i, symbol := range exports.Symbols {
		if filter.ShouldExclude(symbol, exports.sectionAt(i)) {
			continue
		}
		ids[i] = r.RegisterSymbol(exports.ModulePath, symbol)
	}
	return ids
}

// ModuleID extracts the module identifier from a function id.
func ModuleID(functionID uint64) uint32 { return uint32(functionID >> 32) }

// SymbolIndex extracts the per-module symbol index from a function id.
func SymbolIndex(functionID uint64) uint32 { return uint32(functionID) }

func makeFunctionID(moduleID, index uint32) uint64 {
	return uint64(moduleID)<<32 | uint64(index)
}

type moduleEntry struct {
	moduleID    uint32
	nextIndex   uint32
	nameToIndex map[string]uint32
	indexToName map[uint32]string
}

// Registry maps module paths and symbol names to stable function ids.
// Safe for concurrent registration from multiple interceptor call
// sites.
type Registry struct {
	mu      sync.Mutex
	modules map[string]*moduleEntry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]*moduleEntry)}
}

// RegisterSymbol returns the function id for (modulePath, symbol),
// assigning a new per-module index the first time this pair is seen
// and returning the same id on every subsequent call.
func (r *Registry) RegisterSymbol(modulePath, symbol string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	me := r.getOrCreateModuleLocked(modulePath)
	if idx, ok := me.nameToIndex[symbol]; ok {
		return makeFunctionID(me.moduleID, idx)
	}
	idx := me.nextIndex
	me.nextIndex++
	me.nameToIndex[symbol] = idx
	me.indexToName[idx] = symbol
	return makeFunctionID(me.moduleID, idx)
}

func (r *Registry) getOrCreateModuleLocked(modulePath string) *moduleEntry {
	me, ok := r.modules[modulePath]
	if !ok {
		me = &moduleEntry{
			moduleID:    xhash.HashModule32(modulePath),
			nextIndex:   1,
			nameToIndex: make(map[string]uint32),
			indexToName: make(map[uint32]string),
		}
		r.modules[modulePath] = me
	}
	return me
}

// GetID looks up the function id for (modulePath, symbol) without
// registering it, returning ok=false if the pair was never seen.
func (r *Registry) GetID(modulePath, symbol string) (id uint64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	me, exists := r.modules[modulePath]
	if !exists {
		return 0, false
	}
	idx, exists := me.nameToIndex[symbol]
	if !exists {
		return 0, false
	}
	return makeFunctionID(me.moduleID, idx), true
}

// Resolve reverses a function id back to its (module path, symbol)
// pair, if the registry knows the module id.
func (r *Registry) Resolve(functionID uint64) (modulePath, symbol string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	moduleID := ModuleID(functionID)
	idx := SymbolIndex(functionID)
	for path, me := range r.modules {
		if me.moduleID != moduleID {
			continue
		}
		name, exists := me.indexToName[idx]
		if !exists {
			return "", "", false
		}
		return path, name, true
	}
	return "", "", false
}

// ModuleIDFor returns the module id assigned to modulePath, or 0 if
// the module has never been registered.
func (r *Registry) ModuleIDFor(modulePath string) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	me, ok := r.modules[modulePath]
	if !ok {
		return 0
	}
	return me.moduleID
}

// SymbolCount returns the number of distinct symbols registered under
// modulePath.
func (r *Registry) SymbolCount(modulePath string) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	me, ok := r.modules[modulePath]
	if !ok {
		return 0
	}
	return uint32(len(me.nameToIndex))
}

// Clear discards every registered module and symbol.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules = make(map[string]*moduleEntry)
}
