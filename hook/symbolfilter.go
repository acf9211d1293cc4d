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

package hook

import (
	"strings"

	"github.com/cloudwego/ebpftrace/exclude"
)

// IsSwiftSymbolName reports whether name looks like a Swift-mangled
// symbol ($s/$S, with or without the leading underscore) or a Swift
// runtime entry point (swift_*).
func IsSwiftSymbolName(name string) bool {
	if name == "" {
		return false
	}
	switch {
	case strings.HasPrefix(name, "$s"), strings.HasPrefix(name, "$S"):
		return true
	case strings.HasPrefix(name, "_$s"), strings.HasPrefix(name, "_$S"):
		return true
	case strings.HasPrefix(name, "swift_"), strings.HasPrefix(name, "_swift_"):
		return true
	case strings.HasPrefix(name, "__swift"):
		return true
	}
	return false
}

// IsSwiftSymbolicMetadata reports whether name is a Swift reflection
// string (type metadata), not executable code.
func IsSwiftSymbolicMetadata(name string) bool {
	return strings.HasPrefix(name, "_symbolic") || strings.HasPrefix(name, "symbolic")
}

// IsStubSectionName reports whether sectionName names a trampoline/stub
// section (Mach-O's __stub_helper, __auth_stubs, __stubs families).
// The reference implementation matches by substring rather than
// prefix since qualifying text can surround the part that matters, and
// exposes identical logic for a section's name and its opaque id
// (different discovery walks hand back one or the other); callers here
// pass whichever string representation they have.
func IsStubSectionName(sectionName string) bool {
	if sectionName == "" {
		return false
	}
	return strings.Contains(sectionName, "__stub_helper") ||
		strings.Contains(sectionName, "__auth_stubs") ||
		strings.Contains(sectionName, "__stubs")
}

// IsSwiftSectionName reports whether sectionName names a Swift
// language-metadata section (Mach-O's __swift5_* family).
func IsSwiftSectionName(sectionName string) bool {
	if sectionName == "" {
		return false
	}
	return strings.Contains(sectionName, "__swift")
}

// ShouldSkipSwiftSymbols reports whether Swift-mangled/runtime symbol
// names should be excluded from hooking, given the ADA_HOOK_SWIFT
// toggle (config.TracerConfig.HookSwift: true means "hook them
// anyway", matching the reference's "env set to 1 means don't skip").
func ShouldSkipSwiftSymbols(hookSwift bool) bool {
	return !hookSwift
}

// SymbolFilter combines every exclusion predicate into the single
// yes/no decision a hook-attach site needs: an explicit ExcludeSet
// (hot allocator/runtime/reentrancy-prone entry points), Swift
// reflection metadata, compiler-generated Swift stubs, and
// trampoline/stub or Swift language-metadata sections are always
// excluded; Swift-mangled and Swift-runtime symbol names are excluded
// only when HookSwift is not set, so ADA_HOOK_SWIFT=1 can opt back
// into hooking them.
type SymbolFilter struct {
	HookSwift bool

	// ExcludeSet is consulted first, if non-nil. It is typically built
	// once at startup via exclude.New + AddDefaults/AddCSV.
	ExcludeSet *exclude.Set
}

// ShouldExclude reports whether a candidate symbol (name, and the name
// of the section it was found in, if known) should be skipped rather
// than hooked.
func (f SymbolFilter) ShouldExclude(name, sectionName string) bool {
	if f.ExcludeSet != nil && f.ExcludeSet.Contains(name) {
		return true
	}
	if IsStubSectionName(sectionName) || IsSwiftSectionName(sectionName) {
		return true
	}
	if IsSwiftSymbolicMetadata(name) || IsSwiftCompilerStub(name) {
		return true
	}
	return IsSwiftSymbolName(name) && ShouldSkipSwiftSymbols(f.HookSwift)
}

// twoCharStubSuffixes lists two-character Swift-mangled suffixes that
// mark thunks/accessors; every one of these is safe to skip without
// losing meaningful stack information.
var twoCharStubSuffixes = []string{
	"Tm", "Wb", "Mi", "Mr", "Ma", "Wl", "WL",
	"Oe", "Oh", "Ob", "Oc", "Od", "Oy",
}

var threeCharStubSuffixes = []string{"wcp", "wca", "wct"}

// IsSwiftCompilerStub reports whether name is a compiler-generated
// Swift stub (outlined value witness, witness-table accessor, block
// ABI helper, SIL destructor) rather than user code worth tracing.
//
// Protocol witness thunks (TW) are deliberately NOT filtered: they can
// carry inlined implementations in release builds.
func IsSwiftCompilerStub(name string) bool {
	if name == "" {
		return false
	}

	switch {
	case strings.HasPrefix(name, "___swift_"),
		strings.HasPrefix(name, "__swift_"),
		strings.HasPrefix(name, "_objectdestroy"),
		strings.HasPrefix(name, "objectdestroy"),
		strings.HasPrefix(name, "block_copy_helper"),
		strings.HasPrefix(name, "block_destroy_helper"):
		return true
	}

	var mangled string
	switch {
	case strings.HasPrefix(name, "_$s"):
		mangled = name[3:]
	case strings.HasPrefix(name, "$s"):
		mangled = name[2:]
	default:
		return false
	}
	if mangled == "" {
		return false
	}

	for _, suffix := range twoCharStubSuffixes {
		if len(name) >= 2 && strings.HasSuffix(name, suffix) {
			return true
		}
	}
	for _, suffix := range threeCharStubSuffixes {
		if len(name) >= 3 && strings.HasSuffix(name, suffix) {
			return true
		}
	}

	if ok := scanOutlinedWitness(name, mangled, "Ow"); ok {
		return true
	}
	if ok := scanOutlinedWitness(name, mangled, "Vw"); ok {
		return true
	}
	return false
}

// scanOutlinedWitness scans backward from len(name)-3 to the start of
// the mangled suffix for the first (rightmost) occurrence of marker
// ("Ow" or "Vw"). On the first occurrence found it stops and reports
// whether everything after the marker is lowercase a-z — the shape of
// an outlined value-witness or value-witness-table entry — without
// considering any earlier occurrence, mirroring the reference scan's
// break-on-first-match.
func scanOutlinedWitness(name, mangled, marker string) bool {
	searchStart := len(name) - len(mangled)
	for p := len(name) - 3; p >= searchStart; p-- {
		if p < 0 || p+2 > len(name) {
			continue
		}
		if name[p:p+2] != marker {
			continue
		}
		trailing := name[p+2:]
		if trailing == "" {
			return false
		}
		return allLowercaseASCII(trailing)
	}
	return false
}

func allLowercaseASCII(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'a' || s[i] > 'z' {
			return false
		}
	}
	return true
}
