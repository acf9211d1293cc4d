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

// Package xhash is a cross-platform, case-insensitive FNV-1a for module
// paths and symbol names.
//
// Unlike a hash that reads multiple bytes at a time through an unsafe
// pointer cast (CPU-arch-dependent results, and case-sensitive), xhash
// folds ASCII case and hashes byte-by-byte so the result is stable
// across processes and architectures. That stability matters here:
// function_id and exclude-set membership are computed once by an
// instrumented process and consumed by another (the drain, or a later
// analysis tool reading the ATF files), so the hash must mean the same
// thing everywhere.
package xhash

const (
	offset32 = uint32(2166136261)
	prime32  = uint32(16777619)

	offset64 = uint64(1469598103934665603)
	prime64  = uint64(1099511628211)

	zeroRemap32 = uint32(0x9e3779b9)
	zeroRemap64 = uint64(0x9e3779b97f4a7c15)
)

func foldByte(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + 32
	}
	return c
}

// HashModule32 hashes a module path with case-insensitive FNV-1a-32,
// remapping a zero result so zero can be reserved as "no module".
func HashModule32(s string) uint32 {
	h := offset32
	for i := 0; i < len(s); i++ {
		h ^= uint32(foldByte(s[i]))
		h *= prime32
	}
	if h == 0 {
		h = zeroRemap32
	}
	return h
}

// HashSymbol64 hashes a symbol name with case-insensitive FNV-1a-64,
// remapping a zero result so zero can be reserved as "empty slot" in an
// open-addressed table.
func HashSymbol64(s string) uint64 {
	h := offset64
	for i := 0; i < len(s); i++ {
		h ^= uint64(foldByte(s[i]))
		h *= prime64
	}
	if h == 0 {
		h = zeroRemap64
	}
	return h
}
