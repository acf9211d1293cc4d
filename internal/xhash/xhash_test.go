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

package xhash

import "testing"

func TestHashModule32CaseInsensitive(t *testing.T) {
	a := HashModule32("libFoo.so")
	b := HashModule32("LIBFOO.SO")
	if a != b {
		t.Fatalf("expected case-insensitive match, got %x != %x", a, b)
	}
}

func TestHashModule32NeverZero(t *testing.T) {
	// FNV-1a-32 of the empty string is the offset basis, not zero, so
	// this input checks the non-zero result without reaching the remap
	// branch.
	if HashModule32("") == 0 {
		t.Fatal("hash must never be zero")
	}
}

func TestHashSymbol64CaseInsensitive(t *testing.T) {
	a := HashSymbol64("objc_msgSend")
	b := HashSymbol64("OBJC_MSGSEND")
	if a != b {
		t.Fatalf("expected case-insensitive match, got %x != %x", a, b)
	}
}

func TestHashSymbol64Deterministic(t *testing.T) {
	const want = "swift_retain"
	a := HashSymbol64(want)
	b := HashSymbol64(want)
	if a != b {
		t.Fatalf("hash must be deterministic, got %x != %x", a, b)
	}
}

func TestHashDistinctInputsDiffer(t *testing.T) {
	if HashSymbol64("foo") == HashSymbol64("bar") {
		t.Fatal("distinct inputs hashed to the same value")
	}
	if HashModule32("a.so") == HashModule32("b.so") {
		t.Fatal("distinct inputs hashed to the same value")
	}
}
