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

package ringbuf

import "unsafe"

// atomicPtr returns a pointer to the first 4 bytes of b, suitable for use
// with sync/atomic. b must be at least 4 bytes and 4-byte aligned; all
// call sites here slice from fixed offsets into a header that begins at
// offset 0 of its backing array, so alignment holds as long as the
// backing array itself is word-aligned (true for both make([]byte, ...)
// and the mmap'd arenas this package is built to run over).
func atomicPtr(b []byte) unsafe.Pointer {
	return unsafe.Pointer(&b[0])
}
