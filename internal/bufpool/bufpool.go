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

// Package bufpool pools the scratch buffers the producer agent formats
// detail-event payloads (register snapshot + bounded stack window)
// into before handing them to a DetailWriter. Allocation itself is
// delegated to mcache, already pulled in transitively through bufiox;
// a magic-tagged footer (the same technique cache/mempool uses to
// validate a buf actually came from its own pool) lets Free reject a
// buffer that was not obtained from Get, instead of corrupting
// whichever pool happens to share its capacity.
package bufpool

import (
	"encoding/binary"

	"github.com/bytedance/gopkg/lang/mcache"
)

// footerLen is the trailing tag Get appends after the usable region.
const footerLen = 8

// footerMagic occupies the high 32 bits of the footer; the low 32
// bits record the size the caller asked for, so Free can recover
// exactly how much of cap(buf) is the real payload.
const footerMagic = uint64(0xB0F5CAFE) << 32

// Get returns a buffer with at least size usable bytes. The returned
// slice is exactly size bytes long; Free must be called with the same
// slice (not a sub-slice) once the caller is done with it.
func Get(size int) []byte {
	buf := mcache.Malloc(size + footerLen)
	binary.LittleEndian.PutUint64(buf[size:size+footerLen], footerMagic|uint64(uint32(size)))
	return buf[:size]
}

// Free returns buf to the pool. It is a silent no-op if buf was not
// obtained from Get (wrong length footer, bad magic, or insufficient
// capacity) — mirroring cache/mempool.Free's "safe regardless of
// input" contract, since a bad Free here must never corrupt the pool.
func Free(buf []byte) {
	size := len(buf)
	if cap(buf) < size+footerLen {
		return
	}
	full := buf[:size+footerLen : size+footerLen]
	footer := binary.LittleEndian.Uint64(full[size : size+footerLen])
	if footer&0xFFFFFFFF00000000 != footerMagic {
		return
	}
	if uint32(footer) != uint32(size) {
		return
	}
	mcache.Free(full)
}
