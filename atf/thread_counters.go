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

package atf

// ThreadCounters reserves the bidirectional sequence numbers that
// link an Index Event to its optional Detail Event. It is owned by a
// single ThreadWriter and is never shared across threads, so its
// counters need no synchronization.
type ThreadCounters struct {
	indexCount  uint32
	detailCount uint32
}

// Init resets both counters to zero.
func (tc *ThreadCounters) Init() {
	tc.indexCount = 0
	tc.detailCount = 0
}

// Reset is an alias for Init, matching the reference API's naming of
// the two identical operations.
func (tc *ThreadCounters) Reset() {
	tc.Init()
}

// ReserveSequences reserves the next index sequence (always) and,
// when detailEnabled, the next detail sequence. When detail is not
// enabled, detSeq is NoDetailSeq and the detail counter does not
// advance.
func (tc *ThreadCounters) ReserveSequences(detailEnabled bool) (idxSeq, detSeq uint32) {
	idxSeq = tc.indexCount
	tc.indexCount++

	if detailEnabled {
		detSeq = tc.detailCount
		tc.detailCount++
	} else {
		detSeq = NoDetailSeq
	}
	return idxSeq, detSeq
}
