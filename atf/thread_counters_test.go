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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReserveSequencesWithoutDetailNeverAdvancesDetailCounter(t *testing.T) {
	var tc ThreadCounters
	tc.Init()

	idx0, det0 := tc.ReserveSequences(false)
	idx1, det1 := tc.ReserveSequences(false)

	require.Equal(t, uint32(0), idx0)
	require.Equal(t, uint32(1), idx1)
	require.Equal(t, NoDetailSeq, det0)
	require.Equal(t, NoDetailSeq, det1)
}

func TestReserveSequencesWithDetailAdvancesBothByOne(t *testing.T) {
	var tc ThreadCounters
	tc.Init()

	idx0, det0 := tc.ReserveSequences(true)
	idx1, det1 := tc.ReserveSequences(true)

	require.Equal(t, uint32(0), idx0)
	require.Equal(t, uint32(1), idx1)
	require.Equal(t, uint32(0), det0)
	require.Equal(t, uint32(1), det1)
}

func TestReserveSequencesMixedDetailTracksIndependently(t *testing.T) {
	var tc ThreadCounters
	tc.Init()

	idx0, det0 := tc.ReserveSequences(true)  // event 0: detail
	idx1, det1 := tc.ReserveSequences(false) // event 1: no detail
	idx2, det2 := tc.ReserveSequences(true)  // event 2: detail

	require.Equal(t, []uint32{0, 1, 2}, []uint32{idx0, idx1, idx2})
	require.Equal(t, uint32(0), det0)
	require.Equal(t, NoDetailSeq, det1)
	require.Equal(t, uint32(1), det2)
}

func TestResetZeroesBothCounters(t *testing.T) {
	var tc ThreadCounters
	tc.Init()
	tc.ReserveSequences(true)
	tc.ReserveSequences(true)

	tc.Reset()
	idx, det := tc.ReserveSequences(true)
	require.Equal(t, uint32(0), idx)
	require.Equal(t, uint32(0), det)
}
