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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRing(t *testing.T, capSlots, slotSize uint32) *Ring {
	t.Helper()
	mem := make([]byte, HeaderSize+uint64(capSlots)*uint64(slotSize))
	r, err := Init(mem, capSlots, slotSize)
	require.NoError(t, err)
	return r
}

func TestBytesReturnsBackingMemory(t *testing.T) {
	mem := make([]byte, HeaderSize+64)
	r, err := Init(mem, 8, 8)
	require.NoError(t, err)
	require.Same(t, &mem[0], &r.Bytes()[0])
}

func TestInitRejectsNonPow2Capacity(t *testing.T) {
	mem := make([]byte, 1024)
	_, err := Init(mem, 3, 8)
	require.ErrorIs(t, err, ErrCapacityNotPow2)
}

func TestPushAcceptsExactlyCapacityMinusOne(t *testing.T) {
	const capSlots = 8
	r := newTestRing(t, capSlots, 4)
	slot := make([]byte, 4)
	ok := 0
	for i := 0; i < capSlots*3; i++ {
		if r.Push(slot) {
			ok++
		}
	}
	require.Equal(t, capSlots-1, ok)
	require.Equal(t, uint32(capSlots*3-(capSlots-1)), r.OverflowCount())
}

func TestPushPopRoundTrip(t *testing.T) {
	r := newTestRing(t, 8, 4)
	in := []byte{1, 2, 3, 4}
	require.True(t, r.Push(in))
	out := make([]byte, 4)
	require.True(t, r.Pop(out))
	require.Equal(t, in, out)
	require.True(t, r.Empty())
}

func TestDropOldestOnEmptyReturnsFalse(t *testing.T) {
	r := newTestRing(t, 8, 4)
	require.False(t, r.DropOldest())
}

func TestDropOldestAdvancesReadPos(t *testing.T) {
	r := newTestRing(t, 8, 4)
	require.True(t, r.Push([]byte{9, 9, 9, 9}))
	require.True(t, r.DropOldest())
	require.True(t, r.Empty())
}

func TestAttachRejectsBadMagic(t *testing.T) {
	mem := make([]byte, HeaderSize+64)
	_, err := Attach(mem, len(mem), 4)
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestAttachRoundTrip(t *testing.T) {
	r := newTestRing(t, 8, 4)
	require.True(t, r.Push([]byte{5, 6, 7, 8}))

	attached, err := Attach(r.mem, len(r.mem), 4)
	require.NoError(t, err)
	require.False(t, attached.Empty())
	out := make([]byte, 4)
	require.True(t, attached.Pop(out))
	require.Equal(t, []byte{5, 6, 7, 8}, out)
}
