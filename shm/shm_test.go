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

package shm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateAndBase(t *testing.T) {
	d := NewDirectory(nil)
	region, err := d.Create("index_ring_0", 4096)
	require.NoError(t, err)
	require.Len(t, region, 4096)

	got, err := d.Base(0)
	require.NoError(t, err)
	require.Equal(t, region, got)

	got, err = d.BaseByName("index_ring_0")
	require.NoError(t, err)
	require.Equal(t, region, got)
}

func TestCreateRejectsOversizedName(t *testing.T) {
	d := NewDirectory(nil)
	long := make([]byte, MaxNameLen+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err := d.Create(string(long), 1024)
	require.ErrorIs(t, err, ErrNameTooLong)
}

func TestCreateRejectsBeyondCapacity(t *testing.T) {
	d := NewDirectory(nil)
	for i := 0; i < MaxEntries; i++ {
		_, err := d.Create(entryName(i), 64)
		require.NoError(t, err)
	}
	_, err := d.Create("overflow", 64)
	require.ErrorIs(t, err, ErrDirectoryFull)
}

func TestBaseNotFoundForUnmappedIndex(t *testing.T) {
	d := NewDirectory(nil)
	_, err := d.Base(0)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDataVisibleAcrossSeparateDirectoriesSharingAnArena(t *testing.T) {
	arena := ProcessArena{}
	writer := NewDirectory(arena)
	region, err := writer.Create("shared_region", 16)
	require.NoError(t, err)
	copy(region, "hello, tracer!!!")

	reader := NewDirectory(arena)
	// Simulate the reader knowing the entry list (e.g. via a control
	// block) without having created it itself.
	reader.entries = append(reader.entries, Entry{Name: "shared_region", Size: 16})
	ok, err := reader.MapLocalBases()
	require.NoError(t, err)
	require.True(t, ok)

	got, err := reader.Base(0)
	require.NoError(t, err)
	require.Equal(t, []byte("hello, tracer!!!"), got)
}

func TestClearLocalBasesForgetsMappings(t *testing.T) {
	d := NewDirectory(nil)
	_, err := d.Create("x", 8)
	require.NoError(t, err)
	d.ClearLocalBases()
	_, err = d.Base(0)
	require.ErrorIs(t, err, ErrNotFound)
	// entry list itself is untouched.
	require.Equal(t, uint32(1), d.Count())
}

func entryName(i int) string {
	return string(rune('a' + i))
}

func TestRegionAllocatorSubAllocatesFromOneBase(t *testing.T) {
	d := NewDirectory(nil)
	allocator, err := d.CreateRegionAllocator("thread_rings", 64)
	require.NoError(t, err)
	require.Equal(t, uint64(64), allocator.Size())
	require.Equal(t, uint64(0), allocator.Used())

	first := allocator.Allocate(16)
	require.Len(t, first, 16)
	second := allocator.Allocate(32)
	require.Len(t, second, 32)

	require.Equal(t, uint64(48), allocator.Used())
	require.Equal(t, uint64(16), allocator.Remaining())

	// Both allocations are sub-slices of the single directory entry, not
	// independent backing arrays.
	base := allocator.Base()
	require.Same(t, &base[0], &first[0])
	require.Same(t, &base[16], &second[0])

	require.Equal(t, uint64(0), allocator.OffsetOf(first))
	require.Equal(t, uint64(16), allocator.OffsetOf(second))
}

func TestRegionAllocatorExhaustionReturnsNil(t *testing.T) {
	allocator := NewRegionAllocatorOverBase(make([]byte, 8))
	require.Len(t, allocator.Allocate(8), 8)
	require.Nil(t, allocator.Allocate(1))
}

func TestRegionAllocatorOffsetOfPanicsOnForeignSlice(t *testing.T) {
	allocator := NewRegionAllocatorOverBase(make([]byte, 8))
	foreign := make([]byte, 4)
	require.Panics(t, func() { allocator.OffsetOf(foreign) })
}

func TestCreateRegionAllocatorRespectsDirectoryCapacity(t *testing.T) {
	d := NewDirectory(nil)
	_, err := d.CreateRegionAllocator("thread_rings", 128)
	require.NoError(t, err)
	// A single named region backs every ring regardless of thread or ring
	// count, so this stays well clear of MaxEntries.
	require.Equal(t, uint32(1), d.Count())
}
