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
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func readIndexHeader(t *testing.T, buf []byte) (flags uint32, eventCount uint32, timeStart, timeEnd uint64) {
	t.Helper()
	require.GreaterOrEqual(t, len(buf), IndexHeaderSize)
	require.Equal(t, []byte(indexMagic[:]), buf[0:4])
	flags = binary.LittleEndian.Uint32(buf[8:12])
	eventCount = binary.LittleEndian.Uint32(buf[28:32])
	timeStart = binary.LittleEndian.Uint64(buf[48:56])
	timeEnd = binary.LittleEndian.Uint64(buf[56:64])
	return
}

func readIndexFooter(t *testing.T, buf []byte) (eventCount uint64) {
	t.Helper()
	require.Equal(t, []byte(indexFooterMagic[:]), buf[0:4])
	return binary.LittleEndian.Uint64(buf[8:16])
}

func readIndexEventAt(buf []byte, i int) IndexEvent {
	off := i * IndexEventSize
	e := buf[off : off+IndexEventSize]
	return IndexEvent{
		TimestampNS: binary.LittleEndian.Uint64(e[0:8]),
		FunctionID:  binary.LittleEndian.Uint64(e[8:16]),
		ThreadID:    binary.LittleEndian.Uint32(e[16:20]),
		EventKind:   binary.LittleEndian.Uint32(e[20:24]),
		CallDepth:   binary.LittleEndian.Uint32(e[24:28]),
		DetailSeq:   binary.LittleEndian.Uint32(e[28:32]),
	}
}

func readDetailHeader(t *testing.T, buf []byte) (eventCount, indexSeqStart, indexSeqEnd uint64) {
	t.Helper()
	require.Equal(t, []byte(detailMagic[:]), buf[0:4])
	eventCount = binary.LittleEndian.Uint64(buf[28:36])
	indexSeqStart = binary.LittleEndian.Uint64(buf[44:52])
	indexSeqEnd = binary.LittleEndian.Uint64(buf[52:60])
	return
}

func readDetailEventHeaderAt(buf []byte, off int) (DetailEventHeader, int) {
	h := DetailEventHeader{
		TotalLength: binary.LittleEndian.Uint32(buf[off : off+4]),
		EventType:   binary.LittleEndian.Uint16(buf[off+4 : off+6]),
		Flags:       binary.LittleEndian.Uint16(buf[off+6 : off+8]),
		IndexSeq:    binary.LittleEndian.Uint32(buf[off+8 : off+12]),
		ThreadID:    binary.LittleEndian.Uint32(buf[off+12 : off+16]),
		Timestamp:   binary.LittleEndian.Uint64(buf[off+16 : off+24]),
	}
	return h, off + int(h.TotalLength)
}

// Scenario 1: index-only, 100 events on thread 0.
func TestIndexOnly100EventsGolden(t *testing.T) {
	dir := t.TempDir()
	w, err := NewThreadWriter(dir, 0, ClockBoottime)
	require.NoError(t, err)

	const n = 100
	const delta = uint64(1000)
	for i := 0; i < n; i++ {
		_, err := w.WriteEvent(uint64(i)*delta, uint64(i+1), EventKindCall, 0, nil)
		require.NoError(t, err)
	}
	require.NoError(t, w.Finalize())
	require.NoError(t, w.Close())

	indexPath := filepath.Join(dir, "thread_0", "index.atf")
	data, err := os.ReadFile(indexPath)
	require.NoError(t, err)
	require.Len(t, data, IndexHeaderSize+n*IndexEventSize+IndexFooterSize)

	flags, eventCount, timeStart, timeEnd := readIndexHeader(t, data[:IndexHeaderSize])
	require.Equal(t, uint32(0), flags&IndexFlagHasDetailFile)
	require.Equal(t, uint32(n), eventCount)
	require.Equal(t, uint64(0), timeStart)
	require.Equal(t, uint64(99)*delta, timeEnd)

	footer := data[IndexHeaderSize+n*IndexEventSize:]
	require.Equal(t, uint64(n), readIndexFooter(t, footer))

	detailPath := filepath.Join(dir, "thread_0", "detail.atf")
	_, err = os.Stat(detailPath)
	require.True(t, os.IsNotExist(err))
}

// Scenario 2: event 0 with payload, event 1 without, event 2 with.
func TestMixedDetailGolden(t *testing.T) {
	dir := t.TempDir()
	w, err := NewThreadWriter(dir, 7, ClockBoottime)
	require.NoError(t, err)

	payload := []byte{0xAA, 0xBB, 0xCC}

	seq0, err := w.WriteEvent(100, 0xF00D, EventKindCall, 0, payload)
	require.NoError(t, err)
	seq1, err := w.WriteEvent(200, 0xF00E, EventKindCall, 1, nil)
	require.NoError(t, err)
	seq2, err := w.WriteEvent(300, 0xF00F, EventKindReturn, 0, payload)
	require.NoError(t, err)

	require.Equal(t, []uint32{0, 1, 2}, []uint32{seq0, seq1, seq2})

	require.NoError(t, w.Finalize())
	require.NoError(t, w.Close())

	indexData, err := os.ReadFile(filepath.Join(dir, "thread_7", "index.atf"))
	require.NoError(t, err)
	flags, eventCount, _, _ := readIndexHeader(t, indexData[:IndexHeaderSize])
	require.Equal(t, IndexFlagHasDetailFile, flags&IndexFlagHasDetailFile)
	require.Equal(t, uint32(3), eventCount)

	events := indexData[IndexHeaderSize : IndexHeaderSize+3*IndexEventSize]
	e0 := readIndexEventAt(events, 0)
	e1 := readIndexEventAt(events, 1)
	e2 := readIndexEventAt(events, 2)
	require.Equal(t, uint32(0), e0.DetailSeq)
	require.Equal(t, NoDetailSeq, e1.DetailSeq)
	require.Equal(t, uint32(1), e2.DetailSeq)

	detailData, err := os.ReadFile(filepath.Join(dir, "thread_7", "detail.atf"))
	require.NoError(t, err)
	eventCountDetail, seqStart, seqEnd := readDetailHeader(t, detailData[:DetailHeaderSize])
	require.Equal(t, uint64(2), eventCountDetail)
	require.Equal(t, uint64(0), seqStart)
	require.Equal(t, uint64(2), seqEnd)

	h0, next := readDetailEventHeaderAt(detailData, DetailHeaderSize)
	require.Equal(t, uint32(0), h0.IndexSeq)
	require.Equal(t, uint16(DetailEventFunctionCall), h0.EventType)

	h1, _ := readDetailEventHeaderAt(detailData, next)
	require.Equal(t, uint32(2), h1.IndexSeq)
	require.Equal(t, uint16(DetailEventFunctionReturn), h1.EventType)
}

func TestThreadWriterWithoutDetailNeverCreatesDetailFile(t *testing.T) {
	dir := t.TempDir()
	w, err := NewThreadWriter(dir, 1, ClockBoottime)
	require.NoError(t, err)

	_, err = w.WriteEvent(1, 1, EventKindCall, 0, nil)
	require.NoError(t, err)
	require.NoError(t, w.Finalize())

	_, err = os.Stat(filepath.Join(dir, "thread_1", "detail.atf"))
	require.True(t, os.IsNotExist(err))
}
