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
	"fmt"
	"os"
	"path/filepath"

	"github.com/cloudwego/ebpftrace/bufiox"
)

// IndexWriter writes the fixed 32-byte index event stream for one
// thread: a 64-byte placeholder header, then events, then the
// authoritative 64-byte footer, with the header rewritten in place at
// Finalize once final counts and time range are known.
type IndexWriter struct {
	file   *os.File
	buf    bufiox.Writer
	header IndexHeader

	eventCount  uint64
	timeStartNS uint64
	timeEndNS   uint64
}

// NewIndexWriter creates (recursively, mode 0755) the parent directory
// of path, opens path for writing, and writes the placeholder header.
func NewIndexWriter(path string, threadID uint32, clockType uint8) (*IndexWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("atf: create index dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("atf: open index file: %w", err)
	}

	w := &IndexWriter{
		file: f,
		buf:  bufiox.NewDefaultWriter(f),
		header: IndexHeader{
			Arch:         CurrentArch(),
			OS:           CurrentOS(),
			ThreadID:     threadID,
			ClockType:    clockType,
			EventSize:    IndexEventSize,
			EventsOffset: IndexHeaderSize,
			FooterOffset: IndexHeaderSize,
		},
	}

	headerBuf, err := w.buf.Malloc(IndexHeaderSize)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("atf: malloc index header: %w", err)
	}
	encodeIndexHeader(w.header, headerBuf)
	if err := w.buf.Flush(); err != nil {
		f.Close()
		return nil, fmt.Errorf("atf: write index header: %w", err)
	}
	return w, nil
}

// WriteEvent appends one index event and updates the running time
// range. The write lands in the buffered writer's scratch space;
// callers that process events in batches (the drain's normal mode)
// should call Flush once per batch rather than after every event.
func (w *IndexWriter) WriteEvent(e IndexEvent) error {
	if w.eventCount == 0 {
		w.timeStartNS = e.TimestampNS
	}
	w.timeEndNS = e.TimestampNS

	buf, err := w.buf.Malloc(IndexEventSize)
	if err != nil {
		return fmt.Errorf("atf: malloc index event: %w", err)
	}
	encodeIndexEvent(e, buf)
	w.eventCount++
	return nil
}

// Flush pushes any buffered events to the underlying file.
func (w *IndexWriter) Flush() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("atf: flush index events: %w", err)
	}
	return nil
}

// SetHasDetailFile sets the HAS_DETAIL_FILE bit in the in-memory
// header; the updated header is only persisted at Finalize.
func (w *IndexWriter) SetHasDetailFile() {
	w.header.Flags |= IndexFlagHasDetailFile
}

// EventCount returns the number of events written so far.
func (w *IndexWriter) EventCount() uint64 { return w.eventCount }

// Finalize flushes pending events, writes the footer, and rewrites
// the header in place with final counts and time range.
func (w *IndexWriter) Finalize() error {
	if err := w.Flush(); err != nil {
		return err
	}

	footerOffset, err := w.file.Seek(0, os.SEEK_CUR)
	if err != nil {
		return fmt.Errorf("atf: tell index footer offset: %w", err)
	}

	footer := IndexFooter{
		EventCount:   w.eventCount,
		TimeStartNS:  w.timeStartNS,
		TimeEndNS:    w.timeEndNS,
		BytesWritten: w.eventCount * IndexEventSize,
	}
	footerBuf := make([]byte, IndexFooterSize)
	encodeIndexFooter(footer, footerBuf)
	if _, err := w.file.Write(footerBuf); err != nil {
		return fmt.Errorf("atf: write index footer: %w", err)
	}

	w.header.EventCount = uint32(w.eventCount)
	w.header.FooterOffset = uint64(footerOffset)
	w.header.TimeStartNS = w.timeStartNS
	w.header.TimeEndNS = w.timeEndNS

	if _, err := w.file.Seek(0, os.SEEK_SET); err != nil {
		return fmt.Errorf("atf: seek index header: %w", err)
	}
	headerBuf := make([]byte, IndexHeaderSize)
	encodeIndexHeader(w.header, headerBuf)
	if _, err := w.file.Write(headerBuf); err != nil {
		return fmt.Errorf("atf: rewrite index header: %w", err)
	}
	return w.file.Sync()
}

// Close releases the underlying file handle without finalizing.
func (w *IndexWriter) Close() error {
	return w.file.Close()
}
