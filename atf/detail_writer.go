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

// DetailWriter writes the variable-length detail event stream for one
// thread, created lazily on the first detail-bearing event.
type DetailWriter struct {
	file   *os.File
	buf    bufiox.Writer
	header DetailHeader

	eventCount    uint64
	bytesWritten  uint64
	timeStartNS   uint64
	timeEndNS     uint64
	indexSeqStart uint64
	indexSeqEnd   uint64
}

// NewDetailWriter creates the parent directory, opens path, and
// writes the placeholder detail header.
func NewDetailWriter(path string, threadID uint32) (*DetailWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("atf: create detail dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("atf: open detail file: %w", err)
	}

	w := &DetailWriter{
		file: f,
		buf:  bufiox.NewDefaultWriter(f),
		header: DetailHeader{
			Arch:         CurrentArch(),
			OS:           CurrentOS(),
			ThreadID:     threadID,
			EventsOffset: DetailHeaderSize,
		},
		indexSeqStart: uint64(NoDetailSeq),
	}

	headerBuf, err := w.buf.Malloc(DetailHeaderSize)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("atf: malloc detail header: %w", err)
	}
	encodeDetailHeader(w.header, headerBuf)
	if err := w.buf.Flush(); err != nil {
		f.Close()
		return nil, fmt.Errorf("atf: write detail header: %w", err)
	}
	return w, nil
}

// WriteEvent appends one detail event: a 24-byte header plus payload.
func (w *DetailWriter) WriteEvent(indexSeq uint32, timestamp uint64, eventType uint16, payload []byte) error {
	header := DetailEventHeader{
		TotalLength: uint32(DetailEventHeaderSize + len(payload)),
		EventType:   eventType,
		IndexSeq:    indexSeq,
		ThreadID:    w.header.ThreadID,
		Timestamp:   timestamp,
	}

	if w.eventCount == 0 {
		w.timeStartNS = timestamp
	}
	w.timeEndNS = timestamp

	if uint64(indexSeq) < w.indexSeqStart {
		w.indexSeqStart = uint64(indexSeq)
	}
	if uint64(indexSeq) > w.indexSeqEnd {
		w.indexSeqEnd = uint64(indexSeq)
	}

	buf, err := w.buf.Malloc(DetailEventHeaderSize + len(payload))
	if err != nil {
		return fmt.Errorf("atf: malloc detail event: %w", err)
	}
	encodeDetailEventHeader(header, buf[:DetailEventHeaderSize])
	copy(buf[DetailEventHeaderSize:], payload)

	w.eventCount++
	w.bytesWritten += uint64(header.TotalLength)
	return nil
}

// Flush pushes any buffered events to the underlying file.
func (w *DetailWriter) Flush() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("atf: flush detail events: %w", err)
	}
	return nil
}

// EventCount returns the number of detail events written so far.
func (w *DetailWriter) EventCount() uint64 { return w.eventCount }

// Finalize flushes pending events, writes the footer, and rewrites
// the header in place with final counts, byte length, and the
// covered index-sequence range.
func (w *DetailWriter) Finalize() error {
	if err := w.Flush(); err != nil {
		return err
	}

	footer := DetailFooter{
		EventCount:  w.eventCount,
		BytesLength: w.bytesWritten,
		TimeStartNS: w.timeStartNS,
		TimeEndNS:   w.timeEndNS,
	}
	footerBuf := make([]byte, DetailFooterSize)
	encodeDetailFooter(footer, footerBuf)
	if _, err := w.file.Write(footerBuf); err != nil {
		return fmt.Errorf("atf: write detail footer: %w", err)
	}

	w.header.EventCount = w.eventCount
	w.header.BytesLength = w.bytesWritten
	w.header.IndexSeqStart = w.indexSeqStart
	w.header.IndexSeqEnd = w.indexSeqEnd

	if _, err := w.file.Seek(0, os.SEEK_SET); err != nil {
		return fmt.Errorf("atf: seek detail header: %w", err)
	}
	headerBuf := make([]byte, DetailHeaderSize)
	encodeDetailHeader(w.header, headerBuf)
	if _, err := w.file.Write(headerBuf); err != nil {
		return fmt.Errorf("atf: rewrite detail header: %w", err)
	}
	return w.file.Sync()
}

// Close releases the underlying file handle without finalizing.
func (w *DetailWriter) Close() error {
	return w.file.Close()
}
