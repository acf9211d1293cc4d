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
	"path/filepath"
)

// ThreadWriter coordinates one thread's index and detail event
// streams: it always owns an IndexWriter, and lazily creates a
// DetailWriter the first time WriteEvent is called with a non-empty
// detail payload.
type ThreadWriter struct {
	sessionDir string
	threadID   uint32
	clockType  uint8

	index  *IndexWriter
	detail *DetailWriter

	counters ThreadCounters
}

// NewThreadWriter creates the thread's index writer immediately at
// sessionDir/thread_<threadID>/index.atf; the detail file is created
// lazily, only if a detail-bearing event is ever written.
func NewThreadWriter(sessionDir string, threadID uint32, clockType uint8) (*ThreadWriter, error) {
	indexPath := filepath.Join(sessionDir, fmt.Sprintf("thread_%d", threadID), "index.atf")
	idx, err := NewIndexWriter(indexPath, threadID, clockType)
	if err != nil {
		return nil, err
	}

	w := &ThreadWriter{
		sessionDir: sessionDir,
		threadID:   threadID,
		clockType:  clockType,
		index:      idx,
	}
	w.counters.Init()
	return w, nil
}

// WriteEvent records one traced call/return/exception. detailPayload
// may be nil or empty, in which case only an index event is written
// and the returned index sequence carries no detail link. On any
// underlying write failure it returns (NoDetailSeq, err).
func (w *ThreadWriter) WriteEvent(timestampNS uint64, functionID uint64, eventKind uint32, callDepth uint32, detailPayload []byte) (uint32, error) {
	hasDetail := len(detailPayload) > 0
	idxSeq, detSeq := w.counters.ReserveSequences(hasDetail)

	idxEvent := IndexEvent{
		TimestampNS: timestampNS,
		FunctionID:  functionID,
		ThreadID:    w.threadID,
		EventKind:   eventKind,
		CallDepth:   callDepth,
		DetailSeq:   detSeq,
	}
	if err := w.index.WriteEvent(idxEvent); err != nil {
		return NoDetailSeq, err
	}

	if !hasDetail {
		return idxSeq, nil
	}

	if w.detail == nil {
		detailPath := filepath.Join(w.sessionDir, fmt.Sprintf("thread_%d", w.threadID), "detail.atf")
		d, err := NewDetailWriter(detailPath, w.threadID)
		if err != nil {
			return NoDetailSeq, err
		}
		w.detail = d
		w.index.SetHasDetailFile()
	}

	eventType := DetailEventTypeFor(eventKind)
	if err := w.detail.WriteEvent(idxSeq, timestampNS, eventType, detailPayload); err != nil {
		return NoDetailSeq, err
	}
	return idxSeq, nil
}

// Finalize finalizes the index writer and, if one was created, the
// detail writer. Both are attempted even if the first fails, matching
// the reference writer's best-effort finalize.
func (w *ThreadWriter) Finalize() error {
	var firstErr error
	if err := w.index.Finalize(); err != nil {
		firstErr = err
	}
	if w.detail != nil {
		if err := w.detail.Finalize(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close releases both underlying file handles without finalizing.
func (w *ThreadWriter) Close() error {
	var firstErr error
	if err := w.index.Close(); err != nil {
		firstErr = err
	}
	if w.detail != nil {
		if err := w.detail.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
