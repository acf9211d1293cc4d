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

package backpressure

// EventKind mirrors the index event's event_kind field.
type EventKind uint32

const (
	EventCall      EventKind = 1
	EventReturn    EventKind = 2
	EventException EventKind = 3
)

// MarkPolicy decides whether writing a detail-bearing event should arm
// a lane's marked_event_seen flight-recorder trigger flag. The original
// implementation calls ring_pool_mark_detail unconditionally from every
// detail write site, which AlwaysMark reproduces; ExceptionOnlyMark is
// an alternative for deployments that only want a recording trigger on
// the interesting case.
type MarkPolicy interface {
	ShouldMark(kind EventKind, callDepth uint32) bool
}

// AlwaysMark arms the trigger on every detail-bearing event.
type AlwaysMark struct{}

// ShouldMark always returns true.
func (AlwaysMark) ShouldMark(EventKind, uint32) bool { return true }

// ExceptionOnlyMark arms the trigger only for EXCEPTION events.
type ExceptionOnlyMark struct{}

// ShouldMark returns true only for EventException.
func (ExceptionOnlyMark) ShouldMark(kind EventKind, _ uint32) bool {
	return kind == EventException
}

// DefaultMarkPolicy is AlwaysMark, matching the original's unconditional
// call site.
var DefaultMarkPolicy MarkPolicy = AlwaysMark{}
