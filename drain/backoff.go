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

package drain

import "time"

// MinBackoff and MaxBackoff bound BackoffTicker: it starts (and resets)
// at MinBackoff and doubles on every empty pass up to MaxBackoff, the
// adaptive scheduling policy SPEC_FULL.md resolves the drain interval
// Open Question with — busy sessions get drained close to as fast as
// events arrive, idle ones don't spin a goroutine at 1kHz for nothing.
const (
	MinBackoff = time.Millisecond
	MaxBackoff = 100 * time.Millisecond
)

// BackoffTicker tracks the drain loop's current sleep interval. It is
// unit-tested in isolation from the drain loop itself: nothing about
// its doubling/reset behavior depends on rings, registries, or files.
type BackoffTicker struct {
	current time.Duration
}

// NewBackoffTicker returns a ticker starting at MinBackoff.
func NewBackoffTicker() *BackoffTicker {
	return &BackoffTicker{current: MinBackoff}
}

// Interval returns the duration the drain loop should sleep for before
// its next pass.
func (t *BackoffTicker) Interval() time.Duration { return t.current }

// OnEmptyPass doubles the interval (capped at MaxBackoff), called after
// a pass that drained nothing.
func (t *BackoffTicker) OnEmptyPass() {
	t.current *= 2
	if t.current > MaxBackoff {
		t.current = MaxBackoff
	}
}

// OnDrainedPass resets the interval to MinBackoff, called after a pass
// that drained at least one event.
func (t *BackoffTicker) OnDrainedPass() {
	t.current = MinBackoff
}
