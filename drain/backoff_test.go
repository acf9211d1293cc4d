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

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffTickerStartsAtMin(t *testing.T) {
	b := NewBackoffTicker()
	require.Equal(t, MinBackoff, b.Interval())
}

func TestBackoffTickerDoublesOnEmptyPass(t *testing.T) {
	b := NewBackoffTicker()
	b.OnEmptyPass()
	require.Equal(t, 2*MinBackoff, b.Interval())
	b.OnEmptyPass()
	require.Equal(t, 4*MinBackoff, b.Interval())
}

func TestBackoffTickerCapsAtMax(t *testing.T) {
	b := NewBackoffTicker()
	for i := 0; i < 20; i++ {
		b.OnEmptyPass()
	}
	require.Equal(t, MaxBackoff, b.Interval())
}

func TestBackoffTickerResetsOnDrainedPass(t *testing.T) {
	b := NewBackoffTicker()
	b.OnEmptyPass()
	b.OnEmptyPass()
	require.Greater(t, b.Interval(), MinBackoff)

	b.OnDrainedPass()
	require.Equal(t, MinBackoff, b.Interval())
}

func TestBackoffTickerDrainedPassIsIdempotentAtMin(t *testing.T) {
	b := NewBackoffTicker()
	b.OnDrainedPass()
	b.OnDrainedPass()
	require.Equal(t, MinBackoff, b.Interval())
	require.Equal(t, time.Millisecond, b.Interval())
}
