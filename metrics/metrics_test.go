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

package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordEventWrittenAccumulates(t *testing.T) {
	m := NewThreadMetrics(42, 0)
	m.RecordEventWritten(32)
	m.RecordEventWritten(32)
	snap := Capture(m, 1)
	require.Equal(t, uint64(2), snap.EventsWritten)
	require.Equal(t, uint64(64), snap.BytesWritten)
}

func TestObserveQueueDepthKeepsMax(t *testing.T) {
	m := NewThreadMetrics(1, 0)
	m.ObserveQueueDepth(5)
	m.ObserveQueueDepth(2)
	m.ObserveQueueDepth(9)
	snap := Capture(m, 1)
	require.Equal(t, uint64(9), snap.MaxQueueDepth)
}

func TestSwapBeginEndRecordsDuration(t *testing.T) {
	m := NewThreadMetrics(1, 0)
	tok := SwapBegin(m, 1000)
	SwapEnd(&tok, 1500, 4)
	snap := Capture(m, 1)
	require.Equal(t, uint64(1), snap.SwapCount)
	require.Equal(t, uint64(500), snap.AvgSwapDurationNS)
	require.Equal(t, uint32(4), snap.RingsInRotation)
}

func TestSwapEndClampsNegativeDuration(t *testing.T) {
	m := NewThreadMetrics(1, 0)
	tok := SwapBegin(m, 1000)
	SwapEnd(&tok, 500, 1) // end before start: clock noise
	snap := Capture(m, 1)
	require.Equal(t, uint64(0), snap.AvgSwapDurationNS)
}

func TestUpdateRateZeroOnSingleSample(t *testing.T) {
	m := NewThreadMetrics(1, 0)
	result := m.UpdateRate(1_000_000, 100, 1000)
	require.Equal(t, 0.0, result.EventsPerSecond)
}

func TestUpdateRateComputesWindowedRate(t *testing.T) {
	m := NewThreadMetrics(1, 0)
	m.UpdateRate(0, 0, 0)
	result := m.UpdateRate(50_000_000, 500, 5000) // 50ms later, 500 events
	require.InDelta(t, 10000.0, result.EventsPerSecond, 0.001)
	require.InDelta(t, 100000.0, result.BytesPerSecond, 0.001)
}

func TestUpdateRateEvictsOutOfWindowSamples(t *testing.T) {
	m := NewThreadMetrics(1, 0)
	m.UpdateRate(0, 0, 0)
	// far beyond the 100ms window: oldest sample should be evicted,
	// leaving only the single newest sample (rate computed over zero
	// surviving delta -> zero, not a stale huge rate).
	result := m.UpdateRate(10_000_000_000, 1000, 10000)
	require.Equal(t, 0.0, result.EventsPerSecond)
}

type fakeSource struct {
	caps    uint32
	metrics map[uint32]*ThreadMetrics
}

func (f *fakeSource) Capacity() uint32 { return f.caps }
func (f *fakeSource) ThreadAt(slot uint32) (*ThreadMetrics, uint32, uint32, bool) {
	tm, ok := f.metrics[slot]
	if !ok {
		return nil, 0, 0, false
	}
	return tm, 1, 0, true
}

func TestGlobalCollectGatesOnInterval(t *testing.T) {
	src := &fakeSource{caps: 4, metrics: map[uint32]*ThreadMetrics{
		0: NewThreadMetrics(100, 0),
	}}
	g := NewGlobal(MaxThreads)
	require.True(t, g.Collect(src, 1))
	require.False(t, g.Collect(src, 2)) // within default 100ms interval
	require.True(t, g.Collect(src, 1+WindowNS))
}

func TestGlobalCollectAccumulatesTotals(t *testing.T) {
	tm := NewThreadMetrics(7, 0)
	tm.RecordEventWritten(10)
	tm.RecordEventDropped()
	src := &fakeSource{caps: 2, metrics: map[uint32]*ThreadMetrics{0: tm}}
	g := NewGlobal(MaxThreads)
	require.True(t, g.Collect(src, 1))
	require.Equal(t, 1, g.SnapshotCount())
	require.Equal(t, uint64(1), g.Totals().TotalEventsWritten)
	require.Equal(t, uint64(1), g.Totals().TotalEventsDropped)
}
