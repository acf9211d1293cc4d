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

// RateResult is the outcome of one sliding-window rate sample.
type RateResult struct {
	EventsPerSecond  float64
	BytesPerSecond   float64
	WindowDurationNS uint64
	WindowEvents     uint64
	WindowBytes      uint64
}

func oldestIndex(m *ThreadMetrics) uint32 {
	if m.sampleCount == 0 {
		return 0
	}
	return (m.sampleHead + RateHistory - m.sampleCount) % RateHistory
}

// sampleRate inserts one (timestamp, cumulative events, cumulative
// bytes) observation into the 8-sample, 100ms sliding window and
// returns the resulting rates. It is the Go equivalent of
// rate_calculator_sample: evict samples older than the window, then
// derive a rate from the delta between the newest and oldest surviving
// samples.
func sampleRate(m *ThreadMetrics, timestampNS, events, bytes uint64) RateResult {
	var result RateResult

	head := m.sampleHead
	count := m.sampleCount

	m.samples[head%RateHistory] = rateSample{timestampNS: timestampNS, events: events, bytes: bytes}
	head = (head + 1) % RateHistory
	if count < RateHistory {
		count++
	}
	m.sampleHead = head
	m.sampleCount = count

	var windowFloor uint64
	if timestampNS > WindowNS {
		windowFloor = timestampNS - WindowNS
	}

	for count > 1 {
		idx := oldestIndex(m)
		candidate := m.samples[idx%RateHistory]
		if candidate.timestampNS >= windowFloor {
			break
		}
		count--
		m.sampleCount = count
	}

	m.windowDurationNS = 0
	m.windowEvents = 0
	m.windowBytes = 0
	m.eventsPerSecond = 0
	m.bytesPerSecond = 0

	if count == 0 {
		return result
	}

	newestIdx := (head + RateHistory - 1) % RateHistory
	newest := m.samples[newestIdx%RateHistory]
	oldest := m.samples[oldestIndex(m)%RateHistory]

	if newest.timestampNS <= oldest.timestampNS {
		return result
	}

	deltaNS := newest.timestampNS - oldest.timestampNS
	deltaEvents := newest.events - oldest.events
	deltaBytes := newest.bytes - oldest.bytes

	m.windowDurationNS = deltaNS
	m.windowEvents = deltaEvents
	m.windowBytes = deltaBytes

	if deltaNS == 0 {
		return result
	}

	const scale = 1e9 // ns -> seconds
	if deltaEvents > 0 {
		m.eventsPerSecond = float64(deltaEvents) * scale / float64(deltaNS)
	}
	if deltaBytes > 0 {
		m.bytesPerSecond = float64(deltaBytes) * scale / float64(deltaNS)
	}

	result.EventsPerSecond = m.eventsPerSecond
	result.BytesPerSecond = m.bytesPerSecond
	result.WindowDurationNS = deltaNS
	result.WindowEvents = deltaEvents
	result.WindowBytes = deltaBytes
	return result
}
