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

// Package config builds a TracerConfig from functional Options, then
// layers environment-variable overrides on top at build time — never
// read again from the hot path afterward.
package config

import (
	"os"
	"strconv"

	"github.com/cloudwego/ebpftrace/backpressure"
	"github.com/cloudwego/ebpftrace/exclude"
	"github.com/cloudwego/ebpftrace/hook"
)

// TracerConfig holds this module's tunables: registry/ring sizing,
// workspace location, and the feature toggles read from the environment
// at startup. RegistryCapacity and MarkPolicy are consumed when an agent
// session is built; the per-lane ring counts and queue depths are only
// stored here, since package registry sizes every lane from its own
// constants and does not read them.
type TracerConfig struct {
	RegistryCapacity     uint32
	RingsPerIndexLane    uint32
	RingsPerDetailLane   uint32
	QueueDepthIndexLane  uint32
	QueueDepthDetailLane uint32

	HostPID   int
	SessionID string

	HookSwift    bool
	WorkspaceRoot string
	BuildProfile  string

	MarkPolicy backpressure.MarkPolicy
}

// Option mutates a TracerConfig under construction.
type Option func(*TracerConfig)

// DefaultConfig returns the sizing defaults spec.md §4.C names,
// with environment overrides applied on top.
func DefaultConfig(opts ...Option) *TracerConfig {
	c := &TracerConfig{
		RegistryCapacity:     64,
		RingsPerIndexLane:    4,
		RingsPerDetailLane:   2,
		QueueDepthIndexLane:  1024,
		QueueDepthDetailLane: 256,
		HookSwift:            false, // Apple-platform default is "skip"; see applyEnv.
		MarkPolicy:           backpressure.DefaultMarkPolicy,
	}
	for _, opt := range opts {
		opt(c)
	}
	applyEnv(c)
	return c
}

// WithRegistryCapacity overrides the thread registry's fixed slot
// count.
func WithRegistryCapacity(n uint32) Option {
	return func(c *TracerConfig) { c.RegistryCapacity = n }
}

// WithRingsPerIndexLane sets RingsPerIndexLane (see TracerConfig).
func WithRingsPerIndexLane(n uint32) Option {
	return func(c *TracerConfig) { c.RingsPerIndexLane = n }
}

// WithRingsPerDetailLane sets RingsPerDetailLane (see TracerConfig).
func WithRingsPerDetailLane(n uint32) Option {
	return func(c *TracerConfig) { c.RingsPerDetailLane = n }
}

// WithQueueDepths sets both lanes' submit/free queue depth fields (see
// TracerConfig).
func WithQueueDepths(index, detail uint32) Option {
	return func(c *TracerConfig) {
		c.QueueDepthIndexLane = index
		c.QueueDepthDetailLane = detail
	}
}

// WithMarkPolicy overrides the detail lane's flight-recorder trigger
// policy (default backpressure.AlwaysMark).
func WithMarkPolicy(p backpressure.MarkPolicy) Option {
	return func(c *TracerConfig) { c.MarkPolicy = p }
}

// WithHookSwift overrides whether Swift-mangled/runtime symbols are
// hooked rather than skipped; ADA_HOOK_SWIFT, if set, overrides this
// in turn at applyEnv time.
func WithHookSwift(v bool) Option {
	return func(c *TracerConfig) { c.HookSwift = v }
}

// SymbolFilter builds a hook.SymbolFilter from this config's HookSwift
// toggle (set via WithHookSwift or the ADA_HOOK_SWIFT environment
// override) and excludeSet, the point where HookSwift actually reaches
// a hook-attach-time filtering decision. excludeSet may be nil.
func (c *TracerConfig) SymbolFilter(excludeSet *exclude.Set) hook.SymbolFilter {
	return hook.SymbolFilter{HookSwift: c.HookSwift, ExcludeSet: excludeSet}
}

// applyEnv reads the spec's environment overrides once, at config
// build time: ADA_SHM_HOST_PID, ADA_SHM_SESSION_ID, ADA_HOOK_SWIFT,
// ADA_WORKSPACE_ROOT, ADA_BUILD_PROFILE.
func applyEnv(c *TracerConfig) {
	if v := os.Getenv("ADA_SHM_HOST_PID"); v != "" {
		if pid, err := strconv.Atoi(v); err == nil {
			c.HostPID = pid
		}
	} else {
		c.HostPID = os.Getpid()
	}

	if v := os.Getenv("ADA_SHM_SESSION_ID"); v != "" {
		c.SessionID = v
	}

	if v := os.Getenv("ADA_HOOK_SWIFT"); v != "" {
		c.HookSwift = isTruthy(v)
	}

	if v := os.Getenv("ADA_WORKSPACE_ROOT"); v != "" {
		c.WorkspaceRoot = v
	}
	if v := os.Getenv("ADA_BUILD_PROFILE"); v != "" {
		c.BuildProfile = v
	}
}

func isTruthy(v string) bool {
	switch v {
	case "1", "true", "TRUE", "True", "yes", "on":
		return true
	default:
		return false
	}
}
