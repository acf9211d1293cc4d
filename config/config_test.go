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

package config

import (
	"testing"

	"github.com/cloudwego/ebpftrace/backpressure"
	"github.com/cloudwego/ebpftrace/exclude"
	"github.com/cloudwego/ebpftrace/hook"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigSizing(t *testing.T) {
	c := DefaultConfig()
	require.Equal(t, uint32(64), c.RegistryCapacity)
	require.Equal(t, uint32(4), c.RingsPerIndexLane)
	require.Equal(t, uint32(2), c.RingsPerDetailLane)
	require.Equal(t, uint32(1024), c.QueueDepthIndexLane)
	require.Equal(t, uint32(256), c.QueueDepthDetailLane)
	require.Equal(t, backpressure.DefaultMarkPolicy, c.MarkPolicy)
}

func TestOptionsOverrideDefaults(t *testing.T) {
	c := DefaultConfig(
		WithRegistryCapacity(128),
		WithRingsPerIndexLane(8),
		WithQueueDepths(2048, 512),
		WithMarkPolicy(backpressure.ExceptionOnlyMark{}),
	)
	require.Equal(t, uint32(128), c.RegistryCapacity)
	require.Equal(t, uint32(8), c.RingsPerIndexLane)
	require.Equal(t, uint32(2048), c.QueueDepthIndexLane)
	require.Equal(t, uint32(512), c.QueueDepthDetailLane)
	require.Equal(t, backpressure.ExceptionOnlyMark{}, c.MarkPolicy)
}

func TestEnvOverridesHostPIDAndSessionID(t *testing.T) {
	t.Setenv("ADA_SHM_HOST_PID", "4242")
	t.Setenv("ADA_SHM_SESSION_ID", "deadbeef")

	c := DefaultConfig()
	require.Equal(t, 4242, c.HostPID)
	require.Equal(t, "deadbeef", c.SessionID)
}

func TestEnvOverridesHookSwiftTruthy(t *testing.T) {
	t.Setenv("ADA_HOOK_SWIFT", "1")
	c := DefaultConfig()
	require.True(t, c.HookSwift)
}

func TestEnvOverridesWorkspaceAndProfile(t *testing.T) {
	t.Setenv("ADA_WORKSPACE_ROOT", "/tmp/workspace")
	t.Setenv("ADA_BUILD_PROFILE", "debug")
	c := DefaultConfig()
	require.Equal(t, "/tmp/workspace", c.WorkspaceRoot)
	require.Equal(t, "debug", c.BuildProfile)
}

func TestWithHookSwiftOption(t *testing.T) {
	c := DefaultConfig(WithHookSwift(true))
	require.True(t, c.HookSwift)
}

func TestSymbolFilterReflectsHookSwift(t *testing.T) {
	c := DefaultConfig(WithHookSwift(true))
	f := c.SymbolFilter(nil)
	require.Equal(t, hook.SymbolFilter{HookSwift: true}, f)
	require.False(t, f.ShouldExclude("swift_allocObject", ""))
}

func TestSymbolFilterWiresExcludeSet(t *testing.T) {
	c := DefaultConfig()
	set := exclude.New(0)
	set.Add("malloc")
	f := c.SymbolFilter(set)
	require.True(t, f.ShouldExclude("malloc", ""))
}
