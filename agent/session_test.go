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

package agent

import (
	"testing"

	"github.com/cloudwego/ebpftrace/config"
	"github.com/cloudwego/ebpftrace/control"
	"github.com/stretchr/testify/require"
)

func TestNewSessionWiresArenaBackedRegistry(t *testing.T) {
	cfg := config.DefaultConfig(config.WithRegistryCapacity(2))

	sess, err := NewSession(cfg, t.TempDir(), nil, nil)
	require.NoError(t, err)
	require.NotNil(t, sess.Agent)
	defer sess.Close()

	sess.Control.SetProcessState(control.Running)

	// OnEnter goes through the Session's own Agent/Registry, proving the
	// arena-backed rings NewThreadRegistryInArena built are actually
	// live, not just constructed and discarded.
	ok := sess.Agent.OnEnter(1, 7, Frame{SP: 0x1000})
	require.True(t, ok)

	ts := sess.Registry.ThreadAt(0)
	require.NotNil(t, ts)
	require.Equal(t, uint64(1), ts.ThreadID)

	// Every ring the registered thread got is a sub-slice of the one
	// arena region the Session reserved.
	for _, ring := range ts.IndexRings {
		require.NotPanics(t, func() { sess.Rings.OffsetOf(ring.Bytes()) })
	}
	for _, ring := range ts.DetailRings {
		require.NotPanics(t, func() { sess.Rings.OffsetOf(ring.Bytes()) })
	}
}

func TestNewSessionDirectoryHoldsExactlyOneRingsEntry(t *testing.T) {
	cfg := config.DefaultConfig(config.WithRegistryCapacity(4))
	sess, err := NewSession(cfg, t.TempDir(), nil, nil)
	require.NoError(t, err)
	defer sess.Close()

	require.Equal(t, uint32(1), sess.Directory.Count())
}
