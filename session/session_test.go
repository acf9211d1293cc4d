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

package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirForLayout(t *testing.T) {
	dir := DirFor("/tmp/out", "20260730_120000", 4242)
	require.Equal(t, "/tmp/out/session_20260730_120000/pid_4242", dir)
}

func TestThreadPaths(t *testing.T) {
	dir := DirFor("/tmp/out", "20260730_120000", 4242)
	require.Equal(t, dir+"/thread_7/index.atf", IndexPathFor(dir, 7))
	require.Equal(t, dir+"/thread_7/detail.atf", DetailPathFor(dir, 7))
}

func TestManifestPath(t *testing.T) {
	dir := DirFor("/tmp/out", "20260730_120000", 4242)
	require.Equal(t, dir+"/manifest.json", ManifestPathFor(dir))
}

func TestNameForWithinLimit(t *testing.T) {
	name := NameFor(RoleControl, 100, "abc")
	require.LessOrEqual(t, len(name), MaxShmNameLen)
	require.True(t, strings.HasPrefix(name, "ada_CONTROL_100_"))
	require.True(t, strings.HasSuffix(name, "abc"))
}

func TestNameForTruncatesLongSessionID(t *testing.T) {
	longID := strings.Repeat("x", 100)
	name := NameFor(RoleDetail, 1, longID)
	require.LessOrEqual(t, len(name), MaxShmNameLen)
	require.True(t, strings.HasPrefix(name, "ada_DETAIL_1_"))
}

func TestNameForDistinctRolesDistinctNames(t *testing.T) {
	a := NameFor(RoleIndex, 1, "sess")
	b := NameFor(RoleRegistry, 1, "sess")
	require.NotEqual(t, a, b)
}
