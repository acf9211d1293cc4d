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

// Package session computes the on-disk directory layout and the
// shared-memory segment names a tracing session uses, both as pure
// functions of (session id, host pid, thread id) so any collaborator —
// producer, drain, or an offline query tool — derives the same paths
// without needing to ask anyone else.
package session

import (
	"fmt"
	"path/filepath"
)

// Role identifies which shared-memory segment a name refers to.
type Role string

const (
	RoleControl  Role = "CONTROL"
	RoleRegistry Role = "REGISTRY"
	RoleIndex    Role = "INDEX"
	RoleDetail   Role = "DETAIL"
)

// MaxShmNameLen is the POSIX-portable ceiling for a shared-memory
// object name (the smallest common limit across the platforms this
// format targets).
const MaxShmNameLen = 63

// DirFor returns the session root directory under out:
// out/session_<sessionID>/pid_<hostPID>. sessionID is expected to
// already be formatted as YYYYMMDD_HHMMSS by the caller (the host
// controller owns wall-clock formatting; this package only joins
// paths).
func DirFor(out, sessionID string, hostPID int) string {
	return filepath.Join(out, fmt.Sprintf("session_%s", sessionID), fmt.Sprintf("pid_%d", hostPID))
}

// ThreadDirFor returns the per-thread directory within a session:
// <sessionDir>/thread_<tid>.
func ThreadDirFor(sessionDir string, threadID uint32) string {
	return filepath.Join(sessionDir, fmt.Sprintf("thread_%d", threadID))
}

// IndexPathFor returns <sessionDir>/thread_<tid>/index.atf.
func IndexPathFor(sessionDir string, threadID uint32) string {
	return filepath.Join(ThreadDirFor(sessionDir, threadID), "index.atf")
}

// DetailPathFor returns <sessionDir>/thread_<tid>/detail.atf.
func DetailPathFor(sessionDir string, threadID uint32) string {
	return filepath.Join(ThreadDirFor(sessionDir, threadID), "detail.atf")
}

// ManifestPathFor returns <sessionDir>/manifest.json. The manifest
// itself is written by the host controller, not this module; this
// helper only exists so collaborators agree on where to look for it.
func ManifestPathFor(sessionDir string) string {
	return filepath.Join(sessionDir, "manifest.json")
}

// NameFor computes the shared-memory segment name for role under
// (hostPID, sessionID): "ada_<role>_<hostPID>_<sessionID>", with the
// role kept as given (e.g. "CONTROL") and the name truncated from the
// session id end if it would exceed
// MaxShmNameLen, since the role and pid prefix must stay intact for
// the name to be resolvable.
func NameFor(role Role, hostPID int, sessionID string) string {
	prefix := fmt.Sprintf("ada_%s_%d_", role, hostPID)
	name := prefix + sessionID
	if len(name) <= MaxShmNameLen {
		return name
	}
	keep := MaxShmNameLen - len(prefix)
	if keep < 0 {
		keep = 0
	}
	return prefix + sessionID[:keep]
}
