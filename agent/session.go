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
	"github.com/cloudwego/ebpftrace/config"
	"github.com/cloudwego/ebpftrace/control"
	"github.com/cloudwego/ebpftrace/pool"
	"github.com/cloudwego/ebpftrace/registry"
	"github.com/cloudwego/ebpftrace/shm"
)

// Session bundles the cross-process-capable infrastructure one tracer
// process needs before its first OnEnter/OnLeave call: a FileArena-
// backed directory, a thread registry whose rings live as offset
// sub-allocations of that one arena region rather than independent
// per-ring allocations, the control block producers and the drain both
// consult, and the Agent built on top of all three.
type Session struct {
	Arena     shm.Arena
	Directory *shm.Directory
	Registry  *registry.ThreadRegistry
	Rings     *shm.RegionAllocator
	Control   *control.Block
	Agent     *Agent
}

// NewSession wires a complete producer-side session from cfg: a
// FileArena rooted at shmDir (empty uses the default temp location; on
// platforms without syscall.Mmap, shm.NewFileArena itself falls back to
// a process-local arena), a Directory over it, a ThreadRegistry sized
// to cfg.RegistryCapacity and built via registry.NewThreadRegistryInArena
// so every ring it ever hands out is an offset into that one arena
// region, and a control.Block over the same Directory. clock and
// capture are forwarded to New unchanged (both may be nil; see New's
// doc comment for the defaults that applies).
//
// The returned Session's Arena must outlive every Agent call the
// Registry's rings could still be read from; callers release it only
// once the session has fully drained and no reader (in this or another
// process) still has the arena's regions mapped.
func NewSession(cfg *config.TracerConfig, shmDir string, clock Clock, capture StackCapture) (*Session, error) {
	arena, err := shm.NewFileArena(shmDir)
	if err != nil {
		return nil, err
	}
	dir := shm.NewDirectory(arena)

	reg, rings, err := registry.NewThreadRegistryInArena(cfg.RegistryCapacity, dir, pool.Clock(clock))
	if err != nil {
		return nil, err
	}

	cb := control.NewBlock(dir)
	a := New(reg, cb, cfg.MarkPolicy, clock, capture)

	return &Session{
		Arena:     arena,
		Directory: dir,
		Registry:  reg,
		Rings:     rings,
		Control:   cb,
		Agent:     a,
	}, nil
}

// Close releases the session's arena-backed thread-rings region. It
// does not touch any per-thread .atf files the drain has already
// written — those outlive the shared-memory mapping by design.
func (s *Session) Close() error {
	if s.Arena == nil || s.Rings == nil {
		return nil
	}
	return s.Arena.Release(s.Rings.Base())
}
