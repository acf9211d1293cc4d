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

//go:build linux || darwin

package shm

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"unsafe"
)

// FileArena is an Arena backed by mmap'd regular files under Dir,
// giving true cross-process sharing: one process's Reserve and a
// second process's Open of the same name map the same pages. Dir
// defaults to os.TempDir() joined with "ebpftrace-shm", which is
// adequate for same-host cross-process sharing even where /dev/shm
// is unavailable or size-constrained.
type FileArena struct {
	Dir string

	mu    sync.Mutex
	files map[string]*os.File
}

// NewFileArena returns a FileArena rooted at dir (created if absent).
// An empty dir uses the default location.
func NewFileArena(dir string) (*FileArena, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "ebpftrace-shm")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("shm: create arena dir: %w", err)
	}
	return &FileArena{Dir: dir, files: make(map[string]*os.File)}, nil
}

func (a *FileArena) path(name string) string {
	return filepath.Join(a.Dir, name)
}

// Reserve creates (or truncates) a backing file of size bytes and maps
// it read-write, shared between every mapper of the same path.
func (a *FileArena) Reserve(name string, size uint64) ([]byte, error) {
	f, err := os.OpenFile(a.path(name), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", name, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: truncate %s: %w", name, err)
	}
	return a.mapFile(name, f, size)
}

// Open mmaps an existing backing file created by a (possibly different
// process's) Reserve call with the same name.
func (a *FileArena) Open(name string, size uint64) ([]byte, error) {
	f, err := os.OpenFile(a.path(name), os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("shm: open existing %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if uint64(info.Size()) < size {
		size = uint64(info.Size())
	}
	return a.mapFile(name, f, size)
}

func (a *FileArena) mapFile(name string, f *os.File, size uint64) ([]byte, error) {
	region, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: mmap %s: %w", name, err)
	}
	a.mu.Lock()
	a.files[regionKey(region)] = f
	a.mu.Unlock()
	return region, nil
}

// Release unmaps region and closes its backing file descriptor.
func (a *FileArena) Release(region []byte) error {
	if len(region) == 0 {
		return nil
	}
	key := regionKey(region)
	a.mu.Lock()
	f := a.files[key]
	delete(a.files, key)
	a.mu.Unlock()

	err := syscall.Munmap(region)
	if f != nil {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// regionKey identifies a mapped region by the address of its first
// byte. mmap'd memory is not moved by the Go GC, so this stays stable
// for as long as the mapping is alive.
func regionKey(region []byte) uintptr {
	if len(region) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&region[0]))
}
