// Copyright 2025 Emiliano Spinella (eminwux)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package vmid assigns stable numeric backend identities to container ids.
//
// The whole mapping set lives in one JSON file, keyed by container id. Every
// mutation takes the mapping file lock, rereads the file, and atomically
// replaces it, so concurrent kukepx processes never lose an assignment.
package vmid

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/eminwux/kukepx/internal/consts"
	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/eminwux/kukepx/internal/metadata"
	"github.com/opencontainers/go-digest"
)

// Entry is one persisted container id → identity mapping.
type Entry struct {
	VMID       int       `json:"vmid"`
	CreatedAt  time.Time `json:"created_at"`
	BundlePath string    `json:"bundle_path"`
}

// Prober reports whether an identity is already in use on the live backend.
type Prober interface {
	Exists(ctx context.Context, vmid int) (bool, error)
}

// HashFunc maps a container id onto an unbounded unsigned space.
type HashFunc func(containerID string) uint64

type Options struct {
	// Path of the mapping file.
	Path     string
	Min      int
	Max      int
	Attempts int
	Prober   Prober
	Hash     HashFunc
	Now      func() time.Time
}

type Mapper struct {
	mu     sync.Mutex
	logger *slog.Logger
	opts   Options
}

func New(logger *slog.Logger, opts Options) (*Mapper, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("%w: mapping file path is required", errdefs.ErrInvalidInput)
	}
	if opts.Min == 0 {
		opts.Min = consts.DefaultVMIDMin
	}
	if opts.Max == 0 {
		opts.Max = consts.DefaultVMIDMax
	}
	if opts.Min < 1 || opts.Max < opts.Min {
		return nil, fmt.Errorf("%w: vmid range [%d, %d]", errdefs.ErrInvalidInput, opts.Min, opts.Max)
	}
	if opts.Attempts <= 0 {
		opts.Attempts = consts.DefaultProbeAttempts
	}
	if opts.Hash == nil {
		opts.Hash = DigestHash
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Mapper{logger: logger, opts: opts}, nil
}

// DigestHash folds the sha256 digest of the container id into a uint64.
func DigestHash(containerID string) uint64 {
	encoded := digest.FromString(containerID).Encoded()
	v, err := strconv.ParseUint(encoded[:16], 16, 64)
	if err != nil {
		// sha256 hex is always parseable
		panic(err)
	}
	return v
}

// Candidate returns the first identity probed for containerID.
func (m *Mapper) Candidate(containerID string) int {
	span := uint64(m.opts.Max - m.opts.Min + 1)
	return m.opts.Min + int(m.opts.Hash(containerID)%span)
}

// Assign returns the identity mapped to containerID, allocating one if needed.
func (m *Mapper) Assign(ctx context.Context, containerID, bundlePath string) (int, error) {
	if containerID == "" {
		return 0, errdefs.ErrContainerIDRequired
	}

	var assigned int
	err := m.update(ctx, func(entries map[string]Entry) (bool, error) {
		if e, ok := entries[containerID]; ok {
			assigned = e.VMID
			return false, nil
		}

		used := make(map[int]struct{}, len(entries))
		for _, e := range entries {
			used[e.VMID] = struct{}{}
		}

		id, err := m.probe(ctx, containerID, used)
		if err != nil {
			return false, err
		}
		entries[containerID] = Entry{VMID: id, CreatedAt: m.opts.Now().UTC(), BundlePath: bundlePath}
		assigned = id
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	return assigned, nil
}

func (m *Mapper) probe(ctx context.Context, containerID string, used map[int]struct{}) (int, error) {
	candidate := m.Candidate(containerID)
	for attempt := 0; attempt < m.opts.Attempts; attempt++ {
		if _, taken := used[candidate]; !taken {
			live, err := m.liveExists(ctx, candidate)
			if err != nil {
				return 0, err
			}
			if !live {
				if attempt > 0 {
					m.logger.DebugContext(ctx, "vmid probed past collisions",
						"id", containerID, "vmid", candidate, "attempts", attempt+1)
				}
				return candidate, nil
			}
		}
		candidate++
		if candidate > m.opts.Max {
			candidate = m.opts.Min
		}
	}
	return 0, fmt.Errorf("%w: no free vmid for %q after %d attempts",
		errdefs.ErrIdentityExhausted, containerID, m.opts.Attempts)
}

func (m *Mapper) liveExists(ctx context.Context, vmid int) (bool, error) {
	if m.opts.Prober == nil {
		return false, nil
	}
	exists, err := m.opts.Prober.Exists(ctx, vmid)
	if err != nil {
		return false, fmt.Errorf("probe vmid %d: %w", vmid, err)
	}
	return exists, nil
}

// Lookup returns the identity mapped to containerID or ErrMappingNotFound.
func (m *Mapper) Lookup(ctx context.Context, containerID string) (int, error) {
	entries, err := m.List(ctx)
	if err != nil {
		return 0, err
	}
	e, ok := entries[containerID]
	if !ok {
		return 0, fmt.Errorf("%w: %q", errdefs.ErrMappingNotFound, containerID)
	}
	return e.VMID, nil
}

// Get returns the full entry for containerID.
func (m *Mapper) Get(ctx context.Context, containerID string) (Entry, error) {
	entries, err := m.List(ctx)
	if err != nil {
		return Entry{}, err
	}
	e, ok := entries[containerID]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", errdefs.ErrMappingNotFound, containerID)
	}
	return e, nil
}

// Release removes the mapping for containerID. Absent mappings are ignored.
func (m *Mapper) Release(ctx context.Context, containerID string) error {
	return m.update(ctx, func(entries map[string]Entry) (bool, error) {
		if _, ok := entries[containerID]; !ok {
			return false, nil
		}
		delete(entries, containerID)
		return true, nil
	})
}

// List returns a snapshot of every mapping.
func (m *Mapper) List(ctx context.Context) (map[string]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, err := metadata.AcquireLock(ctx, m.opts.Path+consts.LockSuffix)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	return m.load(ctx)
}

// IDs returns the mapped container ids in sorted order.
func (m *Mapper) IDs(ctx context.Context) ([]string, error) {
	entries, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// update runs fn on the freshly loaded mapping set and persists it when fn
// reports a change.
func (m *Mapper) update(ctx context.Context, fn func(map[string]Entry) (bool, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, err := metadata.AcquireLock(ctx, m.opts.Path+consts.LockSuffix)
	if err != nil {
		return err
	}
	defer lock.Release()

	entries, err := m.load(ctx)
	if err != nil {
		return err
	}
	changed, err := fn(entries)
	if err != nil || !changed {
		return err
	}
	return metadata.WriteJSON(ctx, m.logger, m.opts.Path, entries)
}

func (m *Mapper) load(ctx context.Context) (map[string]Entry, error) {
	if !metadata.Exists(m.opts.Path) {
		return map[string]Entry{}, nil
	}
	entries, err := metadata.ReadJSON[map[string]Entry](ctx, m.logger, m.opts.Path)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = map[string]Entry{}
	}
	return entries, nil
}
