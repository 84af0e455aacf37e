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

// Package state is the system of record for OCI container state.
//
// Each container owns <root>/<id>/state.json. Records only move forward along
// created → running → stopped; Delete removes the record.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/eminwux/kukepx/internal/consts"
	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/eminwux/kukepx/internal/metadata"
	"github.com/eminwux/kukepx/internal/util/naming"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

type Store struct {
	logger *slog.Logger
	root   string
}

func NewStore(logger *slog.Logger, root string) *Store {
	return &Store{logger: logger, root: root}
}

func (s *Store) Root() string { return s.root }

func (s *Store) dir(id string) string  { return filepath.Join(s.root, id) }
func (s *Store) Path(id string) string { return filepath.Join(s.dir(id), consts.StateFileName) }
func (s *Store) lockPath(id string) string {
	return filepath.Join(s.dir(id), consts.StateFileName+consts.LockSuffix)
}

// New builds a created-state record for id.
func New(id, bundle string, annotations map[string]string) specs.State {
	if annotations == nil {
		annotations = map[string]string{}
	}
	return specs.State{
		Version:     consts.OCIVersion,
		ID:          id,
		Status:      specs.StateCreated,
		Pid:         0,
		Bundle:      bundle,
		Annotations: annotations,
	}
}

// Create persists a new record; an existing record is ErrContainerExists.
func (s *Store) Create(ctx context.Context, st specs.State) error {
	if err := naming.ValidateContainerID(st.ID); err != nil {
		return err
	}
	return s.withLock(ctx, st.ID, func() error {
		if metadata.Exists(s.Path(st.ID)) {
			return fmt.Errorf("%w: %q", errdefs.ErrContainerExists, st.ID)
		}
		return metadata.WriteJSON(ctx, s.logger, s.Path(st.ID), st)
	})
}

// Get returns the persisted record or ErrContainerNotFound.
func (s *Store) Get(ctx context.Context, id string) (specs.State, error) {
	if err := naming.ValidateContainerID(id); err != nil {
		return specs.State{}, err
	}
	st, err := metadata.ReadJSON[specs.State](ctx, s.logger, s.Path(id))
	if errors.Is(err, errdefs.ErrMissingMetadataFile) {
		return specs.State{}, fmt.Errorf("%w: %q", errdefs.ErrContainerNotFound, id)
	}
	return st, err
}

// Transition moves the record to status with pid. Moving backwards is
// ErrInvalidTransition; repeating the current status only refreshes pid.
func (s *Store) Transition(
	ctx context.Context,
	id string,
	status specs.ContainerState,
	pid int,
) (specs.State, error) {
	var out specs.State
	err := s.withLock(ctx, id, func() error {
		st, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(st.Status, status) {
			return fmt.Errorf("%w: %q %s → %s", errdefs.ErrInvalidTransition, id, st.Status, status)
		}
		st.Status = status
		st.Pid = pid
		if status != specs.StateRunning {
			st.Pid = 0
		}
		if err = metadata.WriteJSON(ctx, s.logger, s.Path(id), st); err != nil {
			return err
		}
		out = st
		return nil
	})
	return out, err
}

// Repair writes st unconditionally. It is used only to rebuild a missing
// record from the live backend.
func (s *Store) Repair(ctx context.Context, st specs.State) error {
	if err := naming.ValidateContainerID(st.ID); err != nil {
		return err
	}
	return s.withLock(ctx, st.ID, func() error {
		s.logger.WarnContext(ctx, "repairing state record from backend", "id", st.ID, "status", st.Status)
		return metadata.WriteJSON(ctx, s.logger, s.Path(st.ID), st)
	})
}

// Delete removes the record; absent records are ignored.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := naming.ValidateContainerID(id); err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "deleting state record", "id", id)
	if err := os.RemoveAll(s.dir(id)); err != nil {
		return fmt.Errorf("remove state dir %s: %w", s.dir(id), err)
	}
	return nil
}

// List returns every readable record sorted by id.
func (s *Store) List(ctx context.Context) ([]specs.State, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state root %s: %w", s.root, err)
	}

	out := make([]specs.State, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || naming.ValidateContainerID(e.Name()) != nil {
			continue
		}
		st, getErr := s.Get(ctx, e.Name())
		if getErr != nil {
			if !errors.Is(getErr, errdefs.ErrNotFound) {
				s.logger.WarnContext(ctx, "skipping unreadable state record", "id", e.Name(), "error", getErr)
			}
			continue
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) withLock(ctx context.Context, id string, fn func() error) error {
	lock, err := metadata.AcquireLock(ctx, s.lockPath(id))
	if err != nil {
		return err
	}
	defer lock.Release()
	return fn()
}

func rank(st specs.ContainerState) int {
	switch st {
	case specs.StateCreating:
		return 0
	case specs.StateCreated:
		return 1
	case specs.StateRunning:
		return 2
	case specs.StateStopped:
		return 3
	default:
		return -1
	}
}

// CanTransition reports whether from → to moves forward (or stays put).
func CanTransition(from, to specs.ContainerState) bool {
	f, t := rank(from), rank(to)
	return f >= 0 && t >= 0 && t >= f
}

// Annotation returns annotations[key] or "".
func Annotation(st specs.State, key string) string {
	if st.Annotations == nil {
		return ""
	}
	return st.Annotations[key]
}

// VMID returns the numeric identity annotation, if any.
func VMID(st specs.State) (int, bool) {
	v := Annotation(st, consts.AnnotationVMID)
	if v == "" {
		return 0, false
	}
	id, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return id, true
}
