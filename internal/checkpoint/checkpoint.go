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

// Package checkpoint captures and rolls back container storage with ZFS
// snapshots of the dataset <pool>/<root>/<container id>.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/eminwux/kukepx/internal/cmdrunner"
	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/eminwux/kukepx/internal/util/naming"
)

const zfsBin = "zfs"

type Options struct {
	Pool        string
	DatasetRoot string
	// KeepNewer omits -r from rollback. zfs then refuses to restore any
	// snapshot that has newer siblings instead of destroying them.
	KeepNewer bool
}

type Manager struct {
	logger *slog.Logger
	runner cmdrunner.Runner
	opts   Options

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewManager(logger *slog.Logger, runner cmdrunner.Runner, opts Options) *Manager {
	return &Manager{
		logger: logger,
		runner: runner,
		opts:   opts,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Dataset returns the dataset backing containerID.
func (m *Manager) Dataset(containerID string) (string, error) {
	return naming.BuildDatasetName(m.opts.Pool, m.opts.DatasetRoot, containerID)
}

// lock serializes operations on one dataset; different datasets proceed in
// parallel.
func (m *Manager) lock(dataset string) func() {
	m.mu.Lock()
	l, ok := m.locks[dataset]
	if !ok {
		l = &sync.Mutex{}
		m.locks[dataset] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// EnsureDataset creates the dataset (and parents) when missing.
func (m *Manager) EnsureDataset(ctx context.Context, containerID string) (string, error) {
	dataset, err := m.Dataset(containerID)
	if err != nil {
		return "", err
	}
	defer m.lock(dataset)()

	exists, err := m.exists(ctx, "ensure-dataset", containerID, dataset)
	if err != nil {
		return "", err
	}
	if exists {
		return dataset, nil
	}
	if err = m.run(ctx, "ensure-dataset", containerID, zfsBin, "create", "-p", dataset); err != nil {
		return "", err
	}
	return dataset, nil
}

// Checkpoint creates dataset@name. The dataset must exist and the name must
// be unused.
func (m *Manager) Checkpoint(ctx context.Context, containerID, name string) error {
	dataset, err := m.prepare(containerID, name)
	if err != nil {
		return err
	}
	defer m.lock(dataset)()

	if err = m.requireDataset(ctx, "checkpoint", containerID, dataset); err != nil {
		return err
	}
	snap := dataset + "@" + name
	exists, err := m.exists(ctx, "checkpoint", containerID, snap)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", errdefs.ErrSnapshotExists, snap)
	}

	m.logger.DebugContext(ctx, "creating snapshot", "id", containerID, "snapshot", snap)
	return m.run(ctx, "checkpoint", containerID, zfsBin, "snapshot", snap)
}

// Restore rolls the dataset back to dataset@name, discarding later writes.
func (m *Manager) Restore(ctx context.Context, containerID, name string) error {
	dataset, err := m.prepare(containerID, name)
	if err != nil {
		return err
	}
	defer m.lock(dataset)()

	if err = m.requireDataset(ctx, "restore", containerID, dataset); err != nil {
		return err
	}
	snap := dataset + "@" + name
	exists, err := m.exists(ctx, "restore", containerID, snap)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", errdefs.ErrSnapshotNotFound, snap)
	}

	argv := []string{zfsBin, "rollback"}
	if !m.opts.KeepNewer {
		argv = append(argv, "-r")
	}
	argv = append(argv, snap)

	m.logger.DebugContext(ctx, "rolling back snapshot", "id", containerID, "snapshot", snap)
	return m.run(ctx, "restore", containerID, argv...)
}

// List returns the snapshot names of the dataset in creation order.
func (m *Manager) List(ctx context.Context, containerID string) ([]string, error) {
	dataset, err := m.Dataset(containerID)
	if err != nil {
		return nil, err
	}
	defer m.lock(dataset)()

	if err = m.requireDataset(ctx, "list-checkpoints", containerID, dataset); err != nil {
		return nil, err
	}

	argv := []string{zfsBin, "list", "-H", "-t", "snapshot", "-o", "name", "-s", "creation", "-d", "1", dataset}
	inv, runErr := m.runner.Run(ctx, argv...)
	if err = errdefs.Classify("list-checkpoints", containerID, inv, runErr); err != nil {
		return nil, err
	}

	prefix := dataset + "@"
	var names []string
	for _, line := range strings.Split(inv.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if name, ok := strings.CutPrefix(line, prefix); ok && name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// Delete destroys dataset@name. A missing snapshot is logged and ignored.
func (m *Manager) Delete(ctx context.Context, containerID, name string) error {
	dataset, err := m.prepare(containerID, name)
	if err != nil {
		return err
	}
	defer m.lock(dataset)()

	snap := dataset + "@" + name
	exists, err := m.exists(ctx, "delete-checkpoint", containerID, snap)
	if err != nil {
		return err
	}
	if !exists {
		m.logger.WarnContext(ctx, "snapshot does not exist, nothing to delete", "id", containerID, "snapshot", snap)
		return nil
	}
	return m.run(ctx, "delete-checkpoint", containerID, zfsBin, "destroy", snap)
}

func (m *Manager) prepare(containerID, name string) (string, error) {
	if err := naming.ValidateSnapshotName(name); err != nil {
		return "", err
	}
	return m.Dataset(containerID)
}

func (m *Manager) requireDataset(ctx context.Context, op, containerID, dataset string) error {
	exists, err := m.exists(ctx, op, containerID, dataset)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", errdefs.ErrDatasetNotFound, dataset)
	}
	return nil
}

// exists reports whether a dataset or snapshot is present.
func (m *Manager) exists(ctx context.Context, op, containerID, name string) (bool, error) {
	kind := "filesystem"
	if strings.Contains(name, "@") {
		kind = "snapshot"
	}
	inv, runErr := m.runner.Run(ctx, zfsBin, "list", "-H", "-o", "name", "-t", kind, name)
	err := errdefs.Classify(op, containerID, inv, runErr)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errdefs.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (m *Manager) run(ctx context.Context, op, containerID string, argv ...string) error {
	inv, runErr := m.runner.Run(ctx, argv...)
	return errdefs.Classify(op, containerID, inv, runErr)
}
