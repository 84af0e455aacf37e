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

package controller

import (
	"strings"

	"github.com/eminwux/kukepx/internal/errdefs"
)

func checkpointID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errdefs.ErrContainerIDRequired
	}
	return id, nil
}

// Checkpoint snapshots the dataset of container id under name.
func (b *Exec) Checkpoint(id, name string) error {
	id, err := checkpointID(id)
	if err != nil {
		return err
	}
	b.logger.DebugContext(b.ctx, "creating checkpoint", "id", id, "name", name)
	return b.router.Checkpoint(b.ctx, id, name)
}

// Restore rolls the dataset of container id back to name.
func (b *Exec) Restore(id, name string) error {
	id, err := checkpointID(id)
	if err != nil {
		return err
	}
	b.logger.DebugContext(b.ctx, "restoring checkpoint", "id", id, "name", name)
	return b.router.Restore(b.ctx, id, name)
}

func (b *Exec) ListCheckpoints(id string) ([]string, error) {
	id, err := checkpointID(id)
	if err != nil {
		return nil, err
	}
	return b.router.ListCheckpoints(b.ctx, id)
}

func (b *Exec) DeleteCheckpoint(id, name string) error {
	id, err := checkpointID(id)
	if err != nil {
		return err
	}
	b.logger.DebugContext(b.ctx, "deleting checkpoint", "id", id, "name", name)
	return b.router.DeleteCheckpoint(b.ctx, id, name)
}
