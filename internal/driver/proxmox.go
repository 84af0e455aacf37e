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

package driver

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/eminwux/kukepx/internal/cmdrunner"
	"github.com/eminwux/kukepx/internal/consts"
	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/eminwux/kukepx/internal/state"
	"github.com/eminwux/kukepx/internal/vmid"
)

const (
	pctBin     = "pct"
	qmBin      = "qm"
	lxcInfoBin = "lxc-info"
)

// ProxmoxOptions configure both Proxmox backends.
type ProxmoxOptions struct {
	Options

	// Storage and RootFSGiB back the root disk when the request has none.
	Storage   string
	RootFSGiB string
	// ConfDir holds <vmid>.conf for containers (/etc/pve/lxc).
	ConfDir string
}

func (o ProxmoxOptions) withDefaults() ProxmoxOptions {
	if o.Storage == "" {
		o.Storage = consts.DefaultStorage
	}
	if o.RootFSGiB == "" {
		o.RootFSGiB = consts.DefaultRootFSSize
	}
	if o.ConfDir == "" {
		o.ConfDir = consts.DefaultPVELXCDir
	}
	return o
}

// DatasetProvisioner creates the checkpoint dataset of a container.
type DatasetProvisioner interface {
	EnsureDataset(ctx context.Context, containerID string) (string, error)
}

// ProxmoxProber reports whether a VMID is taken by a container or a VM.
// Containers and VMs share one identity space on a Proxmox node.
type ProxmoxProber struct {
	Runner cmdrunner.Runner
}

func (p ProxmoxProber) Exists(ctx context.Context, id int) (bool, error) {
	for _, tool := range []string{pctBin, qmBin} {
		exists, err := vmidExists(ctx, p.Runner, tool, "", id)
		if err != nil || exists {
			return exists, err
		}
	}
	return false, nil
}

// vmidExists runs "<tool> status <vmid>"; a missing config means absent.
func vmidExists(ctx context.Context, runner cmdrunner.Runner, tool, containerID string, id int) (bool, error) {
	_, err := invoke(ctx, runner, "probe", containerID, tool, "status", strconv.Itoa(id))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errdefs.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// identities resolves container ids to Proxmox identities. The mapping
// file is authoritative; the record's vmid annotation covers a lost entry.
type identities struct {
	mapper *vmid.Mapper
	store  *state.Store
}

// lookup resolves the identity; ok is false when neither source has one.
func (r identities) lookup(ctx context.Context, containerID string) (int, bool, error) {
	id, err := r.mapper.Lookup(ctx, containerID)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, errdefs.ErrNotFound) {
		return 0, false, err
	}
	if r.store == nil {
		return 0, false, nil
	}
	rec, err := r.store.Get(ctx, containerID)
	if errors.Is(err, errdefs.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, ok := state.VMID(rec)
	return id, ok, nil
}

func (r identities) require(ctx context.Context, containerID string) (string, error) {
	id, ok, err := r.lookup(ctx, containerID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %q", errdefs.ErrMappingNotFound, containerID)
	}
	return strconv.Itoa(id), nil
}

// assignVMID maps containerID to an identity and refuses one that is
// already provisioned on the node.
func assignVMID(
	ctx context.Context,
	runner cmdrunner.Runner,
	mapper *vmid.Mapper,
	tool, containerID, bundlePath string,
) (int, error) {
	id, err := mapper.Assign(ctx, containerID, bundlePath)
	if err != nil {
		return 0, err
	}
	exists, err := vmidExists(ctx, runner, tool, containerID, id)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, fmt.Errorf("%w: vmid %d for %q is already provisioned", errdefs.ErrAlreadyExists, id, containerID)
	}
	return id, nil
}

func vmidAnnotations(id int) map[string]string {
	return map[string]string{consts.AnnotationVMID: strconv.Itoa(id)}
}
