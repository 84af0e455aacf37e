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

package router

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/eminwux/kukepx/internal/modelhub"
	"github.com/eminwux/kukepx/internal/util/naming"
	"github.com/google/go-containerregistry/pkg/name"
)

// Op is a lifecycle operation routed to a driver.
type Op string

const (
	OpCreate Op = "create"
	OpRun    Op = "run"
	OpStart  Op = "start"
	OpStop   Op = "stop"
	OpKill   Op = "kill"
	OpDelete Op = "delete"
	OpState  Op = "state"
	OpUpdate Op = "update"
)

func (o Op) provisions() bool { return o == OpCreate || o == OpRun }

// Request is one operation as received from a caller. Runtime is the raw
// selector; empty means the recorded runtime, then the default one.
type Request struct {
	Op        Op
	ID        string
	Name      string
	Runtime   string
	Image     string
	Bundle    string
	Signal    string
	Force     bool
	Refresh   bool
	Resources modelhub.Resources
	Network   modelhub.Network
	Storage   modelhub.Storage
}

// Proxmox volume ids ("local:vztmpl/debian.tar.zst") and host paths are
// accepted as images alongside registry references.
var volumeIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.-]*:(vztmpl|iso|import|images)/.+$`)

// ValidateImage accepts a Proxmox volume id, an absolute path or an OCI image
// reference with an optional transport prefix.
func ValidateImage(image string) error {
	image = strings.TrimSpace(image)
	switch {
	case image == "":
		return errdefs.ErrImageRequired
	case volumeIDPattern.MatchString(image), strings.HasPrefix(image, "/"):
		return nil
	}
	ref := image
	for _, transport := range []string{"docker://", "oci://", "docker-daemon:"} {
		ref = strings.TrimPrefix(ref, transport)
	}
	if _, err := name.ParseReference(ref); err != nil {
		return fmt.Errorf("%w: %q: %w", errdefs.ErrInvalidImage, image, err)
	}
	return nil
}

// BuildSandboxConfig validates req for rt and merges operator defaults into
// whatever the request omits. On error nothing is returned.
func BuildSandboxConfig(req Request, rt modelhub.RuntimeType, defaults modelhub.Defaults) (modelhub.SandboxConfig, error) {
	if !req.Op.provisions() {
		return modelhub.SandboxConfig{}, fmt.Errorf("%w: %q does not build a sandbox", errdefs.ErrUnknownOperation, req.Op)
	}
	if err := naming.ValidateContainerID(req.ID); err != nil {
		return modelhub.SandboxConfig{}, err
	}

	switch rt {
	case modelhub.RuntimeCrun, modelhub.RuntimeRunc:
		if strings.TrimSpace(req.Bundle) == "" {
			return modelhub.SandboxConfig{}, errdefs.ErrBundleRequired
		}
		if req.Image != "" {
			if err := ValidateImage(req.Image); err != nil {
				return modelhub.SandboxConfig{}, err
			}
		}
	default:
		if err := ValidateImage(req.Image); err != nil {
			return modelhub.SandboxConfig{}, err
		}
	}

	cfg := modelhub.SandboxConfig{
		ID:        req.ID,
		Name:      strings.TrimSpace(req.Name),
		Runtime:   rt,
		Image:     strings.TrimSpace(req.Image),
		Bundle:    strings.TrimSpace(req.Bundle),
		Resources: req.Resources,
		Network:   req.Network,
		Storage:   req.Storage,
		Force:     req.Force,
	}
	if cfg.Resources.MemoryBytes < 0 || cfg.Resources.Cores < 0 {
		return modelhub.SandboxConfig{}, fmt.Errorf("%w: negative resource limit", errdefs.ErrInvalidInput)
	}
	if cfg.Network.Bridge == "" {
		cfg.Network.Bridge = defaults.Bridge
	}
	if cfg.Storage.Pool == "" {
		cfg.Storage.Pool = defaults.Storage
	}
	if cfg.Storage.Size == "" {
		cfg.Storage.Size = defaults.RootFSGiB
	}
	return cfg, nil
}
