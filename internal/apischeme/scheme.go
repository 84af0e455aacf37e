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

package apischeme

import (
	"fmt"
	"strconv"

	"github.com/eminwux/kukepx/internal/consts"
	"github.com/eminwux/kukepx/internal/errdefs"
	intmodel "github.com/eminwux/kukepx/internal/modelhub"
	"github.com/eminwux/kukepx/internal/state"
	ext "github.com/eminwux/kukepx/pkg/api/model/v1beta1"
)

// Supported versions.
const (
	VersionV1Beta1 = ext.APIVersionV1Beta1
)

// DefaultVersion treats an empty apiVersion as v1beta1.
func DefaultVersion(v ext.Version) ext.Version {
	if v == "" {
		return VersionV1Beta1
	}
	return v
}

// ConvertSandboxDocToInternal converts an external SandboxDoc to the internal hub type.
func ConvertSandboxDocToInternal(in ext.SandboxDoc) (intmodel.Sandbox, error) {
	switch in.APIVersion {
	case VersionV1Beta1, "": // default/empty treated as v1beta1
		var rt intmodel.RuntimeType
		if in.Spec.Runtime != "" {
			parsed, err := intmodel.ParseRuntimeType(in.Spec.Runtime)
			if err != nil {
				return intmodel.Sandbox{}, fmt.Errorf("%w: %w", errdefs.ErrUnknownRuntime, err)
			}
			rt = parsed
		}
		id := in.Spec.ID
		if id == "" {
			id = in.Metadata.Name
		}
		return intmodel.Sandbox{
			Name:   in.Metadata.Name,
			Labels: in.Metadata.Labels,
			Start:  in.Spec.Start,
			Config: intmodel.SandboxConfig{
				ID:      id,
				Name:    in.Metadata.Name,
				Runtime: rt,
				Image:   in.Spec.Image,
				Bundle:  in.Spec.Bundle,
				Resources: intmodel.Resources{
					MemoryBytes: in.Spec.Resources.MemoryBytes,
					CPUShares:   in.Spec.Resources.CPUShares,
					Cores:       in.Spec.Resources.Cores,
				},
				Network: intmodel.Network{
					Bridge:  in.Spec.Network.Bridge,
					IP:      in.Spec.Network.IP,
					Gateway: in.Spec.Network.Gateway,
				},
				Storage: intmodel.Storage{
					Pool:    in.Spec.Storage.Pool,
					Size:    in.Spec.Storage.Size,
					Dataset: in.Spec.Storage.Dataset,
				},
			},
		}, nil
	default:
		return intmodel.Sandbox{}, fmt.Errorf("%w for Sandbox: %s", errdefs.ErrUnsupportedAPIVersion, in.APIVersion)
	}
}

// BuildSandboxExternalFromInternal emits an external SandboxDoc for a given version from an internal hub object.
func BuildSandboxExternalFromInternal(in intmodel.Sandbox, apiVersion ext.Version) (ext.SandboxDoc, error) {
	switch apiVersion {
	case VersionV1Beta1, "": // default to v1beta1
		doc := ext.SandboxDoc{
			APIVersion: VersionV1Beta1,
			Kind:       ext.KindSandbox,
			Metadata: ext.SandboxMetadata{
				Name:   in.Name,
				Labels: in.Labels,
			},
			Spec: ext.SandboxSpec{
				ID:      in.Config.ID,
				Runtime: string(in.Config.Runtime),
				Image:   in.Config.Image,
				Bundle:  in.Config.Bundle,
				Resources: ext.SandboxResources{
					MemoryBytes: in.Config.Resources.MemoryBytes,
					CPUShares:   in.Config.Resources.CPUShares,
					Cores:       in.Config.Resources.Cores,
				},
				Network: ext.SandboxNetwork{
					Bridge:  in.Config.Network.Bridge,
					IP:      in.Config.Network.IP,
					Gateway: in.Config.Network.Gateway,
				},
				Storage: ext.SandboxStorage{
					Pool:    in.Config.Storage.Pool,
					Size:    in.Config.Storage.Size,
					Dataset: in.Config.Storage.Dataset,
				},
				Start: in.Start,
			},
		}
		if in.State != nil {
			st := *in.State
			status := &ext.SandboxStatus{
				State:   string(st.Status),
				Pid:     st.Pid,
				Bundle:  st.Bundle,
				Runtime: state.Annotation(st, consts.AnnotationRuntime),
			}
			if vmid, ok := state.VMID(st); ok {
				status.VMID = strconv.Itoa(vmid)
			}
			doc.Status = status
		}
		return doc, nil
	default:
		return ext.SandboxDoc{}, fmt.Errorf("%w for Sandbox: %s", errdefs.ErrUnsupportedAPIVersion, apiVersion)
	}
}

// NormalizeSandbox takes an external SandboxDoc request and returns an internal object and chosen apiVersion.
func NormalizeSandbox(req ext.SandboxDoc) (intmodel.Sandbox, ext.Version, error) {
	version := DefaultVersion(req.APIVersion)
	internal, err := ConvertSandboxDocToInternal(req)
	if err != nil {
		return intmodel.Sandbox{}, "", err
	}
	return internal, version, nil
}
