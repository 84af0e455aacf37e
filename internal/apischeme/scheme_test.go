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

package apischeme_test

import (
	"errors"
	"testing"

	"github.com/eminwux/kukepx/internal/apischeme"
	"github.com/eminwux/kukepx/internal/consts"
	"github.com/eminwux/kukepx/internal/errdefs"
	intmodel "github.com/eminwux/kukepx/internal/modelhub"
	ext "github.com/eminwux/kukepx/pkg/api/model/v1beta1"
	"github.com/google/go-cmp/cmp"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

func TestSandboxRoundTripV1Beta1(t *testing.T) {
	input := ext.SandboxDoc{
		APIVersion: ext.APIVersionV1Beta1,
		Kind:       ext.KindSandbox,
		Metadata: ext.SandboxMetadata{
			Name:   "web",
			Labels: map[string]string{"tier": "front"},
		},
		Spec: ext.SandboxSpec{
			Runtime:   "pct",
			Image:     "local:vztmpl/debian-12.tar.zst",
			Resources: ext.SandboxResources{MemoryBytes: 1 << 30, Cores: 2},
			Network:   ext.SandboxNetwork{Bridge: "vmbr1", IP: "10.0.0.5/24", Gateway: "10.0.0.1"},
			Storage:   ext.SandboxStorage{Pool: "local-zfs", Size: "16", Dataset: true},
			Start:     true,
		},
	}

	internal, version, err := apischeme.NormalizeSandbox(input)
	if err != nil {
		t.Fatalf("NormalizeSandbox failed: %v", err)
	}
	if version != ext.APIVersionV1Beta1 {
		t.Fatalf("unexpected version: %s", version)
	}
	if internal.Config.ID != "web" {
		t.Fatalf("id should default to metadata.name, got %q", internal.Config.ID)
	}
	if internal.Config.Runtime != intmodel.RuntimeProxmoxLXC {
		t.Fatalf("runtime alias not resolved: %q", internal.Config.Runtime)
	}
	if !internal.Start || !internal.Config.Storage.Dataset {
		t.Fatalf("unexpected internal sandbox: %+v", internal)
	}

	// simulate the executor recording the created state
	internal.State = &specs.State{
		Version: consts.OCIVersion,
		ID:      "web",
		Status:  specs.StateRunning,
		Pid:     4242,
		Annotations: map[string]string{
			consts.AnnotationRuntime: "proxmox-lxc",
			consts.AnnotationVMID:    "105",
		},
	}

	output, err := apischeme.BuildSandboxExternalFromInternal(internal, version)
	if err != nil {
		t.Fatalf("BuildSandboxExternalFromInternal failed: %v", err)
	}
	if output.APIVersion != ext.APIVersionV1Beta1 || output.Kind != ext.KindSandbox {
		t.Fatalf("unexpected output GVK: %s %s", output.APIVersion, output.Kind)
	}
	wantStatus := &ext.SandboxStatus{State: "running", Pid: 4242, Runtime: "proxmox-lxc", VMID: "105"}
	if diff := cmp.Diff(wantStatus, output.Status); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}

	input.Spec.ID = "web"
	input.Spec.Runtime = "proxmox-lxc"
	if diff := cmp.Diff(input.Spec, output.Spec); diff != "" {
		t.Fatalf("spec mismatch (-want +got):\n%s", diff)
	}
}

func TestConvertSandboxDocErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     ext.SandboxDoc
		wantErr error
	}{
		{
			name:    "unknown runtime",
			doc:     ext.SandboxDoc{Metadata: ext.SandboxMetadata{Name: "a"}, Spec: ext.SandboxSpec{Runtime: "kvm"}},
			wantErr: errdefs.ErrUnknownRuntime,
		},
		{
			name:    "unsupported version",
			doc:     ext.SandboxDoc{APIVersion: "v2", Metadata: ext.SandboxMetadata{Name: "a"}},
			wantErr: errdefs.ErrUnsupportedAPIVersion,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := apischeme.ConvertSandboxDocToInternal(tt.doc)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildSandboxWithoutStateOmitsStatus(t *testing.T) {
	out, err := apischeme.BuildSandboxExternalFromInternal(intmodel.Sandbox{Name: "x"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != nil {
		t.Fatalf("expected nil status, got %+v", out.Status)
	}
	if _, err = apischeme.BuildSandboxExternalFromInternal(intmodel.Sandbox{}, "v9"); !errors.Is(err, errdefs.ErrUnsupportedAPIVersion) {
		t.Fatalf("expected unsupported version, got %v", err)
	}
}
