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

package create_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/eminwux/kukepx/cmd/kukepx/create"
	"github.com/eminwux/kukepx/cmd/types"
	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/eminwux/kukepx/internal/modelhub"
	"github.com/eminwux/kukepx/internal/router"
	"github.com/google/go-cmp/cmp"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

func TestNewCreateCmd(t *testing.T) {
	cmd := create.NewCreateCmd()

	if cmd.Use != "create <id>" {
		t.Errorf("Use mismatch: got %q", cmd.Use)
	}
	for _, name := range []string{
		"runtime", "bundle", "image", "name", "memory", "cores", "cpu-shares",
		"bridge", "ip", "gateway", "storage", "rootfs-size", "dataset", "output",
	} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("flag %q not found", name)
		}
	}
}

func TestNewCreateCmdRunE(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		flags      map[string]string
		wantReq    router.Request
		createErr  error
		wantErrIs  error
		wantOutput string
	}{
		{
			name: "flags become the request",
			args: []string{"web"},
			flags: map[string]string{
				"runtime":     "proxmox-lxc",
				"image":       " local:vztmpl/debian-12.tar.zst ",
				"name":        "web01",
				"memory":      "512",
				"cores":       "2",
				"bridge":      "vmbr0",
				"ip":          "dhcp",
				"storage":     "local-zfs",
				"rootfs-size": "8",
				"dataset":     "true",
			},
			wantReq: router.Request{
				ID:        "web",
				Name:      "web01",
				Runtime:   "proxmox-lxc",
				Image:     "local:vztmpl/debian-12.tar.zst",
				Resources: modelhub.Resources{MemoryBytes: 512 << 20, Cores: 2},
				Network:   modelhub.Network{Bridge: "vmbr0", IP: "dhcp"},
				Storage:   modelhub.Storage{Pool: "local-zfs", Size: "8", Dataset: true},
			},
			wantOutput: `Created container "web"`,
		},
		{
			name:      "negative memory",
			args:      []string{"web"},
			flags:     map[string]string{"memory": "-1"},
			wantErrIs: errdefs.ErrInvalidInput,
		},
		{
			name:      "controller error is returned",
			args:      []string{"web"},
			flags:     map[string]string{"bundle": "/bundles/web", "runtime": "crun"},
			wantReq:   router.Request{ID: "web", Runtime: "crun", Bundle: "/bundles/web"},
			createErr: errdefs.ErrContainerExists,
			wantErrIs: errdefs.ErrContainerExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeCreateController{err: tt.createErr}

			cmd := create.NewCreateCmd()
			var outBuf bytes.Buffer
			cmd.SetOut(&outBuf)
			cmd.SetErr(&outBuf)

			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			ctx := context.WithValue(context.Background(), types.CtxLogger, logger)
			cmd.SetContext(context.WithValue(ctx, create.MockControllerKey{}, fake))

			for name, value := range tt.flags {
				if err := cmd.Flags().Set(name, value); err != nil {
					t.Fatalf("failed to set flag %q: %v", name, err)
				}
			}
			cmd.SetArgs(tt.args)
			err := cmd.Execute()

			if tt.wantErrIs != nil {
				if !errors.Is(err, tt.wantErrIs) {
					t.Fatalf("expected error %v, got %v", tt.wantErrIs, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if fake.got != nil {
				if diff := cmp.Diff(tt.wantReq, *fake.got); diff != "" {
					t.Errorf("request mismatch (-want +got):\n%s", diff)
				}
			}
			if tt.wantOutput != "" && !strings.Contains(outBuf.String(), tt.wantOutput) {
				t.Errorf("output missing %q. Got output: %q", tt.wantOutput, outBuf.String())
			}
		})
	}
}

type fakeCreateController struct {
	got *router.Request
	err error
}

func (f *fakeCreateController) Create(req router.Request) (specs.State, error) {
	f.got = &req
	if f.err != nil {
		return specs.State{}, f.err
	}
	return specs.State{ID: req.ID, Status: specs.StateCreated}, nil
}
