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

package bundle_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/eminwux/kukepx/internal/bundle"
	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/eminwux/kukepx/internal/logging"
	"github.com/eminwux/kukepx/internal/modelhub"
	"github.com/google/go-cmp/cmp"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

type fakeLinks map[string]bool

func (f fakeLinks) IsBridge(name string) bool { return f[name] }

func newTranslator(links bundle.LinkProber) *bundle.Translator {
	return bundle.NewTranslator(logging.NewNoopLogger(), links, modelhub.Defaults{
		Bridge:   "vmbr0",
		MemoryMB: 256,
		Cores:    1,
	})
}

func parse(t *testing.T, raw string) *bundle.Bundle {
	t.Helper()
	b, err := bundle.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return b
}

func TestLoadBundle(t *testing.T) {
	dir := t.TempDir()
	raw := `{"ociVersion":"1.0.2","root":{"path":"rootfs"},"process":{"args":["/bin/sh"],"env":["A=1"],"cwd":"/"},"hostname":"web"}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	b, err := bundle.Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if b.RootFS() != filepath.Join(dir, "rootfs") {
		t.Errorf("RootFS() = %q", b.RootFS())
	}
	if b.Spec.Hostname != "web" {
		t.Errorf("Hostname = %q", b.Spec.Hostname)
	}
}

func TestLoadMissingConfig(t *testing.T) {
	_, err := bundle.Load(t.TempDir())
	if !errors.Is(err, errdefs.ErrInvalidInput) {
		t.Fatalf("Load() error = %v, want invalid input", err)
	}
}

func TestCheckVersion(t *testing.T) {
	for _, ok := range []string{"1.0.0", "1.0.2-dev", "1.1.0", "1.2.1", "1.3.0", "1.3.9+build"} {
		if err := bundle.CheckVersion(ok); err != nil {
			t.Errorf("CheckVersion(%q) error = %v", ok, err)
		}
	}
	for _, bad := range []string{"", "0.9.0", "1.4.0", "2.0.0", "1.x"} {
		if err := bundle.CheckVersion(bad); !errors.Is(err, errdefs.ErrUnsupportedOCIVersion) {
			t.Errorf("CheckVersion(%q) error = %v", bad, err)
		}
	}
}

func TestParseMalformed(t *testing.T) {
	_, err := bundle.Parse([]byte(`{"ociVersion":"1.0.0","linux":{"resources":{"memory":{"limit":"lots"}}}}`))
	if !errors.Is(err, errdefs.ErrMalformedBundle) {
		t.Fatalf("Parse() error = %v", err)
	}
}

func TestParseLinuxExtensions(t *testing.T) {
	b := parse(t, `{"ociVersion":"1.3.0","linux":{
		"netDevices":{"enp9s0":{"name":"eth1"}},
		"memoryPolicy":{"mode":"MPOL_PREFERRED","nodes":"1","flags":["MPOL_F_RELATIVE_NODES"]}
	}}`)

	if diff := cmp.Diff(map[string]specs.LinuxNetDevice{"enp9s0": {Name: "eth1"}}, b.NetDevices()); diff != "" {
		t.Errorf("NetDevices() (-want +got):\n%s", diff)
	}
	want := &specs.LinuxMemoryPolicy{
		Mode:  specs.MpolPreferred,
		Nodes: "1",
		Flags: []specs.MemoryPolicyFlagType{specs.MpolFRelativeNodes},
	}
	if diff := cmp.Diff(want, b.MemoryPolicy()); diff != "" {
		t.Errorf("MemoryPolicy() (-want +got):\n%s", diff)
	}

	bare := parse(t, `{"ociVersion":"1.0.0"}`)
	if bare.NetDevices() != nil || bare.MemoryPolicy() != nil {
		t.Errorf("bundle without linux section: %v %v", bare.NetDevices(), bare.MemoryPolicy())
	}
}

func TestSharesToCores(t *testing.T) {
	tests := map[uint64]int{1: 1, 2: 1, 100: 1, 512: 1, 1024: 1, 1536: 2, 2048: 2, 4096: 4}
	for shares, want := range tests {
		if got := bundle.SharesToCores(shares); got != want {
			t.Errorf("SharesToCores(%d) = %d, want %d", shares, got, want)
		}
	}
}

func TestTranslateResourcesPrecedence(t *testing.T) {
	ctx := context.Background()
	tr := newTranslator(nil)

	tests := []struct {
		name      string
		raw       string
		req       modelhub.Resources
		wantMem   int
		wantCores int
	}{
		{
			name:      "bundle wins",
			raw:       `{"ociVersion":"1.2.0","linux":{"resources":{"memory":{"limit":1073741824},"cpu":{"shares":2048}}}}`,
			req:       modelhub.Resources{MemoryBytes: 64 << 20, Cores: 8},
			wantMem:   1024,
			wantCores: 2,
		},
		{
			name:      "shares below one core never yield zero",
			raw:       `{"ociVersion":"1.2.0","linux":{"resources":{"cpu":{"shares":512}}}}`,
			wantMem:   256,
			wantCores: 1,
		},
		{
			name:      "request beats defaults",
			raw:       `{"ociVersion":"1.1.0"}`,
			req:       modelhub.Resources{MemoryBytes: 300 << 20, Cores: 3},
			wantMem:   300,
			wantCores: 3,
		},
		{
			name:      "memory rounds down with one MB minimum",
			raw:       `{"ociVersion":"1.0.0","linux":{"resources":{"memory":{"limit":1000}}}}`,
			wantMem:   1,
			wantCores: 1,
		},
		{
			name:      "unlimited memory falls through",
			raw:       `{"ociVersion":"1.0.0","linux":{"resources":{"memory":{"limit":-1}}}}`,
			wantMem:   256,
			wantCores: 1,
		},
		{
			name:      "quota over period rounds up",
			raw:       `{"ociVersion":"1.0.0","linux":{"resources":{"cpu":{"quota":150000,"period":100000}}}}`,
			wantMem:   256,
			wantCores: 2,
		},
		{
			name:      "request shares",
			raw:       `{"ociVersion":"1.0.0"}`,
			req:       modelhub.Resources{CPUShares: 3072},
			wantMem:   256,
			wantCores: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := tr.Translate(ctx, parse(t, tt.raw), modelhub.SandboxConfig{ID: "c1", Resources: tt.req})
			if err != nil {
				t.Fatalf("Translate() error = %v", err)
			}
			if cfg.MemoryMB != tt.wantMem || cfg.Cores != tt.wantCores {
				t.Errorf("memory=%d cores=%d, want %d/%d", cfg.MemoryMB, cfg.Cores, tt.wantMem, tt.wantCores)
			}
		})
	}
}

func TestTranslateUserNamespaceFeatures(t *testing.T) {
	raw := `{"ociVersion":"1.1.0","linux":{"namespaces":[{"type":"pid"},{"type":"user"},{"type":"network"}]}}`
	cfg, err := newTranslator(nil).Translate(context.Background(), parse(t, raw), modelhub.SandboxConfig{ID: "c1"})
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Unprivileged || !cfg.Features.Nesting || !cfg.Features.Keyctl {
		t.Errorf("user namespace flags not set: %+v", cfg)
	}
	if cfg.Features.String() != "keyctl=1,nesting=1" {
		t.Errorf("Features.String() = %q", cfg.Features.String())
	}
}

func TestTranslateWithoutUserNamespace(t *testing.T) {
	raw := `{"ociVersion":"1.1.0","linux":{"namespaces":[{"type":"pid"}]}}`
	cfg, err := newTranslator(nil).Translate(context.Background(), parse(t, raw), modelhub.SandboxConfig{ID: "c1"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Unprivileged || !cfg.Features.IsZero() {
		t.Errorf("unexpected features: %+v", cfg)
	}
}

func TestTranslateUnknownNamespace(t *testing.T) {
	raw := `{"ociVersion":"1.1.0","linux":{"namespaces":[{"type":"quantum"}]}}`
	_, err := newTranslator(nil).Translate(context.Background(), parse(t, raw), modelhub.SandboxConfig{ID: "c1"})
	if !errors.Is(err, errdefs.ErrUnknownNamespace) {
		t.Fatalf("Translate() error = %v", err)
	}
}

func TestTranslateNetDevices(t *testing.T) {
	raw := `{"ociVersion":"1.3.0","linux":{"netDevices":{"vmbr1":{"name":"eth0"},"enp9s0":{"name":"eth1"}}}}`
	tr := newTranslator(fakeLinks{"vmbr1": true})
	cfg, err := tr.Translate(context.Background(), parse(t, raw), modelhub.SandboxConfig{
		ID:      "c1",
		Network: modelhub.Network{IP: "10.0.0.5/24", Gateway: "10.0.0.1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []bundle.NetInterface{
		{Name: "eth1", Bridge: "vmbr0", IP: "10.0.0.5/24", Gateway: "10.0.0.1"},
		{Name: "eth0", Bridge: "vmbr1", IP: "dhcp"},
	}
	if diff := cmp.Diff(want, cfg.Networks); diff != "" {
		t.Errorf("Networks mismatch (-want +got):\n%s", diff)
	}
	if got := cfg.Networks[0].String(); got != "name=eth1,bridge=vmbr0,ip=10.0.0.5/24,gw=10.0.0.1" {
		t.Errorf("NetInterface.String() = %q", got)
	}
}

func TestTranslateDefaultNetwork(t *testing.T) {
	cfg, err := newTranslator(nil).Translate(context.Background(), nil, modelhub.SandboxConfig{
		ID:      "c1",
		Network: modelhub.Network{Bridge: "vmbr9"},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []bundle.NetInterface{{Name: "eth0", Bridge: "vmbr9", IP: "dhcp"}}
	if diff := cmp.Diff(want, cfg.Networks); diff != "" {
		t.Errorf("Networks mismatch (-want +got):\n%s", diff)
	}
	if cfg.Hostname != "c1" {
		t.Errorf("Hostname = %q", cfg.Hostname)
	}
}

func TestTranslateInvalidNetDeviceName(t *testing.T) {
	raw := `{"ociVersion":"1.3.0","linux":{"netDevices":{"eth0":{"name":"a-very-long-interface-name"}}}}`
	_, err := newTranslator(nil).Translate(context.Background(), parse(t, raw), modelhub.SandboxConfig{ID: "c1"})
	if !errors.Is(err, errdefs.ErrInvalidNetDevice) {
		t.Fatalf("Translate() error = %v", err)
	}
}

func TestTranslateMounts(t *testing.T) {
	raw := `{"ociVersion":"1.2.0","mounts":[
		{"destination":"/proc","type":"proc","source":"proc"},
		{"destination":"/dev/shm","type":"tmpfs","source":"shm"},
		{"destination":"/data","type":"bind","source":"/srv/data","options":["rbind","ro"]},
		{"destination":"/cache","source":"/var/cache/app","options":["bind"]},
		{"destination":"/vol","type":"volume","source":"local-lvm:4"}
	]}`
	cfg, err := newTranslator(nil).Translate(context.Background(), parse(t, raw), modelhub.SandboxConfig{ID: "c1"})
	if err != nil {
		t.Fatal(err)
	}
	want := []bundle.MountPoint{
		{Source: "/srv/data", Target: "/data", ReadOnly: true},
		{Source: "/var/cache/app", Target: "/cache"},
		{Source: "local-lvm:4", Target: "/vol", Volume: true},
	}
	if diff := cmp.Diff(want, cfg.Mounts); diff != "" {
		t.Errorf("Mounts mismatch (-want +got):\n%s", diff)
	}
	if got := cfg.Mounts[0].String(); got != "/srv/data,mp=/data,ro=1" {
		t.Errorf("MountPoint.String() = %q", got)
	}
}

func TestTranslateRejectsUnknownMountType(t *testing.T) {
	tests := []string{
		`{"ociVersion":"1.2.0","mounts":[{"destination":"/x","type":"nfs","source":"host:/x"}]}`,
		`{"ociVersion":"1.2.0","mounts":[{"destination":"/scratch","type":"tmpfs","source":"tmpfs"}]}`,
	}
	for _, raw := range tests {
		_, err := newTranslator(nil).Translate(context.Background(), parse(t, raw), modelhub.SandboxConfig{ID: "c1"})
		if !errors.Is(err, errdefs.ErrUnsupportedMount) {
			t.Errorf("Translate() error = %v, want ErrUnsupportedMount", err)
		}
	}
}

func TestTranslateRejectsRelativeMount(t *testing.T) {
	raw := `{"ociVersion":"1.2.0","mounts":[{"destination":"data","type":"bind","source":"/srv"}]}`
	_, err := newTranslator(nil).Translate(context.Background(), parse(t, raw), modelhub.SandboxConfig{ID: "c1"})
	if !errors.Is(err, errdefs.ErrInvalidInput) {
		t.Fatalf("Translate() error = %v", err)
	}
}

func TestTranslateMemoryPolicy(t *testing.T) {
	tests := []struct {
		name    string
		policy  string
		wantErr bool
	}{
		{"valid bind", `{"mode":"MPOL_BIND","nodes":"0-1,3","flags":["MPOL_F_STATIC_NODES"]}`, false},
		{"local without nodes", `{"mode":"MPOL_LOCAL"}`, false},
		{"unknown flag", `{"mode":"MPOL_BIND","nodes":"0","flags":["MPOL_F_BOGUS"]}`, true},
		{"unknown mode", `{"mode":"MPOL_RANDOM","nodes":"0"}`, true},
		{"bad nodes", `{"mode":"MPOL_INTERLEAVE","nodes":"0-"}`, true},
		{"missing nodes", `{"mode":"MPOL_BIND"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := `{"ociVersion":"1.3.0","linux":{"memoryPolicy":` + tt.policy + `}}`
			cfg, err := newTranslator(nil).Translate(context.Background(), parse(t, raw), modelhub.SandboxConfig{ID: "c1"})
			if tt.wantErr {
				if !errors.Is(err, errdefs.ErrInvalidMemoryPolicy) {
					t.Fatalf("Translate() error = %v, want ErrInvalidMemoryPolicy", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Translate() error = %v", err)
			}
			if cfg.MemoryPolicy == nil {
				t.Fatal("memory policy dropped from the translated config")
			}
		})
	}
}

func TestTranslateProcess(t *testing.T) {
	raw := `{"ociVersion":"1.0.0","hostname":"Api_Server","process":{"args":["/usr/bin/app","--port","80"],"env":["PATH=/bin"],"cwd":"/srv"}}`
	cfg, err := newTranslator(nil).Translate(context.Background(), parse(t, raw), modelhub.SandboxConfig{ID: "c1", Name: "ignored"})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"/usr/bin/app", "--port", "80"}, cfg.Args); diff != "" {
		t.Errorf("Args (-want +got):\n%s", diff)
	}
	if cfg.Hostname != "api-server" || cfg.Cwd != "/srv" || len(cfg.Env) != 1 {
		t.Errorf("unexpected translation %+v", cfg)
	}
}
