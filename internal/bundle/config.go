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

package bundle

import (
	"fmt"
	"strings"

	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Config is the backend-native container configuration produced from a
// bundle. It is built once per create and not modified afterwards.
type Config struct {
	Hostname     string
	MemoryMB     int
	Cores        int
	Features     Features
	Unprivileged bool
	Networks     []NetInterface
	Mounts       []MountPoint
	RootFS       string
	Args         []string
	Env          []string
	Cwd          string
	MemoryPolicy *specs.LinuxMemoryPolicy
}

// Features are LXC feature flags derived from OCI namespaces.
type Features struct {
	Nesting bool
	Keyctl  bool
}

func (f Features) IsZero() bool { return !f.Nesting && !f.Keyctl }

// String renders the pct --features value, e.g. "keyctl=1,nesting=1".
func (f Features) String() string {
	var parts []string
	if f.Keyctl {
		parts = append(parts, "keyctl=1")
	}
	if f.Nesting {
		parts = append(parts, "nesting=1")
	}
	return strings.Join(parts, ",")
}

type NetInterface struct {
	Name    string
	Bridge  string
	IP      string
	Gateway string
}

// String renders a pct --netN value.
func (n NetInterface) String() string {
	parts := []string{"name=" + n.Name, "bridge=" + n.Bridge}
	if n.IP != "" {
		parts = append(parts, "ip="+n.IP)
	}
	if n.Gateway != "" {
		parts = append(parts, "gw="+n.Gateway)
	}
	return strings.Join(parts, ",")
}

// MountPoint is a bind mount of a host path or a storage-backed volume.
type MountPoint struct {
	// Source is a host path for binds, "<storage>:<size>" for volumes.
	Source   string
	Target   string
	ReadOnly bool
	Volume   bool
}

// String renders a pct --mpN value.
func (m MountPoint) String() string {
	s := fmt.Sprintf("%s,mp=%s", m.Source, m.Target)
	if m.ReadOnly {
		s += ",ro=1"
	}
	return s
}
