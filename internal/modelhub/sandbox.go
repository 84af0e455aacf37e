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

package modelhub

import (
	"fmt"
	"strings"

	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// RuntimeType selects the execution backend.
type RuntimeType string

const (
	RuntimeProxmoxLXC RuntimeType = "proxmox-lxc"
	RuntimeLXC        RuntimeType = "lxc"
	RuntimeCrun       RuntimeType = "crun"
	RuntimeRunc       RuntimeType = "runc"
	RuntimeProxmoxVM  RuntimeType = "proxmox-vm"
)

// RuntimeTypes lists every backend in dispatch order.
func RuntimeTypes() []RuntimeType {
	return []RuntimeType{RuntimeProxmoxLXC, RuntimeLXC, RuntimeCrun, RuntimeRunc, RuntimeProxmoxVM}
}

// ParseRuntimeType accepts the canonical names plus a few aliases.
func ParseRuntimeType(s string) (RuntimeType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "proxmox-lxc", "pve", "pct", "proxmox":
		return RuntimeProxmoxLXC, nil
	case "lxc":
		return RuntimeLXC, nil
	case "crun":
		return RuntimeCrun, nil
	case "runc":
		return RuntimeRunc, nil
	case "proxmox-vm", "qm", "vm":
		return RuntimeProxmoxVM, nil
	default:
		return "", fmt.Errorf("runtime %q", s)
	}
}

// UsesVMID reports whether the backend addresses containers by numeric identity.
func (r RuntimeType) UsesVMID() bool {
	return r == RuntimeProxmoxLXC || r == RuntimeProxmoxVM
}

// Resources are caller-supplied limits. Zero means unset.
type Resources struct {
	MemoryBytes int64
	CPUShares   uint64
	Cores       int
}

func (r Resources) IsZero() bool {
	return r.MemoryBytes == 0 && r.CPUShares == 0 && r.Cores == 0
}

type Network struct {
	Bridge  string
	IP      string
	Gateway string
}

func (n Network) IsZero() bool {
	return n.Bridge == "" && n.IP == "" && n.Gateway == ""
}

type Storage struct {
	// Pool is the backend storage id for the root filesystem (e.g. local-lvm).
	Pool string
	// Size is the root filesystem size in GiB.
	Size string
	// Dataset requests a ZFS dataset for checkpointing.
	Dataset bool
}

// SandboxConfig is one fully built request handed to a driver.
type SandboxConfig struct {
	ID        string
	Name      string
	Runtime   RuntimeType
	Image     string
	Bundle    string
	Resources Resources
	Network   Network
	Storage   Storage
	Force     bool
}

// Defaults are operator-configured values merged into requests that omit them.
type Defaults struct {
	Runtime   RuntimeType
	Bridge    string
	MemoryMB  int
	Cores     int
	Storage   string
	RootFSGiB string
}

// Sandbox is the internal form of a manifest document.
type Sandbox struct {
	Name   string
	Labels map[string]string
	Config SandboxConfig
	// Start boots the container once created.
	Start bool
	// State is the last observed record, nil before the first apply.
	State *specs.State
}
