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

package consts

import (
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

const (
	AppName = "kukepx"

	StateDirName    = "state"
	StateFileName   = "state.json"
	MappingFileName = "vmids.json"
	LockSuffix      = ".lock"

	// OCIVersion is the runtime-spec version written into state records.
	OCIVersion = "1.3.0"

	AnnotationRuntime        = "io.kukepx.runtime"
	AnnotationDefaultRuntime = "io.kukepx.runtime.default"
	AnnotationVMID           = "io.kukepx.vmid"
	AnnotationName           = "io.kukepx.name"
	AnnotationImage          = "io.kukepx.image"

	DefaultBridge      = "vmbr0"
	DefaultMemoryMB    = 512
	DefaultCores       = 1
	DefaultStorage     = "local-lvm"
	DefaultRootFSSize  = "8"
	DefaultZFSPool     = "rpool"
	DefaultDatasetRoot = "containers"
	DefaultPVELXCDir   = "/etc/pve/lxc"
	DefaultLXCPath     = "/var/lib/lxc"
	DefaultCrunRoot    = "/run/crun"
	DefaultRuncRoot    = "/run/runc"
	DefaultConfigFile  = "/etc/kukepx/config.yaml"

	DefaultVMIDMin       = 100
	DefaultVMIDMax       = 999999
	DefaultProbeAttempts = 100
	DefaultPollAttempts  = 10
	DefaultPollInterval  = 500 * time.Millisecond
	DefaultCmdTimeout    = 60 * time.Second
)

// DefaultRunPath returns /run/kukepx for root and the XDG runtime dir otherwise.
func DefaultRunPath() string {
	if os.Geteuid() == 0 {
		return filepath.Join("/run", AppName)
	}
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, AppName)
	}
	return filepath.Join(xdg.StateHome, AppName, "run")
}
