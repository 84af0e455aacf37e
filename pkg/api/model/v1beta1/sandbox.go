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

package v1beta1

type SandboxDoc struct {
	APIVersion Version         `json:"apiVersion"       yaml:"apiVersion"`
	Kind       Kind            `json:"kind"             yaml:"kind"`
	Metadata   SandboxMetadata `json:"metadata"         yaml:"metadata"`
	Spec       SandboxSpec     `json:"spec"             yaml:"spec"`
	Status     *SandboxStatus  `json:"status,omitempty" yaml:"status,omitempty"`
}

type SandboxMetadata struct {
	Name   string            `json:"name"             yaml:"name"`
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

type SandboxSpec struct {
	// ID is the container id. Defaults to metadata.name.
	ID        string           `json:"id,omitempty"        yaml:"id,omitempty"`
	Runtime   string           `json:"runtime,omitempty"   yaml:"runtime,omitempty"`
	Image     string           `json:"image,omitempty"     yaml:"image,omitempty"`
	Bundle    string           `json:"bundle,omitempty"    yaml:"bundle,omitempty"`
	Resources SandboxResources `json:"resources,omitempty" yaml:"resources,omitempty"`
	Network   SandboxNetwork   `json:"network,omitempty"   yaml:"network,omitempty"`
	Storage   SandboxStorage   `json:"storage,omitempty"   yaml:"storage,omitempty"`
	// Start boots the container after creation.
	Start bool `json:"start,omitempty" yaml:"start,omitempty"`
}

type SandboxResources struct {
	MemoryBytes int64  `json:"memoryBytes,omitempty" yaml:"memoryBytes,omitempty"`
	CPUShares   uint64 `json:"cpuShares,omitempty"   yaml:"cpuShares,omitempty"`
	Cores       int    `json:"cores,omitempty"       yaml:"cores,omitempty"`
}

type SandboxNetwork struct {
	Bridge  string `json:"bridge,omitempty"  yaml:"bridge,omitempty"`
	IP      string `json:"ip,omitempty"      yaml:"ip,omitempty"`
	Gateway string `json:"gateway,omitempty" yaml:"gateway,omitempty"`
}

type SandboxStorage struct {
	Pool    string `json:"pool,omitempty"    yaml:"pool,omitempty"`
	Size    string `json:"size,omitempty"    yaml:"size,omitempty"`
	Dataset bool   `json:"dataset,omitempty" yaml:"dataset,omitempty"`
}

// SandboxStatus mirrors the OCI state record of the created container.
type SandboxStatus struct {
	State   string `json:"state"             yaml:"state"`
	Pid     int    `json:"pid,omitempty"     yaml:"pid,omitempty"`
	Bundle  string `json:"bundle,omitempty"  yaml:"bundle,omitempty"`
	Runtime string `json:"runtime,omitempty" yaml:"runtime,omitempty"`
	VMID    string `json:"vmid,omitempty"    yaml:"vmid,omitempty"`
}
