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

package shared

import (
	"fmt"
	"strings"

	"github.com/eminwux/kukepx/cmd/config"
	"github.com/eminwux/kukepx/internal/controller"
	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/eminwux/kukepx/internal/modelhub"
	"github.com/eminwux/kukepx/internal/router"
	"github.com/spf13/cobra"
)

const mib = 1 << 20

// AddRuntimeFlag registers --runtime with completion.
func AddRuntimeFlag(cmd *cobra.Command) {
	cmd.Flags().String("runtime", "", "Backend runtime (proxmox-lxc, proxmox-vm, lxc, crun, runc)")
	_ = cmd.RegisterFlagCompletionFunc("runtime", config.CompleteRuntimeTypes)
}

// TargetFromArgs builds a controller.Target from the first positional
// argument and --runtime.
func TargetFromArgs(cmd *cobra.Command, args []string) (controller.Target, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return controller.Target{}, errdefs.ErrContainerIDRequired
	}
	rt, err := cmd.Flags().GetString("runtime")
	if err != nil {
		return controller.Target{}, err
	}
	return controller.Target{ID: strings.TrimSpace(args[0]), Runtime: strings.TrimSpace(rt)}, nil
}

// AddResourceFlags registers --memory, --cores and --cpu-shares.
func AddResourceFlags(cmd *cobra.Command) {
	cmd.Flags().Int64("memory", 0, "Memory limit in MiB")
	cmd.Flags().Int("cores", 0, "CPU cores")
	cmd.Flags().Uint64("cpu-shares", 0, "CPU shares (converted to cores when --cores is not set)")
}

// ResourcesFromFlags reads the flags registered by AddResourceFlags.
func ResourcesFromFlags(cmd *cobra.Command) (modelhub.Resources, error) {
	memory, err := cmd.Flags().GetInt64("memory")
	if err != nil {
		return modelhub.Resources{}, err
	}
	cores, err := cmd.Flags().GetInt("cores")
	if err != nil {
		return modelhub.Resources{}, err
	}
	shares, err := cmd.Flags().GetUint64("cpu-shares")
	if err != nil {
		return modelhub.Resources{}, err
	}
	if memory < 0 || cores < 0 {
		return modelhub.Resources{}, fmt.Errorf("%w: --memory and --cores must not be negative", errdefs.ErrInvalidInput)
	}
	return modelhub.Resources{MemoryBytes: memory * mib, Cores: cores, CPUShares: shares}, nil
}

// AddSandboxFlags registers every flag create and run accept.
func AddSandboxFlags(cmd *cobra.Command) {
	AddRuntimeFlag(cmd)
	AddResourceFlags(cmd)
	cmd.Flags().StringP("bundle", "b", "", "Path to the OCI bundle directory")
	cmd.Flags().String("image", "", "Image: Proxmox volume id, template path or OCI reference")
	cmd.Flags().String("name", "", "Human-readable name (hostname)")
	cmd.Flags().String("bridge", "", "Bridge for the first interface")
	cmd.Flags().String("ip", "", "Address in CIDR notation, or dhcp")
	cmd.Flags().String("gateway", "", "Default gateway")
	cmd.Flags().String("storage", "", "Storage pool for the root filesystem")
	cmd.Flags().String("rootfs-size", "", "Root filesystem size in GiB")
	cmd.Flags().Bool("dataset", false, "Provision a ZFS dataset for checkpoints")
	_ = cmd.MarkFlagDirname("bundle")
}

// RequestFromFlags builds a create/run request for id from the flags
// registered by AddSandboxFlags.
func RequestFromFlags(cmd *cobra.Command, id string) (router.Request, error) {
	res, err := ResourcesFromFlags(cmd)
	if err != nil {
		return router.Request{}, err
	}

	str := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return strings.TrimSpace(v)
	}
	dataset, err := cmd.Flags().GetBool("dataset")
	if err != nil {
		return router.Request{}, err
	}

	return router.Request{
		ID:        strings.TrimSpace(id),
		Name:      str("name"),
		Runtime:   str("runtime"),
		Image:     str("image"),
		Bundle:    str("bundle"),
		Resources: res,
		Network: modelhub.Network{
			Bridge:  str("bridge"),
			IP:      str("ip"),
			Gateway: str("gateway"),
		},
		Storage: modelhub.Storage{
			Pool:    str("storage"),
			Size:    str("rootfs-size"),
			Dataset: dataset,
		},
	}, nil
}
