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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/eminwux/kukepx/internal/consts"
	"github.com/eminwux/kukepx/internal/controller"
	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/eminwux/kukepx/internal/modelhub"
	"github.com/spf13/viper"
)

// Version is stamped at build time.
//
//nolint:gochecknoglobals // set via -ldflags
var Version = "dev"

type Var struct {
	Key        string // e.g. "KUKEPX_RUN_PATH"
	ViperKey   string // optional, e.g. "kukepx.runPath"
	CobraKey   string // optional, e.g. "run-path"
	Default    string // optional
	HasDefault bool
}

func DefineKV(envName, viperKey string, defaultVal ...string) Var {
	v := Var{Key: envName, ViperKey: viperKey}
	if len(defaultVal) > 0 {
		v.Default = defaultVal[0]
		v.HasDefault = true
	}
	return v
}

func Define(envName string, defaultVal ...string) Var {
	return DefineKV(envName, "", defaultVal...)
}

func (v *Var) EnvKey() string               { return v.Key }
func (v *Var) DefaultValue() (string, bool) { return v.Default, v.HasDefault }

// ValueOrDefault defines precedence: viper (if ViperKey set and value present) → OS env → default → "".
func (v *Var) ValueOrDefault() string {
	if v.ViperKey != "" && viper.IsSet(v.ViperKey) {
		return viper.GetString(v.ViperKey)
	}
	if val, ok := os.LookupEnv(v.Key); ok {
		return val
	}
	if v.HasDefault {
		return v.Default
	}
	return ""
}

// BindEnv is safe if ViperKey is empty: does nothing.
func (v *Var) BindEnv() error {
	if v.ViperKey == "" {
		return nil
	}
	return viper.BindEnv(v.ViperKey, v.Key)
}

func (v *Var) Set(value string) error {
	return os.Setenv(v.Key, value)
}

func KV(v Var, value string) string { return v.Key + "=" + value }

// ---- Declare statically (Viper key optional per var) ----.
//
//nolint:revive,gochecknoglobals,staticcheck // env var names mirror the variables
var (
	KUKEPX_ROOT_VERBOSE     = DefineKV("KUKEPX_VERBOSE", "kukepx.verbose")
	KUKEPX_ROOT_RUN_PATH    = DefineKV("KUKEPX_RUN_PATH", "kukepx.runPath")
	KUKEPX_ROOT_CONFIG_FILE = DefineKV("KUKEPX_CONFIG_FILE", "kukepx.configFile")
	KUKEPX_ROOT_LOG_LEVEL   = DefineKV("KUKEPX_LOG_LEVEL", "kukepx.logLevel", "info")
	KUKEPX_ROOT_RUNTIME     = DefineKV("KUKEPX_RUNTIME", "kukepx.runtime", string(modelhub.RuntimeProxmoxLXC))

	KUKEPX_BRIDGE      = DefineKV("KUKEPX_BRIDGE", "kukepx.bridge", consts.DefaultBridge)
	KUKEPX_MEMORY_MB   = DefineKV("KUKEPX_MEMORY_MB", "kukepx.memoryMB", strconv.Itoa(consts.DefaultMemoryMB))
	KUKEPX_CORES       = DefineKV("KUKEPX_CORES", "kukepx.cores", strconv.Itoa(consts.DefaultCores))
	KUKEPX_STORAGE     = DefineKV("KUKEPX_STORAGE", "kukepx.storage", consts.DefaultStorage)
	KUKEPX_ROOTFS_SIZE = DefineKV("KUKEPX_ROOTFS_SIZE", "kukepx.rootfsSize", consts.DefaultRootFSSize)

	KUKEPX_ZFS_POOL         = DefineKV("KUKEPX_ZFS_POOL", "kukepx.zfsPool", consts.DefaultZFSPool)
	KUKEPX_ZFS_DATASET_ROOT = DefineKV("KUKEPX_ZFS_DATASET_ROOT", "kukepx.zfsDatasetRoot", consts.DefaultDatasetRoot)
	KUKEPX_ZFS_KEEP_NEWER   = DefineKV("KUKEPX_ZFS_KEEP_NEWER", "kukepx.zfsKeepNewer", "false")

	KUKEPX_VMID_MIN       = DefineKV("KUKEPX_VMID_MIN", "kukepx.vmidMin", strconv.Itoa(consts.DefaultVMIDMin))
	KUKEPX_VMID_MAX       = DefineKV("KUKEPX_VMID_MAX", "kukepx.vmidMax", strconv.Itoa(consts.DefaultVMIDMax))
	KUKEPX_PROBE_ATTEMPTS = DefineKV("KUKEPX_PROBE_ATTEMPTS", "kukepx.probeAttempts", strconv.Itoa(consts.DefaultProbeAttempts))
	KUKEPX_POLL_ATTEMPTS  = DefineKV("KUKEPX_POLL_ATTEMPTS", "kukepx.pollAttempts", strconv.Itoa(consts.DefaultPollAttempts))
	KUKEPX_POLL_INTERVAL  = DefineKV("KUKEPX_POLL_INTERVAL", "kukepx.pollInterval", consts.DefaultPollInterval.String())
	KUKEPX_CMD_TIMEOUT    = DefineKV("KUKEPX_CMD_TIMEOUT", "kukepx.cmdTimeout", consts.DefaultCmdTimeout.String())

	KUKEPX_PVE_CONF_DIR = DefineKV("KUKEPX_PVE_CONF_DIR", "kukepx.pveConfDir", consts.DefaultPVELXCDir)
	KUKEPX_LXC_PATH     = DefineKV("KUKEPX_LXC_PATH", "kukepx.lxcPath", consts.DefaultLXCPath)
	KUKEPX_CRUN_ROOT    = DefineKV("KUKEPX_CRUN_ROOT", "kukepx.crunRoot", consts.DefaultCrunRoot)
	KUKEPX_RUNC_ROOT    = DefineKV("KUKEPX_RUNC_ROOT", "kukepx.runcRoot", consts.DefaultRuncRoot)
)

// Vars lists every variable bound from the environment during config loading.
func Vars() []*Var {
	return []*Var{
		&KUKEPX_ROOT_VERBOSE, &KUKEPX_ROOT_RUN_PATH, &KUKEPX_ROOT_CONFIG_FILE, &KUKEPX_ROOT_LOG_LEVEL,
		&KUKEPX_ROOT_RUNTIME, &KUKEPX_BRIDGE, &KUKEPX_MEMORY_MB, &KUKEPX_CORES, &KUKEPX_STORAGE,
		&KUKEPX_ROOTFS_SIZE, &KUKEPX_ZFS_POOL, &KUKEPX_ZFS_DATASET_ROOT, &KUKEPX_ZFS_KEEP_NEWER,
		&KUKEPX_VMID_MIN, &KUKEPX_VMID_MAX, &KUKEPX_PROBE_ATTEMPTS, &KUKEPX_POLL_ATTEMPTS, &KUKEPX_POLL_INTERVAL,
		&KUKEPX_CMD_TIMEOUT, &KUKEPX_PVE_CONF_DIR, &KUKEPX_LXC_PATH, &KUKEPX_CRUN_ROOT, &KUKEPX_RUNC_ROOT,
	}
}

// DefaultConfigFile returns the config file read when --config is not given.
func DefaultConfigFile() string {
	return consts.DefaultConfigFile
}

// DefaultRunPath returns the directory holding state and mapping files.
func DefaultRunPath() string {
	return consts.DefaultRunPath()
}

func intVar(v *Var) (int, error) {
	raw := v.ValueOrDefault()
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", errdefs.ErrConfig, v.Key, raw)
	}
	return n, nil
}

func boolVar(v *Var) (bool, error) {
	raw := v.ValueOrDefault()
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q is not a boolean", errdefs.ErrConfig, v.Key, raw)
	}
	return b, nil
}

func durationVar(v *Var) (time.Duration, error) {
	raw := v.ValueOrDefault()
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a duration", errdefs.ErrConfig, v.Key, raw)
	}
	return d, nil
}

// ControllerOptions resolves the controller configuration from flags, the
// config file, the environment and defaults, in that order.
func ControllerOptions() (controller.Options, error) {
	rt, err := modelhub.ParseRuntimeType(KUKEPX_ROOT_RUNTIME.ValueOrDefault())
	if err != nil {
		return controller.Options{}, fmt.Errorf("%w: %w", errdefs.ErrConfig, err)
	}

	var (
		opts            controller.Options
		memoryMB, cores int
	)
	for _, iv := range []struct {
		v   *Var
		dst *int
	}{
		{&KUKEPX_MEMORY_MB, &memoryMB},
		{&KUKEPX_CORES, &cores},
		{&KUKEPX_VMID_MIN, &opts.VMIDMin},
		{&KUKEPX_VMID_MAX, &opts.VMIDMax},
		{&KUKEPX_PROBE_ATTEMPTS, &opts.ProbeAttempts},
		{&KUKEPX_POLL_ATTEMPTS, &opts.PollAttempts},
	} {
		if *iv.dst, err = intVar(iv.v); err != nil {
			return controller.Options{}, err
		}
	}
	if opts.PollInterval, err = durationVar(&KUKEPX_POLL_INTERVAL); err != nil {
		return controller.Options{}, err
	}
	if opts.CmdTimeout, err = durationVar(&KUKEPX_CMD_TIMEOUT); err != nil {
		return controller.Options{}, err
	}
	if opts.ZFSKeepNewer, err = boolVar(&KUKEPX_ZFS_KEEP_NEWER); err != nil {
		return controller.Options{}, err
	}

	opts.RunPath = KUKEPX_ROOT_RUN_PATH.ValueOrDefault()
	if opts.RunPath == "" {
		opts.RunPath = DefaultRunPath()
	}
	opts.Defaults = modelhub.Defaults{
		Runtime:   rt,
		Bridge:    KUKEPX_BRIDGE.ValueOrDefault(),
		MemoryMB:  memoryMB,
		Cores:     cores,
		Storage:   KUKEPX_STORAGE.ValueOrDefault(),
		RootFSGiB: KUKEPX_ROOTFS_SIZE.ValueOrDefault(),
	}
	opts.ZFSPool = KUKEPX_ZFS_POOL.ValueOrDefault()
	opts.DatasetRoot = KUKEPX_ZFS_DATASET_ROOT.ValueOrDefault()
	opts.PVEConfDir = KUKEPX_PVE_CONF_DIR.ValueOrDefault()
	opts.LXCPath = KUKEPX_LXC_PATH.ValueOrDefault()
	opts.CrunRoot = KUKEPX_CRUN_ROOT.ValueOrDefault()
	opts.RuncRoot = KUKEPX_RUNC_ROOT.ValueOrDefault()
	return opts, nil
}
