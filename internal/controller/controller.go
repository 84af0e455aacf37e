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

package controller

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/eminwux/kukepx/internal/bundle"
	"github.com/eminwux/kukepx/internal/checkpoint"
	"github.com/eminwux/kukepx/internal/cmdrunner"
	"github.com/eminwux/kukepx/internal/consts"
	"github.com/eminwux/kukepx/internal/driver"
	"github.com/eminwux/kukepx/internal/modelhub"
	"github.com/eminwux/kukepx/internal/router"
	"github.com/eminwux/kukepx/internal/state"
	"github.com/eminwux/kukepx/internal/vmid"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/opencontainers/runtime-spec/specs-go/features"
)

// Router is the slice of router.Router the controller drives.
type Router interface {
	Dispatch(ctx context.Context, req router.Request) (specs.State, error)
	List(ctx context.Context, refresh bool) ([]specs.State, error)
	Features() features.Features
	Checkpoint(ctx context.Context, id, name string) error
	Restore(ctx context.Context, id, name string) error
	ListCheckpoints(ctx context.Context, id string) ([]string, error)
	DeleteCheckpoint(ctx context.Context, id, name string) error
}

type Exec struct {
	ctx    context.Context
	logger *slog.Logger
	opts   Options
	router Router
}

type Options struct {
	RunPath  string
	Defaults modelhub.Defaults

	VMIDMin       int
	VMIDMax       int
	ProbeAttempts int

	PollAttempts int
	PollInterval time.Duration
	CmdTimeout   time.Duration

	ZFSPool     string
	DatasetRoot string
	// ZFSKeepNewer makes restore fail instead of destroying snapshots
	// newer than the one being restored.
	ZFSKeepNewer bool

	PVEConfDir string
	LXCPath    string
	CrunRoot   string
	RuncRoot   string
}

// NewControllerExec wires the state store, identity mapper, translator,
// checkpoint manager and every backend driver behind one router.
func NewControllerExec(ctx context.Context, logger *slog.Logger, opts Options) (*Exec, error) {
	return NewControllerExecWithRunner(ctx, logger, opts, cmdrunner.NewExec(opts.CmdTimeout), bundle.NetlinkProber{})
}

// NewControllerExecWithRunner is NewControllerExec with the command runner
// and link prober supplied by the caller.
func NewControllerExecWithRunner(
	ctx context.Context,
	logger *slog.Logger,
	opts Options,
	runner cmdrunner.Runner,
	links bundle.LinkProber,
) (*Exec, error) {
	if opts.RunPath == "" {
		opts.RunPath = consts.DefaultRunPath()
	}
	if opts.ZFSPool == "" {
		opts.ZFSPool = consts.DefaultZFSPool
	}
	if opts.DatasetRoot == "" {
		opts.DatasetRoot = consts.DefaultDatasetRoot
	}

	store := state.NewStore(logger, filepath.Join(opts.RunPath, consts.StateDirName))
	mapper, err := vmid.New(logger, vmid.Options{
		Path:     filepath.Join(opts.RunPath, consts.MappingFileName),
		Min:      opts.VMIDMin,
		Max:      opts.VMIDMax,
		Attempts: opts.ProbeAttempts,
		Prober:   driver.ProxmoxProber{Runner: runner},
	})
	if err != nil {
		return nil, fmt.Errorf("identity mapper: %w", err)
	}

	translator := bundle.NewTranslator(logger, links, opts.Defaults)
	checkpoints := checkpoint.NewManager(logger, runner, checkpoint.Options{
		Pool:        opts.ZFSPool,
		DatasetRoot: opts.DatasetRoot,
		KeepNewer:   opts.ZFSKeepNewer,
	})

	base := driver.Options{PollAttempts: opts.PollAttempts, PollInterval: opts.PollInterval}
	pve := driver.ProxmoxOptions{
		Options:   base,
		Storage:   opts.Defaults.Storage,
		RootFSGiB: opts.Defaults.RootFSGiB,
		ConfDir:   opts.PVEConfDir,
	}

	r := router.New(logger, store, opts.Defaults, checkpoints,
		driver.NewProxmoxLXC(logger, runner, store, mapper, translator, checkpoints, pve),
		driver.NewProxmoxVM(logger, runner, store, mapper, translator, pve),
		driver.NewLXC(logger, runner, store, translator, driver.LXCOptions{Options: base, Path: opts.LXCPath}),
		driver.NewCrun(logger, runner, store, driver.OCIOptions{Options: base, Root: opts.CrunRoot}),
		driver.NewRunc(logger, runner, store, driver.OCIOptions{Options: base, Root: opts.RuncRoot}),
	)

	return NewControllerExecWithRouter(ctx, logger, opts, r), nil
}

// NewControllerExecWithRouter builds a controller over an existing router.
func NewControllerExecWithRouter(ctx context.Context, logger *slog.Logger, opts Options, r Router) *Exec {
	return &Exec{
		ctx:    ctx,
		logger: logger,
		opts:   opts,
		router: r,
	}
}
