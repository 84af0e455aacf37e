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

package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/eminwux/kukepx/internal/cmdrunner"
	"github.com/eminwux/kukepx/internal/consts"
	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/eminwux/kukepx/internal/modelhub"
	"github.com/eminwux/kukepx/internal/state"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

type OCIOptions struct {
	Options

	// Binary defaults to the runtime name (crun or runc).
	Binary string
	// Root is the runtime state directory passed with --root.
	Root string
}

// ociCLI drives an OCI runtime CLI. The bundle is handed over as is; the
// runtime applies namespaces, mounts and resources itself.
type ociCLI struct {
	logger *slog.Logger
	runner cmdrunner.Runner
	kind   modelhub.RuntimeType
	opts   OCIOptions
}

func NewCrun(logger *slog.Logger, runner cmdrunner.Runner, store *state.Store, opts OCIOptions) *Exec {
	return newOCICLI(logger, runner, store, modelhub.RuntimeCrun, consts.DefaultCrunRoot, opts)
}

func NewRunc(logger *slog.Logger, runner cmdrunner.Runner, store *state.Store, opts OCIOptions) *Exec {
	return newOCICLI(logger, runner, store, modelhub.RuntimeRunc, consts.DefaultRuncRoot, opts)
}

func newOCICLI(
	logger *slog.Logger,
	runner cmdrunner.Runner,
	store *state.Store,
	kind modelhub.RuntimeType,
	root string,
	opts OCIOptions,
) *Exec {
	if opts.Binary == "" {
		opts.Binary = string(kind)
	}
	if opts.Root == "" {
		opts.Root = root
	}
	return newExec(logger, store, opts.Options, &ociCLI{
		logger: logger,
		runner: runner,
		kind:   kind,
		opts:   opts,
	})
}

func (o *ociCLI) runtime() modelhub.RuntimeType { return o.kind }

func (o *ociCLI) argv(args ...string) []string {
	return append([]string{o.opts.Binary, "--root", o.opts.Root}, args...)
}

func (o *ociCLI) provision(ctx context.Context, cfg modelhub.SandboxConfig) (map[string]string, error) {
	if cfg.Bundle == "" {
		return nil, errdefs.ErrBundleRequired
	}
	// Parse up front so version and config errors surface as InvalidInput
	// rather than as runtime diagnostics.
	if _, err := loadBundle(cfg.Bundle); err != nil {
		return nil, err
	}
	live, err := o.inspect(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}
	if live.Exists {
		return nil, fmt.Errorf("%w: %s container %q", errdefs.ErrAlreadyExists, o.kind, cfg.ID)
	}
	_, err = invoke(ctx, o.runner, "create", cfg.ID, o.argv("create", "--bundle", cfg.Bundle, cfg.ID)...)
	return nil, err
}

func (o *ociCLI) boot(ctx context.Context, id string) error {
	_, err := invoke(ctx, o.runner, "start", id, o.argv("start", id)...)
	return err
}

func (o *ociCLI) signal(ctx context.Context, id string, sig Signal) error {
	_, err := invoke(ctx, o.runner, "kill", id, o.argv("kill", id, sig.Name)...)
	return err
}

// OCI runtimes accept kill in the created state.
func (o *ociCLI) signalsCreated() bool { return true }

func (o *ociCLI) halt(ctx context.Context, id string) error {
	return o.signal(ctx, id, SignalKill)
}

// inspect decodes "<runtime> state <id>", which prints an OCI state document.
func (o *ociCLI) inspect(ctx context.Context, id string) (Live, error) {
	inv, err := invoke(ctx, o.runner, "state", id, o.argv("state", id)...)
	if err != nil {
		if isNotFound(err) {
			return Live{}, nil
		}
		return Live{}, err
	}
	var st specs.State
	if err = json.Unmarshal([]byte(inv.Stdout), &st); err != nil {
		return Live{}, fmt.Errorf("%w: decode %s state: %w", errdefs.ErrCommandExecutionFailed, o.kind, err)
	}
	status, ok := normalizeStatus(string(st.Status))
	if !ok {
		return Live{}, fmt.Errorf("%w: unexpected %s status %q", errdefs.ErrCommandExecutionFailed, o.kind, st.Status)
	}
	live := Live{Exists: true, Status: status}
	if status == specs.StateRunning {
		live.Pid = st.Pid
	}
	return live, nil
}

func (o *ociCLI) destroy(ctx context.Context, id string, force bool) error {
	args := []string{"delete"}
	if force {
		args = append(args, "--force")
	}
	_, err := invoke(ctx, o.runner, "delete", id, o.argv(append(args, id)...)...)
	return err
}

// resize passes memory in bytes and shares as given; cores are converted to
// shares at 1024 per core.
func (o *ociCLI) resize(ctx context.Context, id string, res modelhub.Resources) error {
	args := []string{"update"}
	if res.MemoryBytes > 0 {
		args = append(args, "--memory", strconv.FormatInt(res.MemoryBytes, 10))
	}
	shares := res.CPUShares
	if shares == 0 && res.Cores > 0 {
		shares = uint64(res.Cores) * 1024
	}
	if shares > 0 {
		args = append(args, "--cpu-share", strconv.FormatUint(shares, 10))
	}
	_, err := invoke(ctx, o.runner, "update", id, o.argv(append(args, id)...)...)
	return err
}

func (o *ociCLI) forget(context.Context, string) error { return nil }
