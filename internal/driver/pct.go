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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/eminwux/kukepx/internal/bundle"
	"github.com/eminwux/kukepx/internal/cmdrunner"
	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/eminwux/kukepx/internal/modelhub"
	"github.com/eminwux/kukepx/internal/state"
	"github.com/eminwux/kukepx/internal/vmid"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// pct drives Proxmox containers with pct(1).
type pct struct {
	logger     *slog.Logger
	runner     cmdrunner.Runner
	mapper     *vmid.Mapper
	ids        identities
	translator *bundle.Translator
	datasets   DatasetProvisioner
	opts       ProxmoxOptions
}

// NewProxmoxLXC returns the Proxmox container driver. datasets may be nil
// when checkpoint datasets are not provisioned on create.
func NewProxmoxLXC(
	logger *slog.Logger,
	runner cmdrunner.Runner,
	store *state.Store,
	mapper *vmid.Mapper,
	translator *bundle.Translator,
	datasets DatasetProvisioner,
	opts ProxmoxOptions,
) *Exec {
	opts = opts.withDefaults()
	return newExec(logger, store, opts.Options, &pct{
		logger:     logger,
		runner:     runner,
		mapper:     mapper,
		ids:        identities{mapper: mapper, store: store},
		translator: translator,
		datasets:   datasets,
		opts:       opts,
	})
}

func (p *pct) runtime() modelhub.RuntimeType { return modelhub.RuntimeProxmoxLXC }

func (p *pct) provision(ctx context.Context, cfg modelhub.SandboxConfig) (map[string]string, error) {
	if cfg.Image == "" {
		return nil, errdefs.ErrImageRequired
	}
	b, err := loadBundle(cfg.Bundle)
	if err != nil {
		return nil, err
	}
	conf, err := p.translator.Translate(ctx, b, cfg)
	if err != nil {
		return nil, err
	}

	id, err := assignVMID(ctx, p.runner, p.mapper, pctBin, cfg.ID, cfg.Bundle)
	if err != nil {
		return nil, err
	}

	if cfg.Storage.Dataset && p.datasets != nil {
		if _, err = p.datasets.EnsureDataset(ctx, cfg.ID); err != nil {
			return nil, err
		}
	}

	argv := p.createArgv(id, cfg, conf)
	if _, err = invoke(ctx, p.runner, "create", cfg.ID, argv...); err != nil {
		return nil, err
	}
	if err = p.appendRawConfig(id, conf); err != nil {
		return nil, err
	}
	return vmidAnnotations(id), nil
}

func (p *pct) createArgv(id int, cfg modelhub.SandboxConfig, conf bundle.Config) []string {
	storage := cfg.Storage.Pool
	if storage == "" {
		storage = p.opts.Storage
	}
	size := cfg.Storage.Size
	if size == "" {
		size = p.opts.RootFSGiB
	}

	argv := []string{
		pctBin, "create", strconv.Itoa(id), cfg.Image,
		"--hostname", conf.Hostname,
		"--memory", strconv.Itoa(conf.MemoryMB),
		"--cores", strconv.Itoa(conf.Cores),
		"--rootfs", storage + ":" + size,
	}
	if conf.Unprivileged {
		argv = append(argv, "--unprivileged", "1")
	}
	if !conf.Features.IsZero() {
		argv = append(argv, "--features", conf.Features.String())
	}
	for i, n := range conf.Networks {
		argv = append(argv, fmt.Sprintf("--net%d", i), n.String())
	}
	for i, m := range conf.Mounts {
		argv = append(argv, fmt.Sprintf("--mp%d", i), m.String())
	}
	return argv
}

// appendRawConfig writes the process settings pct has no flags for as raw
// lxc.* keys.
func (p *pct) appendRawConfig(id int, conf bundle.Config) error {
	lines := rawLXCConfig(conf, ": ")
	if len(lines) == 0 {
		return nil
	}
	path := filepath.Join(p.opts.ConfDir, strconv.Itoa(id)+".conf")
	return appendLines(path, lines)
}

// rawLXCConfig renders init command, environment and cwd as lxc.* keys using
// sep between key and value.
func rawLXCConfig(conf bundle.Config, sep string) []string {
	var lines []string
	if len(conf.Args) > 0 {
		lines = append(lines, "lxc.init.cmd"+sep+quoteArgs(conf.Args))
	}
	if conf.Cwd != "" && conf.Cwd != "/" {
		lines = append(lines, "lxc.init.cwd"+sep+conf.Cwd)
	}
	for _, kv := range conf.Env {
		lines = append(lines, "lxc.environment"+sep+kv)
	}
	return lines
}

func quoteArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\"'\\") {
			a = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
		}
		quoted[i] = a
	}
	return strings.Join(quoted, " ")
}

func appendLines(path string, lines []string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o640)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", errdefs.ErrWriteMetadata, path, err)
	}
	if _, err = f.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: write %s: %w", errdefs.ErrWriteMetadata, path, err)
	}
	return f.Close()
}

func (p *pct) boot(ctx context.Context, id string) error {
	v, err := p.ids.require(ctx, id)
	if err != nil {
		return err
	}
	_, err = invoke(ctx, p.runner, "start", id, pctBin, "start", v)
	return err
}

func (p *pct) signal(ctx context.Context, id string, sig Signal) error {
	v, err := p.ids.require(ctx, id)
	if err != nil {
		return err
	}
	return signalInside(ctx, p.runner, id, []string{pctBin, "exec", v, "--"}, sig)
}

func (p *pct) halt(ctx context.Context, id string) error {
	v, err := p.ids.require(ctx, id)
	if err != nil {
		return err
	}
	_, err = invoke(ctx, p.runner, "stop", id, pctBin, "stop", v)
	return err
}

func (p *pct) inspect(ctx context.Context, id string) (Live, error) {
	n, ok, err := p.ids.lookup(ctx, id)
	if err != nil || !ok {
		return Live{}, err
	}
	v := strconv.Itoa(n)

	inv, err := invoke(ctx, p.runner, "state", id, pctBin, "status", v)
	if err != nil {
		if isNotFound(err) {
			return Live{}, nil
		}
		return Live{}, err
	}
	status, ok := parseStatusLine(inv.Stdout)
	if !ok {
		return Live{}, fmt.Errorf("%w: unexpected pct status output %q", errdefs.ErrCommandExecutionFailed, inv.Stdout)
	}

	live := Live{Exists: true, Status: status, Annotations: vmidAnnotations(n)}
	if status == specs.StateRunning {
		live.Pid = p.initPid(ctx, id, v)
	}
	return live, nil
}

// initPid asks lxc-info for the init pid; 0 when it cannot tell yet.
func (p *pct) initPid(ctx context.Context, id, name string) int {
	inv, err := invoke(ctx, p.runner, "state", id, lxcInfoBin, "-n", name, "-p", "-H")
	if err != nil {
		p.logger.DebugContext(ctx, "failed to read init pid", "id", id, "error", err)
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(inv.Stdout))
	if err != nil {
		return 0
	}
	return pid
}

func (p *pct) destroy(ctx context.Context, id string, force bool) error {
	v, err := p.ids.require(ctx, id)
	if err != nil {
		return err
	}
	argv := []string{pctBin, "destroy", v}
	if force {
		argv = append(argv, "--force", "1")
	}
	_, err = invoke(ctx, p.runner, "delete", id, argv...)
	return err
}

func (p *pct) resize(ctx context.Context, id string, res modelhub.Resources) error {
	v, err := p.ids.require(ctx, id)
	if err != nil {
		return err
	}
	memMB, cores := resizeTargets(res)
	argv := []string{pctBin, "set", v}
	if memMB > 0 {
		argv = append(argv, "--memory", strconv.Itoa(memMB))
	}
	if cores > 0 {
		argv = append(argv, "--cores", strconv.Itoa(cores))
	}
	_, err = invoke(ctx, p.runner, "update", id, argv...)
	return err
}

func (p *pct) forget(ctx context.Context, id string) error {
	return p.mapper.Release(ctx, id)
}
