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
	"strconv"
	"strings"
	"syscall"

	"github.com/eminwux/kukepx/internal/bundle"
	"github.com/eminwux/kukepx/internal/cmdrunner"
	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/eminwux/kukepx/internal/modelhub"
	"github.com/eminwux/kukepx/internal/state"
	"github.com/eminwux/kukepx/internal/vmid"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// qm drives Proxmox virtual machines with qm(1). The bundle contributes
// hostname, memory, cores and networks; namespaces and mounts have no VM
// equivalent.
type qm struct {
	logger     *slog.Logger
	runner     cmdrunner.Runner
	mapper     *vmid.Mapper
	ids        identities
	translator *bundle.Translator
	opts       ProxmoxOptions
}

func NewProxmoxVM(
	logger *slog.Logger,
	runner cmdrunner.Runner,
	store *state.Store,
	mapper *vmid.Mapper,
	translator *bundle.Translator,
	opts ProxmoxOptions,
) *Exec {
	opts = opts.withDefaults()
	return newExec(logger, store, opts.Options, &qm{
		logger:     logger,
		runner:     runner,
		mapper:     mapper,
		ids:        identities{mapper: mapper, store: store},
		translator: translator,
		opts:       opts,
	})
}

func (q *qm) runtime() modelhub.RuntimeType { return modelhub.RuntimeProxmoxVM }

func (q *qm) provision(ctx context.Context, cfg modelhub.SandboxConfig) (map[string]string, error) {
	if cfg.Image == "" {
		return nil, errdefs.ErrImageRequired
	}
	b, err := loadBundle(cfg.Bundle)
	if err != nil {
		return nil, err
	}
	conf, err := q.translator.Translate(ctx, b, cfg)
	if err != nil {
		return nil, err
	}
	if len(conf.Mounts) > 0 || len(conf.Args) > 0 {
		q.logger.DebugContext(ctx, "ignoring mounts and process settings for virtual machine", "id", cfg.ID)
	}

	id, err := assignVMID(ctx, q.runner, q.mapper, qmBin, cfg.ID, cfg.Bundle)
	if err != nil {
		return nil, err
	}

	if _, err = invoke(ctx, q.runner, "create", cfg.ID, q.createArgv(id, cfg, conf)...); err != nil {
		return nil, err
	}
	return vmidAnnotations(id), nil
}

func (q *qm) createArgv(id int, cfg modelhub.SandboxConfig, conf bundle.Config) []string {
	storage := cfg.Storage.Pool
	if storage == "" {
		storage = q.opts.Storage
	}
	size := cfg.Storage.Size
	if size == "" {
		size = q.opts.RootFSGiB
	}

	argv := []string{
		qmBin, "create", strconv.Itoa(id),
		"--name", conf.Hostname,
		"--memory", strconv.Itoa(conf.MemoryMB),
		"--cores", strconv.Itoa(conf.Cores),
		"--ostype", "l26",
		"--scsi0", storage + ":" + size,
		"--ide2", cfg.Image + ",media=cdrom",
	}
	for i, n := range conf.Networks {
		argv = append(argv, fmt.Sprintf("--net%d", i), "virtio,bridge="+n.Bridge)
		if n.IP != "" {
			ipconfig := "ip=" + n.IP
			if n.Gateway != "" {
				ipconfig += ",gw=" + n.Gateway
			}
			argv = append(argv, fmt.Sprintf("--ipconfig%d", i), ipconfig)
		}
	}
	return argv
}

func (q *qm) boot(ctx context.Context, id string) error {
	v, err := q.ids.require(ctx, id)
	if err != nil {
		return err
	}
	_, err = invoke(ctx, q.runner, "start", id, qmBin, "start", v)
	return err
}

// signal maps termination requests onto guest shutdown; KILL stops the VM
// hard. Other signals cannot reach a guest.
func (q *qm) signal(ctx context.Context, id string, sig Signal) error {
	v, err := q.ids.require(ctx, id)
	if err != nil {
		return err
	}
	switch sig.Num {
	case syscall.SIGKILL:
		_, err = invoke(ctx, q.runner, "kill", id, qmBin, "stop", v)
	case syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT:
		_, err = invoke(ctx, q.runner, "kill", id, qmBin, "shutdown", v)
	default:
		err = fmt.Errorf("%w: %s cannot be delivered to a virtual machine", errdefs.ErrUnsupportedOperation, sig)
	}
	return err
}

func (q *qm) halt(ctx context.Context, id string) error {
	v, err := q.ids.require(ctx, id)
	if err != nil {
		return err
	}
	_, err = invoke(ctx, q.runner, "stop", id, qmBin, "stop", v)
	return err
}

// inspect reads "qm status <vmid> --verbose", which reports status and the
// qemu pid.
func (q *qm) inspect(ctx context.Context, id string) (Live, error) {
	n, ok, err := q.ids.lookup(ctx, id)
	if err != nil || !ok {
		return Live{}, err
	}
	inv, err := invoke(ctx, q.runner, "state", id, qmBin, "status", strconv.Itoa(n), "--verbose")
	if err != nil {
		if isNotFound(err) {
			return Live{}, nil
		}
		return Live{}, err
	}
	status, ok := parseStatusLine(inv.Stdout)
	if !ok {
		return Live{}, fmt.Errorf("%w: unexpected qm status output %q", errdefs.ErrCommandExecutionFailed, inv.Stdout)
	}

	live := Live{Exists: true, Status: status, Annotations: vmidAnnotations(n)}
	if status == specs.StateRunning {
		live.Pid = parsePidLine(inv.Stdout)
	}
	return live, nil
}

func parsePidLine(out string) int {
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok || strings.TrimSpace(key) != "pid" {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(value))
		if err == nil {
			return pid
		}
	}
	return 0
}

func (q *qm) destroy(ctx context.Context, id string, _ bool) error {
	v, err := q.ids.require(ctx, id)
	if err != nil {
		return err
	}
	_, err = invoke(ctx, q.runner, "delete", id, qmBin, "destroy", v)
	return err
}

func (q *qm) resize(ctx context.Context, id string, res modelhub.Resources) error {
	v, err := q.ids.require(ctx, id)
	if err != nil {
		return err
	}
	memMB, cores := resizeTargets(res)
	argv := []string{qmBin, "set", v}
	if memMB > 0 {
		argv = append(argv, "--memory", strconv.Itoa(memMB))
	}
	if cores > 0 {
		argv = append(argv, "--cores", strconv.Itoa(cores))
	}
	_, err = invoke(ctx, q.runner, "update", id, argv...)
	return err
}

func (q *qm) forget(ctx context.Context, id string) error {
	return q.mapper.Release(ctx, id)
}
