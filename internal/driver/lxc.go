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
	"path/filepath"
	"strconv"
	"strings"

	"github.com/eminwux/kukepx/internal/bundle"
	"github.com/eminwux/kukepx/internal/cmdrunner"
	"github.com/eminwux/kukepx/internal/consts"
	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/eminwux/kukepx/internal/modelhub"
	"github.com/eminwux/kukepx/internal/state"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Unprivileged containers map root onto this host range.
const (
	idmapHostBase = 100000
	idmapSize     = 65536
	cpuPeriod     = 100000
)

type LXCOptions struct {
	Options

	// Path is the lxcpath holding <id>/config.
	Path string
}

// lxc drives plain LXC containers, named by container id, with the lxc-*
// tools.
type lxc struct {
	logger     *slog.Logger
	runner     cmdrunner.Runner
	translator *bundle.Translator
	opts       LXCOptions
}

func NewLXC(
	logger *slog.Logger,
	runner cmdrunner.Runner,
	store *state.Store,
	translator *bundle.Translator,
	opts LXCOptions,
) *Exec {
	if opts.Path == "" {
		opts.Path = consts.DefaultLXCPath
	}
	return newExec(logger, store, opts.Options, &lxc{
		logger:     logger,
		runner:     runner,
		translator: translator,
		opts:       opts,
	})
}

func (l *lxc) runtime() modelhub.RuntimeType { return modelhub.RuntimeLXC }

func (l *lxc) base(bin string, id string, args ...string) []string {
	return append([]string{bin, "-P", l.opts.Path, "-n", id}, args...)
}

func (l *lxc) provision(ctx context.Context, cfg modelhub.SandboxConfig) (map[string]string, error) {
	if cfg.Image == "" {
		return nil, errdefs.ErrImageRequired
	}
	b, err := loadBundle(cfg.Bundle)
	if err != nil {
		return nil, err
	}
	conf, err := l.translator.Translate(ctx, b, cfg)
	if err != nil {
		return nil, err
	}
	lines, err := lxcConfig(conf)
	if err != nil {
		return nil, err
	}

	live, err := l.inspect(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}
	if live.Exists {
		return nil, fmt.Errorf("%w: lxc container %q", errdefs.ErrAlreadyExists, cfg.ID)
	}

	argv := l.base("lxc-create", cfg.ID, "-t", "oci", "--", "--url", imageURL(cfg.Image))
	if _, err = invoke(ctx, l.runner, "create", cfg.ID, argv...); err != nil {
		return nil, err
	}
	if err = appendLines(filepath.Join(l.opts.Path, cfg.ID, "config"), lines); err != nil {
		return nil, err
	}
	return nil, nil
}

// imageURL adds the docker:// transport to bare references.
func imageURL(image string) string {
	if strings.Contains(image, "://") || strings.HasPrefix(image, "oci:") {
		return image
	}
	return "docker://" + image
}

// lxcConfig renders conf as lxc.* configuration lines.
func lxcConfig(conf bundle.Config) ([]string, error) {
	lines := []string{
		"lxc.uts.name = " + conf.Hostname,
		fmt.Sprintf("lxc.cgroup2.memory.max = %d", int64(conf.MemoryMB)*1024*1024),
		fmt.Sprintf("lxc.cgroup2.cpu.max = %d %d", conf.Cores*cpuPeriod, cpuPeriod),
	}
	if conf.Unprivileged {
		lines = append(lines,
			fmt.Sprintf("lxc.idmap = u 0 %d %d", idmapHostBase, idmapSize),
			fmt.Sprintf("lxc.idmap = g 0 %d %d", idmapHostBase, idmapSize),
		)
	}
	if conf.Features.Nesting {
		lines = append(lines, "lxc.mount.auto = proc:rw sys:rw cgroup:rw")
	}
	for i, n := range conf.Networks {
		prefix := "lxc.net." + strconv.Itoa(i)
		lines = append(lines,
			prefix+".type = veth",
			prefix+".link = "+n.Bridge,
			prefix+".name = "+n.Name,
			prefix+".flags = up",
		)
		if n.IP != "" && n.IP != "dhcp" {
			lines = append(lines, prefix+".ipv4.address = "+n.IP)
		}
		if n.Gateway != "" {
			lines = append(lines, prefix+".ipv4.gateway = "+n.Gateway)
		}
	}
	for _, m := range conf.Mounts {
		if m.Volume {
			return nil, fmt.Errorf("%w: storage volume %q needs a Proxmox backend", errdefs.ErrUnsupportedMount, m.Source)
		}
		opts := "bind,create=dir"
		if m.ReadOnly {
			opts += ",ro"
		}
		lines = append(lines, fmt.Sprintf("lxc.mount.entry = %s %s none %s 0 0",
			m.Source, strings.TrimPrefix(m.Target, "/"), opts))
	}
	return append(lines, rawLXCConfig(conf, " = ")...), nil
}

func (l *lxc) boot(ctx context.Context, id string) error {
	_, err := invoke(ctx, l.runner, "start", id, l.base("lxc-start", id, "-d")...)
	return err
}

func (l *lxc) signal(ctx context.Context, id string, sig Signal) error {
	return signalInside(ctx, l.runner, id, l.base("lxc-attach", id, "--"), sig)
}

func (l *lxc) halt(ctx context.Context, id string) error {
	_, err := invoke(ctx, l.runner, "stop", id, l.base("lxc-stop", id, "-k")...)
	return err
}

func (l *lxc) inspect(ctx context.Context, id string) (Live, error) {
	inv, err := invoke(ctx, l.runner, "state", id, l.base(lxcInfoBin, id, "-s", "-p", "-H")...)
	if err != nil {
		if isNotFound(err) {
			return Live{}, nil
		}
		return Live{}, err
	}

	// -H prints the state line, then the pid line when running.
	fields := strings.Fields(inv.Stdout)
	if len(fields) == 0 {
		return Live{}, fmt.Errorf("%w: empty lxc-info output", errdefs.ErrCommandExecutionFailed)
	}
	status, ok := normalizeStatus(fields[0])
	if !ok {
		return Live{}, fmt.Errorf("%w: unexpected lxc-info state %q", errdefs.ErrCommandExecutionFailed, fields[0])
	}
	live := Live{Exists: true, Status: status}
	if status == specs.StateRunning && len(fields) > 1 {
		live.Pid, _ = strconv.Atoi(fields[1])
	}
	return live, nil
}

func (l *lxc) destroy(ctx context.Context, id string, force bool) error {
	argv := l.base("lxc-destroy", id)
	if force {
		argv = append(argv, "-f")
	}
	_, err := invoke(ctx, l.runner, "delete", id, argv...)
	return err
}

func (l *lxc) resize(context.Context, string, modelhub.Resources) error {
	return fmt.Errorf("%w: resource update on plain lxc", errdefs.ErrUnsupportedOperation)
}

func (l *lxc) forget(context.Context, string) error { return nil }
