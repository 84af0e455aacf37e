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

package bundle

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/eminwux/kukepx/internal/consts"
	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/eminwux/kukepx/internal/modelhub"
	"github.com/eminwux/kukepx/internal/util/naming"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

const (
	bytesPerMB    = 1024 * 1024
	sharesPerCore = 1024
	maxIfNameLen  = 15
)

var (
	nodeListPattern = regexp.MustCompile(`^\d+(-\d+)?(,\d+(-\d+)?)*$`)
	ifNamePattern   = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

//nolint:gochecknoglobals // lookup tables
var (
	knownNamespaces = map[specs.LinuxNamespaceType]struct{}{
		specs.PIDNamespace:     {},
		specs.NetworkNamespace: {},
		specs.MountNamespace:   {},
		specs.IPCNamespace:     {},
		specs.UTSNamespace:     {},
		specs.UserNamespace:    {},
		specs.CgroupNamespace:  {},
		specs.TimeNamespace:    {},
	}

	// Filesystems LXC sets up on its own.
	kernelMountTypes = []string{"proc", "sysfs", "devpts", "mqueue", "cgroup", "cgroup2"}
	// tmpfs mounts LXC already provides at these destinations.
	builtinTmpfsTargets = []string{"/dev", "/dev/shm", "/run", "/tmp"}

	memoryPolicyModes = []specs.MemoryPolicyModeType{
		specs.MpolDefault, specs.MpolBind, specs.MpolInterleave, specs.MpolWeightedInterleave,
		specs.MpolPreferred, specs.MpolPreferredMany, specs.MpolLocal,
	}
	memoryPolicyFlags = []specs.MemoryPolicyFlagType{
		specs.MpolFNumaBalancing, specs.MpolFRelativeNodes, specs.MpolFStaticNodes,
	}
)

// LinkProber reports whether a host-visible link is a bridge an interface
// can be attached to.
type LinkProber interface {
	IsBridge(name string) bool
}

type Translator struct {
	logger   *slog.Logger
	links    LinkProber
	defaults modelhub.Defaults
}

func NewTranslator(logger *slog.Logger, links LinkProber, defaults modelhub.Defaults) *Translator {
	return &Translator{logger: logger, links: links, defaults: defaults}
}

// Translate builds the LXC configuration for cfg from bundle b. b may be nil
// when the container is created from an image without a bundle.
func (t *Translator) Translate(ctx context.Context, b *Bundle, cfg modelhub.SandboxConfig) (Config, error) {
	spec := &specs.Spec{}
	if b != nil && b.Spec != nil {
		spec = b.Spec
	}

	out := Config{
		Hostname: t.hostname(spec, cfg),
		MemoryMB: t.memoryMB(spec, cfg),
		Cores:    t.cores(spec, cfg),
	}

	if err := t.applyNamespaces(spec, &out); err != nil {
		return Config{}, err
	}

	var netDevices map[string]specs.LinuxNetDevice
	if b != nil {
		netDevices = b.NetDevices()
		out.RootFS = b.RootFS()
		if err := validateMemoryPolicy(b.MemoryPolicy()); err != nil {
			return Config{}, err
		}
		out.MemoryPolicy = b.MemoryPolicy()
	}

	nets, err := t.networks(ctx, netDevices, cfg.Network)
	if err != nil {
		return Config{}, err
	}
	out.Networks = nets

	mounts, err := translateMounts(spec.Mounts)
	if err != nil {
		return Config{}, err
	}
	out.Mounts = mounts

	if spec.Process != nil {
		out.Args = slices.Clone(spec.Process.Args)
		out.Env = slices.Clone(spec.Process.Env)
		out.Cwd = spec.Process.Cwd
	}

	return out, nil
}

func (t *Translator) hostname(spec *specs.Spec, cfg modelhub.SandboxConfig) string {
	switch {
	case spec.Hostname != "":
		return naming.BuildHostname(spec.Hostname)
	case cfg.Name != "":
		return naming.BuildHostname(cfg.Name)
	default:
		return naming.BuildHostname(cfg.ID)
	}
}

// memoryMB prefers the bundle limit, then the request, then the defaults.
func (t *Translator) memoryMB(spec *specs.Spec, cfg modelhub.SandboxConfig) int {
	if mem := bundleMemoryLimit(spec); mem > 0 {
		return bytesToMB(mem)
	}
	if cfg.Resources.MemoryBytes > 0 {
		return bytesToMB(cfg.Resources.MemoryBytes)
	}
	if t.defaults.MemoryMB > 0 {
		return t.defaults.MemoryMB
	}
	return consts.DefaultMemoryMB
}

func bundleMemoryLimit(spec *specs.Spec) int64 {
	if spec.Linux == nil || spec.Linux.Resources == nil || spec.Linux.Resources.Memory == nil ||
		spec.Linux.Resources.Memory.Limit == nil {
		return 0
	}
	return *spec.Linux.Resources.Memory.Limit
}

func bytesToMB(b int64) int {
	return max(1, int(b/bytesPerMB))
}

// cores prefers bundle cpu.shares, then bundle quota/period, then the request.
func (t *Translator) cores(spec *specs.Spec, cfg modelhub.SandboxConfig) int {
	if spec.Linux != nil && spec.Linux.Resources != nil && spec.Linux.Resources.CPU != nil {
		cpu := spec.Linux.Resources.CPU
		if cpu.Shares != nil && *cpu.Shares > 0 {
			return SharesToCores(*cpu.Shares)
		}
		if cpu.Quota != nil && *cpu.Quota > 0 && cpu.Period != nil && *cpu.Period > 0 {
			return max(1, int(math.Ceil(float64(*cpu.Quota)/float64(*cpu.Period))))
		}
	}
	if cfg.Resources.CPUShares > 0 {
		return SharesToCores(cfg.Resources.CPUShares)
	}
	if cfg.Resources.Cores > 0 {
		return cfg.Resources.Cores
	}
	if t.defaults.Cores > 0 {
		return t.defaults.Cores
	}
	return consts.DefaultCores
}

// SharesToCores returns max(1, round(shares/1024)).
func SharesToCores(shares uint64) int {
	return max(1, int(math.Round(float64(shares)/sharesPerCore)))
}

func (t *Translator) applyNamespaces(spec *specs.Spec, out *Config) error {
	if spec.Linux == nil {
		return nil
	}
	for _, ns := range spec.Linux.Namespaces {
		if _, ok := knownNamespaces[ns.Type]; !ok {
			return fmt.Errorf("%w: %q", errdefs.ErrUnknownNamespace, ns.Type)
		}
		if ns.Type == specs.UserNamespace {
			out.Unprivileged = true
			out.Features.Nesting = true
			out.Features.Keyctl = true
		}
	}
	return nil
}

func (t *Translator) defaultBridge(req modelhub.Network) string {
	switch {
	case req.Bridge != "":
		return req.Bridge
	case t.defaults.Bridge != "":
		return t.defaults.Bridge
	default:
		return consts.DefaultBridge
	}
}

func (t *Translator) networks(
	ctx context.Context,
	devices map[string]specs.LinuxNetDevice,
	req modelhub.Network,
) ([]NetInterface, error) {
	fallback := t.defaultBridge(req)
	ip := req.IP
	if ip == "" {
		ip = "dhcp"
	}

	if len(devices) == 0 {
		return []NetInterface{{Name: "eth0", Bridge: fallback, IP: ip, Gateway: req.Gateway}}, nil
	}

	hostNames := make([]string, 0, len(devices))
	for name := range devices {
		hostNames = append(hostNames, name)
	}
	sort.Strings(hostNames)

	out := make([]NetInterface, 0, len(devices))
	for i, hostName := range hostNames {
		ifName := devices[hostName].Name
		if ifName == "" {
			ifName = hostName
		}
		if len(ifName) > maxIfNameLen || !ifNamePattern.MatchString(ifName) {
			return nil, fmt.Errorf("%w: interface name %q", errdefs.ErrInvalidNetDevice, ifName)
		}

		bridge := fallback
		if t.links != nil && t.links.IsBridge(hostName) {
			bridge = hostName
		} else {
			t.logger.DebugContext(ctx, "no host bridge matches net device, using default bridge",
				"device", hostName, "bridge", fallback)
		}

		iface := NetInterface{Name: ifName, Bridge: bridge, IP: "dhcp"}
		if i == 0 {
			iface.IP = ip
			iface.Gateway = req.Gateway
		}
		out = append(out, iface)
	}
	return out, nil
}

func translateMounts(mounts []specs.Mount) ([]MountPoint, error) {
	var out []MountPoint
	for _, m := range mounts {
		if m.Destination == "" || !filepath.IsAbs(m.Destination) {
			return nil, fmt.Errorf("%w: mount destination %q must be absolute", errdefs.ErrInvalidInput, m.Destination)
		}
		target := filepath.Clean(m.Destination)

		switch {
		case slices.Contains(kernelMountTypes, m.Type):
			continue
		case m.Type == "tmpfs" && slices.Contains(builtinTmpfsTargets, target):
			continue
		case isBind(m):
			if !filepath.IsAbs(m.Source) {
				return nil, fmt.Errorf("%w: bind source %q must be absolute", errdefs.ErrInvalidInput, m.Source)
			}
			out = append(out, MountPoint{
				Source:   filepath.Clean(m.Source),
				Target:   target,
				ReadOnly: slices.Contains(m.Options, "ro"),
			})
		case m.Type == "volume":
			if !strings.Contains(m.Source, ":") {
				return nil, fmt.Errorf("%w: volume source %q must be <storage>:<size>", errdefs.ErrInvalidInput, m.Source)
			}
			out = append(out, MountPoint{
				Source:   m.Source,
				Target:   target,
				ReadOnly: slices.Contains(m.Options, "ro"),
				Volume:   true,
			})
		default:
			return nil, fmt.Errorf("%w: %q at %s", errdefs.ErrUnsupportedMount, m.Type, m.Destination)
		}
	}
	return out, nil
}

func isBind(m specs.Mount) bool {
	if m.Type == "bind" || m.Type == "rbind" {
		return true
	}
	if m.Type == "" || m.Type == "none" {
		return slices.Contains(m.Options, "bind") || slices.Contains(m.Options, "rbind")
	}
	return false
}

func validateMemoryPolicy(p *specs.LinuxMemoryPolicy) error {
	if p == nil {
		return nil
	}
	if !slices.Contains(memoryPolicyModes, p.Mode) {
		return fmt.Errorf("%w: mode %q", errdefs.ErrInvalidMemoryPolicy, p.Mode)
	}
	for _, f := range p.Flags {
		if !slices.Contains(memoryPolicyFlags, f) {
			return fmt.Errorf("%w: flag %q", errdefs.ErrInvalidMemoryPolicy, f)
		}
	}
	needsNodes := p.Mode != specs.MpolDefault && p.Mode != specs.MpolLocal
	if needsNodes && p.Nodes == "" {
		return fmt.Errorf("%w: mode %s requires nodes", errdefs.ErrInvalidMemoryPolicy, p.Mode)
	}
	if p.Nodes != "" && !nodeListPattern.MatchString(p.Nodes) {
		return fmt.Errorf("%w: nodes %q", errdefs.ErrInvalidMemoryPolicy, p.Nodes)
	}
	return nil
}
