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

// Package bundle loads OCI bundles and translates them into LXC-native
// container configuration.
package bundle

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/eminwux/kukepx/internal/errdefs"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

const configFile = "config.json"

// Accepted runtime-spec range: 1.0.x through 1.3.x.
const (
	minMinor = 0
	maxMinor = 3
)

var ociVersionPattern = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)(?:[-+].*)?$`)

// Bundle is a parsed OCI bundle directory.
type Bundle struct {
	Path string
	Spec *specs.Spec
}

// Load reads and validates <dir>/config.json.
func Load(dir string) (*Bundle, error) {
	if dir == "" {
		return nil, errdefs.ErrBundleRequired
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errdefs.ErrInvalidInput, err)
	}
	raw, err := os.ReadFile(filepath.Join(abs, configFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s has no %s", errdefs.ErrBundleRequired, abs, configFile)
	}
	if err != nil {
		return nil, fmt.Errorf("read bundle config: %w", err)
	}
	b, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	b.Path = abs
	return b, nil
}

// Parse decodes a config.json document.
func Parse(raw []byte) (*Bundle, error) {
	var spec specs.Spec
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("%w: %w", errdefs.ErrMalformedBundle, err)
	}
	if err := CheckVersion(spec.Version); err != nil {
		return nil, err
	}
	return &Bundle{Spec: &spec}, nil
}

// CheckVersion accepts runtime-spec versions 1.0.x through 1.3.x.
func CheckVersion(v string) error {
	m := ociVersionPattern.FindStringSubmatch(v)
	if m == nil {
		return fmt.Errorf("%w: %q", errdefs.ErrUnsupportedOCIVersion, v)
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	if major != 1 || minor < minMinor || minor > maxMinor {
		return fmt.Errorf("%w: %q (accepted 1.%d.x-1.%d.x)", errdefs.ErrUnsupportedOCIVersion, v, minMinor, maxMinor)
	}
	return nil
}

// NetDevices returns linux.netDevices, keyed by host device name.
func (b *Bundle) NetDevices() map[string]specs.LinuxNetDevice {
	if b.Spec == nil || b.Spec.Linux == nil {
		return nil
	}
	return b.Spec.Linux.NetDevices
}

// MemoryPolicy returns linux.memoryPolicy, or nil when unset.
func (b *Bundle) MemoryPolicy() *specs.LinuxMemoryPolicy {
	if b.Spec == nil || b.Spec.Linux == nil {
		return nil
	}
	return b.Spec.Linux.MemoryPolicy
}

// RootFS returns the absolute root filesystem path of the bundle.
func (b *Bundle) RootFS() string {
	if b.Spec == nil || b.Spec.Root == nil || b.Spec.Root.Path == "" {
		return ""
	}
	if filepath.IsAbs(b.Spec.Root.Path) {
		return b.Spec.Root.Path
	}
	return filepath.Join(b.Path, b.Spec.Root.Path)
}
