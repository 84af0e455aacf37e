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

package router

import (
	"sort"
	"strings"

	"github.com/eminwux/kukepx/internal/consts"
	"github.com/opencontainers/runtime-spec/specs-go/features"
)

const ociVersionMin = "1.0.0"

// Features describes what bundles the translator accepts, in the OCI
// features document format.
func (r *Router) Features() features.Features {
	runtimes := make([]string, 0, len(r.drivers))
	for rt := range r.drivers {
		runtimes = append(runtimes, string(rt))
	}
	sort.Strings(runtimes)

	return features.Features{
		OCIVersionMin: ociVersionMin,
		OCIVersionMax: consts.OCIVersion,
		MountOptions:  []string{"bind", "rbind", "ro", "rw"},
		Linux: &features.Linux{
			Namespaces: []string{"cgroup", "ipc", "mount", "network", "pid", "time", "user", "uts"},
		},
		Annotations: map[string]string{
			consts.AnnotationRuntime:        strings.Join(runtimes, ","),
			consts.AnnotationDefaultRuntime: string(r.defaults.Runtime),
		},
	}
}
