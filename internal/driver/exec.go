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
	"errors"
	"strings"

	"github.com/eminwux/kukepx/internal/cmdrunner"
	"github.com/eminwux/kukepx/internal/errdefs"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// invoke runs argv and classifies a failure.
func invoke(
	ctx context.Context,
	runner cmdrunner.Runner,
	op, id string,
	argv ...string,
) (errdefs.Invocation, error) {
	inv, runErr := runner.Run(ctx, argv...)
	return inv, errdefs.Classify(op, id, inv, runErr)
}

// killPaths are tried in order inside the container namespace.
func killPaths(sig Signal) [][]string {
	flag := "-" + sig.Name
	return [][]string{
		{"/bin/kill", flag, "1"},
		{"/usr/bin/kill", flag, "1"},
		{"/bin/sh", "-c", "kill " + flag + " 1"},
	}
}

// signalInside delivers sig to pid 1 through prefix (e.g. "pct exec 101 --"),
// falling back along killPaths. The last failure is returned when every path
// fails.
func signalInside(
	ctx context.Context,
	runner cmdrunner.Runner,
	id string,
	prefix []string,
	sig Signal,
) error {
	var lastErr error
	for _, path := range killPaths(sig) {
		argv := append(append([]string(nil), prefix...), path...)
		_, err := invoke(ctx, runner, "kill", id, argv...)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || errors.Is(err, errdefs.ErrPermissionDenied) {
			break
		}
	}
	return lastErr
}

// parseStatusLine reads "status: running" style output.
func parseStatusLine(out string) (specs.ContainerState, bool) {
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok || strings.TrimSpace(key) != "status" {
			continue
		}
		return normalizeStatus(value)
	}
	return "", false
}

// normalizeStatus maps backend status words onto OCI states.
func normalizeStatus(raw string) (specs.ContainerState, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "running", "freezing", "frozen", "thawed", "paused":
		return specs.StateRunning, true
	case "stopped", "stopping", "aborting":
		return specs.StateStopped, true
	case "created":
		return specs.StateCreated, true
	case "creating", "starting":
		return specs.StateCreating, true
	default:
		return "", false
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, errdefs.ErrNotFound)
}
