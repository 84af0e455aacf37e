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

package e2e_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const kukepx = "kukepx"

// runBinary executes binary and returns exit code, stdout, stderr separately.
// If the binary file does not exist, the test is skipped.
func runBinary(t *testing.T, env []string, stdin string, command string, args ...string) (int, []byte, []byte) {
	t.Helper()

	dir := os.Getenv("E2E_BIN_DIR")
	if dir == "" {
		dir = ".."
	}
	bin := filepath.Join(dir, command)

	if _, err := os.Stat(bin); os.IsNotExist(err) {
		t.Skipf("binary %s not found, skipping", bin)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, args...)
	if env != nil {
		cmd.Env = env
	}
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		exitError := &exec.ExitError{}
		if errors.As(err, &exitError) {
			exitCode = exitError.ExitCode()
		} else {
			t.Fatalf("failed to run %s %v: %v", bin, args, err)
		}
	}

	return exitCode, []byte(stdoutBuf.String()), []byte(stderrBuf.String())
}

// runKukepx runs kukepx against an isolated run path and fails the test on a
// non-zero exit.
func runKukepx(t *testing.T, runPath string, args ...string) []byte {
	t.Helper()

	full := append([]string{"--run-path", runPath}, args...)
	code, stdout, stderr := runBinary(t, isolatedEnv(t), "", kukepx, full...)
	if code != 0 {
		t.Fatalf("kukepx %v exited %d\nstdout:\n%s\nstderr:\n%s", full, code, stdout, stderr)
	}
	return stdout
}

// isolatedEnv points the config file at a fresh directory so a host config
// does not leak into the test.
func isolatedEnv(t *testing.T) []string {
	t.Helper()
	return append(os.Environ(),
		"KUKEPX_CONFIG_FILE="+filepath.Join(t.TempDir(), "config.yaml"),
		"XDG_CONFIG_HOME="+t.TempDir(),
	)
}

// requireRoot skips tests that drive a real runtime.
func requireRoot(t *testing.T, binaries ...string) {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Skip("requires root")
	}
	for _, bin := range binaries {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH", bin)
		}
	}
}
