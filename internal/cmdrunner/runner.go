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

// Package cmdrunner is the only place kukepx starts external processes.
package cmdrunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/eminwux/kukepx/internal/errdefs"
)

// Runner runs one external tool invocation to completion.
//
// A non-zero exit code is reported through Invocation.ExitCode with a nil
// error; the error is reserved for failures to run the tool at all
// (missing binary, timeout, cancellation).
type Runner interface {
	Run(ctx context.Context, argv ...string) (errdefs.Invocation, error)
}

//nolint:gochecknoglobals // test hook
var execCmdFunc = exec.CommandContext

// Exec runs commands on the host with a per-invocation timeout.
type Exec struct {
	Timeout time.Duration
}

func NewExec(timeout time.Duration) *Exec {
	return &Exec{Timeout: timeout}
}

func (e *Exec) Run(ctx context.Context, argv ...string) (errdefs.Invocation, error) {
	inv := errdefs.Invocation{Argv: argv}
	if len(argv) == 0 {
		return inv, fmt.Errorf("%w: empty command", errdefs.ErrInvalidInput)
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := execCmdFunc(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	inv.Stdout = stdout.String()
	inv.Stderr = stderr.String()

	if ctxErr := ctx.Err(); ctxErr != nil {
		inv.ExitCode = -1
		return inv, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		inv.ExitCode = exitErr.ExitCode()
		return inv, nil
	}
	if err != nil {
		inv.ExitCode = -1
		return inv, err
	}
	return inv, nil
}
