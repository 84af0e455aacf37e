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

package errdefs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxExcerpt bounds the diagnostic text kept on a CommandError.
const maxExcerpt = 512

// CommandError is the classified failure of one external tool invocation.
type CommandError struct {
	Op          string
	ContainerID string
	Argv        []string
	ExitCode    int
	Stderr      string
	Kind        error
	// Cause is the runner's own error, set when the tool could not be
	// started or was interrupted.
	Cause error
}

func (e *CommandError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.ContainerID != "" {
		fmt.Fprintf(&b, " %q", e.ContainerID)
	}
	fmt.Fprintf(&b, ": %v", e.Kind)
	if len(e.Argv) > 0 {
		fmt.Fprintf(&b, " (%s, exit %d)", e.Argv[0], e.ExitCode)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&b, ": %s", e.Stderr)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *CommandError) Unwrap() error { return e.Kind }

// Invocation is the observable outcome of running an external tool.
type Invocation struct {
	Argv     []string
	Stdout   string
	Stderr   string
	ExitCode int
}

type pattern struct {
	kind    error
	phrases []string
}

// Order matters: the first matching kind wins.
var patterns = []pattern{
	{ErrTimeout, []string{"timed out", "timeout", "got timeout", "deadline exceeded"}},
	{ErrPermissionDenied, []string{"permission denied", "operation not permitted", "not allowed", "access denied"}},
	{ErrNetwork, []string{
		"network is unreachable", "no route to host", "connection refused",
		"could not resolve", "temporary failure in name resolution", "connection reset",
	}},
	{ErrAlreadyExists, []string{"already exists", "already in use", "file exists"}},
	{ErrNotFound, []string{
		"does not exist", "doesn't exist", "not found", "no such file", "no such container",
		"no such dataset", "could not find",
	}},
	{ErrInvalidInput, []string{
		"parameter verification failed", "invalid", "unable to parse", "bad request",
		"unknown option", "value does not match",
	}},
}

// Classify maps a failed invocation to a CommandError with a stable kind.
// runErr is the error returned by the runner itself (e.g. context deadline),
// it takes precedence over the diagnostic text.
func Classify(op, containerID string, inv Invocation, runErr error) error {
	if runErr == nil && inv.ExitCode == 0 {
		return nil
	}
	ce := &CommandError{
		Op:          op,
		ContainerID: containerID,
		Argv:        inv.Argv,
		ExitCode:    inv.ExitCode,
		Stderr:      excerpt(inv.Stderr, inv.Stdout),
		Cause:       runErr,
	}
	ce.Kind = classifyKind(inv, runErr)
	return ce
}

func classifyKind(inv Invocation, runErr error) error {
	switch {
	case errors.Is(runErr, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(runErr, context.Canceled):
		return ErrCommandExecutionFailed
	}

	switch inv.ExitCode {
	case 124:
		return ErrTimeout
	case 126:
		return ErrPermissionDenied
	case 127:
		return ErrCommandExecutionFailed
	}

	text := strings.ToLower(inv.Stderr + "\n" + inv.Stdout)
	for _, p := range patterns {
		for _, phrase := range p.phrases {
			if strings.Contains(text, phrase) {
				return p.kind
			}
		}
	}
	return ErrCommandExecutionFailed
}

func excerpt(stderr, stdout string) string {
	text := strings.TrimSpace(stderr)
	if text == "" {
		text = strings.TrimSpace(stdout)
	}
	if len(text) > maxExcerpt {
		cut := maxExcerpt
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	return text
}
