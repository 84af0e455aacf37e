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

package cmdrunner

import (
	"context"
	"strings"
	"sync"

	"github.com/eminwux/kukepx/internal/errdefs"
)

// Response is a scripted reply for Fake.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// Fake is a scripted Runner for tests. Handler decides the reply for each
// argv; every call is recorded.
type Fake struct {
	mu      sync.Mutex
	Handler func(argv []string) Response
	calls   [][]string
}

func (f *Fake) Run(_ context.Context, argv ...string) (errdefs.Invocation, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), argv...))
	handler := f.Handler
	f.mu.Unlock()

	var resp Response
	if handler != nil {
		resp = handler(argv)
	}
	return errdefs.Invocation{
		Argv:     argv,
		Stdout:   resp.Stdout,
		Stderr:   resp.Stderr,
		ExitCode: resp.ExitCode,
	}, resp.Err
}

// Calls returns a copy of every recorded argv.
func (f *Fake) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsWithPrefix returns recorded calls whose joined argv starts with prefix.
func (f *Fake) CallsWithPrefix(prefix string) [][]string {
	var out [][]string
	for _, c := range f.Calls() {
		if strings.HasPrefix(strings.Join(c, " "), prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (f *Fake) Reset() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}
