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
	"fmt"
	"strings"
	"syscall"

	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/moby/sys/signal"
)

// Signal is a parsed signal with its canonical name (without the SIG prefix).
type Signal struct {
	Num  syscall.Signal
	Name string
}

var (
	SignalTerm = Signal{Num: syscall.SIGTERM, Name: "TERM"}
	SignalKill = Signal{Num: syscall.SIGKILL, Name: "KILL"}
)

// names maps signal numbers back to one deterministic name.
var names = func() map[syscall.Signal]string {
	out := make(map[syscall.Signal]string, len(signal.SignalMap))
	for name, num := range signal.SignalMap {
		if cur, ok := out[num]; !ok || name < cur {
			out[num] = name
		}
	}
	return out
}()

// ParseSignal accepts "TERM", "SIGTERM", "term" or "15". Empty means TERM.
func ParseSignal(raw string) (Signal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return SignalTerm, nil
	}
	num, err := signal.ParseSignal(raw)
	if err != nil {
		return Signal{}, fmt.Errorf("%w: %q", errdefs.ErrInvalidSignal, raw)
	}
	name, ok := names[num]
	if !ok {
		return Signal{}, fmt.Errorf("%w: %q", errdefs.ErrInvalidSignal, raw)
	}
	return Signal{Num: num, Name: name}, nil
}

// Terminal reports whether the signal is expected to end the container init.
func (s Signal) Terminal() bool {
	switch s.Num {
	case syscall.SIGTERM, syscall.SIGKILL, syscall.SIGINT, syscall.SIGQUIT:
		return true
	default:
		return false
	}
}

func (s Signal) String() string { return "SIG" + s.Name }
