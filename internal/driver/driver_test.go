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

package driver_test

import (
	"errors"
	"syscall"
	"testing"

	"github.com/eminwux/kukepx/internal/driver"
	"github.com/eminwux/kukepx/internal/errdefs"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

func TestParseSignal(t *testing.T) {
	tests := []struct {
		in       string
		want     syscall.Signal
		name     string
		terminal bool
		wantErr  bool
	}{
		{in: "", want: syscall.SIGTERM, name: "TERM", terminal: true},
		{in: "TERM", want: syscall.SIGTERM, name: "TERM", terminal: true},
		{in: "SIGKILL", want: syscall.SIGKILL, name: "KILL", terminal: true},
		{in: "int", want: syscall.SIGINT, name: "INT", terminal: true},
		{in: "9", want: syscall.SIGKILL, name: "KILL", terminal: true},
		{in: "HUP", want: syscall.SIGHUP, name: "HUP"},
		{in: "SIGUSR1", want: syscall.SIGUSR1, name: "USR1"},
		{in: "NOPE", wantErr: true},
		{in: "0", wantErr: true},
		{in: "250", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := driver.ParseSignal(tt.in)
			if tt.wantErr {
				if !errors.Is(err, errdefs.ErrInvalidSignal) {
					t.Fatalf("ParseSignal(%q) error = %v, want ErrInvalidSignal", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSignal(%q) error = %v", tt.in, err)
			}
			if got.Num != tt.want || got.Name != tt.name || got.Terminal() != tt.terminal {
				t.Errorf("ParseSignal(%q) = %+v terminal=%v", tt.in, got, got.Terminal())
			}
		})
	}
}

func TestReconcile(t *testing.T) {
	running := driver.Live{Exists: true, Status: specs.StateRunning, Pid: 42}
	stopped := driver.Live{Exists: true, Status: specs.StateStopped}
	created := driver.Live{Exists: true, Status: specs.StateCreated}
	absent := driver.Live{}

	tests := []struct {
		name        string
		rec         specs.ContainerState
		pid         int
		live        driver.Live
		wantStatus  specs.ContainerState
		wantPid     int
		wantChanged bool
	}{
		{"running record, backend stopped", specs.StateRunning, 42, stopped, specs.StateStopped, 0, true},
		{"running record, backend gone", specs.StateRunning, 42, absent, specs.StateStopped, 0, true},
		{"running record, same pid", specs.StateRunning, 42, running, specs.StateRunning, 42, false},
		{"running record, new pid", specs.StateRunning, 7, running, specs.StateRunning, 42, true},
		{"created record, backend running", specs.StateCreated, 0, running, specs.StateRunning, 42, true},
		{"created record, backend stopped", specs.StateCreated, 0, stopped, specs.StateCreated, 0, false},
		{"created record, backend created", specs.StateCreated, 0, created, specs.StateCreated, 0, false},
		{"created record, backend gone", specs.StateCreated, 0, absent, specs.StateStopped, 0, true},
		{"stopped record never moves back", specs.StateStopped, 0, running, specs.StateStopped, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := specs.State{ID: "c1", Status: tt.rec, Pid: tt.pid}
			status, pid, changed := driver.Reconcile(rec, tt.live)
			if status != tt.wantStatus || pid != tt.wantPid || changed != tt.wantChanged {
				t.Errorf("Reconcile() = (%s, %d, %v), want (%s, %d, %v)",
					status, pid, changed, tt.wantStatus, tt.wantPid, tt.wantChanged)
			}
		})
	}
}
