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

package controller_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eminwux/kukepx/internal/cmdrunner"
	"github.com/eminwux/kukepx/internal/consts"
	"github.com/eminwux/kukepx/internal/controller"
	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/eminwux/kukepx/internal/logging"
	"github.com/eminwux/kukepx/internal/modelhub"
	"github.com/eminwux/kukepx/internal/router"
	"github.com/google/go-cmp/cmp"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

type bridges struct{}

func (bridges) IsBridge(name string) bool { return strings.HasPrefix(name, "vmbr") }

// crunSim answers crun invocations from an in-memory table.
type crunSim struct {
	mu     sync.Mutex
	states map[string]*specs.State
}

func (c *crunSim) handle(argv []string) cmdrunner.Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	if argv[0] != "crun" {
		return cmdrunner.Response{ExitCode: 127, Stderr: argv[0] + ": not found"}
	}
	verb, id := argv[3], argv[len(argv)-1]
	if verb == "kill" {
		id = argv[4]
	}
	st, ok := c.states[id]
	if !ok && verb != "create" {
		return cmdrunner.Response{ExitCode: 1, Stderr: "container does not exist"}
	}
	switch verb {
	case "create":
		c.states[id] = &specs.State{Version: "1.2.0", ID: id, Status: specs.StateCreated, Pid: 77, Bundle: argv[5]}
	case "start":
		st.Status = specs.StateRunning
	case "kill":
		st.Status, st.Pid = specs.StateStopped, 0
	case "state":
		out, _ := json.Marshal(st)
		return cmdrunner.Response{Stdout: string(out)}
	case "delete":
		delete(c.states, id)
	}
	return cmdrunner.Response{}
}

func writeBundle(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := `{"ociVersion":"1.2.0","root":{"path":"rootfs"},"process":{"args":["/bin/sh"],"cwd":"/"}}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	return dir
}

func newWiredController(t *testing.T, runner cmdrunner.Runner, mods ...func(*controller.Options)) *controller.Exec {
	t.Helper()
	opts := controller.Options{
		RunPath:      t.TempDir(),
		Defaults:     modelhub.Defaults{Runtime: modelhub.RuntimeProxmoxLXC},
		PollAttempts: 3,
		PollInterval: time.Millisecond,
	}
	for _, mod := range mods {
		mod(&opts)
	}
	ctrl, err := controller.NewControllerExecWithRunner(
		context.Background(),
		logging.NewNoopLogger(),
		opts,
		runner,
		bridges{},
	)
	if err != nil {
		t.Fatalf("NewControllerExecWithRunner() error = %v", err)
	}
	return ctrl
}

func TestNewControllerExec_RegistersEveryRuntime(t *testing.T) {
	ctrl := newWiredController(t, &cmdrunner.Fake{})

	f := ctrl.Features()
	want := "crun,lxc,proxmox-lxc,proxmox-vm,runc"
	if got := f.Annotations[consts.AnnotationRuntime]; got != want {
		t.Errorf("runtimes = %q, want %q", got, want)
	}
	if got := f.Annotations[consts.AnnotationDefaultRuntime]; got != string(modelhub.RuntimeProxmoxLXC) {
		t.Errorf("default runtime = %q", got)
	}
}

func TestNewControllerExec_InvalidVMIDRange(t *testing.T) {
	_, err := controller.NewControllerExecWithRunner(
		context.Background(),
		logging.NewNoopLogger(),
		controller.Options{RunPath: t.TempDir(), VMIDMin: 500, VMIDMax: 100},
		&cmdrunner.Fake{},
		bridges{},
	)
	if !errors.Is(err, errdefs.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestWiredCrunLifecycle(t *testing.T) {
	sim := &crunSim{states: map[string]*specs.State{}}
	runner := &cmdrunner.Fake{Handler: sim.handle}
	ctrl := newWiredController(t, runner)
	target := controller.Target{ID: "job1"}

	st, err := ctrl.Create(router.Request{ID: "job1", Runtime: "crun", Bundle: writeBundle(t)})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if st.Status != specs.StateCreated || st.Annotations[consts.AnnotationRuntime] != "crun" {
		t.Fatalf("unexpected state after create: %+v", st)
	}

	// runtime is resolved from the record from here on
	if st, err = ctrl.Start(target); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if st.Status != specs.StateRunning || st.Pid != 77 {
		t.Fatalf("unexpected state after start: %+v", st)
	}

	list, err := ctrl.List(true)
	if err != nil || len(list) != 1 || list[0].ID != "job1" {
		t.Fatalf("List() = %+v, %v", list, err)
	}

	if _, err = ctrl.Delete(target, false); !errors.Is(err, errdefs.ErrInvalidTransition) {
		t.Fatalf("Delete() of a running container without force: %v", err)
	}
	if _, err = ctrl.Delete(target, true); err != nil {
		t.Fatalf("Delete(force) error = %v", err)
	}
	if _, err = ctrl.State(target, false); !errors.Is(err, errdefs.ErrNotFound) {
		t.Fatalf("State() after delete: %v", err)
	}

	for _, c := range runner.Calls() {
		if c[0] != "crun" {
			t.Errorf("unexpected non-crun invocation: %v", c)
		}
	}
}

// zfsSim keeps snapshot names per dataset and, like zfs(8), refuses to roll
// back past newer snapshots unless -r is given.
type zfsSim struct {
	mu        sync.Mutex
	datasets  map[string][]string
	rollbacks [][]string
}

func (z *zfsSim) handle(argv []string) cmdrunner.Response {
	z.mu.Lock()
	defer z.mu.Unlock()
	if argv[0] != "zfs" {
		return cmdrunner.Response{ExitCode: 127, Stderr: argv[0] + ": not found"}
	}
	last := argv[len(argv)-1]
	ds, snap, isSnap := strings.Cut(last, "@")
	switch argv[1] {
	case "list":
		snaps, ok := z.datasets[ds]
		if !ok {
			return cmdrunner.Response{ExitCode: 1, Stderr: "cannot open '" + last + "': dataset does not exist"}
		}
		if !isSnap {
			var out strings.Builder
			out.WriteString(ds + "\n")
			if slices.Contains(argv, "snapshot") {
				out.Reset()
				for _, s := range snaps {
					out.WriteString(ds + "@" + s + "\n")
				}
			}
			return cmdrunner.Response{Stdout: out.String()}
		}
		if !slices.Contains(snaps, snap) {
			return cmdrunner.Response{ExitCode: 1, Stderr: "cannot open '" + last + "': dataset does not exist"}
		}
		return cmdrunner.Response{Stdout: last + "\n"}
	case "snapshot":
		z.datasets[ds] = append(z.datasets[ds], snap)
	case "rollback":
		z.rollbacks = append(z.rollbacks, argv)
		snaps := z.datasets[ds]
		i := slices.Index(snaps, snap)
		if i < len(snaps)-1 {
			if argv[2] != "-r" {
				return cmdrunner.Response{ExitCode: 1, Stderr: "cannot rollback to '" + last +
					"': more recent snapshots or bookmarks exist\nuse '-r' to force deletion of the following snapshots and bookmarks:\n" +
					ds + "@" + snaps[i+1]}
			}
			z.datasets[ds] = snaps[:i+1]
		}
	}
	return cmdrunner.Response{}
}

func TestWiredRestoreDiscardsNewerSnapshots(t *testing.T) {
	ds := consts.DefaultZFSPool + "/" + consts.DefaultDatasetRoot + "/c1"

	tests := []struct {
		name      string
		keepNewer bool
		wantErr   error
		wantArgv  []string
		wantSnaps []string
	}{
		{
			name:      "default destroys newer snapshots",
			wantArgv:  []string{"zfs", "rollback", "-r", ds + "@s1"},
			wantSnaps: []string{"s1"},
		},
		{
			name:      "keep newer is refused by zfs",
			keepNewer: true,
			wantErr:   errdefs.ErrCommandExecutionFailed,
			wantArgv:  []string{"zfs", "rollback", ds + "@s1"},
			wantSnaps: []string{"s1", "s2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := &zfsSim{datasets: map[string][]string{ds: nil}}
			ctrl := newWiredController(t, &cmdrunner.Fake{Handler: sim.handle}, func(o *controller.Options) {
				o.ZFSKeepNewer = tt.keepNewer
			})

			for _, name := range []string{"s1", "s2"} {
				if err := ctrl.Checkpoint("c1", name); err != nil {
					t.Fatalf("Checkpoint(%s) error = %v", name, err)
				}
			}
			err := ctrl.Restore("c1", "s1")
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Restore() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Restore() error = %v, want %v", err, tt.wantErr)
			}
			if diff := cmp.Diff([][]string{tt.wantArgv}, sim.rollbacks); diff != "" {
				t.Errorf("rollback argv (-want +got):\n%s", diff)
			}

			names, err := ctrl.ListCheckpoints("c1")
			if err != nil {
				t.Fatalf("ListCheckpoints() error = %v", err)
			}
			if diff := cmp.Diff(tt.wantSnaps, names); diff != "" {
				t.Errorf("snapshots after restore (-want +got):\n%s", diff)
			}
		})
	}
}
