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
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/eminwux/kukepx/internal/cmdrunner"
)

type fakeCT struct {
	running bool
	pid     int
}

// fakePVE simulates the pct, qm and lxc-info surface of one Proxmox node.
type fakePVE struct {
	mu      sync.Mutex
	cts     map[string]*fakeCT
	vms     map[string]*fakeCT
	nextPid int

	// ignoreTerm keeps the container running on TERM.
	ignoreTerm bool
	// killExit is returned by a successful kill path.
	killExit int
	// missing lists binaries absent inside the container.
	missing map[string]bool
	// fail forces a response for commands starting with the key.
	fail map[string]cmdrunner.Response
}

func newFakePVE() *fakePVE {
	return &fakePVE{
		cts:     map[string]*fakeCT{},
		vms:     map[string]*fakeCT{},
		nextPid: 4000,
		missing: map[string]bool{},
		fail:    map[string]cmdrunner.Response{},
	}
}

func (f *fakePVE) runner() *cmdrunner.Fake {
	return &cmdrunner.Fake{Handler: f.handle}
}

func notExist(kind, id string) cmdrunner.Response {
	return cmdrunner.Response{
		ExitCode: 2,
		Stderr:   fmt.Sprintf("Configuration file 'nodes/pve/%s/%s.conf' does not exist", kind, id),
	}
}

func (f *fakePVE) handle(argv []string) cmdrunner.Response {
	f.mu.Lock()
	defer f.mu.Unlock()

	joined := strings.Join(argv, " ")
	for prefix, resp := range f.fail {
		if strings.HasPrefix(joined, prefix) {
			return resp
		}
	}

	switch argv[0] {
	case "pct":
		return f.pct(argv[1:])
	case "qm":
		return f.qm(argv[1:])
	case "lxc-info":
		ct, ok := f.cts[argv[2]]
		if !ok || !ct.running {
			return cmdrunner.Response{ExitCode: 1, Stderr: argv[2] + " doesn't exist"}
		}
		return cmdrunner.Response{Stdout: strconv.Itoa(ct.pid) + "\n"}
	}
	return cmdrunner.Response{ExitCode: 127, Stderr: argv[0] + ": command not found"}
}

func (f *fakePVE) pct(args []string) cmdrunner.Response {
	verb, id := args[0], args[1]
	ct, ok := f.cts[id]
	if !ok && verb != "create" {
		return notExist("lxc", id)
	}
	switch verb {
	case "create":
		if ok {
			return cmdrunner.Response{ExitCode: 255, Stderr: "CT " + id + " already exists on node 'pve'"}
		}
		f.cts[id] = &fakeCT{}
	case "status":
		if ct.running {
			return cmdrunner.Response{Stdout: "status: running\n"}
		}
		return cmdrunner.Response{Stdout: "status: stopped\n"}
	case "start":
		f.nextPid++
		ct.running, ct.pid = true, f.nextPid
	case "stop":
		ct.running, ct.pid = false, 0
	case "destroy":
		delete(f.cts, id)
	case "exec":
		if !ct.running {
			return cmdrunner.Response{ExitCode: 255, Stderr: "CT " + id + " not running"}
		}
		bin := args[3]
		if f.missing[bin] {
			return cmdrunner.Response{ExitCode: 127, Stderr: "exec: " + bin + ": no such file"}
		}
		sig := args[4]
		if bin == "/bin/sh" {
			sig = strings.Fields(args[5])[1]
		}
		if sig == "-KILL" || !f.ignoreTerm {
			ct.running, ct.pid = false, 0
		}
		return cmdrunner.Response{ExitCode: f.killExit}
	}
	return cmdrunner.Response{}
}

func (f *fakePVE) qm(args []string) cmdrunner.Response {
	verb, id := args[0], args[1]
	vm, ok := f.vms[id]
	if !ok && verb != "create" {
		return notExist("qemu-server", id)
	}
	switch verb {
	case "create":
		f.vms[id] = &fakeCT{}
	case "status":
		if vm.running {
			return cmdrunner.Response{Stdout: fmt.Sprintf("cpus: 1\npid: %d\nstatus: running\n", vm.pid)}
		}
		return cmdrunner.Response{Stdout: "status: stopped\n"}
	case "start":
		f.nextPid++
		vm.running, vm.pid = true, f.nextPid
	case "shutdown":
		if !f.ignoreTerm {
			vm.running, vm.pid = false, 0
		}
	case "stop":
		vm.running, vm.pid = false, 0
	case "destroy":
		delete(f.vms, id)
	}
	return cmdrunner.Response{}
}

func (f *fakePVE) setRunning(id string, running bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ct, ok := f.cts[id]; ok {
		ct.running = running
		if !running {
			ct.pid = 0
		}
	}
}

func (f *fakePVE) addCT(id string) {
	f.mu.Lock()
	f.cts[id] = &fakeCT{}
	f.mu.Unlock()
}

func (f *fakePVE) hasCT(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.cts[id]
	return ok
}
