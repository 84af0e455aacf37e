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
	"sync"

	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/eminwux/kukepx/internal/router"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/opencontainers/runtime-spec/specs-go/features"
)

// fakeRouter keeps records in memory and fails ops listed in failOps.
type fakeRouter struct {
	mu       sync.Mutex
	records  map[string]specs.State
	requests []router.Request
	failOps  map[router.Op]error
	snaps    map[string][]string
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{
		records: make(map[string]specs.State),
		failOps: make(map[router.Op]error),
		snaps:   make(map[string][]string),
	}
}

func (f *fakeRouter) Dispatch(_ context.Context, req router.Request) (specs.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err, ok := f.failOps[req.Op]; ok {
		return specs.State{}, err
	}

	rec, exists := f.records[req.ID]
	switch req.Op {
	case router.OpCreate, router.OpRun:
		if exists {
			return specs.State{}, errdefs.ErrContainerExists
		}
		rec = specs.State{ID: req.ID, Status: specs.StateCreated, Bundle: req.Bundle}
		if req.Op == router.OpRun {
			rec.Status, rec.Pid = specs.StateRunning, 1
		}
	case router.OpStart:
		if !exists {
			return specs.State{}, errdefs.ErrContainerNotFound
		}
		rec.Status, rec.Pid = specs.StateRunning, 1
	case router.OpStop, router.OpKill:
		if !exists {
			return specs.State{}, errdefs.ErrContainerNotFound
		}
		rec.Status, rec.Pid = specs.StateStopped, 0
	case router.OpDelete:
		if !exists {
			return specs.State{}, errdefs.ErrContainerNotFound
		}
		delete(f.records, req.ID)
		return rec, nil
	case router.OpState, router.OpUpdate:
		if !exists {
			return specs.State{}, errdefs.ErrContainerNotFound
		}
	}
	f.records[req.ID] = rec
	return rec, nil
}

func (f *fakeRouter) List(context.Context, bool) ([]specs.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]specs.State, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeRouter) Features() features.Features {
	return features.Features{OCIVersionMin: "1.0.0"}
}

func (f *fakeRouter) Checkpoint(_ context.Context, id, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps[id] = append(f.snaps[id], name)
	return nil
}

func (f *fakeRouter) Restore(_ context.Context, id, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.snaps[id] {
		if s == name {
			return nil
		}
	}
	return errdefs.ErrSnapshotNotFound
}

func (f *fakeRouter) ListCheckpoints(_ context.Context, id string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.snaps[id]...), nil
}

func (f *fakeRouter) DeleteCheckpoint(_ context.Context, id, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.snaps[id][:0]
	for _, s := range f.snaps[id] {
		if s != name {
			kept = append(kept, s)
		}
	}
	f.snaps[id] = kept
	return nil
}

func (f *fakeRouter) ops() []router.Op {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]router.Op, 0, len(f.requests))
	for _, r := range f.requests {
		out = append(out, r.Op)
	}
	return out
}
