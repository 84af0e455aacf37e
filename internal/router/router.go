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

// Package router selects the execution backend for a request and forwards
// the operation to its driver.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/eminwux/kukepx/internal/consts"
	"github.com/eminwux/kukepx/internal/driver"
	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/eminwux/kukepx/internal/modelhub"
	"github.com/eminwux/kukepx/internal/state"
	"github.com/eminwux/kukepx/internal/util/naming"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sync/errgroup"
)

// refreshConcurrency bounds concurrent backend queries in List.
const refreshConcurrency = 8

// Checkpointer is the snapshot surface exposed next to the lifecycle.
type Checkpointer interface {
	Checkpoint(ctx context.Context, containerID, name string) error
	Restore(ctx context.Context, containerID, name string) error
	List(ctx context.Context, containerID string) ([]string, error)
	Delete(ctx context.Context, containerID, name string) error
}

type Router struct {
	logger      *slog.Logger
	store       *state.Store
	defaults    modelhub.Defaults
	drivers     map[modelhub.RuntimeType]driver.Driver
	checkpoints Checkpointer
}

// New registers drivers by the runtime they report. checkpoints may be nil.
func New(
	logger *slog.Logger,
	store *state.Store,
	defaults modelhub.Defaults,
	checkpoints Checkpointer,
	drivers ...driver.Driver,
) *Router {
	if defaults.Runtime == "" {
		defaults.Runtime = modelhub.RuntimeProxmoxLXC
	}
	r := &Router{
		logger:      logger,
		store:       store,
		defaults:    defaults,
		drivers:     make(map[modelhub.RuntimeType]driver.Driver, len(drivers)),
		checkpoints: checkpoints,
	}
	for _, d := range drivers {
		r.drivers[d.Runtime()] = d
	}
	return r
}

func (r *Router) Defaults() modelhub.Defaults { return r.defaults }

// Driver returns the driver registered for rt.
func (r *Router) Driver(rt modelhub.RuntimeType) (driver.Driver, error) {
	d, ok := r.drivers[rt]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not enabled", errdefs.ErrUnsupportedOperation, rt)
	}
	return d, nil
}

func parseRuntime(raw string) (modelhub.RuntimeType, error) {
	rt, err := modelhub.ParseRuntimeType(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errdefs.ErrUnknownRuntime, err)
	}
	return rt, nil
}

// resolve picks the runtime for req: the explicit selector, then the one
// recorded for the container, then the default.
func (r *Router) resolve(ctx context.Context, req Request) (modelhub.RuntimeType, error) {
	if strings.TrimSpace(req.Runtime) != "" {
		return parseRuntime(req.Runtime)
	}
	if !req.Op.provisions() {
		st, err := r.store.Get(ctx, req.ID)
		switch {
		case err == nil:
			if recorded := state.Annotation(st, consts.AnnotationRuntime); recorded != "" {
				return parseRuntime(recorded)
			}
		case !errors.Is(err, errdefs.ErrNotFound):
			return "", err
		}
	}
	return r.defaults.Runtime, nil
}

// Dispatch routes one operation. Create and run return the state after
// provisioning (and starting, for run); delete returns a zero state.
func (r *Router) Dispatch(ctx context.Context, req Request) (specs.State, error) {
	switch req.Op {
	case OpCreate, OpRun, OpStart, OpStop, OpKill, OpDelete, OpState, OpUpdate:
	default:
		return specs.State{}, fmt.Errorf("%w: %q", errdefs.ErrUnknownOperation, req.Op)
	}
	if req.Op == OpRun && strings.TrimSpace(req.ID) == "" {
		req.ID = naming.GenerateContainerID()
	}
	if err := naming.ValidateContainerID(req.ID); err != nil {
		return specs.State{}, err
	}

	rt, err := r.resolve(ctx, req)
	if err != nil {
		return specs.State{}, err
	}
	d, err := r.Driver(rt)
	if err != nil {
		return specs.State{}, err
	}
	r.logger.DebugContext(ctx, "dispatching", "op", req.Op, "id", req.ID, "runtime", rt)

	switch req.Op {
	case OpCreate, OpRun:
		cfg, buildErr := BuildSandboxConfig(req, rt, r.defaults)
		if buildErr != nil {
			return specs.State{}, buildErr
		}
		st, createErr := d.Create(ctx, cfg)
		if createErr != nil || req.Op == OpCreate {
			return st, createErr
		}
		return d.Start(ctx, cfg.ID)
	case OpStart:
		return d.Start(ctx, req.ID)
	case OpStop:
		return d.Stop(ctx, req.ID)
	case OpKill:
		return d.Kill(ctx, req.ID, req.Signal)
	case OpDelete:
		return specs.State{}, d.Delete(ctx, req.ID, req.Force)
	case OpUpdate:
		if err = d.Update(ctx, req.ID, req.Resources); err != nil {
			return specs.State{}, err
		}
		return d.State(ctx, req.ID, false)
	default:
		return d.State(ctx, req.ID, req.Refresh)
	}
}

// List returns every recorded container. With refresh each record is
// reconciled with its backend; different containers are queried
// concurrently.
func (r *Router) List(ctx context.Context, refresh bool) ([]specs.State, error) {
	records, err := r.store.List(ctx)
	if err != nil || !refresh {
		return records, err
	}

	out := make([]specs.State, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)
	for i, rec := range records {
		g.Go(func() error {
			st, stateErr := r.Dispatch(gctx, Request{Op: OpState, ID: rec.ID, Refresh: true})
			switch {
			case stateErr == nil:
				out[i] = st
			case errors.Is(stateErr, errdefs.ErrNotFound):
				out[i] = specs.State{}
			default:
				return fmt.Errorf("refresh %q: %w", rec.ID, stateErr)
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}

	kept := out[:0]
	for _, st := range out {
		if st.ID != "" {
			kept = append(kept, st)
		}
	}
	return kept, nil
}

func (r *Router) checkpointer() (Checkpointer, error) {
	if r.checkpoints == nil {
		return nil, fmt.Errorf("%w: checkpoints are not configured", errdefs.ErrUnsupportedOperation)
	}
	return r.checkpoints, nil
}

func (r *Router) Checkpoint(ctx context.Context, id, name string) error {
	c, err := r.checkpointer()
	if err != nil {
		return err
	}
	return c.Checkpoint(ctx, id, name)
}

func (r *Router) Restore(ctx context.Context, id, name string) error {
	c, err := r.checkpointer()
	if err != nil {
		return err
	}
	return c.Restore(ctx, id, name)
}

func (r *Router) ListCheckpoints(ctx context.Context, id string) ([]string, error) {
	c, err := r.checkpointer()
	if err != nil {
		return nil, err
	}
	return c.List(ctx, id)
}

func (r *Router) DeleteCheckpoint(ctx context.Context, id, name string) error {
	c, err := r.checkpointer()
	if err != nil {
		return err
	}
	return c.Delete(ctx, id, name)
}
