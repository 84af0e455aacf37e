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

// Package driver runs containers through their lifecycle on one execution
// backend. Every backend shares the same state machine, implemented by Exec;
// the backend itself only knows how to invoke its tools.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eminwux/kukepx/internal/bundle"
	"github.com/eminwux/kukepx/internal/consts"
	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/eminwux/kukepx/internal/modelhub"
	"github.com/eminwux/kukepx/internal/state"
	"github.com/eminwux/kukepx/internal/util/naming"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Driver is the capability every backend exposes to the router.
type Driver interface {
	Runtime() modelhub.RuntimeType
	Create(ctx context.Context, cfg modelhub.SandboxConfig) (specs.State, error)
	Start(ctx context.Context, id string) (specs.State, error)
	Stop(ctx context.Context, id string) (specs.State, error)
	Kill(ctx context.Context, id, signal string) (specs.State, error)
	Delete(ctx context.Context, id string, force bool) error
	State(ctx context.Context, id string, refresh bool) (specs.State, error)
	Update(ctx context.Context, id string, res modelhub.Resources) error
}

// Live is what a backend reports about a container right now.
type Live struct {
	Exists      bool
	Status      specs.ContainerState
	Pid         int
	Annotations map[string]string
}

func (l Live) stopped() bool {
	return !l.Exists || l.Status == specs.StateStopped
}

// backend is the tool-specific half of a driver.
type backend interface {
	runtime() modelhub.RuntimeType
	// provision creates the container and returns annotations for its record.
	provision(ctx context.Context, cfg modelhub.SandboxConfig) (map[string]string, error)
	boot(ctx context.Context, id string) error
	signal(ctx context.Context, id string, sig Signal) error
	halt(ctx context.Context, id string) error
	inspect(ctx context.Context, id string) (Live, error)
	destroy(ctx context.Context, id string, force bool) error
	resize(ctx context.Context, id string, res modelhub.Resources) error
	// forget drops any identity bookkeeping kept for id.
	forget(ctx context.Context, id string) error
}

// createdSignaler is implemented by backends whose created containers already
// run an init process waiting to be started, so they can be signaled.
type createdSignaler interface {
	signalsCreated() bool
}

func signalsCreated(be backend) bool {
	cs, ok := be.(createdSignaler)
	return ok && cs.signalsCreated()
}

type Options struct {
	// PollAttempts bounds the status checks after a signal or start.
	PollAttempts int
	PollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollAttempts <= 0 {
		o.PollAttempts = consts.DefaultPollAttempts
	}
	if o.PollInterval < 0 {
		o.PollInterval = consts.DefaultPollInterval
	}
	return o
}

// Exec implements Driver on top of a backend and the state store.
type Exec struct {
	logger *slog.Logger
	store  *state.Store
	opts   Options
	be     backend
}

func newExec(logger *slog.Logger, store *state.Store, opts Options, be backend) *Exec {
	return &Exec{
		logger: logger.With("runtime", string(be.runtime())),
		store:  store,
		opts:   opts.withDefaults(),
		be:     be,
	}
}

func (e *Exec) Runtime() modelhub.RuntimeType { return e.be.runtime() }

// Create provisions the container and writes its created record.
func (e *Exec) Create(ctx context.Context, cfg modelhub.SandboxConfig) (specs.State, error) {
	if err := naming.ValidateContainerID(cfg.ID); err != nil {
		return specs.State{}, err
	}
	if _, err := e.store.Get(ctx, cfg.ID); err == nil {
		return specs.State{}, fmt.Errorf("%w: %q", errdefs.ErrContainerExists, cfg.ID)
	} else if !errors.Is(err, errdefs.ErrNotFound) {
		return specs.State{}, err
	}

	e.logger.DebugContext(ctx, "creating container", "id", cfg.ID, "image", cfg.Image, "bundle", cfg.Bundle)
	annotations, err := e.be.provision(ctx, cfg)
	if err != nil {
		return specs.State{}, err
	}
	if annotations == nil {
		annotations = map[string]string{}
	}
	annotations[consts.AnnotationRuntime] = string(e.be.runtime())
	if cfg.Name != "" {
		annotations[consts.AnnotationName] = cfg.Name
	}
	if cfg.Image != "" {
		annotations[consts.AnnotationImage] = cfg.Image
	}

	st := state.New(cfg.ID, cfg.Bundle, annotations)
	if err = e.store.Create(ctx, st); err != nil {
		return specs.State{}, err
	}
	e.logger.InfoContext(ctx, "created container", "id", cfg.ID)
	return st, nil
}

// Start boots a created container and records its init pid.
func (e *Exec) Start(ctx context.Context, id string) (specs.State, error) {
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return specs.State{}, err
	}
	switch rec.Status {
	case specs.StateRunning:
		return rec, nil
	case specs.StateStopped:
		return specs.State{}, fmt.Errorf("%w: %q is stopped", errdefs.ErrInvalidTransition, id)
	}

	e.logger.DebugContext(ctx, "starting container", "id", id)
	if err = e.be.boot(ctx, id); err != nil {
		return specs.State{}, err
	}

	live, ok, err := e.waitFor(ctx, id, func(l Live) bool {
		return l.stopped() || (l.Status == specs.StateRunning && l.Pid > 0)
	})
	if err != nil {
		return specs.State{}, err
	}
	if !ok {
		return specs.State{}, fmt.Errorf("%w: %q did not report an init pid", errdefs.ErrTimeout, id)
	}
	if live.stopped() {
		e.logger.WarnContext(ctx, "container exited right after start", "id", id)
		return e.store.Transition(ctx, id, specs.StateStopped, 0)
	}
	e.logger.InfoContext(ctx, "started container", "id", id, "pid", live.Pid)
	return e.store.Transition(ctx, id, specs.StateRunning, live.Pid)
}

// Kill delivers signal to the container init. For terminating signals it
// waits until the backend reports the container stopped.
func (e *Exec) Kill(ctx context.Context, id, signal string) (specs.State, error) {
	sig, err := ParseSignal(signal)
	if err != nil {
		return specs.State{}, err
	}
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return specs.State{}, err
	}
	switch rec.Status {
	case specs.StateStopped:
		e.logger.DebugContext(ctx, "container already stopped, nothing to signal", "id", id)
		return rec, nil
	case specs.StateCreating:
		return specs.State{}, fmt.Errorf("%w: %q", errdefs.ErrNotRunning, id)
	case specs.StateCreated:
		if !signalsCreated(e.be) {
			return specs.State{}, fmt.Errorf("%w: %q", errdefs.ErrNotRunning, id)
		}
	}

	e.logger.DebugContext(ctx, "signaling container", "id", id, "signal", sig.Name)
	sendErr := e.be.signal(ctx, id, sig)
	if !sig.Terminal() {
		if sendErr != nil {
			return specs.State{}, sendErr
		}
		return rec, nil
	}

	return e.confirmStopped(ctx, id, sendErr)
}

// Stop sends TERM and, when the container does not exit in time, forces it
// down.
func (e *Exec) Stop(ctx context.Context, id string) (specs.State, error) {
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return specs.State{}, err
	}
	switch rec.Status {
	case specs.StateStopped:
		return rec, nil
	case specs.StateCreated, specs.StateCreating:
		return e.store.Transition(ctx, id, specs.StateStopped, 0)
	}

	sendErr := e.be.signal(ctx, id, SignalTerm)
	st, err := e.confirmStopped(ctx, id, sendErr)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, errdefs.ErrStopUnconfirmed) && sendErr == nil {
		return specs.State{}, err
	}

	e.logger.WarnContext(ctx, "container ignored TERM, forcing stop", "id", id, "error", err)
	haltErr := e.be.halt(ctx, id)
	return e.confirmStopped(ctx, id, haltErr)
}

// confirmStopped polls the backend until the container is stopped. A failed
// signal delivery is forgiven when the container stopped anyway.
func (e *Exec) confirmStopped(ctx context.Context, id string, sendErr error) (specs.State, error) {
	_, ok, err := e.waitFor(ctx, id, Live.stopped)
	if err != nil {
		return specs.State{}, err
	}
	if !ok {
		if sendErr != nil {
			return specs.State{}, sendErr
		}
		return specs.State{}, fmt.Errorf("%w: %q", errdefs.ErrStopUnconfirmed, id)
	}
	if sendErr != nil {
		e.logger.DebugContext(ctx, "signal delivery failed but container stopped", "id", id, "error", sendErr)
	}
	e.logger.InfoContext(ctx, "container stopped", "id", id)
	return e.store.Transition(ctx, id, specs.StateStopped, 0)
}

// Delete destroys the container and removes its record and identity. A
// running container is only deleted with force.
func (e *Exec) Delete(ctx context.Context, id string, force bool) error {
	_, err := e.store.Get(ctx, id)
	recordMissing := errors.Is(err, errdefs.ErrNotFound)
	if err != nil && !recordMissing {
		return err
	}

	live, err := e.be.inspect(ctx, id)
	if err != nil {
		return err
	}
	if recordMissing && !live.Exists {
		if err = e.be.forget(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: %q", errdefs.ErrContainerNotFound, id)
	}

	if live.Exists && live.Status == specs.StateRunning {
		if !force {
			return fmt.Errorf("%w: %q is running, stop it first or force the delete", errdefs.ErrInvalidTransition, id)
		}
		e.logger.WarnContext(ctx, "force deleting running container", "id", id)
		if err = e.be.halt(ctx, id); err != nil && !errors.Is(err, errdefs.ErrNotFound) {
			return err
		}
		if _, ok, waitErr := e.waitFor(ctx, id, Live.stopped); waitErr != nil {
			return waitErr
		} else if !ok {
			return fmt.Errorf("%w: %q", errdefs.ErrStopUnconfirmed, id)
		}
	}

	if live.Exists {
		e.logger.DebugContext(ctx, "destroying container", "id", id)
		if err = e.be.destroy(ctx, id, force); err != nil {
			if !errors.Is(err, errdefs.ErrNotFound) {
				return err
			}
			e.logger.WarnContext(ctx, "container already gone from backend", "id", id)
		}
	}

	if err = e.be.forget(ctx, id); err != nil {
		return err
	}
	if err = e.store.Delete(ctx, id); err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "deleted container", "id", id)
	return nil
}

// State returns the persisted record. A missing record is rebuilt from the
// backend when the container still exists there; refresh reconciles an
// existing record with the backend.
func (e *Exec) State(ctx context.Context, id string, refresh bool) (specs.State, error) {
	rec, err := e.store.Get(ctx, id)
	if err != nil && !errors.Is(err, errdefs.ErrNotFound) {
		return specs.State{}, err
	}
	if err != nil {
		return e.repair(ctx, id, err)
	}
	if !refresh {
		return rec, nil
	}

	live, err := e.be.inspect(ctx, id)
	if err != nil {
		return specs.State{}, err
	}
	status, pid, changed := Reconcile(rec, live)
	if !changed {
		return rec, nil
	}
	e.logger.DebugContext(ctx, "reconciling state with backend",
		"id", id, "recorded", rec.Status, "live", live.Status)
	return e.store.Transition(ctx, id, status, pid)
}

func (e *Exec) repair(ctx context.Context, id string, notFound error) (specs.State, error) {
	live, err := e.be.inspect(ctx, id)
	if err != nil {
		return specs.State{}, err
	}
	if !live.Exists {
		return specs.State{}, notFound
	}

	annotations := map[string]string{consts.AnnotationRuntime: string(e.be.runtime())}
	for k, v := range live.Annotations {
		annotations[k] = v
	}
	st := state.New(id, "", annotations)
	st.Status = live.Status
	if st.Status == "" {
		st.Status = specs.StateStopped
	}
	if st.Status == specs.StateRunning {
		st.Pid = live.Pid
	}
	if err = e.store.Repair(ctx, st); err != nil {
		return specs.State{}, err
	}
	return st, nil
}

// Reconcile decides the status a record should move to given what the
// backend reports. Records never move backwards. Backends that cannot tell
// created from stopped report stopped, so a created record only follows the
// backend forward to running.
func Reconcile(rec specs.State, live Live) (specs.ContainerState, int, bool) {
	switch rec.Status {
	case specs.StateRunning:
		if live.stopped() {
			return specs.StateStopped, 0, true
		}
		if live.Status == specs.StateRunning && live.Pid > 0 && live.Pid != rec.Pid {
			return specs.StateRunning, live.Pid, true
		}
	case specs.StateCreated, specs.StateCreating:
		if !live.Exists {
			return specs.StateStopped, 0, true
		}
		if live.Status == specs.StateRunning {
			return specs.StateRunning, live.Pid, true
		}
	}
	return rec.Status, rec.Pid, false
}

// Update changes the resource limits of an existing container.
func (e *Exec) Update(ctx context.Context, id string, res modelhub.Resources) error {
	if res.IsZero() {
		return fmt.Errorf("%w: no resources to update", errdefs.ErrInvalidInput)
	}
	if _, err := e.store.Get(ctx, id); err != nil {
		return err
	}
	e.logger.DebugContext(ctx, "updating container resources", "id", id, "resources", res)
	return e.be.resize(ctx, id, res)
}

// waitFor polls inspect until done holds or the attempts run out.
func (e *Exec) waitFor(ctx context.Context, id string, done func(Live) bool) (Live, bool, error) {
	var live Live
	for attempt := range e.opts.PollAttempts {
		if attempt > 0 && e.opts.PollInterval > 0 {
			timer := time.NewTimer(e.opts.PollInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return live, false, fmt.Errorf("%w: %w", errdefs.ErrTimeout, ctx.Err())
			case <-timer.C:
			}
		}
		var err error
		live, err = e.be.inspect(ctx, id)
		if err != nil {
			return live, false, err
		}
		if done(live) {
			return live, true, nil
		}
	}
	return live, false, nil
}

// loadBundle parses the bundle at path, or returns nil when path is empty.
func loadBundle(path string) (*bundle.Bundle, error) {
	if path == "" {
		return nil, nil
	}
	return bundle.Load(path)
}

// resizeTargets converts requested resources to MiB and cores.
func resizeTargets(res modelhub.Resources) (int, int) {
	var memMB, cores int
	if res.MemoryBytes > 0 {
		memMB = max(1, int(res.MemoryBytes/(1024*1024)))
	}
	switch {
	case res.Cores > 0:
		cores = res.Cores
	case res.CPUShares > 0:
		cores = bundle.SharesToCores(res.CPUShares)
	}
	return memMB, cores
}
