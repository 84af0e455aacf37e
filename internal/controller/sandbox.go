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

package controller

import (
	"strings"

	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/eminwux/kukepx/internal/modelhub"
	"github.com/eminwux/kukepx/internal/router"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/opencontainers/runtime-spec/specs-go/features"
)

// Target names one existing container and, optionally, the runtime serving it.
type Target struct {
	ID      string
	Runtime string
}

func (t Target) request(op router.Op) (router.Request, error) {
	id := strings.TrimSpace(t.ID)
	if id == "" {
		return router.Request{}, errdefs.ErrContainerIDRequired
	}
	return router.Request{Op: op, ID: id, Runtime: t.Runtime}, nil
}

func (b *Exec) dispatch(req router.Request) (specs.State, error) {
	b.logger.DebugContext(b.ctx, "dispatching", "op", req.Op, "id", req.ID, "runtime", req.Runtime)
	st, err := b.router.Dispatch(b.ctx, req)
	if err != nil {
		b.logger.DebugContext(b.ctx, "dispatch failed", "op", req.Op, "id", req.ID, "error", err)
		return specs.State{}, err
	}
	return st, nil
}

// Create provisions a container without starting it.
func (b *Exec) Create(req router.Request) (specs.State, error) {
	req.Op = router.OpCreate
	return b.dispatch(req)
}

// Run creates and starts a container. An empty id is generated.
func (b *Exec) Run(req router.Request) (specs.State, error) {
	req.Op = router.OpRun
	return b.dispatch(req)
}

func (b *Exec) Start(t Target) (specs.State, error) {
	req, err := t.request(router.OpStart)
	if err != nil {
		return specs.State{}, err
	}
	return b.dispatch(req)
}

func (b *Exec) Stop(t Target) (specs.State, error) {
	req, err := t.request(router.OpStop)
	if err != nil {
		return specs.State{}, err
	}
	return b.dispatch(req)
}

// Kill delivers signal; an empty signal means SIGTERM.
func (b *Exec) Kill(t Target, signal string) (specs.State, error) {
	req, err := t.request(router.OpKill)
	if err != nil {
		return specs.State{}, err
	}
	req.Signal = signal
	return b.dispatch(req)
}

// Delete removes the container and its record. The returned state is the
// last one recorded before removal.
func (b *Exec) Delete(t Target, force bool) (specs.State, error) {
	req, err := t.request(router.OpDelete)
	if err != nil {
		return specs.State{}, err
	}
	req.Force = force
	return b.dispatch(req)
}

func (b *Exec) State(t Target, refresh bool) (specs.State, error) {
	req, err := t.request(router.OpState)
	if err != nil {
		return specs.State{}, err
	}
	req.Refresh = refresh
	return b.dispatch(req)
}

func (b *Exec) Update(t Target, res modelhub.Resources) (specs.State, error) {
	req, err := t.request(router.OpUpdate)
	if err != nil {
		return specs.State{}, err
	}
	req.Resources = res
	return b.dispatch(req)
}

func (b *Exec) List(refresh bool) ([]specs.State, error) {
	return b.router.List(b.ctx, refresh)
}

func (b *Exec) Features() features.Features {
	return b.router.Features()
}
