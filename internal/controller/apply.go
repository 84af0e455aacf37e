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
	"errors"
	"fmt"

	"github.com/eminwux/kukepx/internal/apischeme"
	"github.com/eminwux/kukepx/internal/apply/parser"
	"github.com/eminwux/kukepx/internal/errdefs"
	intmodel "github.com/eminwux/kukepx/internal/modelhub"
	"github.com/eminwux/kukepx/internal/router"
	v1beta1 "github.com/eminwux/kukepx/pkg/api/model/v1beta1"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

const (
	ActionCreated   = "created"
	ActionStarted   = "started"
	ActionUnchanged = "unchanged"
	ActionFailed    = "failed"
)

// ApplyResult represents the result of applying a set of resources.
type ApplyResult struct {
	Resources []ResourceResult
}

// Failed reports whether any resource failed to apply.
func (r ApplyResult) Failed() bool {
	for _, res := range r.Resources {
		if res.Action == ActionFailed {
			return true
		}
	}
	return false
}

// ResourceResult represents the result of applying a single resource.
type ResourceResult struct {
	Index    int                 `json:"index"              yaml:"index"`
	Kind     string              `json:"kind"               yaml:"kind"`
	Name     string              `json:"name"               yaml:"name"`
	Action   string              `json:"action"             yaml:"action"`
	Error    error               `json:"-"                  yaml:"-"`
	Resource *v1beta1.SandboxDoc `json:"resource,omitempty" yaml:"resource,omitempty"`
}

// ApplyDocuments creates each sandbox in document order and starts it when
// the document asks for it. A failing document does not stop the others.
func (b *Exec) ApplyDocuments(docs []parser.Document) (ApplyResult, error) {
	result := ApplyResult{
		Resources: make([]ResourceResult, 0, len(docs)),
	}

	for _, doc := range docs {
		res := ResourceResult{
			Index: doc.Index,
			Kind:  string(doc.Kind),
		}

		switch doc.Kind {
		case v1beta1.KindSandbox:
			if doc.SandboxDoc == nil {
				res.Action = ActionFailed
				res.Error = errors.New("sandbox document is nil")
				break
			}
			sb, version, err := apischeme.NormalizeSandbox(*doc.SandboxDoc)
			if err != nil {
				res.Action = ActionFailed
				res.Name = doc.SandboxDoc.Metadata.Name
				res.Error = fmt.Errorf("%w: %w", errdefs.ErrConversionFailed, err)
				break
			}
			res.Name = sb.Name
			res.Action, sb.State, res.Error = b.applySandbox(sb)
			if out, buildErr := apischeme.BuildSandboxExternalFromInternal(sb, version); buildErr == nil {
				res.Resource = &out
			}

		default:
			res.Action = ActionFailed
			res.Error = fmt.Errorf("%w: %s", errdefs.ErrUnknownKind, doc.Kind)
		}

		if res.Error != nil {
			b.logger.WarnContext(b.ctx, "apply failed", "index", res.Index, "name", res.Name, "error", res.Error)
		}
		result.Resources = append(result.Resources, res)
	}

	return result, nil
}

func (b *Exec) applySandbox(sb intmodel.Sandbox) (string, *specs.State, error) {
	cfg := sb.Config
	target := Target{ID: cfg.ID, Runtime: string(cfg.Runtime)}

	existing, err := b.State(target, false)
	switch {
	case err == nil:
		if sb.Start && existing.Status == specs.StateCreated {
			started, startErr := b.Start(target)
			if startErr != nil {
				return ActionFailed, &existing, startErr
			}
			return ActionStarted, &started, nil
		}
		return ActionUnchanged, &existing, nil
	case !errors.Is(err, errdefs.ErrNotFound):
		return ActionFailed, nil, err
	}

	created, err := b.Create(router.Request{
		ID:        cfg.ID,
		Name:      cfg.Name,
		Runtime:   string(cfg.Runtime),
		Image:     cfg.Image,
		Bundle:    cfg.Bundle,
		Resources: cfg.Resources,
		Network:   cfg.Network,
		Storage:   cfg.Storage,
	})
	if err != nil {
		return ActionFailed, nil, err
	}
	if !sb.Start {
		return ActionCreated, &created, nil
	}

	started, err := b.Start(target)
	if err != nil {
		return ActionFailed, &created, err
	}
	return ActionCreated, &started, nil
}
