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

package parser

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/eminwux/kukepx/internal/apischeme"
	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/eminwux/kukepx/internal/modelhub"
	v1beta1 "github.com/eminwux/kukepx/pkg/api/model/v1beta1"
	"gopkg.in/yaml.v3"
)

// Document represents a parsed YAML document with its type information.
type Document struct {
	Index      int
	Raw        []byte
	APIVersion v1beta1.Version
	Kind       v1beta1.Kind
	SandboxDoc *v1beta1.SandboxDoc
}

// ValidationError represents a validation error for a specific document.
type ValidationError struct {
	Index int
	Kind  v1beta1.Kind
	Name  string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("document %d (%s %q): %v", e.Index, e.Kind, e.Name, e.Err)
	}
	return fmt.Sprintf("document %d (%s): %v", e.Index, e.Kind, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ParseDocuments reads YAML from the given reader and splits it into multiple documents.
// Documents are separated by a `---` line.
func ParseDocuments(r io.Reader) ([][]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	var (
		result  [][]byte
		current strings.Builder
	)
	flush := func() {
		doc := strings.TrimSpace(current.String())
		current.Reset()
		if doc != "" {
			result = append(result, []byte(doc))
		}
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimRight(line, " \t\r") == "---" {
			flush()
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	flush()

	if len(result) == 0 {
		return nil, errors.New("no documents found in input")
	}

	return result, nil
}

// DetectKind extracts the kind from raw YAML bytes.
func DetectKind(raw []byte) (v1beta1.Kind, error) {
	var header struct {
		Kind v1beta1.Kind `yaml:"kind"`
	}
	if err := yaml.Unmarshal(raw, &header); err != nil {
		return "", fmt.Errorf("failed to parse kind: %w", err)
	}
	return header.Kind, nil
}

// ParseDocument parses a single YAML document and returns a Document with the appropriate typed doc.
func ParseDocument(index int, raw []byte) (*Document, error) {
	doc := &Document{
		Index: index,
		Raw:   raw,
	}

	kind, err := DetectKind(raw)
	if err != nil {
		return nil, fmt.Errorf("document %d: %w", index, err)
	}
	doc.Kind = kind

	switch kind {
	case v1beta1.KindSandbox:
		var sandboxDoc v1beta1.SandboxDoc
		dec := yaml.NewDecoder(strings.NewReader(string(raw)))
		dec.KnownFields(true)
		if decodeErr := dec.Decode(&sandboxDoc); decodeErr != nil {
			return nil, fmt.Errorf("document %d: failed to parse Sandbox: %w", index, decodeErr)
		}
		doc.SandboxDoc = &sandboxDoc
		doc.APIVersion = sandboxDoc.APIVersion

	default:
		return nil, fmt.Errorf("document %d: %w: %s", index, errdefs.ErrUnknownKind, kind)
	}

	return doc, nil
}

// ValidateDocument validates a parsed document for required fields and constraints.
func ValidateDocument(doc *Document) *ValidationError {
	apiVersion := apischeme.DefaultVersion(doc.APIVersion)
	if apiVersion != apischeme.VersionV1Beta1 {
		return &ValidationError{
			Index: doc.Index,
			Kind:  doc.Kind,
			Err: fmt.Errorf(
				"%w: %s (expected %s)",
				errdefs.ErrUnsupportedAPIVersion,
				doc.APIVersion,
				apischeme.VersionV1Beta1,
			),
		}
	}

	if doc.Kind != v1beta1.KindSandbox {
		return &ValidationError{
			Index: doc.Index,
			Kind:  doc.Kind,
			Err:   fmt.Errorf("%w: %s", errdefs.ErrUnknownKind, doc.Kind),
		}
	}

	if doc.SandboxDoc == nil {
		return &ValidationError{
			Index: doc.Index,
			Kind:  doc.Kind,
			Err:   errors.New("sandbox document is nil"),
		}
	}
	sb := doc.SandboxDoc
	fail := func(err error) *ValidationError {
		return &ValidationError{Index: doc.Index, Kind: doc.Kind, Name: sb.Metadata.Name, Err: err}
	}

	if sb.Metadata.Name == "" {
		return fail(fmt.Errorf("%w: metadata.name is required", errdefs.ErrInvalidInput))
	}
	if sb.Spec.Image == "" && sb.Spec.Bundle == "" {
		return fail(fmt.Errorf("%w: spec.image or spec.bundle is required", errdefs.ErrInvalidInput))
	}
	if sb.Spec.Runtime != "" {
		if _, err := modelhub.ParseRuntimeType(sb.Spec.Runtime); err != nil {
			return fail(fmt.Errorf("%w: %w", errdefs.ErrUnknownRuntime, err))
		}
	}
	if sb.Spec.Resources.MemoryBytes < 0 || sb.Spec.Resources.Cores < 0 {
		return fail(fmt.Errorf("%w: spec.resources must not be negative", errdefs.ErrInvalidInput))
	}

	return nil
}
