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

package shared

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/eminwux/kukepx/internal/apply/parser"
)

// openInput opens file, or stdin when file is "-".
func openInput(file string, stdin io.Reader) (io.ReadCloser, error) {
	if file == "-" {
		return io.NopCloser(stdin), nil
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %q: %w", file, err)
	}
	return f, nil
}

// LoadDocuments reads, parses and validates every manifest document in file.
// All validation failures are reported together.
func LoadDocuments(file string, stdin io.Reader) ([]parser.Document, error) {
	in, err := openInput(file, stdin)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	rawDocs, err := parser.ParseDocuments(in)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	docs := make([]parser.Document, 0, len(rawDocs))
	var invalid []*parser.ValidationError
	for i, raw := range rawDocs {
		doc, parseErr := parser.ParseDocument(i, raw)
		if parseErr != nil {
			invalid = append(invalid, &parser.ValidationError{Index: i, Err: parseErr})
			continue
		}
		if verr := parser.ValidateDocument(doc); verr != nil {
			invalid = append(invalid, verr)
			continue
		}
		docs = append(docs, *doc)
	}

	if err = formatValidationErrors(invalid); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, errors.New("no valid documents found in input")
	}
	return docs, nil
}

func formatValidationErrors(invalid []*parser.ValidationError) error {
	switch len(invalid) {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("validation error: %w", invalid[0])
	}
	errs := make([]error, 0, len(invalid))
	for _, v := range invalid {
		errs = append(errs, v)
	}
	return fmt.Errorf("validation errors:\n%w", errors.Join(errs...))
}
