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
	"encoding/json"
	"fmt"

	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// AddOutputFlag registers -o/--output.
func AddOutputFlag(cmd *cobra.Command, usage string) {
	cmd.Flags().StringP("output", "o", "", usage)
}

// OutputFormat reads -o and rejects anything but json, yaml or empty.
func OutputFormat(cmd *cobra.Command) (string, error) {
	format, err := cmd.Flags().GetString("output")
	if err != nil {
		return "", err
	}
	switch format {
	case "", OutputJSON, OutputYAML:
		return format, nil
	default:
		return "", fmt.Errorf("%w: output format %q (use json or yaml)", errdefs.ErrInvalidInput, format)
	}
}

// PrintJSONOrYAML writes data to stdout in JSON or YAML format.
// The data parameter should be a struct that can be marshaled.
func PrintJSONOrYAML(cmd *cobra.Command, data any, format string) error {
	var out []byte
	var err error

	if format == OutputYAML {
		out, err = yaml.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
	} else {
		out, err = json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		out = append(out, '\n')
	}

	_, err = cmd.OutOrStdout().Write(out)
	return err
}

// PrintStateOr prints v in the requested format, or the human message when
// no format was asked for.
func PrintStateOr(cmd *cobra.Command, v any, format, human string) error {
	if format == "" {
		cmd.Println(human)
		return nil
	}
	return PrintJSONOrYAML(cmd, v, format)
}
