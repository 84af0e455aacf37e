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

package apply

import (
	"errors"
	"fmt"

	"github.com/eminwux/kukepx/cmd/kukepx/shared"
	"github.com/eminwux/kukepx/internal/apply/parser"
	"github.com/eminwux/kukepx/internal/controller"
	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/spf13/cobra"
)

type applyController interface {
	ApplyDocuments(docs []parser.Document) (controller.ApplyResult, error)
}

// MockControllerKey is used to inject mock controllers in tests via context.
type MockControllerKey struct{}

func NewApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply -f <file>",
		Short: "Create sandboxes from a YAML manifest",
		Long: "Create every Sandbox document of a YAML file or stdin that does not exist yet, " +
			"starting it when the document sets spec.start. Documents are separated by '---'.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, err := cmd.Flags().GetString("file")
			if err != nil {
				return err
			}
			if file == "" {
				return errors.New("file flag is required (use -f <file> or -f - for stdin)")
			}
			format, err := shared.OutputFormat(cmd)
			if err != nil {
				return err
			}

			docs, err := shared.LoadDocuments(file, cmd.InOrStdin())
			if err != nil {
				return err
			}

			ctrl, err := shared.GetControllerWithMockWrapper(cmd, MockControllerKey{},
				func(c *controller.Exec) applyController { return c })
			if err != nil {
				return err
			}

			result, err := ctrl.ApplyDocuments(docs)
			if err != nil {
				return fmt.Errorf("failed to apply documents: %w", err)
			}

			if format != "" {
				if err = printApplyResultStructured(cmd, result, format); err != nil {
					return err
				}
			} else {
				printApplyResult(cmd, result)
			}

			if result.Failed() {
				return fmt.Errorf("%w: some resources failed to apply", errdefs.ErrConfig)
			}
			return nil
		},
	}

	cmd.Flags().StringP("file", "f", "", "File to read YAML from (use - for stdin)")
	_ = cmd.MarkFlagRequired("file")
	shared.AddOutputFlag(cmd, "Output format: json, yaml (default: human-readable)")

	return cmd
}

func printApplyResult(cmd *cobra.Command, result controller.ApplyResult) {
	for _, res := range result.Resources {
		cmd.Printf("%s %q: %s\n", res.Kind, res.Name, res.Action)
		if res.Action == controller.ActionFailed && res.Error != nil {
			cmd.Printf("  Error: %v\n", res.Error)
		}
	}
}

type structuredResult struct {
	Index    int    `json:"index"              yaml:"index"`
	Kind     string `json:"kind"               yaml:"kind"`
	Name     string `json:"name"               yaml:"name"`
	Action   string `json:"action"             yaml:"action"`
	Error    string `json:"error,omitempty"    yaml:"error,omitempty"`
	Resource any    `json:"resource,omitempty" yaml:"resource,omitempty"`
}

func printApplyResultStructured(cmd *cobra.Command, result controller.ApplyResult, format string) error {
	output := struct {
		Resources []structuredResult `json:"resources" yaml:"resources"`
	}{
		Resources: make([]structuredResult, 0, len(result.Resources)),
	}
	for _, res := range result.Resources {
		out := structuredResult{
			Index:  res.Index,
			Kind:   res.Kind,
			Name:   res.Name,
			Action: res.Action,
		}
		if res.Error != nil {
			out.Error = res.Error.Error()
		}
		if res.Resource != nil {
			out.Resource = res.Resource
		}
		output.Resources = append(output.Resources, out)
	}

	return shared.PrintJSONOrYAML(cmd, output, format)
}
