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

package list

import (
	"github.com/eminwux/kukepx/cmd/kukepx/shared"
	"github.com/eminwux/kukepx/internal/controller"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/spf13/cobra"
)

type listController interface {
	List(refresh bool) ([]specs.State, error)
}

// MockControllerKey is used to inject mock controllers in tests via context.
type MockControllerKey struct{}

func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "list",
		Aliases:       []string{"ls"},
		Short:         "List every recorded container",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := shared.OutputFormat(cmd)
			if err != nil {
				return err
			}
			refresh, err := cmd.Flags().GetBool("refresh")
			if err != nil {
				return err
			}

			ctrl, err := shared.GetControllerWithMockWrapper(cmd, MockControllerKey{},
				func(c *controller.Exec) listController { return c })
			if err != nil {
				return err
			}

			records, err := ctrl.List(refresh)
			if err != nil {
				return err
			}
			if records == nil {
				records = []specs.State{}
			}
			return shared.PrintJSONOrYAML(cmd, records, format)
		},
	}

	shared.AddOutputFlag(cmd, "Output format: json (default) or yaml")
	cmd.Flags().Bool("refresh", false, "Reconcile every record with its backend")

	return cmd
}
