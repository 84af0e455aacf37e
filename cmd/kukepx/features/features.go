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

package features

import (
	"github.com/eminwux/kukepx/cmd/kukepx/shared"
	"github.com/eminwux/kukepx/internal/controller"
	ocifeatures "github.com/opencontainers/runtime-spec/specs-go/features"
	"github.com/spf13/cobra"
)

type featuresController interface {
	Features() ocifeatures.Features
}

// MockControllerKey is used to inject mock controllers in tests via context.
type MockControllerKey struct{}

func NewFeaturesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "features",
		Short:         "Print the OCI features document",
		Long:          "Print the OCI features document describing the accepted bundle versions and the registered runtimes.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := shared.OutputFormat(cmd)
			if err != nil {
				return err
			}

			ctrl, err := shared.GetControllerWithMockWrapper(cmd, MockControllerKey{},
				func(c *controller.Exec) featuresController { return c })
			if err != nil {
				return err
			}

			return shared.PrintJSONOrYAML(cmd, ctrl.Features(), format)
		},
	}

	shared.AddOutputFlag(cmd, "Output format: json (default) or yaml")

	return cmd
}
