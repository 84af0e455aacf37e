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

package create

import (
	"fmt"

	"github.com/eminwux/kukepx/cmd/kukepx/shared"
	"github.com/eminwux/kukepx/internal/controller"
	"github.com/eminwux/kukepx/internal/router"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/spf13/cobra"
)

type createController interface {
	Create(req router.Request) (specs.State, error)
}

// MockControllerKey is used to inject mock controllers in tests via context.
type MockControllerKey struct{}

func NewCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <id>",
		Short: "Create a container from an OCI bundle or an image",
		Long: "Provision a container on the selected backend without starting it. Proxmox backends " +
			"take --image (volume id, template path or OCI reference); crun and runc take --bundle.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := shared.OutputFormat(cmd)
			if err != nil {
				return err
			}
			req, err := shared.RequestFromFlags(cmd, args[0])
			if err != nil {
				return err
			}

			ctrl, err := shared.GetControllerWithMockWrapper(cmd, MockControllerKey{},
				func(c *controller.Exec) createController { return c })
			if err != nil {
				return err
			}

			st, err := ctrl.Create(req)
			if err != nil {
				return err
			}
			return shared.PrintStateOr(cmd, st, format, fmt.Sprintf("Created container %q", st.ID))
		},
	}

	shared.AddSandboxFlags(cmd)
	shared.AddOutputFlag(cmd, "Print the resulting state as json or yaml")

	return cmd
}
