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

package delete

import (
	"fmt"

	"github.com/eminwux/kukepx/cmd/config"
	"github.com/eminwux/kukepx/cmd/kukepx/shared"
	"github.com/eminwux/kukepx/internal/controller"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/spf13/cobra"
)

type deleteController interface {
	Delete(t controller.Target, force bool) (specs.State, error)
}

// MockControllerKey is used to inject mock controllers in tests via context.
type MockControllerKey struct{}

func NewDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a container and its state record",
		Long: "Destroy the backend container, release its numeric identity and remove the state record. " +
			"A running container is refused unless --force is given.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := shared.TargetFromArgs(cmd, args)
			if err != nil {
				return err
			}
			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return err
			}

			ctrl, err := shared.GetControllerWithMockWrapper(cmd, MockControllerKey{},
				func(c *controller.Exec) deleteController { return c })
			if err != nil {
				return err
			}

			if _, err = ctrl.Delete(target, force); err != nil {
				return err
			}
			cmd.Println(fmt.Sprintf("Deleted container %q", target.ID))
			return nil
		},
	}

	shared.AddRuntimeFlag(cmd)
	cmd.Flags().BoolP("force", "f", false, "Stop a running container before deleting it")
	cmd.ValidArgsFunction = config.CompleteContainerIDs

	return cmd
}
