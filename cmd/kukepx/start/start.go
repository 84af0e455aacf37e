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

package start

import (
	"fmt"

	"github.com/eminwux/kukepx/cmd/config"
	"github.com/eminwux/kukepx/cmd/kukepx/shared"
	"github.com/eminwux/kukepx/internal/controller"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/spf13/cobra"
)

type startController interface {
	Start(t controller.Target) (specs.State, error)
}

// MockControllerKey is used to inject mock controllers in tests via context.
type MockControllerKey struct{}

func NewStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "start <id>",
		Short:         "Start a created container",
		Long:          "Boot a container that is in the created state and wait until the backend reports it running.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := shared.OutputFormat(cmd)
			if err != nil {
				return err
			}
			target, err := shared.TargetFromArgs(cmd, args)
			if err != nil {
				return err
			}

			ctrl, err := shared.GetControllerWithMockWrapper(cmd, MockControllerKey{},
				func(c *controller.Exec) startController { return c })
			if err != nil {
				return err
			}

			st, err := ctrl.Start(target)
			if err != nil {
				return err
			}
			return shared.PrintStateOr(cmd, st, format, fmt.Sprintf("Started container %q (pid %d)", st.ID, st.Pid))
		},
	}

	shared.AddRuntimeFlag(cmd)
	shared.AddOutputFlag(cmd, "Print the resulting state as json or yaml")
	cmd.ValidArgsFunction = config.CompleteContainerIDs

	return cmd
}
