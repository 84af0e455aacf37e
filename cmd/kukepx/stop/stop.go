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

package stop

import (
	"fmt"

	"github.com/eminwux/kukepx/cmd/config"
	"github.com/eminwux/kukepx/cmd/kukepx/shared"
	"github.com/eminwux/kukepx/internal/controller"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/spf13/cobra"
)

type stopController interface {
	Stop(t controller.Target) (specs.State, error)
}

// MockControllerKey is used to inject mock controllers in tests via context.
type MockControllerKey struct{}

func NewStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop <id>",
		Short: "Stop a container",
		Long: "Send SIGTERM to the container init process and force the backend to stop it " +
			"when it does not exit in time. Stopping a stopped container is a no-op.",
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
				func(c *controller.Exec) stopController { return c })
			if err != nil {
				return err
			}

			st, err := ctrl.Stop(target)
			if err != nil {
				return err
			}
			return shared.PrintStateOr(cmd, st, format, fmt.Sprintf("Stopped container %q", st.ID))
		},
	}

	shared.AddRuntimeFlag(cmd)
	shared.AddOutputFlag(cmd, "Print the resulting state as json or yaml")
	cmd.ValidArgsFunction = config.CompleteContainerIDs

	return cmd
}
