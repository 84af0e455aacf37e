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

package kill

import (
	"fmt"
	"sort"
	"strings"

	"github.com/eminwux/kukepx/cmd/config"
	"github.com/eminwux/kukepx/cmd/kukepx/shared"
	"github.com/eminwux/kukepx/internal/controller"
	"github.com/moby/sys/signal"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/spf13/cobra"
)

type killController interface {
	Kill(t controller.Target, signal string) (specs.State, error)
}

// MockControllerKey is used to inject mock controllers in tests via context.
type MockControllerKey struct{}

func NewKillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kill <id> [SIGNAL]",
		Short: "Send a signal to the container init process",
		Long: "Send SIGNAL (name or number, default SIGTERM) to the init process. Terminating signals " +
			"wait until the backend reports the container stopped.",
		Args:          cobra.RangeArgs(1, 2),
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
			sig := ""
			if len(args) == 2 {
				sig = strings.TrimSpace(args[1])
			}

			ctrl, err := shared.GetControllerWithMockWrapper(cmd, MockControllerKey{},
				func(c *controller.Exec) killController { return c })
			if err != nil {
				return err
			}

			st, err := ctrl.Kill(target, sig)
			if err != nil {
				return err
			}
			return shared.PrintStateOr(cmd, st, format, fmt.Sprintf("Signalled container %q (%s)", st.ID, st.Status))
		},
	}

	shared.AddRuntimeFlag(cmd)
	shared.AddOutputFlag(cmd, "Print the resulting state as json or yaml")
	cmd.ValidArgsFunction = completeKillArgs

	return cmd
}

func completeKillArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.CompleteContainerIDs(cmd, args, toComplete)
	}
	if len(args) > 1 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	names := make([]string, 0, len(signal.SignalMap))
	for name := range signal.SignalMap {
		if strings.HasPrefix(name, strings.ToUpper(strings.TrimPrefix(toComplete, "SIG"))) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, cobra.ShellCompDirectiveNoFileComp
}
