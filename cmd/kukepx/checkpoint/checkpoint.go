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

package checkpoint

import (
	"fmt"
	"strings"

	"github.com/eminwux/kukepx/cmd/config"
	"github.com/eminwux/kukepx/cmd/kukepx/shared"
	"github.com/eminwux/kukepx/internal/controller"
	"github.com/spf13/cobra"
)

type checkpointController interface {
	Checkpoint(id, name string) error
	Restore(id, name string) error
	ListCheckpoints(id string) ([]string, error)
	DeleteCheckpoint(id, name string) error
}

// MockControllerKey is used to inject mock controllers in tests via context.
type MockControllerKey struct{}

func controllerFor(cmd *cobra.Command) (checkpointController, error) {
	return shared.GetControllerWithMockWrapper(cmd, MockControllerKey{},
		func(c *controller.Exec) checkpointController { return c })
}

func NewCheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "checkpoint",
		Aliases: []string{"cp"},
		Short:   "Manage ZFS checkpoints of container datasets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(
		newCreateCmd(),
		newRestoreCmd(),
		newListCmd(),
		newDeleteCmd(),
	)

	return cmd
}

func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "create <id> <name>",
		Short:         "Snapshot the dataset of a container",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := controllerFor(cmd)
			if err != nil {
				return err
			}
			if err = ctrl.Checkpoint(args[0], args[1]); err != nil {
				return err
			}
			cmd.Println(fmt.Sprintf("Checkpoint %q created for container %q", args[1], args[0]))
			return nil
		},
	}
	cmd.ValidArgsFunction = config.CompleteContainerIDs
	return cmd
}

func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "restore <id> <name>",
		Short:         "Roll the dataset of a container back to a checkpoint",
		Long:          "Roll the dataset back to the named checkpoint. Newer checkpoints are destroyed.",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := controllerFor(cmd)
			if err != nil {
				return err
			}
			if err = ctrl.Restore(args[0], args[1]); err != nil {
				return err
			}
			cmd.Println(fmt.Sprintf("Container %q restored to checkpoint %q", args[0], args[1]))
			return nil
		},
	}
	cmd.ValidArgsFunction = completeCheckpointArgs
	return cmd
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "list <id>",
		Aliases:       []string{"ls"},
		Short:         "List the checkpoints of a container",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := shared.OutputFormat(cmd)
			if err != nil {
				return err
			}
			ctrl, err := controllerFor(cmd)
			if err != nil {
				return err
			}
			names, err := ctrl.ListCheckpoints(args[0])
			if err != nil {
				return err
			}
			if format != "" {
				if names == nil {
					names = []string{}
				}
				return shared.PrintJSONOrYAML(cmd, names, format)
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
	shared.AddOutputFlag(cmd, "Output format: json or yaml (default: one name per line)")
	cmd.ValidArgsFunction = config.CompleteContainerIDs
	return cmd
}

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "delete <id> <name>",
		Aliases:       []string{"rm"},
		Short:         "Destroy a checkpoint",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := controllerFor(cmd)
			if err != nil {
				return err
			}
			if err = ctrl.DeleteCheckpoint(args[0], args[1]); err != nil {
				return err
			}
			cmd.Println(fmt.Sprintf("Checkpoint %q deleted from container %q", args[1], args[0]))
			return nil
		},
	}
	cmd.ValidArgsFunction = completeCheckpointArgs
	return cmd
}

// completeCheckpointArgs completes container ids first, then the checkpoint
// names of the chosen container.
func completeCheckpointArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	switch len(args) {
	case 0:
		return config.CompleteContainerIDs(cmd, args, toComplete)
	case 1:
		ctrl, err := controllerFor(cmd)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		names, err := ctrl.ListCheckpoints(args[0])
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		var out []string
		for _, name := range names {
			if strings.HasPrefix(name, toComplete) {
				out = append(out, name)
			}
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	default:
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
}
