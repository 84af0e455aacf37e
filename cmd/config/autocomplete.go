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

package config

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/eminwux/kukepx/cmd/types"
	"github.com/eminwux/kukepx/internal/controller"
	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/eminwux/kukepx/internal/modelhub"
	"github.com/spf13/cobra"
)

// controllerFromCmd creates a controller.Exec from the command context.
// cmd/kukepx/shared builds on this package, so it cannot be imported here.
func controllerFromCmd(cmd *cobra.Command) (*controller.Exec, error) {
	logger, ok := cmd.Context().Value(types.CtxLogger).(*slog.Logger)
	if !ok || logger == nil {
		return nil, errdefs.ErrLoggerNotFound
	}

	opts, err := ControllerOptions()
	if err != nil {
		return nil, err
	}
	return controller.NewControllerExec(cmd.Context(), logger, opts)
}

// atMaxArgs reports whether cmd would reject one more positional argument.
func atMaxArgs(cmd *cobra.Command, args []string, toComplete string) bool {
	if len(args) == 0 || toComplete != "" || cmd.ValidArgsFunction == nil || cmd.Args == nil {
		return false
	}
	testArgs := make([]string, len(args), len(args)+1)
	copy(testArgs, args)
	testArgs = append(testArgs, "test")
	return cmd.Args(cmd, testArgs) != nil
}

// CompleteContainerIDs provides shell completion for ids that have a state record.
func CompleteContainerIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if atMaxArgs(cmd, args, toComplete) {
		return []string{}, cobra.ShellCompDirectiveNoFileComp
	}

	ctrl, err := controllerFromCmd(cmd)
	if err != nil {
		return []string{}, cobra.ShellCompDirectiveNoFileComp
	}
	records, err := ctrl.List(false)
	if err != nil {
		return []string{}, cobra.ShellCompDirectiveNoFileComp
	}

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if strings.HasPrefix(rec.ID, toComplete) {
			ids = append(ids, rec.ID)
		}
	}
	sort.Strings(ids)
	return ids, cobra.ShellCompDirectiveNoFileComp
}

// CompleteRuntimeTypes completes --runtime values.
func CompleteRuntimeTypes(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var out []string
	for _, rt := range modelhub.RuntimeTypes() {
		if strings.HasPrefix(string(rt), toComplete) {
			out = append(out, string(rt))
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}
