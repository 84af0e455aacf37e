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

package shared

import (
	"log/slog"

	"github.com/eminwux/kukepx/cmd/config"
	"github.com/eminwux/kukepx/cmd/types"
	"github.com/eminwux/kukepx/internal/controller"
	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/spf13/cobra"
)

// LoggerFromCmd extracts the slog logger from the Cobra command context.
func LoggerFromCmd(cmd *cobra.Command) (*slog.Logger, error) {
	logger, ok := cmd.Context().Value(types.CtxLogger).(*slog.Logger)
	if !ok || logger == nil {
		return nil, errdefs.ErrLoggerNotFound
	}
	return logger, nil
}

// ControllerFromCmd instantiates a controller.Exec configured from flags,
// the config file and the environment.
func ControllerFromCmd(cmd *cobra.Command) (*controller.Exec, error) {
	logger, err := LoggerFromCmd(cmd)
	if err != nil {
		return nil, err
	}

	opts, err := config.ControllerOptions()
	if err != nil {
		return nil, err
	}

	return controller.NewControllerExec(cmd.Context(), logger, opts)
}

// GetControllerWithMockWrapper returns the mock stored under mockKey when a
// test injected one, otherwise the real controller adapted by wrapper.
func GetControllerWithMockWrapper[T any](cmd *cobra.Command, mockKey any, wrapper func(*controller.Exec) T) (T, error) {
	var zero T

	if mockCtrl, ok := cmd.Context().Value(mockKey).(T); ok {
		return mockCtrl, nil
	}

	realCtrl, err := ControllerFromCmd(cmd)
	if err != nil {
		return zero, err
	}

	return wrapper(realCtrl), nil
}
