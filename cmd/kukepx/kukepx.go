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

package kukepx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/eminwux/kukepx/cmd/config"
	applycmd "github.com/eminwux/kukepx/cmd/kukepx/apply"
	autocompletecmd "github.com/eminwux/kukepx/cmd/kukepx/autocomplete"
	checkpointcmd "github.com/eminwux/kukepx/cmd/kukepx/checkpoint"
	createcmd "github.com/eminwux/kukepx/cmd/kukepx/create"
	deletecmd "github.com/eminwux/kukepx/cmd/kukepx/delete"
	featurescmd "github.com/eminwux/kukepx/cmd/kukepx/features"
	killcmd "github.com/eminwux/kukepx/cmd/kukepx/kill"
	listcmd "github.com/eminwux/kukepx/cmd/kukepx/list"
	runcmd "github.com/eminwux/kukepx/cmd/kukepx/run"
	startcmd "github.com/eminwux/kukepx/cmd/kukepx/start"
	statecmd "github.com/eminwux/kukepx/cmd/kukepx/state"
	stopcmd "github.com/eminwux/kukepx/cmd/kukepx/stop"
	updatecmd "github.com/eminwux/kukepx/cmd/kukepx/update"
	"github.com/eminwux/kukepx/cmd/kukepx/version"
	"github.com/eminwux/kukepx/cmd/types"
	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/eminwux/kukepx/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type ConfigLoader interface {
	LoadConfig() error
}

// MockConfigLoaderKey is used to inject mock config loaders in tests via context.
type MockConfigLoaderKey struct{}

func NewKukepxCmd() (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "kukepx",
		Short: "kukepx runs OCI bundles on Proxmox LXC and other backends",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var logger *slog.Logger
			if viper.GetBool(config.KUKEPX_ROOT_VERBOSE.ViperKey) {
				logLevel := viper.GetString(config.KUKEPX_ROOT_LOG_LEVEL.ViperKey)
				if logLevel == "" {
					logLevel = "info"
				}

				var levelVar *slog.LevelVar
				logger, levelVar = logging.NewTextLogger(os.Stderr, logLevel)

				ctx := cmd.Context()
				ctx = context.WithValue(ctx, types.CtxLogger, logger)
				ctx = context.WithValue(ctx, types.CtxLevelVar, levelVar)
				cmd.SetContext(ctx)
				logger.DebugContext(cmd.Context(), "enabling verbose", "log-level", logLevel)
			}

			var loader ConfigLoader
			if mockLoader, ok := cmd.Context().Value(MockConfigLoaderKey{}).(ConfigLoader); ok {
				loader = mockLoader
			} else {
				loader = &realConfigLoader{}
			}

			if err := loader.LoadConfig(); err != nil {
				if logger != nil {
					logger.DebugContext(cmd.Context(), "config error", "error", err)
				}
				return fmt.Errorf("%w: %w", errdefs.ErrConfig, err)
			}
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	if err := SetupKukepxCmd(cmd); err != nil {
		return nil, fmt.Errorf("failed to setup kukepx command: %w", err)
	}

	return cmd, nil
}

func SetupKukepxCmd(rootCmd *cobra.Command) error {
	rootCmd.AddCommand(
		createcmd.NewCreateCmd(),
		runcmd.NewRunCmd(),
		startcmd.NewStartCmd(),
		stopcmd.NewStopCmd(),
		killcmd.NewKillCmd(),
		deletecmd.NewDeleteCmd(),
		statecmd.NewStateCmd(),
		listcmd.NewListCmd(),
		updatecmd.NewUpdateCmd(),
		checkpointcmd.NewCheckpointCmd(),
		applycmd.NewApplyCmd(),
		featurescmd.NewFeaturesCmd(),
		autocompletecmd.NewAutocompleteCmd(),
		version.NewVersionCmd(),
	)

	return SetPersistentFlags(rootCmd)
}

func SetPersistentFlags(rootCmd *cobra.Command) error {
	flags := rootCmd.PersistentFlags()
	flags.String("run-path", "", "Directory for state and identity files (default /run/kukepx or $XDG_RUNTIME_DIR/kukepx)")
	flags.String("config", "", "config file (default is "+config.DefaultConfigFile()+")")
	flags.String("default-runtime", "", "Runtime used when neither the request nor the record names one")
	flags.BoolP("verbose", "v", false, "Enable verbose logging")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")

	for flag, v := range map[string]*config.Var{
		"run-path":        &config.KUKEPX_ROOT_RUN_PATH,
		"config":          &config.KUKEPX_ROOT_CONFIG_FILE,
		"default-runtime": &config.KUKEPX_ROOT_RUNTIME,
		"verbose":         &config.KUKEPX_ROOT_VERBOSE,
		"log-level":       &config.KUKEPX_ROOT_LOG_LEVEL,
	} {
		if err := viper.BindPFlag(v.ViperKey, flags.Lookup(flag)); err != nil {
			return err
		}
	}
	_ = rootCmd.RegisterFlagCompletionFunc("default-runtime", config.CompleteRuntimeTypes)

	return nil
}

type realConfigLoader struct{}

func (r *realConfigLoader) LoadConfig() error {
	return LoadConfig()
}

// LoadConfig binds every environment variable and reads the YAML config
// file. A missing default config file is not an error.
func LoadConfig() error {
	for _, v := range config.Vars() {
		if err := v.BindEnv(); err != nil {
			return fmt.Errorf("bind %s: %w", v.Key, err)
		}
	}

	configFile := viper.GetString(config.KUKEPX_ROOT_CONFIG_FILE.ViperKey)
	explicit := configFile != ""
	if !explicit {
		configFile = config.DefaultConfigFile()
	}
	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || (!explicit && errors.Is(err, os.ErrNotExist)) {
			return nil
		}
		return fmt.Errorf("read %s: %w", filepath.Clean(configFile), err)
	}

	return nil
}
