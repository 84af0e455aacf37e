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

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/eminwux/kukepx/cmd/kukepx"
	"github.com/eminwux/kukepx/cmd/types"
	"github.com/eminwux/kukepx/internal/logging"
	"github.com/spf13/cobra"
)

type rootFactory func() (*cobra.Command, error)

type factoryMap map[string]rootFactory

// mockFactoryMapKey is used to inject mock factory maps in tests via context.
type mockFactoryMapKey struct{}

func getFactories(ctx context.Context) factoryMap {
	if mockFactories, ok := ctx.Value(mockFactoryMapKey{}).(factoryMap); ok {
		return mockFactories
	}
	return factoryMap{
		"kukepx": kukepx.NewKukepxCmd,
	}
}

func execRoot(root *cobra.Command) int {
	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}

func runWithFactory(ctx context.Context, factory rootFactory) int {
	root, err := factory()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	root.SetContext(ctx)
	return execRoot(root)
}

// resolveFactory picks the command tree from the executable name, falling
// back to KUKEPX_DEBUG_MODE so a renamed binary (an IDE build, a debugger)
// can still select a tree.
func resolveFactory(factories factoryMap, exe, debug string) (rootFactory, bool) {
	if factory, ok := factories[exe]; ok {
		return factory, true
	}
	factory, ok := factories[debug]
	return factory, ok
}

func main() {
	logger := logging.NewNoopLogger()
	ctx := context.WithValue(context.Background(), types.CtxLogger, logger)

	exe := filepath.Base(os.Args[0])
	factory, ok := resolveFactory(getFactories(ctx), exe, os.Getenv("KUKEPX_DEBUG_MODE"))
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown entry command: %s\n", exe)
		os.Exit(1)
	}

	os.Exit(runWithFactory(ctx, factory))
}
