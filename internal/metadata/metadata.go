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

// Package metadata persists JSON records with atomic replace semantics and
// serializes read-modify-write cycles with advisory file locks.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/eminwux/kukepx/internal/errdefs"
)

const (
	dirPerm  = 0o700
	filePerm = 0o644
)

func Exists(file string) bool {
	_, err := os.Stat(file)
	return err == nil
}

// WriteJSON atomically replaces file with the indented JSON encoding of v.
func WriteJSON(ctx context.Context, logger *slog.Logger, file string, v any) error {
	logger.DebugContext(ctx, "writing metadata", "file", file)

	if err := os.MkdirAll(filepath.Dir(file), dirPerm); err != nil {
		return fmt.Errorf("%w: mkdir %s: %w", errdefs.ErrWriteMetadata, filepath.Dir(file), err)
	}

	marshaled, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %w", errdefs.ErrWriteMetadata, file, err)
	}
	marshaled = append(marshaled, '\n')

	if err = atomicWriteFile(file, marshaled, filePerm); err != nil {
		return fmt.Errorf("%w: %s: %w", errdefs.ErrWriteMetadata, file, err)
	}
	return nil
}

func atomicWriteFile(file string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(file)

	f, err := os.CreateTemp(dir, ".meta-*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		_ = f.Close()
		_ = os.Remove(tmp) // no-op once renamed
	}()

	if err = f.Chmod(mode); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}
	if _, err = f.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("fsync: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err = os.Rename(tmp, file); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	if d, openErr := os.Open(dir); openErr == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// ReadJSON decodes file into a T. A missing file yields ErrMissingMetadataFile.
func ReadJSON[T any](ctx context.Context, logger *slog.Logger, file string) (T, error) {
	var zero T
	logger.DebugContext(ctx, "reading metadata", "file", file)

	data, err := os.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		return zero, fmt.Errorf("%w: %s", errdefs.ErrMissingMetadataFile, file)
	}
	if err != nil {
		return zero, fmt.Errorf("read %s: %w", file, err)
	}

	var out T
	if err = json.Unmarshal(data, &out); err != nil {
		return zero, fmt.Errorf("unmarshal %s: %w", file, err)
	}
	return out, nil
}

// Remove deletes file; a missing file is not an error.
func Remove(file string) error {
	if err := os.Remove(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
