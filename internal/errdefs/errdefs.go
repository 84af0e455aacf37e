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

// Package errdefs holds the error taxonomy shared by every kukepx component.
//
// Each kind wraps the matching class from github.com/containerd/errdefs, so
// callers can test either the kukepx kind (errors.Is(err, ErrNotFound)) or the
// generic class (cerrdefs.IsNotFound(err)).
package errdefs

import (
	"context"
	"errors"
	"fmt"

	cerrdefs "github.com/containerd/errdefs"
)

// Kinds.
var (
	ErrInvalidInput           = fmt.Errorf("invalid input: %w", cerrdefs.ErrInvalidArgument)
	ErrOperationFailed        = fmt.Errorf("operation failed: %w", cerrdefs.ErrAlreadyExists)
	ErrNotFound               = fmt.Errorf("not found: %w", cerrdefs.ErrNotFound)
	ErrPermissionDenied       = fmt.Errorf("permission denied: %w", cerrdefs.ErrPermissionDenied)
	ErrTimeout                = fmt.Errorf("timeout: %w", context.DeadlineExceeded)
	ErrNetwork                = fmt.Errorf("network error: %w", cerrdefs.ErrUnavailable)
	ErrIdentityExhausted      = fmt.Errorf("identity exhausted: %w", cerrdefs.ErrResourceExhausted)
	ErrCommandExecutionFailed = fmt.Errorf("command execution failed: %w", cerrdefs.ErrUnknown)
	ErrUnsupportedOperation   = fmt.Errorf("unsupported operation: %w", cerrdefs.ErrNotImplemented)
	ErrInvalidTransition      = fmt.Errorf("invalid state transition: %w", cerrdefs.ErrFailedPrecondition)
)

// ErrAlreadyExists is the same kind as ErrOperationFailed: an identity or a
// name is already taken.
var ErrAlreadyExists = ErrOperationFailed

var (
	ErrConfig              = errors.New("config error")
	ErrLoggerNotFound      = errors.New("logger not found in context")
	ErrWriteMetadata       = errors.New("failed to write metadata file")
	ErrMissingMetadataFile = fmt.Errorf("missing metadata file: %w", ErrNotFound)

	ErrUnknownKind           = fmt.Errorf("%w: unknown kind", ErrInvalidInput)
	ErrUnsupportedAPIVersion = fmt.Errorf("%w: unsupported apiVersion", ErrInvalidInput)
	ErrConversionFailed      = fmt.Errorf("%w: conversion failed", ErrInvalidInput)

	ErrContainerIDRequired = fmt.Errorf("%w: container id is required", ErrInvalidInput)
	ErrImageRequired       = fmt.Errorf("%w: image reference is required", ErrInvalidInput)
	ErrInvalidImage        = fmt.Errorf("%w: invalid image reference", ErrInvalidInput)
	ErrBundleRequired      = fmt.Errorf("%w: bundle path is required", ErrInvalidInput)
	ErrUnknownOperation    = fmt.Errorf("%w: unknown operation", ErrInvalidInput)
	ErrUnknownRuntime      = fmt.Errorf("%w: unknown runtime type", ErrUnsupportedOperation)
	ErrInvalidSignal       = fmt.Errorf("%w: invalid signal", ErrInvalidInput)
	ErrSnapshotNameInvalid = fmt.Errorf("%w: invalid snapshot name", ErrInvalidInput)

	ErrUnsupportedOCIVersion = fmt.Errorf("%w: unsupported ociVersion", ErrInvalidInput)
	ErrMalformedBundle       = fmt.Errorf("%w: malformed bundle config", ErrInvalidInput)
	ErrUnknownNamespace      = fmt.Errorf("%w: unknown namespace type", ErrInvalidInput)
	ErrUnsupportedMount      = fmt.Errorf("%w: unsupported mount type", ErrInvalidInput)
	ErrInvalidMemoryPolicy   = fmt.Errorf("%w: invalid memory policy", ErrInvalidInput)
	ErrInvalidNetDevice      = fmt.Errorf("%w: invalid net device", ErrInvalidInput)

	ErrContainerNotFound = fmt.Errorf("container %w", ErrNotFound)
	ErrMappingNotFound   = fmt.Errorf("identity mapping %w", ErrNotFound)
	ErrDatasetNotFound   = fmt.Errorf("dataset %w", ErrNotFound)
	ErrSnapshotNotFound  = fmt.Errorf("snapshot %w", ErrNotFound)

	ErrContainerExists = fmt.Errorf("%w: container already exists", ErrAlreadyExists)
	ErrSnapshotExists  = fmt.Errorf("%w: snapshot already exists", ErrAlreadyExists)
	ErrNotRunning      = fmt.Errorf("%w: container is not running", ErrInvalidTransition)
	ErrStopUnconfirmed = fmt.Errorf("%w: container did not stop", ErrTimeout)
)
