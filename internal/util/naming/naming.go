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

package naming

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/google/uuid"
)

const maxIDLength = 128

var (
	containerIDPattern  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)
	snapshotNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]*$`)
	hostnameInvalid     = regexp.MustCompile(`[^a-z0-9-]+`)
)

// ValidateContainerID rejects ids that cannot safely name files, datasets and
// backend objects.
func ValidateContainerID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errdefs.ErrContainerIDRequired
	}
	if len(id) > maxIDLength || !containerIDPattern.MatchString(id) {
		return fmt.Errorf("%w: invalid container id %q", errdefs.ErrInvalidInput, id)
	}
	return nil
}

func ValidateSnapshotName(name string) error {
	if name == "" || len(name) > maxIDLength || !snapshotNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", errdefs.ErrSnapshotNameInvalid, name)
	}
	return nil
}

// BuildDatasetName returns <pool>/<root>/<containerID>.
func BuildDatasetName(pool, root, containerID string) (string, error) {
	pool = strings.Trim(strings.TrimSpace(pool), "/")
	root = strings.Trim(strings.TrimSpace(root), "/")
	if pool == "" {
		return "", fmt.Errorf("%w: zfs pool is required", errdefs.ErrInvalidInput)
	}
	if err := ValidateContainerID(containerID); err != nil {
		return "", err
	}
	if root == "" {
		return fmt.Sprintf("%s/%s", pool, containerID), nil
	}
	return fmt.Sprintf("%s/%s/%s", pool, root, containerID), nil
}

// BuildHostname derives an RFC 1123 label from a container name or id.
func BuildHostname(name string) string {
	h := hostnameInvalid.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	h = strings.Trim(h, "-")
	if len(h) > 63 {
		h = strings.TrimRight(h[:63], "-")
	}
	if h == "" {
		return "ct"
	}
	return h
}

// GenerateContainerID returns a fresh random container id.
func GenerateContainerID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
