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

package naming_test

import (
	"errors"
	"testing"

	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/eminwux/kukepx/internal/util/naming"
)

func TestValidateContainerID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr error
	}{
		{"c1", nil},
		{"web.frontend-01_a", nil},
		{"", errdefs.ErrContainerIDRequired},
		{"../etc", errdefs.ErrInvalidInput},
		{"a/b", errdefs.ErrInvalidInput},
		{"-leading", errdefs.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := naming.ValidateContainerID(tt.id)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("ValidateContainerID(%q) error = %v", tt.id, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ValidateContainerID(%q) error = %v, want %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestValidateSnapshotName(t *testing.T) {
	for _, ok := range []string{"snap1", "pre-upgrade:2025.01"} {
		if err := naming.ValidateSnapshotName(ok); err != nil {
			t.Errorf("ValidateSnapshotName(%q) error = %v", ok, err)
		}
	}
	for _, bad := range []string{"", "a@b", "a/b", "with space"} {
		if err := naming.ValidateSnapshotName(bad); !errors.Is(err, errdefs.ErrSnapshotNameInvalid) {
			t.Errorf("ValidateSnapshotName(%q) error = %v", bad, err)
		}
	}
}

func TestBuildDatasetName(t *testing.T) {
	got, err := naming.BuildDatasetName("rpool", "containers", "c1")
	if err != nil || got != "rpool/containers/c1" {
		t.Fatalf("BuildDatasetName() = %q, %v", got, err)
	}
	got, err = naming.BuildDatasetName("/tank/", "", "c1")
	if err != nil || got != "tank/c1" {
		t.Fatalf("BuildDatasetName() without root = %q, %v", got, err)
	}
	if _, err = naming.BuildDatasetName("", "containers", "c1"); !errors.Is(err, errdefs.ErrInvalidInput) {
		t.Fatalf("missing pool error = %v", err)
	}
}

func TestBuildHostname(t *testing.T) {
	tests := map[string]string{
		"Web_Server.01": "web-server-01",
		"---":           "ct",
		"c1":            "c1",
	}
	for in, want := range tests {
		if got := naming.BuildHostname(in); got != want {
			t.Errorf("BuildHostname(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGenerateContainerID(t *testing.T) {
	a, b := naming.GenerateContainerID(), naming.GenerateContainerID()
	if a == b {
		t.Fatal("generated ids collide")
	}
	if err := naming.ValidateContainerID(a); err != nil {
		t.Fatalf("generated id %q invalid: %v", a, err)
	}
}
