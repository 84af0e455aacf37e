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

package metadata_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/eminwux/kukepx/internal/errdefs"
	"github.com/eminwux/kukepx/internal/logging"
	"github.com/eminwux/kukepx/internal/metadata"
)

type record struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

func TestWriteReadJSON(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewNoopLogger()
	file := filepath.Join(t.TempDir(), "nested", "dir", "record.json")

	if err := metadata.WriteJSON(ctx, logger, file, record{ID: "c1", Count: 2}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	got, err := metadata.ReadJSON[record](ctx, logger, file)
	if err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if got.ID != "c1" || got.Count != 2 {
		t.Errorf("ReadJSON() = %+v", got)
	}

	entries, _ := os.ReadDir(filepath.Dir(file))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestReadJSONMissing(t *testing.T) {
	_, err := metadata.ReadJSON[record](context.Background(), logging.NewNoopLogger(),
		filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, errdefs.ErrMissingMetadataFile) {
		t.Fatalf("error = %v, want ErrMissingMetadataFile", err)
	}
	if !errors.Is(err, errdefs.ErrNotFound) {
		t.Fatalf("error = %v, want NotFound kind", err)
	}
}

func TestRemoveIdempotent(t *testing.T) {
	file := filepath.Join(t.TempDir(), "x.json")
	if err := metadata.Remove(file); err != nil {
		t.Fatalf("Remove() on missing file error = %v", err)
	}
}

func TestAcquireLockSerializes(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "m.lock")

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := metadata.AcquireLock(ctx, path)
			if err != nil {
				t.Errorf("AcquireLock() error = %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			_ = l.Release()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxSeen)
	}
}

func TestAcquireLockHonoursContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.lock")
	held, err := metadata.AcquireLock(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err = metadata.AcquireLock(ctx, path); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("AcquireLock() error = %v, want deadline exceeded", err)
	}
}
