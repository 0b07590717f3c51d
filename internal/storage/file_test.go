// Copyright 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestFileClient(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "bucket"), 0o755); err != nil {
		t.Fatalf("Failed to create bucket directory: %v", err)
	}
	content := "0123456789"
	if err := os.WriteFile(filepath.Join(root, "bucket", "object.bam"), []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write test object: %v", err)
	}

	client := NewFileClient(root)
	ctx := context.Background()

	testCases := []struct {
		name           string
		offset, length int64
		want           string
	}{
		{"full object", 0, -1, content},
		{"middle range", 2, 3, "234"},
		{"length past end is clamped", 8, 100, "89"},
		{"offset past end", 100, 1, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := client.NewObjectHandle("bucket", "object.bam").NewRangeReader(ctx, tc.offset, tc.length)
			if err != nil {
				t.Fatalf("NewRangeReader() failed: %v", err)
			}
			defer r.Close()

			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("ReadAll() failed: %v", err)
			}
			if string(got) != tc.want {
				t.Errorf("Wrong data: got %q, want %q", got, tc.want)
			}
		})
	}

	t.Run("missing object", func(t *testing.T) {
		if _, err := client.NewObjectHandle("bucket", "nope.bam").NewRangeReader(ctx, 0, -1); err == nil {
			t.Error("NewRangeReader() should fail for a missing object")
		}
	})
	t.Run("path escape", func(t *testing.T) {
		if _, err := client.NewObjectHandle("bucket", "../../etc/passwd").NewRangeReader(ctx, 0, -1); err == nil {
			t.Error("NewRangeReader() should reject paths escaping the root")
		}
	})
}
