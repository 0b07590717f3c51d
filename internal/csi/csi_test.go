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

package csi

import (
	"bytes"
	"compress/gzip"
	stdbinary "encoding/binary"
	"testing"

	"github.com/gbggrant/bamstream/internal/bgzf"
	"github.com/gbggrant/bamstream/internal/genomics"
)

// buildCSI builds a gzip-wrapped index with one reference carrying a single
// chunk in a leaf bin with the provided record offset.
func buildCSI(t *testing.T, chunk bgzf.Chunk, binOffset uint64) []byte {
	t.Helper()
	var raw bytes.Buffer
	raw.WriteString(csiMagic)
	for _, v := range []interface{}{
		int32(14), int32(5), int32(4), [4]byte{}, // Scheme plus auxiliary data.
		int32(1),     // Reference count.
		int32(1),     // Bin count.
		uint32(4681), // First leaf bin.
		binOffset,
		int32(1), // Chunk count.
		uint64(chunk.Start), uint64(chunk.End),
	} {
		if err := stdbinary.Write(&raw, stdbinary.LittleEndian, v); err != nil {
			t.Fatalf("Failed to write test fixture: %v", err)
		}
	}

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(raw.Bytes()); err != nil {
		t.Fatalf("Failed to compress test fixture: %v", err)
	}
	if err := gzw.Close(); err != nil {
		t.Fatalf("Failed to close gzip writer: %v", err)
	}
	return compressed.Bytes()
}

func TestRead(t *testing.T) {
	chunk := bgzf.Chunk{
		Start: bgzf.NewAddress(0x1000, 0),
		End:   bgzf.NewAddress(0x2000, 16),
	}

	testCases := []struct {
		name      string
		region    genomics.Region
		binOffset uint64
		chunks    int
	}{
		{"all mapped reads", genomics.AllMappedReads, 0, 2},
		{"matching leaf window", genomics.Region{ReferenceID: 0, Start: 0, End: 100}, 0, 2},
		{"other reference", genomics.Region{ReferenceID: 3}, 0, 1},
		{"bin offset filters chunk", genomics.AllMappedReads, uint64(bgzf.NewAddress(0x3000, 0)), 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := bytes.NewReader(buildCSI(t, chunk, tc.binOffset))
			chunks, err := Read(r, tc.region)
			if err != nil {
				t.Fatalf("Read() returned unexpected error: %v", err)
			}
			if got, want := len(chunks), tc.chunks; got != want {
				t.Fatalf("Wrong number of chunks: got %d, want %d", got, want)
			}
		})
	}
}

func TestRead_BadInputs(t *testing.T) {
	t.Run("not gzip", func(t *testing.T) {
		if _, err := Read(bytes.NewReader([]byte("CSI\x01")), genomics.AllMappedReads); err == nil {
			t.Fatal("Read() should fail on uncompressed input")
		}
	})
	t.Run("wrong magic", func(t *testing.T) {
		var compressed bytes.Buffer
		gzw := gzip.NewWriter(&compressed)
		gzw.Write([]byte("BAI\x01"))
		gzw.Close()
		if _, err := Read(bytes.NewReader(compressed.Bytes()), genomics.AllMappedReads); err == nil {
			t.Fatal("Read() should fail on wrong magic")
		}
	})
}
