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

// This binary extracts the indexed regions of a BAM file.  It writes a valid
// BAM file containing the header and every block that may hold reads from
// the requested region, or with -count it scans those blocks and reports the
// number of records they contain.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/pkg/profile"

	"github.com/gbggrant/bamstream/internal/bam"
	"github.com/gbggrant/bamstream/internal/bgzf"
	"github.com/gbggrant/bamstream/internal/blockio"
	"github.com/gbggrant/bamstream/internal/csi"
	"github.com/gbggrant/bamstream/internal/genomics"
)

var (
	reference = flag.String("r", "", "reference name (empty matches all mapped reads)")
	start     = flag.Uint64("start", 0, "region start in base pairs")
	end       = flag.Uint64("end", 0, "region end in base pairs (zero means no limit)")
	output    = flag.String("o", "", "output filename (default standard output)")
	count     = flag.Bool("count", false, "print the record count instead of writing BAM data")
	blockSize = flag.Uint64("block_size", 1024*1024*1024, "chunk merge size soft limit")

	profileCPU = flag.Bool("profile", false, "write a CPU profile to the current directory")
)

func main() {
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatalf("Usage: %s [flags] <file.bam>", os.Args[0])
	}
	name := flag.Arg(0)

	if *profileCPU {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	}

	data, err := os.Open(name)
	if err != nil {
		log.Fatalf("Failed to open BAM file: %v", err)
	}
	defer data.Close()

	region := genomics.AllMappedReads
	if *reference != "" {
		id, err := bam.GetReferenceID(data, *reference)
		if err != nil {
			log.Fatalf("Failed to resolve reference %q: %v", *reference, err)
		}
		region = genomics.Region{ReferenceID: id, Start: uint32(*start), End: uint32(*end)}
	}

	chunks, err := readIndex(name, region)
	if err != nil {
		log.Fatalf("Failed to read index: %v", err)
	}

	if *count {
		n, err := countRecords(data, chunks)
		if err != nil {
			log.Fatalf("Failed to count records: %v", err)
		}
		fmt.Println(n)
		return
	}

	w := io.Writer(os.Stdout)
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("Failed to open output file: %v", err)
		}
		defer f.Close()

		w = f
	}

	if err := writeRegion(w, data, chunks); err != nil {
		log.Fatalf("Failed to write region: %v", err)
	}
}

func readIndex(name string, region genomics.Region) ([]*bgzf.Chunk, error) {
	base := strings.TrimSuffix(name, ".bam")

	var index *os.File
	var err error
	read := bam.Read
	for _, candidate := range []struct {
		name string
		read func(io.Reader, genomics.Region) ([]*bgzf.Chunk, error)
	}{
		{name + ".bai", bam.Read},
		{base + ".bai", bam.Read},
		{name + ".csi", csi.Read},
		{base + ".csi", csi.Read},
	} {
		index, err = os.Open(candidate.name)
		if err == nil {
			read = candidate.read
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("opening index: %v", err)
	}
	defer index.Close()

	chunks, err := read(index, region)
	if err != nil {
		return nil, fmt.Errorf("reading index: %v", err)
	}
	return chunks, nil
}

// countRecords scans the record-bearing chunks (everything after the header
// chunk) through a span tracker so that only indexed blocks are read.
func countRecords(data *os.File, chunks []*bgzf.Chunk) (int, error) {
	if len(chunks) < 2 {
		return 0, nil
	}
	merged := bgzf.Merge(chunks[1:], *blockSize)

	registry := blockio.NewRegistry()
	defer registry.CloseAll()

	stream := blockio.NewStream(data)
	id := registry.Add(stream, nil)
	stream.SetTracker(blockio.NewSpanTracker(id, stream, merged))

	return bam.CountRecords(stream)
}

// writeRegion writes the chunks as a valid BAM file: re-encoded partial
// blocks, raw copies of whole blocks and a trailing EOF marker.
func writeRegion(w io.Writer, data *os.File, chunks []*bgzf.Chunk) error {
	src := func(start, length int64) (io.ReadCloser, error) {
		return io.NopCloser(io.NewSectionReader(data, start, length)), nil
	}

	for _, chunk := range bgzf.Merge(chunks, *blockSize) {
		r, err := blockio.ReadChunk(src, *chunk)
		if err != nil {
			return fmt.Errorf("reading chunk %s: %v", chunk, err)
		}
		if _, err := io.Copy(w, r); err != nil {
			r.Close()
			return fmt.Errorf("copying chunk %s: %v", chunk, err)
		}
		r.Close()
	}

	if _, err := w.Write(bgzf.EOFMarker); err != nil {
		return fmt.Errorf("writing EOF marker: %v", err)
	}
	return nil
}
