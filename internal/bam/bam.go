// Copyright 2017 Google Inc.
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

// Package bam provides support for parsing BAM files and their BAI indexes.
package bam

import (
	"compress/gzip"
	"fmt"
	"io"

	"github.com/gbggrant/bamstream/internal/bgzf"
	"github.com/gbggrant/bamstream/internal/binary"
	"github.com/gbggrant/bamstream/internal/genomics"
	"github.com/gbggrant/bamstream/internal/index"
)

const (
	baiMagic = "BAI\x01"
	bamMagic = "BAM\x01"

	// This ID is used as a virtual bin ID for (unused) chunk metadata.
	metadataID = 37450

	// This is just to prevent arbitrarily long allocations due to malformed
	// data.  No reference name should be longer than this in practice.
	maximumNameLength = 1024

	// The binning scheme fixed by the SAM specification, section 5.1.1: a
	// 14-bit minimal interval over 5 levels.
	baiMinimumWidth = 14
	baiDepth        = 5

	// The size of each tiling window from the linear index, as specified in
	// the SAM specification section 5.1.3.
	linearWindowSize = 1 << baiMinimumWidth
)

// Read reads BAI index data from bai and returns a set of BGZF chunks
// covering the header and all mapped reads that fall inside the specified
// region.  The first chunk is always the BAM header.
func Read(bai io.Reader, region genomics.Region) ([]*bgzf.Chunk, error) {
	return index.Read(bai, region, baiMagic, &Reader{})
}

// Reader reads the BAI flavour of binned index data.
type Reader struct {
}

// ReadSchemeSize returns the fixed BAI binning scheme.  BAI indexes do not
// encode it.
func (*Reader) ReadSchemeSize(io.Reader) (int32, int32, error) {
	return baiMinimumWidth, baiDepth, nil
}

// ReadBin reads a BAI bin header (an ID and a chunk count).
func (*Reader) ReadBin(r io.Reader) (*index.Bin, error) {
	var bin struct {
		ID     uint32
		Chunks int32
	}
	if err := binary.Read(r, &bin); err != nil {
		return nil, fmt.Errorf("reading bin header: %v", err)
	}
	return &index.Bin{ID: bin.ID, Chunks: bin.Chunks}, nil
}

// IsVirtualBin reports whether id is the BAI metadata pseudo-bin.
func (*Reader) IsVirtualBin(id uint32) bool {
	return id == metadataID
}

// SelectChunks reads the reference's linear index and appends the candidates
// that may contain reads at or after the region start.
func (*Reader) SelectChunks(r io.Reader, region genomics.Region, candidates, chunks []*bgzf.Chunk) ([]*bgzf.Chunk, error) {
	var intervals int32
	if err := binary.Read(r, &intervals); err != nil {
		return nil, fmt.Errorf("reading interval count: %v", err)
	}
	if intervals < 0 {
		return nil, fmt.Errorf("invalid interval count (%d intervals)", intervals)
	}
	offsets := make([]uint64, intervals)
	if err := binary.Read(r, &offsets); err != nil {
		return nil, fmt.Errorf("reading offsets: %v", err)
	}

	var firstReadOffset bgzf.Address
	if window := int(region.Start / linearWindowSize); window < len(offsets) {
		firstReadOffset = bgzf.Address(offsets[window])
	}

	for _, chunk := range candidates {
		if chunk.End < firstReadOffset {
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// GetReferenceID attempts to determine the ID for the named genomic reference
// by reading BAM header data from bam.
func GetReferenceID(bam io.Reader, reference string) (int32, error) {
	bam, err := gzip.NewReader(bam)
	if err != nil {
		return 0, fmt.Errorf("opening archive: %v", err)
	}

	if err := binary.ExpectBytes(bam, []byte(bamMagic)); err != nil {
		return 0, fmt.Errorf("reading magic: %v", err)
	}
	var length int32
	if err := binary.Read(bam, &length); err != nil {
		return 0, fmt.Errorf("reading SAM header length: %v", err)
	}
	if _, err := io.CopyN(io.Discard, bam, int64(length)); err != nil {
		return 0, fmt.Errorf("reading past SAM header: %v", err)
	}
	var count int32
	if err := binary.Read(bam, &count); err != nil {
		return 0, fmt.Errorf("reading references count: %v", err)
	}
	for i := int32(0); i < count; i++ {
		if err := binary.Read(bam, &length); err != nil {
			return 0, fmt.Errorf("reading name length: %v", err)
		}
		// The name length includes a null terminating character.
		if length < 1 || length > maximumNameLength {
			return 0, fmt.Errorf("invalid name length (%d bytes)", length)
		}
		name := make([]byte, length)
		if _, err := io.ReadFull(bam, name); err != nil {
			return 0, fmt.Errorf("reading name: %v", err)
		}
		if string(name[:length-1]) == reference {
			return i, nil
		}
		// Read and discard the reference length (4 bytes).
		if err := binary.Read(bam, &length); err != nil {
			return 0, fmt.Errorf("reading reference length: %v", err)
		}
	}
	return 0, fmt.Errorf("no reference named %q found", reference)
}
