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

package bam

import (
	"fmt"
	"io"

	"github.com/gbggrant/bamstream/internal/binary"
)

const (
	// The fixed-length portion of an alignment record, per the SAM
	// specification section 4.2.
	minimumRecordLength = 32

	// This is just to prevent arbitrarily long allocations due to malformed
	// data.
	maximumRecordLength = 1 << 26
)

// RecordReader reads length-prefixed alignment records from a stream of
// decompressed BAM data.  The stream must start at a record boundary, as the
// decompressed contents of an index-supplied chunk do.
type RecordReader struct {
	r io.Reader
}

// NewRecordReader returns a RecordReader over r.
func NewRecordReader(r io.Reader) *RecordReader {
	return &RecordReader{r}
}

// Next returns the bytes of the next record, without its length prefix.  It
// returns io.EOF when the stream ends cleanly at a record boundary.
func (rr *RecordReader) Next() ([]byte, error) {
	var length int32
	if err := binary.Read(rr.r, &length); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading record length: %v", err)
	}
	if length < minimumRecordLength || length > maximumRecordLength {
		return nil, fmt.Errorf("invalid record length (%d bytes)", length)
	}
	record := make([]byte, length)
	if _, err := io.ReadFull(rr.r, record); err != nil {
		return nil, fmt.Errorf("reading record: %v", err)
	}
	return record, nil
}

// CountRecords consumes r and returns the number of records it contains.
func CountRecords(r io.Reader) (int, error) {
	records := NewRecordReader(r)
	var count int
	for {
		if _, err := records.Next(); err == io.EOF {
			return count, nil
		} else if err != nil {
			return count, err
		}
		count++
	}
}
