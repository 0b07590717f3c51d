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

package blockio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/gbggrant/bamstream/internal/bgzf"
)

// Stream reads the decompressed contents of the file regions described by a
// span tracker.  Each refill asks the tracker where to read, seeks there,
// decodes one BGZF block, trims it to the data offsets of the chunks that
// cover it and reports the resulting file position back to the tracker.  Blocks the
// tracker never names are never touched.
type Stream struct {
	src     io.ReadSeeker
	tracker *SpanTracker
	pending []byte
}

// NewStream returns a stream over src.  The stream does not own src.
func NewStream(src io.ReadSeeker) *Stream {
	return &Stream{src: src}
}

// SetTracker binds the stream to a tracker and discards any buffered data.
func (s *Stream) SetTracker(t *SpanTracker) {
	s.tracker = t
	s.pending = nil
}

// Tracker returns the currently bound tracker.
func (s *Stream) Tracker() *SpanTracker {
	return s.tracker
}

// Read implements io.Reader over the decompressed bytes of the tracked
// chunks.  It returns io.EOF once the tracker is exhausted or the underlying
// source ends.
func (s *Stream) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		if err := s.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *Stream) fill() error {
	if s.tracker == nil {
		return errors.New("no span tracker bound")
	}

	address := s.tracker.BlockAddress()
	if address == NoBlockAddress {
		return io.EOF
	}
	if _, err := s.src.Seek(address, io.SeekStart); err != nil {
		return fmt.Errorf("seeking to block at %#x: %v", address, err)
	}
	data, length, err := bgzf.DecodeBlock(s.src)
	if err == io.EOF {
		// The span reaches past the last block (common for index chunks with
		// an unbounded end address).  Nothing remains to read.
		return io.EOF
	}
	if err != nil {
		return fmt.Errorf("decoding block at %#x: %v", address, err)
	}

	// Several chunks can cover parts of one block when merging declined to
	// join them.  The block is never revisited, so every such chunk's bytes
	// are emitted in this fill.
	var segments [][]byte
	for _, chunk := range s.tracker.Remaining() {
		if int64(chunk.Start.BlockOffset()) > address {
			break
		}
		lo, hi := 0, len(data)
		if int64(chunk.Start.BlockOffset()) == address {
			lo = int(chunk.Start.DataOffset())
		}
		if int64(chunk.End.BlockOffset()) == address && int(chunk.End.DataOffset()) < hi {
			hi = int(chunk.End.DataOffset())
		}
		if lo > hi {
			lo = hi
		}
		segments = append(segments, data[lo:hi])
	}

	if err := s.tracker.Advance(address + int64(length)); err != nil {
		return err
	}
	if len(segments) == 1 {
		s.pending = segments[0]
	} else {
		s.pending = bytes.Join(segments, nil)
	}
	return nil
}
