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

// Package blockio provides index-directed access to the blocks of a BGZF
// file: a span tracker that turns a sorted chunk list into a sequence of
// block addresses, and a stream that reads exactly those blocks.
package blockio

import (
	"fmt"

	"github.com/gbggrant/bamstream/internal/bgzf"
)

// NoBlockAddress is returned by BlockAddress when no further blocks remain.
const NoBlockAddress = int64(-1)

// TrackingError reports an inconsistency in span navigation.  It indicates a
// programming error rather than bad input data, so callers should abort the
// whole read operation instead of skipping to the next chunk.
type TrackingError struct {
	Reader   ReaderID
	Position int64
	Reason   string
}

func (e *TrackingError) Error() string {
	return fmt.Sprintf("reader %s: position %d: %s", e.Reader, e.Position, e.Reason)
}

// SpanTracker follows a reader's progress through the chunks of a file span.
// It holds a cursor into a sorted, immutable chunk list and answers the one
// question a block read loop needs: which block address to read next.
//
// The tracker performs no I/O.  It borrows its reader identity and stream
// from a registry owned elsewhere; dropping a tracker never closes anything.
// A tracker must not be shared between goroutines.
type SpanTracker struct {
	reader ReaderID
	stream *Stream

	chunks []*bgzf.Chunk
	cursor int

	// Next block address to read, or NoBlockAddress when the span is
	// exhausted.
	next int64

	// Last position reported to Advance, used to reject backward movement.
	last int64
}

// NewSpanTracker returns a tracker over chunks for the given reader and
// stream pair.  The chunk list must be sorted by start address; the tracker
// does not sort or validate it.
func NewSpanTracker(reader ReaderID, stream *Stream, chunks []*bgzf.Chunk) *SpanTracker {
	t := &SpanTracker{reader: reader, stream: stream, chunks: chunks}
	t.initialize()
	return t
}

// Reader returns the identity of the reader this tracker belongs to.
func (t *SpanTracker) Reader() ReaderID {
	return t.reader
}

// Stream returns the stream this tracker was created for.
func (t *SpanTracker) Stream() *Stream {
	return t.stream
}

// BlockAddress returns the next block address to be read, or NoBlockAddress
// if the chunk list is empty or fully consumed.
func (t *SpanTracker) BlockAddress() int64 {
	return t.next
}

// Current returns the chunk under the cursor without advancing it.
func (t *SpanTracker) Current() (*bgzf.Chunk, bool) {
	if t.cursor < len(t.chunks) {
		return t.chunks[t.cursor], true
	}
	return nil, false
}

// Remaining returns the chunks not yet passed, beginning with the current
// one.  The returned slice aliases the tracker's chunk list and must not be
// modified.
func (t *SpanTracker) Remaining() []*bgzf.Chunk {
	return t.chunks[t.cursor:]
}

// Reset rewinds the tracker to its initial state so the same span can be
// replayed without rereading the index.
func (t *SpanTracker) Reset() {
	t.initialize()
}

func (t *SpanTracker) initialize() {
	t.cursor = 0
	t.last = 0
	if len(t.chunks) > 0 {
		t.next = int64(t.chunks[0].Start.BlockOffset())
	} else {
		t.next = NoBlockAddress
	}
}

// Advance updates the tracker given the reader's current position in the
// file (a compressed block address, normally the address just past the block
// that was read).  By default the next read continues sequentially from
// filePosition.  If the position has moved past the current chunk, the
// cursor is drawn forward; when the following chunk starts beyond
// filePosition the next address becomes that chunk's start (a seek over the
// gap), and when no chunk remains the tracker is exhausted.
//
// Positions must not decrease between calls.  A backward position returns a
// *TrackingError and leaves navigation state unchanged.
func (t *SpanTracker) Advance(filePosition int64) error {
	if filePosition < t.last {
		return &TrackingError{
			Reader:   t.reader,
			Position: filePosition,
			Reason:   fmt.Sprintf("position moved backwards (previously at %d)", t.last),
		}
	}
	t.last = filePosition

	// Exhaustion is terminal until Reset.
	if t.cursor >= len(t.chunks) {
		return nil
	}

	t.next = filePosition
	// Remember when performing the comparison that chunk ends are half-open:
	// the end block itself is excluded when the end data offset is zero.
	for t.cursor < len(t.chunks) && t.chunks[t.cursor].PastEnd(uint64(filePosition)) {
		t.cursor++
		if t.cursor == len(t.chunks) {
			t.next = NoBlockAddress
			break
		}
		if start := int64(t.chunks[t.cursor].Start.BlockOffset()); filePosition < start {
			t.next = start
			break
		}
	}
	return nil
}
