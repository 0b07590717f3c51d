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
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

// ReaderID is a stable, non-owning identity for an open reader.  Trackers
// carry a ReaderID so callers can recover which reader produced an error
// without holding the underlying file handle.
type ReaderID string

// NewReaderID returns a fresh reader identity.
func NewReaderID() ReaderID {
	return ReaderID(uuid.New().String())
}

type registryEntry struct {
	stream *Stream
	closer io.Closer
}

// Registry owns a set of open reader/stream pairs.  It is the single owner
// of their lifecycles: trackers and other borrowers hold only ReaderIDs and
// borrowed stream pointers.
type Registry struct {
	mu      sync.Mutex
	entries map[ReaderID]registryEntry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[ReaderID]registryEntry)}
}

// Add registers stream under a new identity.  If closer is non-nil it is
// invoked when the entry is closed.
func (r *Registry) Add(stream *Stream, closer io.Closer) ReaderID {
	id := NewReaderID()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = registryEntry{stream, closer}
	return id
}

// Stream returns the stream registered under id.
func (r *Registry) Stream(id ReaderID) (*Stream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	return entry.stream, ok
}

// Close closes the entry registered under id and forgets it.
func (r *Registry) Close(id ReaderID) error {
	r.mu.Lock()
	entry, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("no reader registered with ID %s", id)
	}
	if entry.closer != nil {
		return entry.closer.Close()
	}
	return nil
}

// CloseAll closes every registered entry, reporting the first error.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[ReaderID]registryEntry)
	r.mu.Unlock()

	var first error
	for _, entry := range entries {
		if entry.closer == nil {
			continue
		}
		if err := entry.closer.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
