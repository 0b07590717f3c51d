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

// Package storage abstracts the byte stores that alignment files and their
// indexes are read from.
package storage

import (
	"context"
	"io"
)

// Client is an interface to a storage engine.
type Client interface {
	// NewObjectHandle returns a handle to a specified object in the storage
	// engine.
	NewObjectHandle(bucket, object string) ObjectHandle
}

// ObjectHandle is an interface to a single object in a storage engine.
type ObjectHandle interface {
	// NewRangeReader returns a reader that reads from a specified range.
	// Length of -1 means to capture everything until the end.
	NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error)
}
