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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileClient is a Client backed by a local directory tree.  Buckets map to
// subdirectories and objects to files.
type FileClient struct {
	root string
}

// NewFileClient returns a client that reads objects below root.
func NewFileClient(root string) FileClient {
	return FileClient{root}
}

// NewObjectHandle returns a handle to a file below the client's root.
func (c FileClient) NewObjectHandle(bucket, object string) ObjectHandle {
	return fileObjectHandle{c.root, bucket, object}
}

type fileObjectHandle struct {
	root, bucket, object string
}

func (h fileObjectHandle) NewRangeReader(_ context.Context, offset, length int64) (io.ReadCloser, error) {
	name := filepath.Join(h.root, h.bucket, filepath.FromSlash(h.object))
	if !strings.HasPrefix(filepath.Clean(name), filepath.Clean(h.root)+string(os.PathSeparator)) {
		return nil, fmt.Errorf("object %q escapes the storage root", h.object)
	}

	file, err := os.Open(name)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("reading object size: %v", err)
	}
	if length < 0 || offset+length > info.Size() {
		length = info.Size() - offset
	}
	if length < 0 {
		length = 0
	}

	return &sectionReadCloser{
		SectionReader: io.NewSectionReader(file, offset, length),
		file:          file,
	}, nil
}

type sectionReadCloser struct {
	*io.SectionReader
	file *os.File
}

func (r *sectionReadCloser) Close() error {
	return r.file.Close()
}
