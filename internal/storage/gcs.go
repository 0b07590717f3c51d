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

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

// ErrMissingOrInvalidToken is returned when a request carries no usable
// bearer token.
var ErrMissingOrInvalidToken = errors.New("missing or invalid token")

// NewClientFunc is the type of function that constructs the appropriate
// Client to satisfy the incoming request.  Any headers that caused this
// particular client to be created are returned to allow block requests to be
// generated correctly.
type NewClientFunc func(*http.Request) (Client, http.Header, error)

// GCSClient is a Client for accessing Google Cloud Storage.
type GCSClient struct {
	*storage.Client
}

// NewObjectHandle returns a handle to a specified object in the storage
// engine.
func (c GCSClient) NewObjectHandle(bucket, object string) ObjectHandle {
	return gcsObjectHandle{c.Bucket(bucket).Object(object)}
}

type gcsObjectHandle struct {
	*storage.ObjectHandle
}

func (h gcsObjectHandle) NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	return h.ObjectHandle.NewRangeReader(ctx, offset, length)
}

var (
	defaultGCSClient           *storage.Client
	initializeDefaultGCSClient sync.Once
)

func newClientWithOptions(opts ...option.ClientOption) (Client, http.Header, error) {
	initializeDefaultGCSClient.Do(func() {
		gcs, err := storage.NewClient(context.Background(), opts...)
		if err != nil {
			log.Fatalf("Creating default storage client: %v", err)
		}
		defaultGCSClient = gcs
	})
	return GCSClient{defaultGCSClient}, nil, nil
}

// NewDefaultClient returns a storage client that uses the application
// default credentials.  It caches the storage client for efficiency.
func NewDefaultClient(_ *http.Request) (Client, http.Header, error) {
	return newClientWithOptions()
}

// NewPublicClient returns a storage client that does not use any form of
// client authorization.  It can only be used to read publicly-readable
// objects.  It caches the storage client for efficiency.
func NewPublicClient(_ *http.Request) (Client, http.Header, error) {
	return newClientWithOptions(option.WithHTTPClient(http.DefaultClient))
}

// NewClientFromBearerToken constructs a storage client that uses the OAuth2
// bearer token found in req to make storage requests.  It returns the
// authorization header containing the bearer token as well to allow
// subsequent requests to be authenticated correctly.
func NewClientFromBearerToken(req *http.Request) (Client, http.Header, error) {
	authorization := req.Header.Get("Authorization")

	fields := strings.Split(authorization, " ")
	if len(fields) != 2 || fields[0] != "Bearer" {
		return nil, nil, ErrMissingOrInvalidToken
	}

	token := oauth2.Token{
		TokenType:   fields[0],
		AccessToken: fields[1],
	}
	client, err := storage.NewClient(req.Context(), option.WithTokenSource(oauth2.StaticTokenSource(&token)))
	if err != nil {
		return nil, nil, fmt.Errorf("creating client with token source: %v", err)
	}

	return GCSClient{client}, map[string][]string{
		"Authorization": []string{authorization},
	}, nil
}
