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

package server

import (
	"fmt"
	"net/http"

	gcs "cloud.google.com/go/storage"
	"github.com/gin-gonic/gin"
	"google.golang.org/api/googleapi"

	"github.com/gbggrant/bamstream/internal/storage"
)

// apiError is used to capture errors that have been defined in the htsget
// protocol.
type apiError struct {
	name  string
	code  int
	cause error
}

func (err *apiError) Error() string {
	return fmt.Sprintf("%s (%d): %v", err.name, err.code, err.cause)
}

func newApiError(name string, code int, context string, err error) error {
	return &apiError{name, code, fmt.Errorf("%s: %v", context, err)}
}

func newInvalidAuthenticationError(context string, err error) error {
	return newApiError("InvalidAuthentication", http.StatusUnauthorized, context, err)
}

func newInvalidInputError(context string, err error) error {
	return newApiError("InvalidInput", http.StatusBadRequest, context, err)
}

func newInvalidRangeError(err error) error {
	return &apiError{"InvalidRange", http.StatusBadRequest, err}
}

func newPermissionDeniedError(context string, err error) error {
	return newApiError("PermissionDenied", http.StatusForbidden, context, err)
}

func newUnsupportedFormatError(err error) error {
	return &apiError{"UnsupportedFormat", http.StatusBadRequest, err}
}

func newNotFoundError(context string, err error) error {
	return newApiError("NotFound", http.StatusNotFound, context, err)
}

func newStorageError(context string, err error) error {
	if err == storage.ErrMissingOrInvalidToken {
		return newPermissionDeniedError(context, err)
	}
	if err == gcs.ErrObjectNotExist {
		return newNotFoundError("object does not exist", err)
	}
	if err, ok := err.(*googleapi.Error); ok {
		switch err.Code {
		case http.StatusUnauthorized:
			return newInvalidAuthenticationError(context, err)
		case http.StatusForbidden:
			return newPermissionDeniedError(context, err)
		}
	}
	return err
}

// writeError writes either a JSON object or a bare HTTP error describing
// err.  A JSON object is written only when the error has a name and code
// defined by the htsget specification.
func writeError(c *gin.Context, err error) {
	if err, ok := err.(*apiError); ok {
		c.JSON(err.code, gin.H{
			"htsget": gin.H{
				"error":   err.name,
				"message": fmt.Sprintf("%s: %v", http.StatusText(err.code), err.cause),
			},
		})
		return
	}
	c.String(http.StatusInternalServerError, "%s: %v", http.StatusText(http.StatusInternalServerError), err)
}
