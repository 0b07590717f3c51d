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

// Package server implements the htsget readset retrieval API over indexed
// BGZF data.
//
// The protocol is defined at http://samtools.github.io/hts-specs/htsget.html.
package server

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gbggrant/bamstream/internal/bam"
	"github.com/gbggrant/bamstream/internal/bgzf"
	"github.com/gbggrant/bamstream/internal/blockio"
	"github.com/gbggrant/bamstream/internal/csi"
	"github.com/gbggrant/bamstream/internal/genomics"
	"github.com/gbggrant/bamstream/internal/storage"
)

var (
	errMissingReferenceName = errors.New("no reference name specified")

	// A data URL for the BGZF EOF marker, appended to every URL list so that
	// concatenating the fetched blocks yields a well-formed file.
	eofMarkerDataURL = "data:;base64," + base64.StdEncoding.EncodeToString(bgzf.EOFMarker)
)

// Server provides an htsget protocol server.  Must be created with
// NewServer.
type Server struct {
	newClient      storage.NewClientFunc
	blockSizeLimit uint64
	whitelist      map[string]bool
	logger         *zap.Logger
}

// NewServer returns a new Server that reads data using clients built by
// newClient.  Blocks returned from the block endpoint will generally not
// exceed blockSizeLimit bytes, though chunks that already exceed this size
// will not be split.
func NewServer(newClient storage.NewClientFunc, blockSizeLimit uint64, logger *zap.Logger) *Server {
	return &Server{newClient, blockSizeLimit, make(map[string]bool), logger}
}

// Whitelist adds buckets to the set of buckets which the server is allowed
// to access.  If Whitelist is never called for a given Server then reads
// from any bucket are allowed.
func (s *Server) Whitelist(buckets []string) {
	for _, bucket := range buckets {
		s.whitelist[bucket] = true
	}
}

// Register attaches the htsget endpoints to router.
func (s *Server) Register(router *gin.Engine) {
	router.GET("/reads/:bucket/:object", s.serveReads)
	router.GET("/block/:bucket/:object", s.serveBlock)
}

// RequestLogger returns middleware that logs one line per request.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

func (s *Server) serveReads(c *gin.Context) {
	ctx := c.Request.Context()
	bucket, object := c.Param("bucket"), c.Param("object")

	if err := parseFormat(c.Query("format")); err != nil {
		writeError(c, newUnsupportedFormatError(err))
		return
	}
	if err := s.checkWhitelist(bucket); err != nil {
		writeError(c, newPermissionDeniedError("checking whitelist", err))
		return
	}

	client, headers, err := s.newClient(c.Request)
	if err != nil {
		writeError(c, newStorageError("creating client", err))
		return
	}

	data, err := client.NewObjectHandle(bucket, object).NewRangeReader(ctx, 0, int64(s.blockSizeLimit))
	if err != nil {
		writeError(c, newStorageError("opening data", err))
		return
	}
	defer data.Close()

	region, err := parseRegion(c.Request.URL.Query(), data)
	if err != nil {
		writeError(c, newInvalidInputError("parsing region", err))
		return
	}
	if region.End > 0 && region.Start > region.End {
		writeError(c, newInvalidRangeError(fmt.Errorf("%s: start > end", region)))
		return
	}

	base := strings.TrimSuffix(object, ".bam")
	var index io.ReadCloser
	read := bam.Read
	for _, candidate := range []struct {
		name string
		read func(io.Reader, genomics.Region) ([]*bgzf.Chunk, error)
	}{
		{object + ".bai", bam.Read},
		{base + ".bai", bam.Read},
		{object + ".csi", csi.Read},
		{base + ".csi", csi.Read},
	} {
		index, err = client.NewObjectHandle(bucket, candidate.name).NewRangeReader(ctx, 0, -1)
		if err == nil {
			read = candidate.read
			break
		}
	}
	if err != nil {
		writeError(c, newStorageError("opening index", err))
		return
	}
	defer index.Close()

	chunks, err := read(index, region)
	if err != nil {
		writeError(c, newInvalidInputError("reading index", err))
		return
	}
	chunks = bgzf.Merge(chunks, s.blockSizeLimit)

	urlBase := blockURLBase(c, bucket, object)
	urls := make([]blockURL, 0, len(chunks)+1)
	for _, chunk := range chunks {
		u := blockURL{
			URL: fmt.Sprintf("%s?start=%s&end=%s", urlBase, chunk.Start, chunk.End),
		}
		if len(headers) > 0 {
			// The htsget specification does not support multiple values for a
			// single header.
			u.Headers = make(map[string]string)
			for k, v := range headers {
				u.Headers[k] = v[0]
			}
		}
		urls = append(urls, u)
	}
	urls = append(urls, blockURL{URL: eofMarkerDataURL})

	s.logger.Info("serving reads",
		zap.String("bucket", bucket),
		zap.String("object", object),
		zap.Stringer("region", region),
		zap.Int("chunks", len(chunks)),
	)
	c.JSON(200, readsResponse{htsgetContainer{Format: "BAM", URLs: urls}})
}

func (s *Server) serveBlock(c *gin.Context) {
	bucket, object := c.Param("bucket"), c.Param("object")

	if err := s.checkWhitelist(bucket); err != nil {
		writeError(c, newPermissionDeniedError("checking whitelist", err))
		return
	}

	chunk, err := parseChunk(c.Request.URL.Query())
	if err != nil {
		writeError(c, newInvalidInputError("parsing chunk", err))
		return
	}

	client, _, err := s.newClient(c.Request)
	if err != nil {
		writeError(c, newStorageError("creating client", err))
		return
	}

	handle := client.NewObjectHandle(bucket, object)
	src := func(start, length int64) (io.ReadCloser, error) {
		return handle.NewRangeReader(c.Request.Context(), start, length)
	}

	response, err := blockio.ReadChunk(src, chunk)
	if err != nil {
		writeError(c, newStorageError("reading chunk", err))
		return
	}
	defer response.Close()

	c.Header("Content-Type", "application/octet-stream")
	c.Status(200)
	if _, err := io.Copy(c.Writer, response); err != nil {
		s.logger.Warn("failed to copy block response",
			zap.String("bucket", bucket),
			zap.String("object", object),
			zap.Error(err),
		)
	}
}

func (s *Server) checkWhitelist(bucket string) error {
	if len(s.whitelist) == 0 || s.whitelist[bucket] {
		return nil
	}
	return fmt.Errorf("access to bucket %s is not allowed", bucket)
}

type readsResponse struct {
	Htsget htsgetContainer `json:"htsget"`
}

type htsgetContainer struct {
	Format string     `json:"format"`
	URLs   []blockURL `json:"urls"`
}

type blockURL struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

func blockURLBase(c *gin.Context, bucket, object string) string {
	var base string
	if host := c.Request.Host; host != "" {
		if c.Request.TLS != nil {
			base = "https://"
		} else {
			base = "http://"
		}
		base += host
	}
	return fmt.Sprintf("%s/block/%s/%s", base, bucket, object)
}

func parseFormat(format string) error {
	if format != "" && format != "BAM" {
		return fmt.Errorf("unsupported format %q", format)
	}
	return nil
}

func parseChunk(query url.Values) (bgzf.Chunk, error) {
	start, err := bgzf.ParseAddress(query.Get("start"))
	if err != nil {
		return bgzf.Chunk{}, fmt.Errorf("parsing start: %v", err)
	}
	end, err := bgzf.ParseAddress(query.Get("end"))
	if err != nil {
		return bgzf.Chunk{}, fmt.Errorf("parsing end: %v", err)
	}
	if end < start {
		return bgzf.Chunk{}, fmt.Errorf("chunk end %s before start %s", end, start)
	}
	return bgzf.Chunk{Start: start, End: end}, nil
}

func parseRegion(query url.Values, data io.Reader) (genomics.Region, error) {
	var (
		name  = query.Get("referenceName")
		start = query.Get("start")
		end   = query.Get("end")
	)
	if name == "" && start == "" && end == "" {
		return genomics.AllMappedReads, nil
	}
	if name == "" {
		return genomics.Region{}, errMissingReferenceName
	}

	id, err := bam.GetReferenceID(data, name)
	if err != nil {
		return genomics.Region{}, fmt.Errorf("resolving reference %q: %v", name, err)
	}

	region := genomics.Region{ReferenceID: id}

	if start != "" {
		n, err := strconv.ParseUint(start, 10, 32)
		if err != nil {
			return genomics.Region{}, fmt.Errorf("parsing start: %v", err)
		}
		region.Start = uint32(n)
	}

	if end != "" {
		n, err := strconv.ParseUint(end, 10, 32)
		if err != nil {
			return genomics.Region{}, fmt.Errorf("parsing end: %v", err)
		}
		region.End = uint32(n)
	}

	return region, nil
}
