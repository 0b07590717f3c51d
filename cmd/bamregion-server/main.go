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

// This binary serves indexed regions of BAM files over the htsget protocol.
// By default it reads objects from Google Cloud Storage using the client's
// bearer token; -public_only serves only public GCS data and -dir serves
// files from a local directory instead.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gbggrant/bamstream/internal/server"
	"github.com/gbggrant/bamstream/internal/storage"
)

var (
	port       = flag.Int("port", 80, "HTTP service port")
	blockSize  = flag.Uint64("block_size", 1024*1024*1024, "serve blocks of approximately this size")
	buckets    = flag.String("buckets", "", "if non-empty, a comma separated whitelist of readable buckets")
	dir        = flag.String("dir", "", "if non-empty, serve files under this directory instead of GCS")
	publicOnly = flag.Bool("public_only", false, "only serve publicly readable GCS objects")

	https = flag.Bool("https", false, "serve using HTTPS (requires -cert and -key)")
	cert  = flag.String("cert", "", "the path to the TLS certificate file")
	key   = flag.String("key", "", "the path to the TLS key file")
)

func main() {
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	newClient := storage.NewClientFromBearerToken
	if *dir != "" {
		client := storage.NewFileClient(*dir)
		newClient = func(*http.Request) (storage.Client, http.Header, error) {
			return client, nil, nil
		}
	} else if *publicOnly {
		newClient = storage.NewPublicClient
	}

	srv := server.NewServer(newClient, *blockSize, logger)
	if *buckets != "" {
		srv.Whitelist(strings.Split(*buckets, ","))
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), server.RequestLogger(logger))
	srv.Register(router)

	addr := fmt.Sprintf(":%d", *port)
	logger.Info("listening", zap.String("address", addr))
	if *https {
		err = router.RunTLS(addr, *cert, *key)
	} else {
		err = router.Run(addr)
	}
	logger.Fatal("server terminated", zap.Error(err))
}
