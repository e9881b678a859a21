/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/carverauto/mobilectl/pkg/api"
	"github.com/carverauto/mobilectl/pkg/config"
	"github.com/carverauto/mobilectl/pkg/core"
	mobilehttp "github.com/carverauto/mobilectl/pkg/http"
	"github.com/carverauto/mobilectl/pkg/logger"
	"github.com/carverauto/mobilectl/pkg/mcp"
	"github.com/carverauto/mobilectl/pkg/models"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/mobilectl/mobilectl.json", "Path to config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg models.CoreConfig

	cfgLoader := config.NewConfig(nil)
	if err := cfgLoader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	mainLogger, err := logger.New(cfg.Logging, "mobilectl")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	c, err := core.New(&cfg, mainLogger)
	if err != nil {
		return fmt.Errorf("failed to build core: %w", err)
	}

	router := mux.NewRouter()
	api.NewServer(c, mainLogger).RegisterRoutes(router)
	mcp.NewServer(c, mainLogger).RegisterRoutes(router)

	var handler http.Handler = router
	handler = mobilehttp.APIKeyMiddleware(cfg.APIKey, mainLogger)(handler)
	handler = mobilehttp.CommonMiddleware(handler, mainLogger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		mainLogger.Info().Str("addr", cfg.ListenAddr).Msg("Starting HTTP server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
	}

	mainLogger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		mainLogger.Warn().Err(err).Msg("HTTP server shutdown error")
	}

	c.Shutdown(shutdownCtx)

	return nil
}
