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

// Package backend supervises the external automation server process: health
// probing, lazy start, and graceful shutdown. Liveness is always determined
// by the health probe, never by process-handle existence; a backend started
// outside this process has no handle here and is never killed by Stop.
package backend

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/carverauto/mobilectl/pkg/logger"
	"github.com/carverauto/mobilectl/pkg/models"
)

const (
	defaultPort  = 4723
	pollInterval = time.Second
	stopGrace    = 10 * time.Second
)

var errBackendNotReady = errors.New("backend not ready")

// Supervisor owns the lifecycle of the automation server process.
type Supervisor struct {
	config *models.BackendConfig
	logger logger.Logger
	probe  *http.Client

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{} // closed when the child exits
}

// NewSupervisor builds a Supervisor for the configured backend.
func NewSupervisor(config *models.BackendConfig, log logger.Logger) *Supervisor {
	return &Supervisor{
		config: config,
		logger: log,
		probe:  &http.Client{Timeout: config.ConnectTimeout.Std()},
	}
}

// IsReachable probes the backend's status endpoint. Any transport error,
// timeout, or non-success status is a normal false, never an error.
func (s *Supervisor) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.URL+"/status", http.NoBody)
	if err != nil {
		return false
	}

	resp, err := s.probe.Do(req)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Backend not reachable")
		return false
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	return resp.StatusCode == http.StatusOK
}

// EnsureRunning returns true once the backend is reachable. When it is not
// and auto-start is configured, the backend is launched and polled until the
// startup timeout. Without auto-start an unreachable backend is reported as
// false with no side effect.
func (s *Supervisor) EnsureRunning(ctx context.Context) bool {
	if s.IsReachable(ctx) {
		return true
	}

	if !s.config.AutoStart {
		s.logger.Warn().Msg("Backend not running and auto-start is disabled")
		return false
	}

	s.logger.Info().Msg("Backend not running, attempting auto-start")

	return s.start(ctx)
}

// start launches the backend child process and waits for it to accept
// connections. Serialized so concurrent EnsureRunning calls launch at most
// one process.
func (s *Supervisor) start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A concurrent caller may have finished the launch while we waited.
	if s.IsReachable(ctx) {
		return true
	}

	executable := s.config.ExecutablePath
	if strings.ContainsAny(executable, `/\`) {
		if _, err := os.Stat(executable); err != nil {
			s.logger.Error().Err(err).Str("path", executable).Msg("Backend executable not found")
			return false
		}
	}

	port := portFromURL(s.config.URL, s.logger)

	cmd := exec.Command(executable,
		"--address", s.config.BindAddress,
		"--port", strconv.Itoa(port),
		"--log-level", "debug",
		"--relaxed-security")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to attach backend stdout")
		return false
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to attach backend stderr")
		return false
	}

	s.logger.Info().
		Str("executable", executable).
		Int("port", port).
		Msg("Starting backend process")

	if err := cmd.Start(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to start backend process")
		return false
	}

	done := make(chan struct{})
	s.cmd = cmd
	s.done = done

	// Drain output continuously so the child never blocks on a full pipe.
	go s.drain("stdout", stdout)
	go s.drain("stderr", stderr)

	go func() {
		err := cmd.Wait()
		close(done)

		if err != nil {
			s.logger.Warn().Err(err).Msg("Backend process exited")
		}
	}()

	operation := func() (bool, error) {
		if s.IsReachable(ctx) {
			return true, nil
		}

		return false, errBackendNotReady
	}

	_, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(pollInterval)),
		backoff.WithMaxElapsedTime(s.config.StartupTimeout.Std()))
	if err != nil {
		s.logger.Error().Err(err).Msg("Backend startup timed out")
		return false
	}

	s.logger.Info().Msg("Backend started successfully")

	return true
}

func (s *Supervisor) drain(stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		s.logger.Debug().Str("stream", stream).Msg(scanner.Text())
	}
}

// Stop terminates the backend process if this supervisor started it:
// graceful signal first, force kill after the grace period. Externally
// managed backends are left alone.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil || s.cmd.Process == nil {
		return
	}

	select {
	case <-s.done:
		// already exited
		s.cmd = nil
		return
	default:
	}

	s.logger.Info().Msg("Stopping backend process")

	if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to signal backend process")
	}

	select {
	case <-s.done:
	case <-time.After(stopGrace):
		s.logger.Warn().Msg("Backend did not stop in time, killing")

		if err := s.cmd.Process.Kill(); err != nil {
			s.logger.Error().Err(err).Msg("Failed to kill backend process")
		}

		<-s.done
	}

	s.cmd = nil
	s.logger.Info().Msg("Backend process stopped")
}

// portFromURL extracts the port from the backend URL, falling back to the
// protocol default when unspecified or unparseable.
func portFromURL(rawURL string, log logger.Logger) int {
	parsed, err := url.Parse(rawURL)
	if err == nil && parsed.Port() != "" {
		if port, convErr := strconv.Atoi(parsed.Port()); convErr == nil {
			return port
		}
	}

	log.Warn().Str("url", rawURL).Int("port", defaultPort).Msg("Could not parse port from URL, using default")

	return defaultPort
}
