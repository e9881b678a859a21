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

package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/carverauto/mobilectl/pkg/logger"
	"github.com/carverauto/mobilectl/pkg/models"
)

func newTestSupervisor(url string, autoStart bool) *Supervisor {
	return NewSupervisor(&models.BackendConfig{
		URL:            url,
		ConnectTimeout: models.Duration(time.Second),
		StartupTimeout: models.Duration(2 * time.Second),
		AutoStart:      autoStart,
		ExecutablePath: "appium",
		BindAddress:    "0.0.0.0",
	}, logger.NewTestLogger())
}

func TestIsReachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := newTestSupervisor(server.URL, false)
	assert.True(t, s.IsReachable(context.Background()))
}

func TestIsReachableNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s := newTestSupervisor(server.URL, false)
	assert.False(t, s.IsReachable(context.Background()))
}

func TestIsReachableConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	server.Close() // port is now closed

	s := newTestSupervisor(server.URL, false)
	assert.False(t, s.IsReachable(context.Background()))
}

func TestEnsureRunningAlreadyReachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := newTestSupervisor(server.URL, false)
	assert.True(t, s.EnsureRunning(context.Background()))
}

func TestEnsureRunningAutoStartDisabled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	server.Close()

	s := newTestSupervisor(server.URL, false)
	assert.False(t, s.EnsureRunning(context.Background()))
}

func TestEnsureRunningMissingExecutablePath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	server.Close()

	s := newTestSupervisor(server.URL, true)
	s.config.ExecutablePath = "/nonexistent/path/appium"

	assert.False(t, s.EnsureRunning(context.Background()))
}

func TestStopWithoutStartedProcess(t *testing.T) {
	s := newTestSupervisor("http://127.0.0.1:4723", false)

	// never started anything, must be a no-op
	s.Stop()
}

func TestPortFromURL(t *testing.T) {
	log := logger.NewTestLogger()

	tests := []struct {
		name     string
		url      string
		expected int
	}{
		{"explicit port", "http://127.0.0.1:4725", 4725},
		{"no port", "http://127.0.0.1", 4723},
		{"unparseable", "://bad", 4723},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, portFromURL(tt.url, log))
		})
	}
}
