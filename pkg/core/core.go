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

// Package core wires the supervisor, session registry, recording
// orchestrator, and element extractor into one explicitly constructed
// context consumed by the HTTP and tool-call surfaces. There is no ambient
// state; everything is passed in here.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/carverauto/mobilectl/pkg/backend"
	"github.com/carverauto/mobilectl/pkg/logger"
	"github.com/carverauto/mobilectl/pkg/models"
	"github.com/carverauto/mobilectl/pkg/recorder"
	"github.com/carverauto/mobilectl/pkg/session"
	"github.com/carverauto/mobilectl/pkg/store"
	"github.com/carverauto/mobilectl/pkg/vision"
	"github.com/carverauto/mobilectl/pkg/webdriver"
)

// Core owns the device control plane.
type Core struct {
	Supervisor *backend.Supervisor
	Registry   *session.Registry
	Recorder   *recorder.Orchestrator
	Extractor  *vision.Extractor
	History    *store.Store // nil when history is disabled

	logger logger.Logger
}

// New constructs the full core from configuration.
func New(cfg *models.CoreConfig, log logger.Logger) (*Core, error) {
	supervisor := backend.NewSupervisor(cfg.Backend, log)
	dialer := webdriver.NewClient(cfg.Backend.URL, cfg.Backend.ConnectTimeout.Std(), log)
	registry := session.NewRegistry(dialer, supervisor, cfg.Devices, log)

	var history *store.Store

	if cfg.HistoryDB != "" {
		var err error

		history, err = store.Open(cfg.HistoryDB)
		if err != nil {
			return nil, err
		}
	}

	var recHistory recorder.History
	if history != nil {
		recHistory = history
	}

	rec, err := recorder.NewOrchestrator(registry, cfg.Recording, recHistory, log)
	if err != nil {
		return nil, err
	}

	return &Core{
		Supervisor: supervisor,
		Registry:   registry,
		Recorder:   rec,
		Extractor:  vision.NewExtractor(registry, cfg.Vision, log),
		History:    history,
		logger:     log,
	}, nil
}

// ConnectDevice resolves the capability entry for a named device and opens
// (or replaces) its session.
func (c *Core) ConnectDevice(ctx context.Context, platform, name string) (*models.ConnectionSummary, error) {
	caps, err := c.Registry.Resolve(platform, name)
	if err != nil {
		return nil, err
	}

	return c.Registry.Connect(ctx, caps.Name, caps)
}

// DisconnectDevice closes the session for a device. Idempotent.
func (c *Core) DisconnectDevice(ctx context.Context, deviceID string) error {
	return c.Registry.Disconnect(ctx, deviceID)
}

// Screenshot captures the device screen as PNG bytes.
func (c *Core) Screenshot(ctx context.Context, deviceID string) ([]byte, error) {
	sess, ok := c.Registry.Lookup(deviceID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", session.ErrDeviceNotConnected, deviceID)
	}

	return sess.Conn.Screenshot(ctx)
}

// Tap issues a tap at screen coordinates.
func (c *Core) Tap(ctx context.Context, deviceID string, x, y int) error {
	sess, ok := c.Registry.Lookup(deviceID)
	if !ok {
		return fmt.Errorf("%w: %s", session.ErrDeviceNotConnected, deviceID)
	}

	return sess.Conn.Tap(ctx, x, y)
}

// Swipe issues a swipe gesture over duration.
func (c *Core) Swipe(ctx context.Context, deviceID string, startX, startY, endX, endY int, duration time.Duration) error {
	sess, ok := c.Registry.Lookup(deviceID)
	if !ok {
		return fmt.Errorf("%w: %s", session.ErrDeviceNotConnected, deviceID)
	}

	return sess.Conn.Swipe(ctx, startX, startY, endX, endY, duration)
}

// InputText types text into the focused element.
func (c *Core) InputText(ctx context.Context, deviceID, text string) error {
	sess, ok := c.Registry.Lookup(deviceID)
	if !ok {
		return fmt.Errorf("%w: %s", session.ErrDeviceNotConnected, deviceID)
	}

	return sess.Conn.InputText(ctx, text)
}

// Elements extracts the visible UI elements for a device.
func (c *Core) Elements(ctx context.Context, deviceID, purpose string, useVisionModel bool) []models.Element {
	return c.Extractor.Extract(ctx, deviceID, purpose, useVisionModel)
}

// RecordingHistory lists persisted segments for a device, newest first.
func (c *Core) RecordingHistory(ctx context.Context, deviceID string, limit int) ([]models.RecordingSegment, error) {
	if c.History == nil {
		return []models.RecordingSegment{}, nil
	}

	return c.History.SegmentsForDevice(ctx, deviceID, limit)
}

// Shutdown releases every held resource: active recordings, device
// sessions, the history store, and the supervised backend process.
func (c *Core) Shutdown(ctx context.Context) {
	c.Recorder.CancelAll(ctx)
	c.Registry.DisconnectAll(ctx)

	if c.History != nil {
		if err := c.History.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to close history store")
		}
	}

	c.Supervisor.Stop()
}
