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

// Package vision extracts a normalized UI element list from a device screen,
// either by parsing the local UI tree or by delegating interpretation of a
// screenshot to a hosted vision model. The surface is advisory: every
// failure path degrades to an empty list.
package vision

import (
	"context"
	"net/http"
	"time"

	"github.com/carverauto/mobilectl/pkg/logger"
	"github.com/carverauto/mobilectl/pkg/models"
	"github.com/carverauto/mobilectl/pkg/session"
)

const defaultVisionTimeout = 60 * time.Second

// SessionSource yields the live automation connection for a device.
// Implemented by session.Registry.
type SessionSource interface {
	Lookup(deviceID string) (*session.DeviceSession, bool)
}

// Extractor produces element lists for device screens.
type Extractor struct {
	sessions   SessionSource
	config     *models.VisionConfig
	httpClient *http.Client
	logger     logger.Logger
}

// NewExtractor builds an Extractor. config may be nil, which disables the
// vision-model path.
func NewExtractor(sessions SessionSource, config *models.VisionConfig, log logger.Logger) *Extractor {
	timeout := defaultVisionTimeout
	if config != nil && config.Timeout > 0 {
		timeout = config.Timeout.Std()
	}

	return &Extractor{
		sessions:   sessions,
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

// Extract returns the visible UI elements for a device. With useVisionModel
// false this is a synchronous local transform of the current UI tree; with
// true a screenshot is sent to the configured vision model. The result is
// always a (possibly empty) list, never an error.
func (e *Extractor) Extract(ctx context.Context, deviceID, purpose string, useVisionModel bool) []models.Element {
	sess, ok := e.sessions.Lookup(deviceID)
	if !ok {
		e.logger.Warn().Str("device_id", deviceID).Msg("Element extraction requested for unconnected device")
		return []models.Element{}
	}

	if !useVisionModel {
		source, err := sess.Conn.Source(ctx)
		if err != nil {
			e.logger.Warn().Err(err).Str("device_id", deviceID).Msg("Failed to fetch page source")
			return []models.Element{}
		}

		elements, err := parsePageSource(source)
		if err != nil {
			e.logger.Warn().Err(err).Str("device_id", deviceID).Msg("Failed to parse page source")
			return []models.Element{}
		}

		return elements
	}

	if e.config == nil || e.config.BaseURL == "" {
		e.logger.Warn().Msg("Vision model requested but not configured")
		return []models.Element{}
	}

	screenshot, err := sess.Conn.Screenshot(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Str("device_id", deviceID).Msg("Failed to capture screenshot for vision extraction")
		return []models.Element{}
	}

	elements, err := e.queryVisionModel(ctx, screenshot, purpose)
	if err != nil {
		e.logger.Warn().Err(err).Str("device_id", deviceID).Msg("Vision model extraction failed")
		return []models.Element{}
	}

	return elements
}
