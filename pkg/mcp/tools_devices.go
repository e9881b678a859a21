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

package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

var errDeviceIDRequired = errors.New("device_id is required")

func deviceIDProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "The configured name of the target device",
	}
}

// registerDeviceTools registers connection, input, and inspection tools.
func (s *Server) registerDeviceTools() {
	s.register(Tool{
		Name:        "device_connect",
		Description: "Connect to a mobile device, creating an automation session for it",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"device_id": deviceIDProperty(),
				"platform": map[string]interface{}{
					"type":        "string",
					"description": "Device platform: android (default) or ios",
				},
			},
			"required": []string{"device_id"},
		},
		handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var params struct {
				DeviceID string `json:"device_id"`
				Platform string `json:"platform"`
			}

			if err := unmarshalArgs(args, &params); err != nil {
				return nil, err
			}

			if params.Platform == "" {
				params.Platform = "android"
			}

			summary, err := s.core.ConnectDevice(ctx, params.Platform, params.DeviceID)
			if err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"success":    true,
				"device_id":  summary.DeviceID,
				"session_id": summary.SessionID,
			}, nil
		},
	})

	s.register(Tool{
		Name:        "device_disconnect",
		Description: "Close the automation session for a device",
		InputSchema: deviceOnlySchema(),
		handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			deviceID, err := deviceIDArg(args)
			if err != nil {
				return nil, err
			}

			if err := s.core.DisconnectDevice(ctx, deviceID); err != nil {
				return nil, err
			}

			return map[string]interface{}{"success": true}, nil
		},
	})

	s.register(Tool{
		Name:        "device_screenshot",
		Description: "Capture the device screen as a base64-encoded PNG",
		InputSchema: deviceOnlySchema(),
		handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			deviceID, err := deviceIDArg(args)
			if err != nil {
				return nil, err
			}

			data, err := s.core.Screenshot(ctx, deviceID)
			if err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"success":    true,
				"screenshot": base64.StdEncoding.EncodeToString(data),
			}, nil
		},
	})

	s.register(Tool{
		Name:        "device_tap",
		Description: "Tap the device screen at the given coordinates",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"device_id": deviceIDProperty(),
				"x":         map[string]interface{}{"type": "integer", "description": "X coordinate in pixels"},
				"y":         map[string]interface{}{"type": "integer", "description": "Y coordinate in pixels"},
			},
			"required": []string{"device_id", "x", "y"},
		},
		handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var params struct {
				DeviceID string `json:"device_id"`
				X        int    `json:"x"`
				Y        int    `json:"y"`
			}

			if err := unmarshalArgs(args, &params); err != nil {
				return nil, err
			}

			if err := s.core.Tap(ctx, params.DeviceID, params.X, params.Y); err != nil {
				return nil, err
			}

			return map[string]interface{}{"success": true}, nil
		},
	})

	s.register(Tool{
		Name:        "device_swipe",
		Description: "Swipe on the device screen between two points",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"device_id":   deviceIDProperty(),
				"start_x":     map[string]interface{}{"type": "integer"},
				"start_y":     map[string]interface{}{"type": "integer"},
				"end_x":       map[string]interface{}{"type": "integer"},
				"end_y":       map[string]interface{}{"type": "integer"},
				"duration_ms": map[string]interface{}{"type": "integer", "description": "Gesture duration in milliseconds (default 500)"},
			},
			"required": []string{"device_id", "start_x", "start_y", "end_x", "end_y"},
		},
		handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var params struct {
				DeviceID   string `json:"device_id"`
				StartX     int    `json:"start_x"`
				StartY     int    `json:"start_y"`
				EndX       int    `json:"end_x"`
				EndY       int    `json:"end_y"`
				DurationMS int    `json:"duration_ms"`
			}

			if err := unmarshalArgs(args, &params); err != nil {
				return nil, err
			}

			if params.DurationMS <= 0 {
				params.DurationMS = 500
			}

			err := s.core.Swipe(ctx, params.DeviceID, params.StartX, params.StartY, params.EndX, params.EndY,
				time.Duration(params.DurationMS)*time.Millisecond)
			if err != nil {
				return nil, err
			}

			return map[string]interface{}{"success": true}, nil
		},
	})

	s.register(Tool{
		Name:        "device_input_text",
		Description: "Type text into the currently focused input on the device",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"device_id": deviceIDProperty(),
				"text":      map[string]interface{}{"type": "string", "description": "Text to type"},
			},
			"required": []string{"device_id", "text"},
		},
		handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var params struct {
				DeviceID string `json:"device_id"`
				Text     string `json:"text"`
			}

			if err := unmarshalArgs(args, &params); err != nil {
				return nil, err
			}

			if err := s.core.InputText(ctx, params.DeviceID, params.Text); err != nil {
				return nil, err
			}

			return map[string]interface{}{"success": true}, nil
		},
	})

	s.register(Tool{
		Name:        "device_elements",
		Description: "List the visible UI elements on the device screen, optionally using a vision model",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"device_id": deviceIDProperty(),
				"purpose": map[string]interface{}{
					"type":        "string",
					"description": "What the caller intends to do; guides vision-model extraction",
				},
				"use_vision": map[string]interface{}{
					"type":        "boolean",
					"description": "Delegate extraction to the configured vision model",
				},
			},
			"required": []string{"device_id"},
		},
		handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var params struct {
				DeviceID  string `json:"device_id"`
				Purpose   string `json:"purpose"`
				UseVision bool   `json:"use_vision"`
			}

			if err := unmarshalArgs(args, &params); err != nil {
				return nil, err
			}

			elements := s.core.Elements(ctx, params.DeviceID, params.Purpose, params.UseVision)

			return map[string]interface{}{
				"success":  true,
				"elements": elements,
				"count":    len(elements),
			}, nil
		},
	})
}

func deviceOnlySchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"device_id": deviceIDProperty(),
		},
		"required": []string{"device_id"},
	}
}

func unmarshalArgs(args json.RawMessage, dst interface{}) error {
	if len(args) == 0 {
		return errDeviceIDRequired
	}

	return json.Unmarshal(args, dst)
}

func deviceIDArg(args json.RawMessage) (string, error) {
	var params struct {
		DeviceID string `json:"device_id"`
	}

	if err := unmarshalArgs(args, &params); err != nil {
		return "", err
	}

	if params.DeviceID == "" {
		return "", errDeviceIDRequired
	}

	return params.DeviceID, nil
}
