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
	"encoding/json"
)

// registerRecordingTools registers screen recording tools.
func (s *Server) registerRecordingTools() {
	s.register(Tool{
		Name:        "recording_start",
		Description: "Start recording the device screen; long recordings are chained from bounded segments automatically",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"device_id": deviceIDProperty(),
				"duration_seconds": map[string]interface{}{
					"type":        "integer",
					"description": "Total recording duration in seconds; 0 uses the configured default",
				},
			},
			"required": []string{"device_id"},
		},
		handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var params struct {
				DeviceID        string `json:"device_id"`
				DurationSeconds int    `json:"duration_seconds"`
			}

			if err := unmarshalArgs(args, &params); err != nil {
				return nil, err
			}

			if err := s.core.Recorder.Start(ctx, params.DeviceID, params.DurationSeconds); err != nil {
				return nil, err
			}

			return map[string]interface{}{"success": true}, nil
		},
	})

	s.register(Tool{
		Name:        "recording_stop",
		Description: "Stop the active recording for a device and persist the final segment",
		InputSchema: deviceOnlySchema(),
		handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			deviceID, err := deviceIDArg(args)
			if err != nil {
				return nil, err
			}

			path, err := s.core.Recorder.Stop(ctx, deviceID)
			if err != nil {
				return nil, err
			}

			if path == "" {
				return map[string]interface{}{"success": true, "recording": false}, nil
			}

			return map[string]interface{}{"success": true, "recording": true, "path": path}, nil
		},
	})

	s.register(Tool{
		Name:        "recording_cancel",
		Description: "Stop the active recording for a device and discard the footage",
		InputSchema: deviceOnlySchema(),
		handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			deviceID, err := deviceIDArg(args)
			if err != nil {
				return nil, err
			}

			s.core.Recorder.Cancel(ctx, deviceID)

			return map[string]interface{}{"success": true}, nil
		},
	})

	s.register(Tool{
		Name:        "recording_status",
		Description: "Report whether a device is recording and for how long",
		InputSchema: deviceOnlySchema(),
		handler: func(_ context.Context, args json.RawMessage) (interface{}, error) {
			deviceID, err := deviceIDArg(args)
			if err != nil {
				return nil, err
			}

			status, ok := s.core.Recorder.Status(deviceID)
			if !ok {
				return map[string]interface{}{"success": true, "recording": false}, nil
			}

			return map[string]interface{}{
				"success":         true,
				"recording":       true,
				"start_time":      status.StartTime,
				"elapsed_seconds": status.ElapsedSeconds,
			}, nil
		},
	})

	s.register(Tool{
		Name:        "recording_history",
		Description: "List previously persisted recording segments for a device",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"device_id": deviceIDProperty(),
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of segments to return",
				},
			},
			"required": []string{"device_id"},
		},
		handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var params struct {
				DeviceID string `json:"device_id"`
				Limit    int    `json:"limit"`
			}

			if err := unmarshalArgs(args, &params); err != nil {
				return nil, err
			}

			segments, err := s.core.RecordingHistory(ctx, params.DeviceID, params.Limit)
			if err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"success":    true,
				"recordings": segments,
				"count":      len(segments),
			}, nil
		},
	})
}
