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

package models

import "time"

// ConnectionSummary is returned to callers after a successful device connect.
type ConnectionSummary struct {
	DeviceID  string    `json:"device_id"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordingStatus reports the state of an active recording for one device.
type RecordingStatus struct {
	DeviceID       string    `json:"device_id"`
	StartTime      time.Time `json:"start_time"`
	ElapsedSeconds int64     `json:"elapsed_seconds"`
}

// RecordingSegment is one persisted recording file, as indexed in the
// recording history store.
type RecordingSegment struct {
	ID               string    `json:"id"`
	DeviceID         string    `json:"device_id"`
	Path             string    `json:"path"`
	SegmentIndex     int       `json:"segment_index"`
	RequestedSeconds int       `json:"requested_seconds"`
	CreatedAt        time.Time `json:"created_at"`
}

// Rect is a screen-space bounding box.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Point is a screen-space coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Element is one normalized UI element extracted from a device screen.
type Element struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	Bounds      Rect   `json:"bounds"`
	Center      Point  `json:"center"`
	Interactive bool   `json:"interactive"`
}
