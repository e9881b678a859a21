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

package vision

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/mobilectl/pkg/logger"
	"github.com/carverauto/mobilectl/pkg/models"
	"github.com/carverauto/mobilectl/pkg/session"
	"github.com/carverauto/mobilectl/pkg/webdriver"
)

type visionConn struct {
	source     string
	sourceErr  error
	screenshot []byte
}

func (*visionConn) SessionID() string           { return "sess-1" }
func (*visionConn) Close(context.Context) error { return nil }

func (c *visionConn) Screenshot(context.Context) ([]byte, error) { return c.screenshot, nil }

func (c *visionConn) Source(context.Context) (string, error) { return c.source, c.sourceErr }

func (*visionConn) StartRecording(context.Context, webdriver.RecordingOptions) error { return nil }
func (*visionConn) StopRecording(context.Context) ([]byte, error)                    { return nil, nil }

func (*visionConn) Tap(context.Context, int, int) error { return nil }

func (*visionConn) Swipe(context.Context, int, int, int, int, time.Duration) error { return nil }
func (*visionConn) InputText(context.Context, string) error                        { return nil }

type singleSession struct {
	deviceID string
	conn     webdriver.Conn
}

func (s *singleSession) Lookup(deviceID string) (*session.DeviceSession, bool) {
	if deviceID != s.deviceID {
		return nil, false
	}

	return &session.DeviceSession{DeviceID: deviceID, Conn: s.conn}, true
}

func TestExtractUnconnectedDevice(t *testing.T) {
	e := NewExtractor(&singleSession{deviceID: "pixel-7"}, nil, logger.NewTestLogger())

	elements := e.Extract(context.Background(), "other-device", "", false)
	assert.Empty(t, elements)
	assert.NotNil(t, elements)
}

func TestExtractFromPageSource(t *testing.T) {
	conn := &visionConn{source: `<hierarchy>
		<node class="android.widget.Button" text="OK" bounds="[0,0][100,50]" clickable="true"/>
	</hierarchy>`}
	e := NewExtractor(&singleSession{deviceID: "pixel-7", conn: conn}, nil, logger.NewTestLogger())

	elements := e.Extract(context.Background(), "pixel-7", "", false)
	require.Len(t, elements, 1)
	assert.Equal(t, "OK", elements[0].Text)
	assert.Equal(t, "button", elements[0].Type)
}

func TestExtractSourceFailureDegradesToEmpty(t *testing.T) {
	conn := &visionConn{sourceErr: errors.New("session terminated")}
	e := NewExtractor(&singleSession{deviceID: "pixel-7", conn: conn}, nil, logger.NewTestLogger())

	elements := e.Extract(context.Background(), "pixel-7", "", false)
	assert.Empty(t, elements)
}

func TestExtractVisionModelNotConfigured(t *testing.T) {
	conn := &visionConn{screenshot: []byte("png")}
	e := NewExtractor(&singleSession{deviceID: "pixel-7", conn: conn}, nil, logger.NewTestLogger())

	elements := e.Extract(context.Background(), "pixel-7", "find the login button", true)
	assert.Empty(t, elements)
}

func TestExtractWithVisionModel(t *testing.T) {
	model := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)
		require.Len(t, req.Messages, 1)
		require.Len(t, req.Messages[0].Content, 2)
		assert.Contains(t, req.Messages[0].Content[0].Text, "find the login button")
		assert.Contains(t, req.Messages[0].Content[1].ImageURL.URL, "data:image/png;base64,")

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"content": `[{"type": "button", "text": "Log in", "bounds": {"x": 40, "y": 200, "width": 360, "height": 80}, "interactive": true}]`,
				}},
			},
		})
	}))
	defer model.Close()

	conn := &visionConn{screenshot: []byte("png")}
	cfg := &models.VisionConfig{
		BaseURL: model.URL + "/v1",
		APIKey:  "test-key",
		Model:   "gpt-4o",
	}
	e := NewExtractor(&singleSession{deviceID: "pixel-7", conn: conn}, cfg, logger.NewTestLogger())

	elements := e.Extract(context.Background(), "pixel-7", "find the login button", true)
	require.Len(t, elements, 1)
	assert.Equal(t, "Log in", elements[0].Text)
	assert.True(t, elements[0].Interactive)
	assert.Equal(t, models.Point{X: 220, Y: 240}, elements[0].Center)
}

func TestExtractVisionModelErrorDegradesToEmpty(t *testing.T) {
	model := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer model.Close()

	conn := &visionConn{screenshot: []byte("png")}
	cfg := &models.VisionConfig{BaseURL: model.URL, APIKey: "test-key", Model: "gpt-4o"}
	e := NewExtractor(&singleSession{deviceID: "pixel-7", conn: conn}, cfg, logger.NewTestLogger())

	elements := e.Extract(context.Background(), "pixel-7", "", true)
	assert.Empty(t, elements)
}
