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
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/mobilectl/pkg/core"
	"github.com/carverauto/mobilectl/pkg/logger"
	"github.com/carverauto/mobilectl/pkg/models"
)

func newTestMCPRouter(t *testing.T) *mux.Router {
	t.Helper()

	writeValue := func(w http.ResponseWriter, value any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"value": value})
	}

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/status":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPost && r.URL.Path == "/session":
			writeValue(w, map[string]any{"sessionId": "sess-1"})
		case strings.HasSuffix(r.URL.Path, "/screenshot"):
			writeValue(w, base64.StdEncoding.EncodeToString([]byte("png-bytes")))
		case strings.HasSuffix(r.URL.Path, "/stop_recording_screen"):
			writeValue(w, base64.StdEncoding.EncodeToString([]byte("mp4-bytes")))
		default:
			writeValue(w, nil)
		}
	}))
	t.Cleanup(backend.Close)

	dir := t.TempDir()

	cfg := &models.CoreConfig{
		Backend: &models.BackendConfig{
			URL:            backend.URL,
			ConnectTimeout: models.Duration(2 * time.Second),
			StartupTimeout: models.Duration(2 * time.Second),
		},
		Recording: &models.RecordingConfig{
			StoragePath:     filepath.Join(dir, "recordings"),
			SyncPath:        filepath.Join(dir, "sync"),
			Format:          "mp4",
			Quality:         "medium",
			DefaultDuration: 180,
			MaxDuration:     3600,
		},
		Devices: &models.DevicesConfig{
			Android: []models.DeviceCapabilities{
				{Name: "pixel-7", PlatformName: "Android", AutomationName: "UiAutomator2", UDID: "auto"},
			},
		},
	}

	c, err := core.New(cfg, logger.NewTestLogger())
	require.NoError(t, err)

	t.Cleanup(func() {
		c.Shutdown(context.Background())
	})

	router := mux.NewRouter()
	NewServer(c, logger.NewTestLogger()).RegisterRoutes(router)

	return router
}

func rpc(t *testing.T, router *mux.Router, method string, params any) JSONRPCResponse {
	t.Helper()

	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		req["params"] = params
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httpReq)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp JSONRPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2.0", resp.JSONRPC)

	return resp
}

// callTool invokes one tool and decodes the JSON payload out of the MCP
// text-content envelope.
func callTool(t *testing.T, router *mux.Router, name string, args any) (map[string]any, *JSONRPCError) {
	t.Helper()

	resp := rpc(t, router, "tools/call", map[string]any{"name": name, "arguments": args})
	if resp.Error != nil {
		return nil, resp.Error
	}

	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)

	content, ok := result["content"].([]any)
	require.True(t, ok)
	require.Len(t, content, 1)

	block, ok := content[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "text", block["type"])

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(block["text"].(string)), &payload))

	return payload, nil
}

func TestInitialize(t *testing.T) {
	router := newTestMCPRouter(t)

	resp := rpc(t, router, "initialize", nil)
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2025-03-26", result["protocolVersion"])

	info, ok := result["serverInfo"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "mobilectl-mcp", info["name"])
}

func TestToolsList(t *testing.T) {
	router := newTestMCPRouter(t)

	resp := rpc(t, router, "tools/list", nil)
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)

	tools, ok := result["tools"].([]any)
	require.True(t, ok)

	names := make([]string, 0, len(tools))

	for _, raw := range tools {
		tool, ok := raw.(map[string]any)
		require.True(t, ok)

		name, ok := tool["name"].(string)
		require.True(t, ok)

		names = append(names, name)
		assert.NotEmpty(t, tool["description"], "tool %s has no description", name)
		assert.NotNil(t, tool["inputSchema"], "tool %s has no input schema", name)
	}

	assert.Equal(t, []string{
		"device_connect",
		"device_disconnect",
		"device_screenshot",
		"device_tap",
		"device_swipe",
		"device_input_text",
		"device_elements",
		"recording_start",
		"recording_stop",
		"recording_cancel",
		"recording_status",
		"recording_history",
	}, names)
}

func TestUnknownMethod(t *testing.T) {
	router := newTestMCPRouter(t)

	resp := rpc(t, router, "resources/list", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
}

func TestUnknownTool(t *testing.T) {
	router := newTestMCPRouter(t)

	_, rpcErr := callTool(t, router, "no_such_tool", map[string]any{})
	require.NotNil(t, rpcErr)
	assert.Equal(t, -32602, rpcErr.Code)
}

func TestParseError(t *testing.T) {
	router := newTestMCPRouter(t)

	httpReq := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httpReq)

	var resp JSONRPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32700, resp.Error.Code)
}

func TestDeviceConnectTool(t *testing.T) {
	router := newTestMCPRouter(t)

	payload, rpcErr := callTool(t, router, "device_connect", map[string]any{"device_id": "pixel-7"})
	require.Nil(t, rpcErr)
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, "pixel-7", payload["device_id"])
	assert.Equal(t, "sess-1", payload["session_id"])
}

func TestDeviceToolRequiresDeviceID(t *testing.T) {
	router := newTestMCPRouter(t)

	_, rpcErr := callTool(t, router, "device_screenshot", map[string]any{})
	require.NotNil(t, rpcErr)
	assert.Equal(t, -32603, rpcErr.Code)
	assert.Contains(t, rpcErr.Data.(string), "device_id")
}

func TestDeviceScreenshotTool(t *testing.T) {
	router := newTestMCPRouter(t)

	_, rpcErr := callTool(t, router, "device_connect", map[string]any{"device_id": "pixel-7"})
	require.Nil(t, rpcErr)

	payload, rpcErr := callTool(t, router, "device_screenshot", map[string]any{"device_id": "pixel-7"})
	require.Nil(t, rpcErr)

	decoded, err := base64.StdEncoding.DecodeString(payload["screenshot"].(string))
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), decoded)
}

func TestDeviceTapToolNotConnected(t *testing.T) {
	router := newTestMCPRouter(t)

	_, rpcErr := callTool(t, router, "device_tap", map[string]any{"device_id": "pixel-7", "x": 1, "y": 2})
	require.NotNil(t, rpcErr)
	assert.Equal(t, -32603, rpcErr.Code)
}

func TestRecordingTools(t *testing.T) {
	router := newTestMCPRouter(t)

	_, rpcErr := callTool(t, router, "device_connect", map[string]any{"device_id": "pixel-7"})
	require.Nil(t, rpcErr)

	payload, rpcErr := callTool(t, router, "recording_start",
		map[string]any{"device_id": "pixel-7", "duration_seconds": 30})
	require.Nil(t, rpcErr)
	assert.Equal(t, true, payload["success"])

	payload, rpcErr = callTool(t, router, "recording_status", map[string]any{"device_id": "pixel-7"})
	require.Nil(t, rpcErr)
	assert.Equal(t, true, payload["recording"])

	payload, rpcErr = callTool(t, router, "recording_stop", map[string]any{"device_id": "pixel-7"})
	require.Nil(t, rpcErr)
	assert.Equal(t, true, payload["recording"])
	assert.NotEmpty(t, payload["path"])

	payload, rpcErr = callTool(t, router, "recording_status", map[string]any{"device_id": "pixel-7"})
	require.Nil(t, rpcErr)
	assert.Equal(t, false, payload["recording"])
}

func TestRecordingHistoryToolWithoutStore(t *testing.T) {
	router := newTestMCPRouter(t)

	payload, rpcErr := callTool(t, router, "recording_history", map[string]any{"device_id": "pixel-7"})
	require.Nil(t, rpcErr)
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, float64(0), payload["count"])
}
