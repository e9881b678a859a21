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

// Package api exposes the device control plane over REST. Handlers are thin:
// parse, delegate to core, shape {success, ...} JSON.
package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/carverauto/mobilectl/pkg/core"
	"github.com/carverauto/mobilectl/pkg/logger"
	"github.com/carverauto/mobilectl/pkg/session"
)

// Server holds the REST handlers.
type Server struct {
	core   *core.Core
	logger logger.Logger
}

// NewServer builds the REST surface over the core.
func NewServer(c *core.Core, log logger.Logger) *Server {
	return &Server{core: c, logger: log}
}

// RegisterRoutes attaches all REST endpoints under /api.
func (s *Server) RegisterRoutes(router *mux.Router) {
	r := router.PathPrefix("/api").Subrouter()

	r.HandleFunc("/backend/status", s.handleBackendStatus).Methods(http.MethodGet)

	d := r.PathPrefix("/devices/{deviceId}").Subrouter()
	d.HandleFunc("/connect", s.handleConnect).Methods(http.MethodPost)
	d.HandleFunc("/disconnect", s.handleDisconnect).Methods(http.MethodPost)
	d.HandleFunc("/screenshot", s.handleScreenshot).Methods(http.MethodGet)
	d.HandleFunc("/tap", s.handleTap).Methods(http.MethodPost)
	d.HandleFunc("/swipe", s.handleSwipe).Methods(http.MethodPost)
	d.HandleFunc("/input", s.handleInput).Methods(http.MethodPost)
	d.HandleFunc("/elements", s.handleElements).Methods(http.MethodGet)
	d.HandleFunc("/recording/start", s.handleRecordingStart).Methods(http.MethodPost)
	d.HandleFunc("/recording/stop", s.handleRecordingStop).Methods(http.MethodPost)
	d.HandleFunc("/recording/cancel", s.handleRecordingCancel).Methods(http.MethodPost)
	d.HandleFunc("/recording/status", s.handleRecordingStatus).Methods(http.MethodGet)
	d.HandleFunc("/recordings", s.handleRecordingHistory).Methods(http.MethodGet)
}

func deviceID(r *http.Request) string {
	return mux.Vars(r)["deviceId"]
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeSuccess(w http.ResponseWriter, fields map[string]any) {
	payload := map[string]any{"success": true}
	for k, v := range fields {
		payload[k] = v
	}

	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, session.ErrDeviceNotConnected), errors.Is(err, session.ErrDeviceNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrBackendUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, session.ErrConnectionFailed):
		status = http.StatusBadGateway
	}

	s.writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}

func (s *Server) writeBadRequest(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": msg})
}

func (s *Server) handleBackendStatus(w http.ResponseWriter, r *http.Request) {
	s.writeSuccess(w, map[string]any{"reachable": s.core.Supervisor.IsReachable(r.Context())})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Platform string `json:"platform"`
	}

	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // empty body means android
	}

	if req.Platform == "" {
		req.Platform = "android"
	}

	summary, err := s.core.ConnectDevice(r.Context(), req.Platform, deviceID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeSuccess(w, map[string]any{
		"device_id":  summary.DeviceID,
		"session_id": summary.SessionID,
		"created_at": summary.CreatedAt,
	})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.core.DisconnectDevice(r.Context(), deviceID(r)); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeSuccess(w, nil)
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	data, err := s.core.Screenshot(r.Context(), deviceID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeSuccess(w, map[string]any{"screenshot": base64.StdEncoding.EncodeToString(data)})
}

func (s *Server) handleTap(w http.ResponseWriter, r *http.Request) {
	var req struct {
		X int `json:"x"`
		Y int `json:"y"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid request body")
		return
	}

	if err := s.core.Tap(r.Context(), deviceID(r), req.X, req.Y); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeSuccess(w, nil)
}

func (s *Server) handleSwipe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StartX     int `json:"start_x"`
		StartY     int `json:"start_y"`
		EndX       int `json:"end_x"`
		EndY       int `json:"end_y"`
		DurationMS int `json:"duration_ms"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid request body")
		return
	}

	if req.DurationMS <= 0 {
		req.DurationMS = 500
	}

	err := s.core.Swipe(r.Context(), deviceID(r), req.StartX, req.StartY, req.EndX, req.EndY,
		time.Duration(req.DurationMS)*time.Millisecond)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeSuccess(w, nil)
}

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid request body")
		return
	}

	if err := s.core.InputText(r.Context(), deviceID(r), req.Text); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeSuccess(w, nil)
}

func (s *Server) handleElements(w http.ResponseWriter, r *http.Request) {
	useVision := r.URL.Query().Get("use_vision") == "true"
	purpose := r.URL.Query().Get("purpose")

	elements := s.core.Elements(r.Context(), deviceID(r), purpose, useVision)

	s.writeSuccess(w, map[string]any{"elements": elements, "count": len(elements)})
}

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DurationSeconds int `json:"duration_seconds"`
	}

	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // empty body means default duration
	}

	if err := s.core.Recorder.Start(r.Context(), deviceID(r), req.DurationSeconds); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeSuccess(w, nil)
}

func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	path, err := s.core.Recorder.Stop(r.Context(), deviceID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}

	if path == "" {
		s.writeSuccess(w, map[string]any{"recording": false})
		return
	}

	s.writeSuccess(w, map[string]any{"recording": true, "path": path})
}

func (s *Server) handleRecordingCancel(w http.ResponseWriter, r *http.Request) {
	s.core.Recorder.Cancel(r.Context(), deviceID(r))
	s.writeSuccess(w, nil)
}

func (s *Server) handleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := s.core.Recorder.Status(deviceID(r))
	if !ok {
		s.writeSuccess(w, map[string]any{"recording": false})
		return
	}

	s.writeSuccess(w, map[string]any{
		"recording":       true,
		"start_time":      status.StartTime,
		"elapsed_seconds": status.ElapsedSeconds,
	})
}

func (s *Server) handleRecordingHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	segments, err := s.core.RecordingHistory(r.Context(), deviceID(r), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeSuccess(w, map[string]any{"recordings": segments, "count": len(segments)})
}
