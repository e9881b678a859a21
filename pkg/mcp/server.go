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

// Package mcp exposes the device control plane as Model Context Protocol
// tools over a single JSON-RPC 2.0 endpoint.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/carverauto/mobilectl/pkg/core"
	"github.com/carverauto/mobilectl/pkg/logger"
)

// JSON-RPC 2.0 structures

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      interface{}   `json:"id"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
}

type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Tool is one callable MCP tool.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"inputSchema"`

	handler func(ctx context.Context, args json.RawMessage) (interface{}, error)
}

// Server is the MCP tool-call surface over the core.
type Server struct {
	core   *core.Core
	logger logger.Logger
	tools  map[string]Tool
	order  []string // deterministic tools/list order
}

// NewServer builds the MCP server and registers all tools.
func NewServer(c *core.Core, log logger.Logger) *Server {
	s := &Server{
		core:   c,
		logger: log,
		tools:  make(map[string]Tool),
	}

	s.registerDeviceTools()
	s.registerRecordingTools()

	return s
}

func (s *Server) register(tool Tool) {
	s.tools[tool.Name] = tool
	s.order = append(s.order, tool.Name)
}

// RegisterRoutes adds the MCP endpoint to the router.
func (s *Server) RegisterRoutes(router *mux.Router) {
	s.logger.Info().Int("tools", len(s.tools)).Msg("Registering MCP routes")

	mcpRouter := router.PathPrefix("/mcp").Subrouter()
	mcpRouter.HandleFunc("", s.handleMCPRequest).Methods("POST", "OPTIONS")
	mcpRouter.HandleFunc("/", s.handleMCPRequest).Methods("POST", "OPTIONS")
}

// handleMCPRequest handles all MCP JSON-RPC requests
func (s *Server) handleMCPRequest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
	w.Header().Set("Content-Type", "application/json")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)

		return
	}

	var req JSONRPCRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, req.ID, -32700, "Parse error", err.Error())

		return
	}

	switch req.Method {
	case "initialize":
		s.handleInitialize(w, req)
	case "tools/list":
		s.handleToolsList(w, req)
	case "tools/call":
		s.handleToolCall(w, req, r)
	default:
		s.writeError(w, req.ID, -32601, "Method not found", fmt.Sprintf("Unknown method: %s", req.Method))
	}
}

func (s *Server) handleInitialize(w http.ResponseWriter, req JSONRPCRequest) {
	result := map[string]interface{}{
		"protocolVersion": "2025-03-26",
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		"serverInfo": map[string]interface{}{
			"name":    "mobilectl-mcp",
			"version": "1.0.0",
		},
	}

	s.writeSuccess(w, req.ID, result)
}

func (s *Server) handleToolsList(w http.ResponseWriter, req JSONRPCRequest) {
	tools := make([]Tool, 0, len(s.order))
	for _, name := range s.order {
		tools = append(tools, s.tools[name])
	}

	s.writeSuccess(w, req.ID, map[string]interface{}{"tools": tools})
}

func (s *Server) handleToolCall(w http.ResponseWriter, req JSONRPCRequest, r *http.Request) {
	var params ToolCallParams

	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeError(w, req.ID, -32602, "Invalid params", err.Error())
		return
	}

	tool, ok := s.tools[params.Name]
	if !ok {
		s.writeError(w, req.ID, -32602, "Unknown tool", fmt.Sprintf("Tool not found: %s", params.Name))
		return
	}

	result, err := tool.handler(r.Context(), params.Arguments)
	if err != nil {
		s.writeError(w, req.ID, -32603, "Internal error", err.Error())
		return
	}

	// Format result according to MCP specification
	resultJSON, err := json.Marshal(result)
	if err != nil {
		s.writeError(w, req.ID, -32603, "Internal error", "Failed to marshal result")
		return
	}

	s.writeSuccess(w, req.ID, map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": string(resultJSON)},
		},
	})
}

func (s *Server) writeSuccess(w http.ResponseWriter, id, result interface{}) {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode MCP response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, id interface{}, code int, message, data string) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message, Data: data},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode MCP error response")
	}
}
