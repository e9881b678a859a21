// Package webdriver implements the subset of the WebDriver/Appium wire
// protocol needed to drive mobile device sessions: session lifecycle,
// screenshots, page source, screen recording, and basic input.
package webdriver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/carverauto/mobilectl/pkg/logger"
)

var (
	// ErrNotRecording is returned by StopRecording when the backend reports
	// that no recording is in progress for the session.
	ErrNotRecording = errors.New("backend is not recording")

	errUnexpectedStatusCode = errors.New("unexpected status code")
	errNoSessionID          = errors.New("backend returned no session id")
)

// Client dials one automation backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.Logger
}

// NewClient builds a Client for the backend at baseURL. Every request is
// bounded by timeout.
func NewClient(baseURL string, timeout time.Duration, log logger.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

// wireResponse is the W3C response envelope.
type wireResponse struct {
	Value json.RawMessage `json:"value"`
}

// wireError is the W3C error payload carried inside the value field.
type wireError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader = http.NoBody

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}

		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug().Err(closeErr).Msg("Failed to close response body")
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read backend response: %w", err)
	}

	var envelope wireResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("failed to decode backend response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var werr wireError
		if json.Unmarshal(envelope.Value, &werr) == nil && werr.Message != "" {
			if strings.Contains(werr.Message, "not recording") {
				return ErrNotRecording
			}

			return fmt.Errorf("%w: %d (%s: %s)", errUnexpectedStatusCode, resp.StatusCode, werr.Error, werr.Message)
		}

		return fmt.Errorf("%w: %d", errUnexpectedStatusCode, resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Value, out); err != nil {
			return fmt.Errorf("failed to decode backend value: %w", err)
		}
	}

	return nil
}

// NewSession opens an automation session with the given W3C capabilities and
// returns the connection handle for it.
func (c *Client) NewSession(ctx context.Context, capabilities map[string]any) (Conn, error) {
	body := map[string]any{
		"capabilities": map[string]any{
			"alwaysMatch": capabilities,
		},
	}

	var value struct {
		SessionID string `json:"sessionId"`
	}

	if err := c.do(ctx, http.MethodPost, "/session", body, &value); err != nil {
		return nil, err
	}

	if value.SessionID == "" {
		return nil, errNoSessionID
	}

	return &session{client: c, id: value.SessionID}, nil
}

// session is one live automation connection.
type session struct {
	client *Client
	id     string
}

func (s *session) SessionID() string {
	return s.id
}

func (s *session) path(suffix string) string {
	return "/session/" + s.id + suffix
}

func (s *session) Close(ctx context.Context) error {
	return s.client.do(ctx, http.MethodDelete, s.path(""), nil, nil)
}

func (s *session) Screenshot(ctx context.Context) ([]byte, error) {
	var encoded string
	if err := s.client.do(ctx, http.MethodGet, s.path("/screenshot"), nil, &encoded); err != nil {
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}

	return data, nil
}

func (s *session) Source(ctx context.Context) (string, error) {
	var source string
	if err := s.client.do(ctx, http.MethodGet, s.path("/source"), nil, &source); err != nil {
		return "", err
	}

	return source, nil
}

// RecordingOptions are passed through to the backend's screen recorder. The
// backend enforces its own upper bound on TimeLimit for a single segment.
type RecordingOptions struct {
	VideoQuality string
	VideoSize    string
	TimeLimit    int // seconds
	HideNavBar   bool
}

func (s *session) StartRecording(ctx context.Context, opts RecordingOptions) error {
	body := map[string]any{
		"options": map[string]any{
			"videoQuality": opts.VideoQuality,
			"videoSize":    opts.VideoSize,
			"timeLimit":    fmt.Sprintf("%d", opts.TimeLimit),
			"hideNaviBar":  opts.HideNavBar,
		},
	}

	return s.client.do(ctx, http.MethodPost, s.path("/appium/start_recording_screen"), body, nil)
}

// StopRecording stops the in-progress recording and returns the decoded
// video bytes. ErrNotRecording is returned when the backend-side segment has
// already ended on its own.
func (s *session) StopRecording(ctx context.Context) ([]byte, error) {
	var encoded string
	if err := s.client.do(ctx, http.MethodPost, s.path("/appium/stop_recording_screen"), map[string]any{}, &encoded); err != nil {
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode recording: %w", err)
	}

	return data, nil
}

func (s *session) Tap(ctx context.Context, x, y int) error {
	return s.performPointer(ctx, []map[string]any{
		{"type": "pointerMove", "duration": 0, "x": x, "y": y},
		{"type": "pointerDown", "button": 0},
		{"type": "pause", "duration": 100},
		{"type": "pointerUp", "button": 0},
	})
}

func (s *session) Swipe(ctx context.Context, startX, startY, endX, endY int, duration time.Duration) error {
	return s.performPointer(ctx, []map[string]any{
		{"type": "pointerMove", "duration": 0, "x": startX, "y": startY},
		{"type": "pointerDown", "button": 0},
		{"type": "pointerMove", "duration": duration.Milliseconds(), "origin": "viewport", "x": endX, "y": endY},
		{"type": "pointerUp", "button": 0},
	})
}

func (s *session) performPointer(ctx context.Context, actions []map[string]any) error {
	body := map[string]any{
		"actions": []map[string]any{
			{
				"type": "pointer",
				"id":   "finger1",
				"parameters": map[string]any{
					"pointerType": "touch",
				},
				"actions": actions,
			},
		},
	}

	return s.client.do(ctx, http.MethodPost, s.path("/actions"), body, nil)
}

func (s *session) InputText(ctx context.Context, text string) error {
	chars := make([]string, 0, len(text))
	for _, r := range text {
		chars = append(chars, string(r))
	}

	body := map[string]any{"value": chars}

	return s.client.do(ctx, http.MethodPost, s.path("/keys"), body, nil)
}
