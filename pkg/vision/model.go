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
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/carverauto/mobilectl/pkg/models"
)

var (
	errUnexpectedModelStatus = errors.New("vision model returned unexpected status")
	errEmptyModelResponse    = errors.New("vision model returned no choices")
	errNoJSONInResponse      = errors.New("no JSON array in vision model response")
)

const promptTemplate = `Analyze this mobile screenshot and list every visible UI element.
For each element provide: its type (button, text field, image, ...), its text
content if any, its bounding box (x, y, width, height with x/y the top-left
corner), its center point for tapping, and whether it is likely interactive.
The purpose of this analysis: %s
Reply with a JSON array only, for example:
[{"type": "button", "text": "OK", "bounds": {"x": 100, "y": 200, "width": 80, "height": 40}, "center": {"x": 140, "y": 220}, "interactive": true}]`

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatContent struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// queryVisionModel sends one chat-completions request with the screenshot
// and parses the element array out of the reply.
func (e *Extractor) queryVisionModel(ctx context.Context, screenshot []byte, purpose string) ([]models.Element, error) {
	encoded := base64.StdEncoding.EncodeToString(screenshot)

	reqBody := chatRequest{
		Model: e.config.Model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []chatContent{
					{Type: "text", Text: fmt.Sprintf(promptTemplate, purpose)},
					{Type: "image_url", ImageURL: &imageURL{URL: "data:image/png;base64," + encoded}},
				},
			},
		},
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(e.config.BaseURL, "/") + "/chat/completions"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision model request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", errUnexpectedModelStatus, resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode vision model response: %w", err)
	}

	if len(parsed.Choices) == 0 {
		return nil, errEmptyModelResponse
	}

	return parseElementArray(parsed.Choices[0].Message.Content)
}

// parseElementArray extracts the first JSON array from model output, which
// may be wrapped in prose or code fences.
func parseElementArray(content string) ([]models.Element, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")

	if start < 0 || end <= start {
		return nil, errNoJSONInResponse
	}

	var elements []models.Element
	if err := json.Unmarshal([]byte(content[start:end+1]), &elements); err != nil {
		return nil, fmt.Errorf("failed to parse element array: %w", err)
	}

	for i := range elements {
		if elements[i].Center == (models.Point{}) {
			elements[i].Center = models.Point{
				X: elements[i].Bounds.X + elements[i].Bounds.Width/2,
				Y: elements[i].Bounds.Y + elements[i].Bounds.Height/2,
			}
		}
	}

	return elements, nil
}
