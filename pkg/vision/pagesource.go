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
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/carverauto/mobilectl/pkg/models"
)

// parsePageSource converts an Android UI hierarchy dump into normalized
// elements. Nodes are kept when they carry text or are interactive
// (clickable, long-clickable, focusable, or scrollable).
func parsePageSource(source string) ([]models.Element, error) {
	decoder := xml.NewDecoder(strings.NewReader(source))
	elements := []models.Element{}

	for {
		tok, err := decoder.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return nil, fmt.Errorf("failed to parse UI hierarchy: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		attrs := make(map[string]string, len(start.Attr))
		for _, a := range start.Attr {
			attrs[a.Name.Local] = a.Value
		}

		text := attrs["text"]
		if text == "" {
			text = attrs["content-desc"]
		}

		interactive := attrs["clickable"] == "true" ||
			attrs["long-clickable"] == "true" ||
			attrs["focusable"] == "true" ||
			attrs["scrollable"] == "true"

		if text == "" && !interactive {
			continue
		}

		bounds, err := parseBounds(attrs["bounds"])
		if err != nil {
			continue
		}

		elements = append(elements, models.Element{
			Type:        elementType(attrs["class"], start.Name.Local),
			Text:        text,
			Bounds:      bounds,
			Center:      models.Point{X: bounds.X + bounds.Width/2, Y: bounds.Y + bounds.Height/2},
			Interactive: interactive,
		})
	}

	return elements, nil
}

// parseBounds decodes the "[x1,y1][x2,y2]" bounds attribute.
func parseBounds(raw string) (models.Rect, error) {
	var x1, y1, x2, y2 int

	if _, err := fmt.Sscanf(raw, "[%d,%d][%d,%d]", &x1, &y1, &x2, &y2); err != nil {
		return models.Rect{}, fmt.Errorf("invalid bounds %q: %w", raw, err)
	}

	return models.Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}, nil
}

// elementType maps an Android widget class to a short type name, falling
// back to the XML tag.
func elementType(class, tag string) string {
	switch {
	case strings.HasSuffix(class, ".EditText"):
		return "editText"
	case strings.HasSuffix(class, ".Button"), strings.HasSuffix(class, ".ImageButton"):
		return "button"
	case strings.HasSuffix(class, ".TextView"):
		return "text"
	case strings.HasSuffix(class, ".CheckBox"):
		return "checkbox"
	case strings.HasSuffix(class, ".Switch"):
		return "switch"
	case strings.HasSuffix(class, ".ImageView"):
		return "image"
	case class != "":
		if idx := strings.LastIndex(class, "."); idx >= 0 {
			return class[idx+1:]
		}

		return class
	default:
		return tag
	}
}
