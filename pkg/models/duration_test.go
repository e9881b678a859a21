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

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{
			name:     "duration string",
			input:    `"5s"`,
			expected: 5 * time.Second,
		},
		{
			name:     "compound duration string",
			input:    `"1m30s"`,
			expected: 90 * time.Second,
		},
		{
			name:     "numeric nanoseconds",
			input:    `30000000000`,
			expected: 30 * time.Second,
		},
		{
			name:    "invalid string",
			input:   `"not-a-duration"`,
			wantErr: true,
		},
		{
			name:    "wrong type",
			input:   `["5s"]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration

			err := json.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, d.Std())
		})
	}
}

func TestDurationMarshalJSON(t *testing.T) {
	data, err := json.Marshal(Duration(5 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"5s"`, string(data))
}

func TestDurationRoundTripInStruct(t *testing.T) {
	type wrapper struct {
		Timeout Duration `json:"timeout"`
	}

	var w wrapper

	require.NoError(t, json.Unmarshal([]byte(`{"timeout": "45s"}`), &w))
	assert.Equal(t, 45*time.Second, w.Timeout.Std())
}
