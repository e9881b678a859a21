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
	"time"

	"github.com/carverauto/mobilectl/pkg/logger"
)

// CoreConfig is the top-level configuration for the mobilectl service.
type CoreConfig struct {
	ListenAddr string           `json:"listen_addr"` // e.g., :8090
	APIKey     string           `json:"api_key,omitempty"`
	Backend    *BackendConfig   `json:"backend"`
	Recording  *RecordingConfig `json:"recording"`
	Devices    *DevicesConfig   `json:"devices"`
	Vision     *VisionConfig    `json:"vision,omitempty"`
	HistoryDB  string           `json:"history_db,omitempty"` // sqlite path, empty disables history
	Logging    *logger.Config   `json:"logging,omitempty"`
}

// BackendConfig describes how to reach (and optionally launch) the
// automation backend process.
type BackendConfig struct {
	URL            string   `json:"url"` // e.g., http://127.0.0.1:4723
	ConnectTimeout Duration `json:"connect_timeout,omitempty"`
	StartupTimeout Duration `json:"startup_timeout,omitempty"`
	AutoStart      bool     `json:"auto_start,omitempty"`
	ExecutablePath string   `json:"executable_path,omitempty"`
	BindAddress    string   `json:"bind_address,omitempty"`
}

// RecordingConfig controls screen recording persistence.
type RecordingConfig struct {
	StoragePath     string `json:"storage_path"`
	SyncPath        string `json:"sync_path,omitempty"` // empty means $HOME/AppiumVideos
	Format          string `json:"format,omitempty"`    // default mp4
	Quality         string `json:"quality,omitempty"`   // low, medium, high, photo
	DefaultDuration int    `json:"default_duration,omitempty"`
	MaxDuration     int    `json:"max_duration,omitempty"`
}

// VisionConfig points at an OpenAI-compatible vision model endpoint used for
// screenshot-based element extraction.
type VisionConfig struct {
	BaseURL string   `json:"base_url"`
	APIKey  string   `json:"api_key"`
	Model   string   `json:"model"`
	Timeout Duration `json:"timeout,omitempty"`
}

// DevicesConfig lists the known device capability entries per platform.
type DevicesConfig struct {
	Android []DeviceCapabilities `json:"android,omitempty"`
	IOS     []DeviceCapabilities `json:"ios,omitempty"`
}

// AnyDeviceUDID is the capability UDID sentinel meaning "whichever device the
// backend finds first"; the udid capability is omitted when it is set.
const AnyDeviceUDID = "auto"

// DeviceCapabilities describes how to open an automation session against one
// named device. Extra holds backend options passed through verbatim.
type DeviceCapabilities struct {
	Name              string         `json:"name"`
	PlatformName      string         `json:"platform_name"`
	AutomationName    string         `json:"automation_name"`
	UDID              string         `json:"udid,omitempty"`
	NoReset           bool           `json:"no_reset,omitempty"`
	NewCommandTimeout int            `json:"new_command_timeout,omitempty"` // seconds
	Extra             map[string]any `json:"extra_capabilities,omitempty"`
}

const (
	defaultConnectTimeout  = 5 * time.Second
	defaultStartupTimeout  = 30 * time.Second
	defaultRecordingFormat = "mp4"
	defaultQuality         = "medium"
	defaultDurationSecs    = 180
	defaultMaxDurationSecs = 3600
)

// ApplyDefaults fills zero-valued fields with the documented defaults.
func (c *CoreConfig) ApplyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8090"
	}

	if c.Backend == nil {
		c.Backend = &BackendConfig{}
	}

	if c.Backend.URL == "" {
		c.Backend.URL = "http://127.0.0.1:4723"
	}

	if c.Backend.ConnectTimeout == 0 {
		c.Backend.ConnectTimeout = Duration(defaultConnectTimeout)
	}

	if c.Backend.StartupTimeout == 0 {
		c.Backend.StartupTimeout = Duration(defaultStartupTimeout)
	}

	if c.Backend.ExecutablePath == "" {
		c.Backend.ExecutablePath = "appium"
	}

	if c.Backend.BindAddress == "" {
		c.Backend.BindAddress = "0.0.0.0"
	}

	if c.Recording == nil {
		c.Recording = &RecordingConfig{}
	}

	if c.Recording.StoragePath == "" {
		c.Recording.StoragePath = "recordings"
	}

	if c.Recording.Format == "" {
		c.Recording.Format = defaultRecordingFormat
	}

	if c.Recording.Quality == "" {
		c.Recording.Quality = defaultQuality
	}

	if c.Recording.DefaultDuration == 0 {
		c.Recording.DefaultDuration = defaultDurationSecs
	}

	if c.Recording.MaxDuration == 0 {
		c.Recording.MaxDuration = defaultMaxDurationSecs
	}

	if c.Devices == nil {
		c.Devices = &DevicesConfig{}
	}
}
