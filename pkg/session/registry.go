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

// Package session owns the device-id keyed map of live automation
// connections. The registry is the single owner of every connection handle;
// other components re-fetch through Lookup for the duration of one operation
// and never retain handles of their own.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/carverauto/mobilectl/pkg/logger"
	"github.com/carverauto/mobilectl/pkg/models"
	"github.com/carverauto/mobilectl/pkg/webdriver"
)

var (
	// ErrBackendUnavailable means the supervisor could not reach or start
	// the automation backend.
	ErrBackendUnavailable = errors.New("automation backend unavailable")

	// ErrDeviceNotFound means no capability entry matches the device name.
	ErrDeviceNotFound = errors.New("no capability entry for device")

	// ErrConnectionFailed means the backend was reachable but session
	// establishment failed.
	ErrConnectionFailed = errors.New("failed to establish automation session")

	// ErrDeviceNotConnected means an operation referenced a device with no
	// active session.
	ErrDeviceNotConnected = errors.New("device not connected")
)

// ServerGate guards session creation on backend reachability. Implemented by
// backend.Supervisor.
type ServerGate interface {
	EnsureRunning(ctx context.Context) bool
}

// DeviceSession is one live automation connection. The Conn is exclusively
// owned by the registry entry.
type DeviceSession struct {
	DeviceID  string
	Conn      webdriver.Conn
	CreatedAt time.Time
}

// Registry maps device identifiers to active automation sessions. Reads and
// writes are safe from any goroutine; connect and disconnect calls for the
// same device identifier serialize on a per-key lock so a device is never
// connected twice concurrently.
type Registry struct {
	dialer  webdriver.Dialer
	gate    ServerGate
	devices *models.DevicesConfig
	logger  logger.Logger

	mu       sync.RWMutex
	sessions map[string]*DeviceSession
	keyLocks map[string]*sync.Mutex
}

// NewRegistry builds a Registry over the given dialer and backend gate.
func NewRegistry(dialer webdriver.Dialer, gate ServerGate, devices *models.DevicesConfig, log logger.Logger) *Registry {
	return &Registry{
		dialer:   dialer,
		gate:     gate,
		devices:  devices,
		logger:   log,
		sessions: make(map[string]*DeviceSession),
		keyLocks: make(map[string]*sync.Mutex),
	}
}

// keyLock returns the per-device mutex, creating it on first use. Key locks
// are never removed; the key space is the small, bounded set of configured
// devices.
func (r *Registry) keyLock(deviceID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.keyLocks[deviceID]
	if !ok {
		lock = &sync.Mutex{}
		r.keyLocks[deviceID] = lock
	}

	return lock
}

// Resolve finds the capability entry for a named device on the given
// platform ("android" or "ios"). An unknown name falls back to the first
// configured entry for the platform; an empty platform list is
// ErrDeviceNotFound.
func (r *Registry) Resolve(platform, name string) (*models.DeviceCapabilities, error) {
	var list []models.DeviceCapabilities

	switch strings.ToLower(platform) {
	case "ios":
		list = r.devices.IOS
	default:
		list = r.devices.Android
	}

	if len(list) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrDeviceNotFound, platform, name)
	}

	for i := range list {
		if list[i].Name == name {
			return &list[i], nil
		}
	}

	return &list[0], nil
}

// Connect establishes a new automation session for the device and stores it.
// An existing session for the same key is closed first; a failed connect
// leaves no entry behind.
func (r *Registry) Connect(ctx context.Context, deviceID string, caps *models.DeviceCapabilities) (*models.ConnectionSummary, error) {
	lock := r.keyLock(deviceID)
	lock.Lock()
	defer lock.Unlock()

	if !r.gate.EnsureRunning(ctx) {
		return nil, ErrBackendUnavailable
	}

	// Replace semantics: the prior session for this key is released before
	// dialing so a successful new connection never leaks the old one.
	if prior := r.remove(deviceID); prior != nil {
		r.closeSession(ctx, prior)
	}

	r.logger.Info().Str("device_id", deviceID).Msg("Creating automation session")

	conn, err := r.dialer.NewSession(ctx, buildCapabilities(caps))
	if err != nil {
		r.logger.Error().Err(err).Str("device_id", deviceID).Msg("Failed to create automation session")
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	sess := &DeviceSession{
		DeviceID:  deviceID,
		Conn:      conn,
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	r.sessions[deviceID] = sess
	r.mu.Unlock()

	r.logger.Info().
		Str("device_id", deviceID).
		Str("session_id", conn.SessionID()).
		Msg("Automation session created")

	return &models.ConnectionSummary{
		DeviceID:  deviceID,
		SessionID: conn.SessionID(),
		CreatedAt: sess.CreatedAt,
	}, nil
}

// Lookup returns the session for a device. Pure map read; never blocks on I/O.
func (r *Registry) Lookup(deviceID string) (*DeviceSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[deviceID]

	return sess, ok
}

// Disconnect closes and removes the session for a device. Unknown devices
// are a no-op; close failures are logged, not propagated, since the goal is
// resource release.
func (r *Registry) Disconnect(ctx context.Context, deviceID string) error {
	lock := r.keyLock(deviceID)
	lock.Lock()
	defer lock.Unlock()

	sess := r.remove(deviceID)
	if sess == nil {
		return nil
	}

	r.closeSession(ctx, sess)
	r.logger.Info().Str("device_id", deviceID).Msg("Automation session closed")

	return nil
}

// DisconnectAll applies Disconnect semantics to every entry. Used at process
// shutdown.
func (r *Registry) DisconnectAll(ctx context.Context) {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*DeviceSession)
	r.mu.Unlock()

	for id, sess := range all {
		r.closeSession(ctx, sess)
		r.logger.Info().Str("device_id", id).Msg("Automation session closed")
	}
}

// remove pops the entry for a device without touching the connection.
func (r *Registry) remove(deviceID string) *DeviceSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[deviceID]
	if !ok {
		return nil
	}

	delete(r.sessions, deviceID)

	return sess
}

func (r *Registry) closeSession(ctx context.Context, sess *DeviceSession) {
	if err := sess.Conn.Close(ctx); err != nil {
		r.logger.Warn().Err(err).Str("device_id", sess.DeviceID).Msg("Failed to close automation session")
	}
}

// buildCapabilities flattens a capability entry into the W3C alwaysMatch
// map. The UDID sentinel "auto" omits the udid so the backend picks any
// available device; extra options are merged verbatim.
func buildCapabilities(caps *models.DeviceCapabilities) map[string]any {
	m := map[string]any{
		"platformName":          caps.PlatformName,
		"appium:automationName": caps.AutomationName,
		"appium:noReset":        caps.NoReset,
	}

	if caps.Name != "" {
		m["appium:deviceName"] = caps.Name
	}

	if caps.UDID != "" && caps.UDID != models.AnyDeviceUDID {
		m["appium:udid"] = caps.UDID
	}

	if caps.NewCommandTimeout > 0 {
		m["appium:newCommandTimeout"] = caps.NewCommandTimeout
	}

	for k, v := range caps.Extra {
		m[k] = v
	}

	return m
}
