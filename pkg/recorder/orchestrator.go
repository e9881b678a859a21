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

// Package recorder chains bounded backend recording segments into one
// logical recording per device. The backend caps a single segment; the
// orchestrator persists each segment as it ends and immediately starts the
// next until the requested total is covered.
//
// Bookkeeping discipline: the active-recording entry is always removed from
// the map before any blocking backend or file I/O, so concurrent status
// queries and duplicate stops observe "not recording" immediately and a
// device can never be left in a phantom recording state. The map is not held
// across segment I/O, so an explicit Start landing between a boundary's
// persist and its chained restart can have its entry overwritten by the
// chain's re-insert; each timer fire takes at most one entry, so the map
// stays consistent and the overlap resolves at the next stop or boundary.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/carverauto/mobilectl/pkg/logger"
	"github.com/carverauto/mobilectl/pkg/models"
	"github.com/carverauto/mobilectl/pkg/session"
	"github.com/carverauto/mobilectl/pkg/webdriver"
)

// SegmentCapSeconds is the backend's maximum single-segment duration.
// Requested totals above it are produced by chaining segments.
const SegmentCapSeconds = 60

const (
	timestampLayout = "20060102_150405"
	videoSizeMB     = "100"
	syncDirName     = "AppiumVideos"
)

// ErrDeviceNotConnected is returned when recording is requested for a device
// with no active session.
var ErrDeviceNotConnected = session.ErrDeviceNotConnected

// SessionSource yields the live automation connection for a device. The
// orchestrator re-fetches through it for every operation instead of holding
// connection handles. Implemented by session.Registry.
type SessionSource interface {
	Lookup(deviceID string) (*session.DeviceSession, bool)
}

// History indexes persisted segments. Implementations must tolerate being
// called from timer goroutines.
type History interface {
	RecordSegment(ctx context.Context, seg models.RecordingSegment) error
}

// activeRecording is the per-device state while a logical recording runs.
type activeRecording struct {
	deviceID           string
	startTime          time.Time
	requestedSeconds   int
	accumulatedSeconds int
	segmentIndex       int
	timer              *time.Timer
}

// Orchestrator drives per-device logical recordings.
type Orchestrator struct {
	sessions SessionSource
	config   *models.RecordingConfig
	history  History // optional
	logger   logger.Logger

	mu     sync.Mutex
	active map[string]*activeRecording

	syncWG sync.WaitGroup
}

// NewOrchestrator builds an Orchestrator and ensures the storage directory
// exists. history may be nil to disable indexing.
func NewOrchestrator(sessions SessionSource, config *models.RecordingConfig, history History, log logger.Logger) (*Orchestrator, error) {
	if err := os.MkdirAll(config.StoragePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recording storage directory: %w", err)
	}

	return &Orchestrator{
		sessions: sessions,
		config:   config,
		history:  history,
		logger:   log,
		active:   make(map[string]*activeRecording),
	}, nil
}

// Start begins a logical recording. A total of zero or less uses the
// configured default; totals above the configured maximum are clamped. An
// already active recording for the device is stopped and persisted first —
// start is never additive.
func (o *Orchestrator) Start(ctx context.Context, deviceID string, totalSeconds int) error {
	if totalSeconds <= 0 {
		totalSeconds = o.config.DefaultDuration
	}

	if totalSeconds > o.config.MaxDuration {
		o.logger.Warn().
			Int("requested", totalSeconds).
			Int("max", o.config.MaxDuration).
			Msg("Requested recording duration exceeds maximum, clamping")

		totalSeconds = o.config.MaxDuration
	}

	if _, ok := o.Status(deviceID); ok {
		o.logger.Warn().Str("device_id", deviceID).Msg("Device already recording, stopping current recording first")

		if _, err := o.Stop(ctx, deviceID); err != nil {
			o.logger.Error().Err(err).Str("device_id", deviceID).Msg("Failed to stop prior recording")
		}
	}

	o.logger.Info().
		Str("device_id", deviceID).
		Int("total_seconds", totalSeconds).
		Msg("Starting screen recording")

	return o.beginSegment(ctx, deviceID, time.Now(), totalSeconds, 0, 1)
}

// beginSegment starts one backend segment and arms the chain timer at its
// boundary.
func (o *Orchestrator) beginSegment(ctx context.Context, deviceID string, logicalStart time.Time, requested, accumulated, index int) error {
	sess, ok := o.sessions.Lookup(deviceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotConnected, deviceID)
	}

	segSeconds := requested - accumulated
	if segSeconds > SegmentCapSeconds {
		segSeconds = SegmentCapSeconds
	}

	err := sess.Conn.StartRecording(ctx, webdriver.RecordingOptions{
		VideoQuality: o.config.Quality,
		VideoSize:    videoSizeMB,
		TimeLimit:    segSeconds,
		HideNavBar:   true,
	})
	if err != nil {
		return fmt.Errorf("failed to start recording segment: %w", err)
	}

	rec := &activeRecording{
		deviceID:           deviceID,
		startTime:          logicalStart,
		requestedSeconds:   requested,
		accumulatedSeconds: accumulated,
		segmentIndex:       index,
	}
	rec.timer = time.AfterFunc(time.Duration(segSeconds)*time.Second, func() {
		o.onSegmentBoundary(deviceID, segSeconds)
	})

	o.mu.Lock()
	o.active[deviceID] = rec
	o.mu.Unlock()

	o.logger.Debug().
		Str("device_id", deviceID).
		Int("segment", index).
		Int("segment_seconds", segSeconds).
		Msg("Recording segment started")

	return nil
}

// onSegmentBoundary fires from the chain timer. If an explicit stop or
// cancel already removed the entry this is a no-op; otherwise the finished
// segment is persisted and, while the accumulated time is below the
// requested total, the next segment begins.
func (o *Orchestrator) onSegmentBoundary(deviceID string, segSeconds int) {
	rec := o.take(deviceID)
	if rec == nil {
		return
	}

	ctx := context.Background()

	if _, err := o.persistSegment(ctx, rec); err != nil {
		o.logger.Error().Err(err).Str("device_id", deviceID).Msg("Failed to persist recording segment")
		return
	}

	accumulated := rec.accumulatedSeconds + segSeconds
	if accumulated >= rec.requestedSeconds {
		o.logger.Info().
			Str("device_id", deviceID).
			Int("accumulated_seconds", accumulated).
			Msg("Recording complete")

		return
	}

	err := o.beginSegment(ctx, deviceID, rec.startTime, rec.requestedSeconds, accumulated, rec.segmentIndex+1)
	if err != nil {
		o.logger.Error().Err(err).Str("device_id", deviceID).Msg("Failed to chain next recording segment")
	}
}

// Stop ends the active recording, persists the finished segment, and returns
// the stored path. A device that is not recording returns "" with no error.
func (o *Orchestrator) Stop(ctx context.Context, deviceID string) (string, error) {
	rec := o.take(deviceID)
	if rec == nil {
		o.logger.Debug().Str("device_id", deviceID).Msg("Stop requested but device is not recording")
		return "", nil
	}

	o.logger.Info().Str("device_id", deviceID).Msg("Stopping screen recording")

	path, err := o.persistSegment(ctx, rec)
	if err != nil {
		return "", err
	}

	return path, nil
}

// Cancel ends the active recording and discards the segment bytes. Not
// recording is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, deviceID string) {
	rec := o.take(deviceID)
	if rec == nil {
		return
	}

	o.logger.Info().Str("device_id", deviceID).Msg("Cancelling screen recording")

	sess, ok := o.sessions.Lookup(deviceID)
	if !ok {
		return
	}

	if _, err := sess.Conn.StopRecording(ctx); err != nil && !errors.Is(err, webdriver.ErrNotRecording) {
		o.logger.Warn().Err(err).Str("device_id", deviceID).Msg("Failed to stop backend recording on cancel")
	}
}

// Status reports the active recording for a device. Pure map read.
func (o *Orchestrator) Status(deviceID string) (*models.RecordingStatus, bool) {
	o.mu.Lock()
	rec, ok := o.active[deviceID]
	o.mu.Unlock()

	if !ok {
		return nil, false
	}

	return &models.RecordingStatus{
		DeviceID:       deviceID,
		StartTime:      rec.startTime,
		ElapsedSeconds: int64(time.Since(rec.startTime).Seconds()),
	}, true
}

// CancelAll cancels every active recording and waits for in-flight sync
// copies. Used at process shutdown.
func (o *Orchestrator) CancelAll(ctx context.Context) {
	o.mu.Lock()
	ids := make([]string, 0, len(o.active))
	for id := range o.active {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	for _, id := range ids {
		o.Cancel(ctx, id)
	}

	o.syncWG.Wait()
}

// take removes and returns the active entry, cancelling its chain timer so a
// stale timer cannot resurrect a just-stopped recording. Whichever of an
// explicit stop and the chain timer calls take first wins; the loser sees
// nil and becomes a no-op.
func (o *Orchestrator) take(deviceID string) *activeRecording {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, ok := o.active[deviceID]
	if !ok {
		return nil
	}

	delete(o.active, deviceID)
	rec.timer.Stop()

	return rec
}

// persistSegment retrieves the finished segment from the backend and writes
// it to the storage directory. The backend reporting "not recording" (its
// segment already ended on its own) is benign and returns "". The file copy
// to the sync directory runs asynchronously.
func (o *Orchestrator) persistSegment(ctx context.Context, rec *activeRecording) (string, error) {
	sess, ok := o.sessions.Lookup(rec.deviceID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrDeviceNotConnected, rec.deviceID)
	}

	data, err := sess.Conn.StopRecording(ctx)
	if err != nil {
		if errors.Is(err, webdriver.ErrNotRecording) {
			o.logger.Warn().Str("device_id", rec.deviceID).Msg("Backend reports not recording, nothing to persist")
			return "", nil
		}

		return "", fmt.Errorf("failed to stop recording segment: %w", err)
	}

	fileName := fmt.Sprintf("%s_recording_%s.%s", rec.deviceID, time.Now().Format(timestampLayout), o.config.Format)
	path := filepath.Join(o.config.StoragePath, fileName)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write recording file: %w", err)
	}

	o.logger.Info().Str("device_id", rec.deviceID).Str("path", path).Msg("Recording segment saved")

	if o.history != nil {
		seg := models.RecordingSegment{
			DeviceID:         rec.deviceID,
			Path:             path,
			SegmentIndex:     rec.segmentIndex,
			RequestedSeconds: rec.requestedSeconds,
			CreatedAt:        time.Now(),
		}
		if err := o.history.RecordSegment(ctx, seg); err != nil {
			o.logger.Warn().Err(err).Str("device_id", rec.deviceID).Msg("Failed to index recording segment")
		}
	}

	o.syncWG.Add(1)

	go func() {
		defer o.syncWG.Done()
		o.syncToComputer(path, fileName)
	}()

	return path, nil
}

// syncToComputer mirrors a saved recording into the sync directory.
func (o *Orchestrator) syncToComputer(path, fileName string) {
	syncDir := o.config.SyncPath
	if syncDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			o.logger.Warn().Err(err).Msg("Cannot resolve home directory for recording sync")
			return
		}

		syncDir = filepath.Join(home, syncDirName)
	}

	if err := os.MkdirAll(syncDir, 0o755); err != nil {
		o.logger.Error().Err(err).Str("dir", syncDir).Msg("Failed to create sync directory")
		return
	}

	target := filepath.Join(syncDir, fileName)

	if err := copyFile(path, target); err != nil {
		o.logger.Error().Err(err).Str("target", target).Msg("Failed to sync recording")
		return
	}

	o.logger.Info().Str("target", target).Msg("Recording synced")
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}

	defer func() {
		_ = in.Close()
	}()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}

	return out.Close()
}
