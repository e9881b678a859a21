// Package store provides a SQLite-backed index of persisted recording
// segments.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/carverauto/mobilectl/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS recording_segments (
	id TEXT PRIMARY KEY,
	device_id TEXT NOT NULL,
	path TEXT NOT NULL,
	segment_index INTEGER NOT NULL,
	requested_seconds INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_segments_device ON recording_segments(device_id, created_at);
`

// Store indexes recording segments in a local SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ensure history schema: %w", err)
	}

	return &Store{db: db}, nil
}

// RecordSegment inserts one persisted segment. A missing ID is generated.
func (s *Store) RecordSegment(ctx context.Context, seg models.RecordingSegment) error {
	if seg.ID == "" {
		seg.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recording_segments (id, device_id, path, segment_index, requested_seconds, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		seg.ID, seg.DeviceID, seg.Path, seg.SegmentIndex, seg.RequestedSeconds, seg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to index recording segment: %w", err)
	}

	return nil
}

// SegmentsForDevice returns the most recent segments for a device, newest
// first.
func (s *Store) SegmentsForDevice(ctx context.Context, deviceID string, limit int) ([]models.RecordingSegment, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, device_id, path, segment_index, requested_seconds, created_at
		 FROM recording_segments WHERE device_id = ?
		 ORDER BY created_at DESC LIMIT ?`,
		deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recording segments: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var segments []models.RecordingSegment

	for rows.Next() {
		var seg models.RecordingSegment
		if err := rows.Scan(&seg.ID, &seg.DeviceID, &seg.Path, &seg.SegmentIndex, &seg.RequestedSeconds, &seg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recording segment: %w", err)
		}

		segments = append(segments, seg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return segments, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
