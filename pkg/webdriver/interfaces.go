package webdriver

import (
	"context"
	"time"
)

// Conn is one live automation connection to a device. Implementations are
// not safe for concurrent command issue; callers sequence commands per
// device themselves.
type Conn interface {
	SessionID() string
	Close(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
	Source(ctx context.Context) (string, error)
	StartRecording(ctx context.Context, opts RecordingOptions) error
	StopRecording(ctx context.Context) ([]byte, error)
	Tap(ctx context.Context, x, y int) error
	Swipe(ctx context.Context, startX, startY, endX, endY int, duration time.Duration) error
	InputText(ctx context.Context, text string) error
}

// Dialer opens new automation sessions. *Client implements it; tests swap in
// fakes.
type Dialer interface {
	NewSession(ctx context.Context, capabilities map[string]any) (Conn, error)
}
