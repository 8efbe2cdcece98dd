// Package messaging provides pluggable chat transport implementations.
//
// A Service delivers outbound text (optionally with a selection menu) and
// feeds inbound user activity back as a stream of events. Send failures are
// classified so the retry layer can tell a flaky network from a request the
// transport will never accept.
package messaging

import (
	"context"
	"time"

	"github.com/hustleforge/hustleforge/internal/models"
)

// Channel sizing shared by transport implementations.
const (
	// DefaultChannelBufferSize defines the buffer size for the event channel.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds non-blocking channel writes before an
	// inbound event is dropped.
	DefaultChannelTimeout = 1 * time.Second
)

// Service defines a pluggable chat transport.
type Service interface {
	// SendText delivers text to a chat, optionally attaching a selection
	// menu. Errors are wrapped with models.Transient when retrying makes
	// sense.
	SendText(ctx context.Context, chatID string, text string, menu *models.Menu) error

	// SetMenuButton resets the transport's persistent chat menu button.
	// Best effort; transports without the concept return nil.
	SetMenuButton(ctx context.Context, chatID string) error

	// Start begins background event processing (e.g., long polling).
	Start(ctx context.Context) error

	// Stop stops background event processing. Inbound events arriving
	// during or after shutdown may be dropped.
	Stop() error

	// Events returns the stream of inbound user events.
	Events() <-chan models.Event
}
