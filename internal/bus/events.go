// Package bus provides the async message bus between the transport adapter
// and the routing engine.
package bus

import (
	"context"
	"time"
)

// MediaKind describes the attachment type of an inbound message.
type MediaKind string

const (
	MediaNone     MediaKind = "none"
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
	MediaOther    MediaKind = "other"
)

// InboundMessage is one message received from the transport. It is consumed
// exactly once by the routing engine and not retained afterwards.
type InboundMessage struct {
	ID        string
	ContactID string // chat JID, stable for the lifetime of a conversation
	PushName  string
	Body      string
	IsStatus  bool // status/broadcast update, dropped before any processing
	MediaKind MediaKind
	Timestamp time.Time

	// Download lazily fetches the raw media payload. Nil when the message
	// carries no media. Fetching is deferred until classification decides
	// the payload is actually persisted.
	Download func(ctx context.Context) ([]byte, error)
}

// HasMedia reports whether the message carries an attachment.
func (m *InboundMessage) HasMedia() bool {
	return m.MediaKind != "" && m.MediaKind != MediaNone
}

// OutboundMessage is a text reply sent back through the transport.
type OutboundMessage struct {
	ContactID string
	Body      string
}
