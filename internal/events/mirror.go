// Package events mirrors broadcast chat frames onto a Watermill publisher so
// processes other than the server can follow sessions.
package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
)

// MetadataSessionID is the message metadata key carrying the session id.
const MetadataSessionID = "session_id"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "sessions"

// Mirror publishes every frame of a session to "<prefix>.<session id>".
// It satisfies ws.FramePublisher.
type Mirror struct {
	publisher message.Publisher
	prefix    string
}

// NewMirror creates a Mirror over publisher.
func NewMirror(publisher message.Publisher, prefix string) *Mirror {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &Mirror{publisher: publisher, prefix: prefix}
}

// Topic returns the topic frames of sessionID are published to.
func (m *Mirror) Topic(sessionID string) string {
	return m.prefix + "." + sessionID
}

// Publish sends one encoded frame.
func (m *Mirror) Publish(sessionID string, frame []byte) error {
	msg := message.NewMessage(watermill.NewUUID(), frame)
	msg.Metadata.Set(MetadataSessionID, sessionID)

	if err := m.publisher.Publish(m.Topic(sessionID), msg); err != nil {
		return errors.Wrapf(err, "publish frame for session %s", sessionID)
	}
	return nil
}

// Close closes the underlying publisher.
func (m *Mirror) Close() error {
	return m.publisher.Close()
}
