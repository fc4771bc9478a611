package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// ChannelSource is an in-process Source backed by a Go channel. It serves
// tests and single-binary deployments where no broker is configured; its
// Publish method lets the webhook side feed the same channel directly.
type ChannelSource struct {
	ch chan ConsumerMessage
}

// NewChannelSource creates an in-process change event source.
func NewChannelSource() *ChannelSource {
	return &ChannelSource{ch: make(chan ConsumerMessage, 100)}
}

// Start is a no-op for the channel source.
func (s *ChannelSource) Start(_ context.Context) error { return nil }

// Messages returns the message channel.
func (s *ChannelSource) Messages() <-chan ConsumerMessage { return s.ch }

// Close closes the channel.
func (s *ChannelSource) Close() error {
	close(s.ch)
	return nil
}

// Send pushes a message into the source.
func (s *ChannelSource) Send(msg ConsumerMessage) {
	s.ch <- msg
}

// Publish encodes a change event into the channel, blocking until the
// consumer side has room or the context ends.
func (s *ChannelSource) Publish(ctx context.Context, msg Message) (string, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode change event: %w", err)
	}

	id := uuid.NewString()
	record := ConsumerMessage{
		Key:   []byte(strconv.FormatInt(msg.RepositoryID, 10)),
		Value: data,
	}

	select {
	case s.ch <- record:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
