package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/embedhq/codevec/internal/domain"
)

const messageIDHeader = "message_id"

// Publisher writes change events to a Kafka topic. Messages are keyed by
// repository id so each repository's events stay ordered within a partition.
type Publisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// PublisherConfig holds the Kafka producer settings.
type PublisherConfig struct {
	Brokers string // comma-separated bootstrap servers
	Topic   string
	Logger  *zap.Logger
}

// NewPublisher creates a Kafka publisher for change events.
func NewPublisher(cfg *PublisherConfig) *Publisher {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(strings.Split(cfg.Brokers, ",")...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
		logger: logger,
	}
}

// Publish sends one change event and returns its assigned message id.
func (p *Publisher) Publish(ctx context.Context, msg Message) (string, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode change event: %w", err)
	}

	id := uuid.NewString()
	record := kafka.Message{
		Key:   []byte(strconv.FormatInt(msg.RepositoryID, 10)),
		Value: data,
		Headers: []kafka.Header{
			{Key: messageIDHeader, Value: []byte(id)},
		},
		Time: time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, record); err != nil {
		return "", fmt.Errorf("publish change event: %w: %w", domain.ErrUnavailable, err)
	}

	p.logger.Debug("Change event published",
		zap.String("message_id", id),
		zap.String("event_type", string(msg.EventType)),
		zap.Int64("repository_id", msg.RepositoryID))

	return id, nil
}

// Close flushes and closes the producer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// KafkaSource consumes change events through a Kafka consumer group.
type KafkaSource struct {
	reader   *kafka.Reader
	messages chan ConsumerMessage
	logger   *zap.Logger
}

// SourceConfig holds the Kafka consumer settings.
type SourceConfig struct {
	Brokers string
	Topic   string
	GroupID string
	Logger  *zap.Logger
}

// NewKafkaSource creates a consumer-group source for change events.
func NewKafkaSource(cfg *SourceConfig) *KafkaSource {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &KafkaSource{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  strings.Split(cfg.Brokers, ","),
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		messages: make(chan ConsumerMessage, 100),
		logger:   logger,
	}
}

// Start launches the read loop. The messages channel is closed when the
// loop exits, after Close or context cancellation.
func (s *KafkaSource) Start(ctx context.Context) error {
	go func() {
		defer close(s.messages)
		for {
			msg, err := s.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
					return
				}
				s.logger.Warn("Change event read failed", zap.Error(err))
				continue
			}
			select {
			case s.messages <- ConsumerMessage{Key: msg.Key, Value: msg.Value}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Messages returns the channel of consumed change events.
func (s *KafkaSource) Messages() <-chan ConsumerMessage {
	return s.messages
}

// Close stops the reader; the read loop then closes the messages channel.
func (s *KafkaSource) Close() error {
	return s.reader.Close()
}
