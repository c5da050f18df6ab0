// Package ingest feeds reports published on a Redis pub/sub channel into the
// inbound pipeline.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yari4ek89/siverbotv2/internal/logger"
	"github.com/yari4ek89/siverbotv2/internal/pipeline"
)

const (
	defaultReconnectDelay      = time.Second
	maxReconnectDelay          = 60 * time.Second
	reconnectBackoffMultiplier = 2
	transportName              = "redis"
)

// ErrInvalidMessage is returned for payloads that are not a usable report.
var ErrInvalidMessage = errors.New("invalid ingest message")

// Message is the JSON payload published on the ingest channel.
type Message struct {
	Source    string     `json:"source"`
	Text      string     `json:"text"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Handler receives decoded reports.
type Handler interface {
	Handle(ctx context.Context, in pipeline.Inbound) (pipeline.Decision, error)
}

// Subscriber listens on one channel and hands every message to the handler
// in arrival order.
type Subscriber struct {
	client         *redis.Client
	channel        string
	handler        Handler
	log            logger.Logger
	reconnectDelay time.Duration
}

// NewSubscriber creates a subscriber.
func NewSubscriber(client *redis.Client, channel string, handler Handler, log logger.Logger) *Subscriber {
	if log == nil {
		log = logger.NewNop()
	}
	return &Subscriber{
		client:         client,
		channel:        channel,
		handler:        handler,
		log:            log.With(logger.Component("ingest"), logger.String("channel", channel)),
		reconnectDelay: defaultReconnectDelay,
	}
}

// Decode parses and validates one payload.
func Decode(payload string) (pipeline.Inbound, error) {
	var m Message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return pipeline.Inbound{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if strings.TrimSpace(m.Source) == "" || strings.TrimSpace(m.Text) == "" {
		return pipeline.Inbound{}, fmt.Errorf("%w: source and text are required", ErrInvalidMessage)
	}
	in := pipeline.Inbound{Source: m.Source, Text: m.Text, Transport: transportName}
	if m.Timestamp != nil {
		in.At = m.Timestamp.UTC()
	}
	return in, nil
}

// Run subscribes and processes messages until ctx is done, resubscribing
// with exponential backoff when the connection drops.
func (s *Subscriber) Run(ctx context.Context) error {
	delay := s.reconnectDelay
	for {
		err := s.listen(ctx)
		if ctx.Err() != nil {
			s.log.Info("Ingest subscriber stopped")
			return nil
		}
		s.log.Warn("Ingest subscription lost", logger.Error(err), logger.Duration("retry_in", delay))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*reconnectBackoffMultiplier, maxReconnectDelay)
	}
}

func (s *Subscriber) listen(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.log.Info("Ingest subscriber listening")

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		s.handle(ctx, msg.Payload)
	}
}

func (s *Subscriber) handle(ctx context.Context, payload string) {
	in, err := Decode(payload)
	if err != nil {
		s.log.Warn("Ignoring ingest message", logger.Error(err))
		return
	}
	if _, err := s.handler.Handle(ctx, in); err != nil {
		s.log.Error("Ingest message not processed", logger.String("source", in.Source), logger.Error(err))
	}
}
