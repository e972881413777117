// Package kafka publishes committed ledger events.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"

	"github.com/Jay-S9/backend-foundation/internal/ledger"
	"github.com/Jay-S9/backend-foundation/pkg/logger"
)

// Config holds producer and circuit breaker settings
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	// BatchTimeout caps how long a write waits for more messages before
	// flushing; kafka-go's own default is a full second.
	BatchTimeout time.Duration

	// Breaker opens after this many consecutive failures and stays open
	// for OpenTimeout before letting a probe through.
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

func (c Config) withDefaults() Config {
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.BatchTimeout == 0 {
		c.BatchTimeout = 10 * time.Millisecond
	}
	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = 5
	}
	if c.OpenTimeout == 0 {
		c.OpenTimeout = 30 * time.Second
	}
	return c
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements ledger.EventPublisher. Messages are keyed by account
// so all of an account's events land on one partition; consumers order
// them by version.
type Publisher struct {
	writer  messageWriter
	breaker *gobreaker.CircuitBreaker
	logger  *logger.Logger
}

// NewPublisher creates a publisher writing to cfg.Topic
func NewPublisher(cfg Config, log *logger.Logger) *Publisher {
	cfg = cfg.withDefaults()
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.WriteTimeout,
		BatchSize:    1,
		BatchTimeout: cfg.BatchTimeout,
	}
	return newPublisher(w, cfg, log)
}

func newPublisher(w messageWriter, cfg Config, log *logger.Logger) *Publisher {
	cfg = cfg.withDefaults()
	log = log.WithField("component", "kafka_publisher")

	settings := gobreaker.Settings{
		Name:        "kafka-" + cfg.Topic,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &Publisher{
		writer:  w,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  log,
	}
}

// Publish writes ev, failing fast while the breaker is open.
func (p *Publisher) Publish(ctx context.Context, ev ledger.Event) error {
	msg, err := encode(ev)
	if err != nil {
		return err
	}

	_, err = p.breaker.Execute(func() (any, error) {
		return nil, p.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("event publishing suspended: %w", err)
		}
		return fmt.Errorf("failed to publish %s event: %w", ev.Type, err)
	}
	return nil
}

// State reports the breaker state for diagnostics.
func (p *Publisher) State() gobreaker.State {
	return p.breaker.State()
}

// Close flushes and closes the writer
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func encode(ev ledger.Event) (kafka.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	return kafka.Message{
		Key:   []byte(ev.AccountID),
		Value: data,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "event_id", Value: []byte(ev.ID.String())},
		},
	}, nil
}
