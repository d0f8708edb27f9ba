package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fathima-sithara/realtime-service/internal/domain"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type notifier interface {
	Notify(ctx context.Context, req Request) (*domain.Notification, error)
}

type ConsumerConfig struct {
	Brokers    []string
	Topic      string
	GroupID    string
	DLQTopic   string
	MaxRetries int
	Backoff    time.Duration
}

// Consumer turns notification requests published by other services into
// pushed notifications. Records that keep failing go to the dead letter topic.
type Consumer struct {
	reader     messageReader
	dlq        messageWriter
	svc        notifier
	maxRetries int
	backoff    time.Duration
	log        *zap.Logger
}

func NewConsumer(cfg ConsumerConfig, svc notifier, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	var dlq messageWriter
	if cfg.DLQTopic != "" {
		dlq = &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.DLQTopic,
			Balancer: &kafka.LeastBytes{},
		}
	}
	return newConsumer(r, dlq, svc, cfg.MaxRetries, cfg.Backoff, log)
}

func newConsumer(r messageReader, dlq messageWriter, svc notifier, maxRetries int, b time.Duration, log *zap.Logger) *Consumer {
	if b <= 0 {
		b = 200 * time.Millisecond
	}
	return &Consumer{reader: r, dlq: dlq, svc: svc, maxRetries: maxRetries, backoff: b, log: log}
}

// Start consumes until ctx is cancelled. Offsets are committed after each
// record is handled, so a crash replays at most the record in flight.
func (c *Consumer) Start(ctx context.Context) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("kafka fetch error", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		if err := c.Handle(ctx, m); err != nil {
			c.log.Error("notification request dropped", zap.Int64("offset", m.Offset), zap.Error(err))
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.log.Warn("kafka commit error", zap.Error(err))
		}
	}
}

// Handle processes one record with exponential backoff. Malformed or invalid
// requests go straight to the dead letter topic.
func (c *Consumer) Handle(ctx context.Context, m kafka.Message) error {
	var req Request
	if err := json.Unmarshal(m.Value, &req); err != nil {
		return c.deadLetter(ctx, m, fmt.Errorf("decode request: %w", err))
	}

	op := func() error {
		_, err := c.svc.Notify(ctx, req)
		if errors.Is(err, domain.ErrValidation) {
			return backoff.Permanent(err)
		}
		return err
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.backoff
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.maxRetries)), ctx)

	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		c.log.Warn("notification attempt failed", zap.String("user_id", req.UserID), zap.Duration("retry_in", wait), zap.Error(err))
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return c.deadLetter(ctx, m, err)
}

func (c *Consumer) deadLetter(ctx context.Context, m kafka.Message, cause error) error {
	if c.dlq == nil {
		return cause
	}
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Key:   m.Key,
		Value: m.Value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "error", Value: []byte(cause.Error())},
		},
	})
	if err != nil {
		return fmt.Errorf("dlq push failed: %v: %w", err, cause)
	}
	c.log.Warn("notification request dead-lettered", zap.Error(cause))
	return nil
}

func (c *Consumer) Close() error {
	if w, ok := c.dlq.(*kafka.Writer); ok {
		_ = w.Close()
	}
	return c.reader.Close()
}
