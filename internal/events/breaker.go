package events

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type BreakerConfig struct {
	MaxFailures uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// BreakerPublisher stops calling a failing broker until the breaker
// half-opens again.
type BreakerPublisher struct {
	next Publisher
	cb   *gobreaker.CircuitBreaker
}

func WithBreaker(next Publisher, name string, cfg BreakerConfig, logger *zap.Logger) *BreakerPublisher {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &BreakerPublisher{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *BreakerPublisher) Publish(ctx context.Context, ev Event) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Publish(ctx, ev)
	})
	return err
}

func (b *BreakerPublisher) Close() error { return b.next.Close() }

func (b *BreakerPublisher) State() gobreaker.State { return b.cb.State() }
