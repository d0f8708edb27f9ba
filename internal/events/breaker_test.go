package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, Event) error {
	f.calls++
	return errors.New("broker down")
}

func (f *failingPublisher) Close() error { return nil }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &failingPublisher{}
	p := WithBreaker(inner, "test", BreakerConfig{MaxFailures: 3, Timeout: time.Minute}, zap.NewNop())

	for i := 0; i < 3; i++ {
		if err := p.Publish(context.Background(), New(MessageCreated, "k", nil)); err == nil {
			t.Fatalf("expected failure on call %d", i)
		}
	}
	if p.State() != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %s", p.State())
	}
	err := p.Publish(context.Background(), New(MessageCreated, "k", nil))
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState, got %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("expected inner publisher skipped while open, got %d calls", inner.calls)
	}
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	if err := p.Publish(context.Background(), New(MessagesRead, "k", nil)); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}
