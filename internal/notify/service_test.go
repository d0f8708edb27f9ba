package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fathima-sithara/realtime-service/internal/domain"
	"github.com/fathima-sithara/realtime-service/internal/protocol"
	"github.com/fathima-sithara/realtime-service/internal/repository"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type recordingEmitter struct {
	mu    sync.Mutex
	rooms []string
	fail  bool
}

func (e *recordingEmitter) EmitToRoom(_ context.Context, room string, ev protocol.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rooms = append(e.rooms, room)
	if e.fail {
		return errors.New("socket layer down")
	}
	return nil
}

type failingStore struct {
	*repository.MemoryNotificationStore
}

func (failingStore) Create(context.Context, *domain.Notification) error {
	return domain.ErrPersistence
}

func TestNotifyPersistsThenPushesToBothRooms(t *testing.T) {
	store := repository.NewMemoryNotificationStore()
	em := &recordingEmitter{}
	svc := NewService(store, em, nil, nil, zap.NewNop())

	n, err := svc.Notify(context.Background(), Request{UserID: "u1", Kind: domain.KindSystem, Title: "Hi", Body: "Welcome"})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if n.ID == "" || n.Read {
		t.Errorf("unexpected notification %+v", n)
	}
	if len(em.rooms) != 2 || em.rooms[0] != "notifications_u1" || em.rooms[1] != "user_u1" {
		t.Errorf("unexpected rooms %v", em.rooms)
	}
	count, _ := store.CountUnread(context.Background(), "u1")
	if count != 1 {
		t.Errorf("expected persisted notification, got %d", count)
	}
}

func TestNotifyPersistenceFailureAbortsPush(t *testing.T) {
	em := &recordingEmitter{}
	svc := NewService(failingStore{repository.NewMemoryNotificationStore()}, em, nil, nil, zap.NewNop())

	_, err := svc.Notify(context.Background(), Request{UserID: "u1", Kind: domain.KindSystem, Title: "Hi", Body: "x"})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if len(em.rooms) != 0 {
		t.Errorf("expected no push, got %v", em.rooms)
	}
}

func TestNotifyPushFailureIsNotAnError(t *testing.T) {
	em := &recordingEmitter{fail: true}
	svc := NewService(repository.NewMemoryNotificationStore(), em, nil, nil, zap.NewNop())
	if _, err := svc.Notify(context.Background(), Request{UserID: "u1", Kind: domain.KindSystem, Title: "Hi", Body: "x"}); err != nil {
		t.Errorf("expected success despite push failure, got %v", err)
	}
}

func TestNotifyValidation(t *testing.T) {
	svc := NewService(repository.NewMemoryNotificationStore(), &recordingEmitter{}, nil, nil, zap.NewNop())
	tests := []Request{
		{Kind: domain.KindSystem, Title: "t", Body: "b"},
		{UserID: "u", Kind: "party", Title: "t", Body: "b"},
		{UserID: "u", Kind: domain.KindSystem, Body: "b"},
		{UserID: "u", Kind: domain.KindSystem, Title: "t", Body: "  "},
	}
	for i, req := range tests {
		if _, err := svc.Notify(context.Background(), req); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestKindHelpers(t *testing.T) {
	svc := NewService(repository.NewMemoryNotificationStore(), &recordingEmitter{}, nil, nil, zap.NewNop())
	ctx := context.Background()

	n, err := svc.OfferReceived(ctx, "client", "Ravi", "Fix sink", 1500)
	if err != nil {
		t.Fatal(err)
	}
	if n.Kind != domain.KindOfferReceived || n.Body != `Ravi made an offer of ₹1500 for "Fix sink"` {
		t.Errorf("unexpected offer notification %q", n.Body)
	}

	long := strings.Repeat("a", 60)
	n, err = svc.ChatMessage(ctx, "bob", "Alice", long)
	if err != nil {
		t.Fatal(err)
	}
	want := "Alice: " + strings.Repeat("a", 50) + "..."
	if n.Body != want {
		t.Errorf("expected %q, got %q", want, n.Body)
	}
	n, _ = svc.ChatMessage(ctx, "bob", "Alice", "short")
	if n.Body != "Alice: short" {
		t.Errorf("expected untruncated preview, got %q", n.Body)
	}

	n, _ = svc.PaymentReceived(ctx, "f", "Client", 99.5, "Paint")
	if n.Body != `You received ₹99.5 from Client for "Paint"` {
		t.Errorf("unexpected payment body %q", n.Body)
	}
}

type fakeNotifier struct {
	calls int
	errs  []error
}

func (f *fakeNotifier) Notify(_ context.Context, req Request) (*domain.Notification, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &domain.Notification{ID: "n", UserID: req.UserID}, nil
}

type fakeWriter struct{ msgs []kafka.Message }

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

const validRequest = `{"userId":"u1","type":"job_assigned","title":"Job Assigned","message":"You got it"}`

func TestConsumerRetriesThenSucceeds(t *testing.T) {
	svc := &fakeNotifier{errs: []error{domain.ErrPersistence, domain.ErrPersistence}}
	dlq := &fakeWriter{}
	c := newConsumer(nil, dlq, svc, 3, time.Millisecond, zap.NewNop())

	if err := c.Handle(context.Background(), kafka.Message{Value: []byte(validRequest)}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if svc.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", svc.calls)
	}
	if len(dlq.msgs) != 0 {
		t.Errorf("expected nothing dead-lettered")
	}
}

func TestConsumerDeadLettersAfterRetries(t *testing.T) {
	svc := &fakeNotifier{errs: []error{domain.ErrPersistence, domain.ErrPersistence, domain.ErrPersistence}}
	dlq := &fakeWriter{}
	c := newConsumer(nil, dlq, svc, 2, time.Millisecond, zap.NewNop())

	if err := c.Handle(context.Background(), kafka.Message{Value: []byte(validRequest)}); err != nil {
		t.Fatalf("expected dead-lettering to absorb the error, got %v", err)
	}
	if svc.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", svc.calls)
	}
	if len(dlq.msgs) != 1 {
		t.Fatalf("expected one dead letter, got %d", len(dlq.msgs))
	}
}

func TestConsumerInvalidRequestsSkipRetries(t *testing.T) {
	svc := &fakeNotifier{errs: []error{domain.ErrValidation}}
	dlq := &fakeWriter{}
	c := newConsumer(nil, dlq, svc, 5, time.Millisecond, zap.NewNop())

	_ = c.Handle(context.Background(), kafka.Message{Value: []byte(validRequest)})
	if svc.calls != 1 {
		t.Errorf("expected a single attempt, got %d", svc.calls)
	}
	_ = c.Handle(context.Background(), kafka.Message{Value: []byte("{broken")})
	if len(dlq.msgs) != 2 {
		t.Errorf("expected both bad records dead-lettered, got %d", len(dlq.msgs))
	}
}
