package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/fathima-sithara/realtime-service/internal/domain"
	"github.com/fathima-sithara/realtime-service/internal/protocol"
	"github.com/fathima-sithara/realtime-service/internal/repository"
	"go.uber.org/zap"
)

type emission struct {
	room  string
	name  string
	event protocol.Event
}

type fakeEmitter struct {
	mu  sync.Mutex
	out []emission
}

func (f *fakeEmitter) EmitToRoom(_ context.Context, room string, ev protocol.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if me, ok := ev.(protocol.MessageEvent); ok {
		cp := *me.Message
		ev = protocol.MessageEvent{Name: me.Name, Message: &cp}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, emission{room: room, name: ev.EventName(), event: ev})
	return nil
}

func (f *fakeEmitter) to(room string) []emission {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emission
	for _, e := range f.out {
		if e.room == room {
			out = append(out, e)
		}
	}
	return out
}

type fakePresence map[string]bool

func (p fakePresence) RoomActive(_ context.Context, room string) (bool, error) {
	return p[room], nil
}

type fixture struct {
	svc      *Service
	store    *repository.MemoryMessageStore
	emitter  *fakeEmitter
	presence fakePresence
}

func newFixture() *fixture {
	store := repository.NewMemoryMessageStore()
	users := repository.NewMemoryUserDirectory(
		&domain.User{ID: "alice"}, &domain.User{ID: "bob"}, &domain.User{ID: "carol"},
	)
	em := &fakeEmitter{}
	pr := fakePresence{}
	return &fixture{
		svc:      NewService(store, users, em, pr, zap.NewNop()),
		store:    store,
		emitter:  em,
		presence: pr,
	}
}

func TestSendValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tests := []struct {
		name string
		in   SendInput
		want error
	}{
		{"empty body", SendInput{RecipientID: "bob", Body: ""}, domain.ErrValidation},
		{"blank body", SendInput{RecipientID: "bob", Body: "   "}, domain.ErrValidation},
		{"too long", SendInput{RecipientID: "bob", Body: strings.Repeat("x", 1001)}, domain.ErrValidation},
		{"missing recipient", SendInput{Body: "hi"}, domain.ErrValidation},
		{"self", SendInput{RecipientID: "alice", Body: "hi"}, domain.ErrValidation},
		{"unknown recipient", SendInput{RecipientID: "ghost", Body: "hi"}, domain.ErrRecipientNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Send(ctx, "alice", tt.in); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	msgs, _ := f.store.ListConversation(ctx, "alice", "bob")
	if len(msgs) != 0 {
		t.Errorf("expected nothing persisted, got %d", len(msgs))
	}
	if len(f.emitter.out) != 0 {
		t.Errorf("expected no emissions, got %d", len(f.emitter.out))
	}
}

func TestSendPersistsTrimmedAsSent(t *testing.T) {
	f := newFixture()
	msg, err := f.svc.Send(context.Background(), "alice", SendInput{RecipientID: "bob", Body: "  hello  ", ClientMessageID: "c-1"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.Status != domain.StatusSent || msg.Body != "hello" || msg.ClientMessageID != "c-1" {
		t.Errorf("unexpected message %+v", msg)
	}
	stored, err := f.store.Get(context.Background(), msg.ID)
	if err != nil || stored.Status != domain.StatusSent {
		t.Errorf("expected stored sent message, got %+v (%v)", stored, err)
	}
}

func TestDeliverLiveRecipientOffline(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	msg, _ := f.svc.Send(ctx, "alice", SendInput{RecipientID: "bob", Body: "hi"})

	final := f.svc.DeliverLive(ctx, msg)
	if final.Status != domain.StatusSent {
		t.Errorf("expected sent, got %s", final.Status)
	}
	toAlice := f.emitter.to("user_alice")
	if len(toAlice) != 1 || toAlice[0].name != protocol.TypeMessageSent {
		t.Fatalf("expected one message_sent to sender, got %+v", toAlice)
	}
	toBob := f.emitter.to("user_bob")
	if len(toBob) != 1 || toBob[0].name != protocol.TypeNewMessage {
		t.Fatalf("expected one new_message to recipient, got %+v", toBob)
	}
}

func TestDeliverLiveRecipientOnlinePromotes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.presence["user_bob"] = true
	msg, _ := f.svc.Send(ctx, "alice", SendInput{RecipientID: "bob", Body: "hi"})

	final := f.svc.DeliverLive(ctx, msg)
	if final.Status != domain.StatusDelivered {
		t.Fatalf("expected delivered, got %s", final.Status)
	}
	stored, _ := f.store.Get(ctx, msg.ID)
	if stored.Status != domain.StatusDelivered {
		t.Errorf("expected stored delivered, got %s", stored.Status)
	}

	toAlice := f.emitter.to("user_alice")
	if len(toAlice) != 2 {
		t.Fatalf("expected two confirmations to sender, got %d", len(toAlice))
	}
	first := toAlice[0].event.(protocol.MessageEvent)
	second := toAlice[1].event.(protocol.MessageEvent)
	if first.Status != domain.StatusSent || second.Status != domain.StatusDelivered {
		t.Errorf("expected sent then delivered, got %s then %s", first.Status, second.Status)
	}
	if len(f.emitter.to("user_bob")) != 2 {
		t.Errorf("expected two new_message events to recipient")
	}
	if msg.Status != domain.StatusSent {
		t.Errorf("expected caller's message untouched, got %s", msg.Status)
	}
}

func TestDeliverLiveDoesNotRegressRead(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.presence["user_bob"] = true
	msg, _ := f.svc.Send(ctx, "alice", SendInput{RecipientID: "bob", Body: "hi"})
	if _, err := f.svc.MarkRead(ctx, "bob", "alice"); err != nil {
		t.Fatal(err)
	}
	final := f.svc.DeliverLive(ctx, msg)
	stored, _ := f.store.Get(ctx, msg.ID)
	if stored.Status != domain.StatusRead {
		t.Errorf("expected read to stick, got %s", stored.Status)
	}
	if final.Status == domain.StatusDelivered {
		t.Errorf("expected no delivered re-emission after read")
	}
}

func TestHistoryPromotesCounterpartMessages(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	fromAlice, _ := f.svc.Send(ctx, "alice", SendInput{RecipientID: "bob", Body: "one"})
	fromBob, _ := f.svc.Send(ctx, "bob", SendInput{RecipientID: "alice", Body: "two"})

	msgs, err := f.svc.History(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != fromAlice.ID || msgs[1].ID != fromBob.ID {
		t.Fatalf("expected both messages in creation order, got %+v", msgs)
	}
	if msgs[0].Status != domain.StatusDelivered {
		t.Errorf("expected alice's message delivered, got %s", msgs[0].Status)
	}
	if msgs[1].Status != domain.StatusSent {
		t.Errorf("expected bob's own message untouched, got %s", msgs[1].Status)
	}
	toAlice := f.emitter.to("user_alice")
	if len(toAlice) != 1 || toAlice[0].event.(protocol.MessageEvent).Status != domain.StatusDelivered {
		t.Errorf("expected sender told about delivery, got %+v", toAlice)
	}
}

func TestHistoryUnknownCounterpart(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.History(context.Background(), "alice", "ghost"); !errors.Is(err, domain.ErrRecipientNotFound) {
		t.Errorf("expected ErrRecipientNotFound, got %v", err)
	}
	if _, err := f.svc.History(context.Background(), "alice", ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestMarkRead(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = f.svc.Send(ctx, "alice", SendInput{RecipientID: "bob", Body: "hi"})
	}
	_, _ = f.svc.Send(ctx, "carol", SendInput{RecipientID: "bob", Body: "hey"})

	n, err := f.svc.MarkRead(ctx, "bob", "alice")
	if err != nil || n != 3 {
		t.Fatalf("expected 3 read, got %d (%v)", n, err)
	}
	toAlice := f.emitter.to("user_alice")
	if len(toAlice) != 1 {
		t.Fatalf("expected one messages_read, got %d", len(toAlice))
	}
	ev := toAlice[0].event.(protocol.MessagesRead)
	if ev.RecipientID != "bob" || ev.Count != 3 {
		t.Errorf("unexpected event %+v", ev)
	}

	carol, _ := f.store.Find(ctx, repository.StatusFilter{SenderID: "carol"})
	if carol[0].Status != domain.StatusSent {
		t.Errorf("expected other sender untouched, got %s", carol[0].Status)
	}

	n, err = f.svc.MarkRead(ctx, "bob", "alice")
	if err != nil || n != 0 {
		t.Errorf("expected idempotent zero, got %d (%v)", n, err)
	}
	if _, err := f.svc.MarkRead(ctx, "bob", ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestPromotePending(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, _ = f.svc.Send(ctx, "alice", SendInput{RecipientID: "bob", Body: "1"})
	_, _ = f.svc.Send(ctx, "carol", SendInput{RecipientID: "bob", Body: "2"})
	_, _ = f.svc.Send(ctx, "bob", SendInput{RecipientID: "alice", Body: "3"})

	n, err := f.svc.PromotePending(ctx, "bob")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 promoted, got %d (%v)", n, err)
	}
	if len(f.emitter.to("user_alice")) != 1 || len(f.emitter.to("user_carol")) != 1 {
		t.Errorf("expected each sender notified once")
	}
	n, _ = f.svc.PromotePending(ctx, "bob")
	if n != 0 {
		t.Errorf("expected nothing left to promote, got %d", n)
	}
}

func TestTyping(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if err := f.svc.Typing(ctx, "alice", "bob", true); err != nil {
		t.Fatal(err)
	}
	toBob := f.emitter.to("user_bob")
	if len(toBob) != 1 {
		t.Fatalf("expected typing relayed, got %d", len(toBob))
	}
	ev := toBob[0].event.(protocol.UserTyping)
	if ev.UserID != "alice" || !ev.IsTyping {
		t.Errorf("unexpected event %+v", ev)
	}
	if len(f.emitter.to("user_alice")) != 0 {
		t.Errorf("expected sender excluded")
	}
	if err := f.svc.Typing(ctx, "alice", "", true); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestAnnounceFallback(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.presence["user_bob"] = true
	msg, _ := f.svc.Send(ctx, "alice", SendInput{RecipientID: "bob", Body: "via rest"})
	f.svc.AnnounceFallback(ctx, msg)

	stored, _ := f.store.Get(ctx, msg.ID)
	if stored.Status != domain.StatusSent {
		t.Errorf("expected no promotion on fallback path, got %s", stored.Status)
	}
	if len(f.emitter.to("user_bob")) != 1 || len(f.emitter.to("user_alice")) != 1 {
		t.Errorf("expected one event to each room")
	}
}
