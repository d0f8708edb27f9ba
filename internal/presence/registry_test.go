package presence

import "testing"

func TestJoinLeave(t *testing.T) {
	r := NewRegistry()
	r.Join("c1", "alice", "user_alice", "notifications_alice")
	r.Join("c2", "alice", "user_alice", "notifications_alice")
	r.Join("c3", "bob", "user_bob")

	if got := r.Count("user_alice"); got != 2 {
		t.Errorf("expected 2 members, got %d", got)
	}
	if got := r.Members("user_alice"); len(got) != 2 || got[0] != "c1" || got[1] != "c2" {
		t.Errorf("unexpected members %v", got)
	}

	e, ok := r.Leave("c1")
	if !ok || e.UserID != "alice" || len(e.Rooms) != 2 {
		t.Fatalf("unexpected leave entry %+v", e)
	}
	if got := r.Count("user_alice"); got != 1 {
		t.Errorf("expected 1 member after leave, got %d", got)
	}

	r.Leave("c2")
	if got := r.Count("notifications_alice"); got != 0 {
		t.Errorf("expected empty room, got %d", got)
	}
	if _, ok := r.Leave("c2"); ok {
		t.Errorf("expected second leave to report missing")
	}
	if r.Connections() != 1 {
		t.Errorf("expected 1 live connection, got %d", r.Connections())
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Join("c1", "alice", "user_alice")
	r.Join("c1", "alice", "user_alice", "notifications_alice")

	e, ok := r.Entry("c1")
	if !ok {
		t.Fatal("expected entry")
	}
	if len(e.Rooms) != 2 {
		t.Errorf("expected 2 rooms, got %v", e.Rooms)
	}
	if r.Count("user_alice") != 1 {
		t.Errorf("expected single membership")
	}
}

func TestEntryIsACopy(t *testing.T) {
	r := NewRegistry()
	r.Join("c1", "alice", "user_alice")
	e, _ := r.Entry("c1")
	e.Rooms[0] = "tampered"
	if got := r.Members("user_alice"); len(got) != 1 {
		t.Errorf("registry mutated through copy: %v", got)
	}
	again, _ := r.Entry("c1")
	if again.Rooms[0] != "user_alice" {
		t.Errorf("expected original room, got %s", again.Rooms[0])
	}
}
