package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fathima-sithara/realtime-service/internal/domain"
	"github.com/google/uuid"
)

// MemoryMessageStore keeps messages in process. Used for tests and the
// memory runtime profile.
type MemoryMessageStore struct {
	mu    sync.RWMutex
	msgs  []*domain.Message
	byID  map[string]*domain.Message
	clock func() time.Time
}

func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{
		byID:  make(map[string]*domain.Message),
		clock: func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryMessageStore) Create(_ context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.clock()
	}
	cp := *m
	s.msgs = append(s.msgs, &cp)
	s.byID[cp.ID] = &cp
	return nil
}

func (s *MemoryMessageStore) Get(_ context.Context, id string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryMessageStore) ListConversation(_ context.Context, userA, userB string) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*domain.Message{}
	for _, m := range s.msgs {
		if (m.SenderID == userA && m.RecipientID == userB) || (m.SenderID == userB && m.RecipientID == userA) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *MemoryMessageStore) Find(_ context.Context, f StatusFilter) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*domain.Message{}
	for _, m := range s.msgs {
		if matches(m, f, f.Statuses) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *MemoryMessageStore) UpdateStatus(_ context.Context, f StatusFilter, status domain.Status) (int64, error) {
	statuses := f.guarded(status)
	if len(statuses) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	var n int64
	for _, m := range s.msgs {
		if !matches(m, f, statuses) {
			continue
		}
		m.Status = status
		if status == domain.StatusRead {
			t := now
			m.ReadAt = &t
		}
		n++
	}
	return n, nil
}

func matches(m *domain.Message, f StatusFilter, statuses []domain.Status) bool {
	if f.SenderID != "" && m.SenderID != f.SenderID {
		return false
	}
	if f.RecipientID != "" && m.RecipientID != f.RecipientID {
		return false
	}
	if len(f.IDs) > 0 && !containsString(f.IDs, m.ID) {
		return false
	}
	if len(statuses) > 0 {
		ok := false
		for _, s := range statuses {
			if m.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func sortByCreated(msgs []*domain.Message) {
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
}

// MemoryUserDirectory is a fixed set of known users.
type MemoryUserDirectory struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

func NewMemoryUserDirectory(users ...*domain.User) *MemoryUserDirectory {
	d := &MemoryUserDirectory{users: make(map[string]*domain.User)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *MemoryUserDirectory) Add(u *domain.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *MemoryUserDirectory) Exists(_ context.Context, id string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.users[id]
	return ok, nil
}

func (d *MemoryUserDirectory) Get(_ context.Context, id string) (*domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// MemoryNotificationStore keeps notifications in process.
type MemoryNotificationStore struct {
	mu    sync.RWMutex
	items []*domain.Notification
	clock func() time.Time
}

func NewMemoryNotificationStore() *MemoryNotificationStore {
	return &MemoryNotificationStore{clock: func() time.Time { return time.Now().UTC() }}
}

func (s *MemoryNotificationStore) Create(_ context.Context, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.clock()
	}
	cp := *n
	s.items = append(s.items, &cp)
	return nil
}

func (s *MemoryNotificationStore) List(_ context.Context, userID string, q NotificationQuery) ([]*domain.Notification, int64, error) {
	q = q.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := []*domain.Notification{}
	for i := len(s.items) - 1; i >= 0; i-- {
		n := s.items[i]
		if n.UserID != userID || (q.UnreadOnly && n.Read) {
			continue
		}
		cp := *n
		matched = append(matched, &cp)
	}
	total := int64(len(matched))
	start := (q.Page - 1) * q.Limit
	if start >= len(matched) {
		return []*domain.Notification{}, total, nil
	}
	end := start + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (s *MemoryNotificationStore) CountUnread(_ context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, it := range s.items {
		if it.UserID == userID && !it.Read {
			n++
		}
	}
	return n, nil
}

func (s *MemoryNotificationStore) MarkRead(_ context.Context, userID, id string) (*domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.ID == id && it.UserID == userID {
			if !it.Read {
				now := s.clock()
				it.Read = true
				it.ReadAt = &now
			}
			cp := *it
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *MemoryNotificationStore) MarkAllRead(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	var n int64
	for _, it := range s.items {
		if it.UserID == userID && !it.Read {
			t := now
			it.Read = true
			it.ReadAt = &t
			n++
		}
	}
	return n, nil
}

func (s *MemoryNotificationStore) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, it := range s.items {
		if it.ID == id && it.UserID == userID {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}
