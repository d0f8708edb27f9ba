// Package chatclient is the Go client for the realtime service. It keeps an
// optimistic local view of each conversation and reconciles it with server
// confirmations arriving over the socket or the REST fallback.
package chatclient

import (
	"fmt"
	"sync"
	"time"

	"github.com/fathima-sithara/realtime-service/internal/domain"
	"github.com/google/uuid"
)

// StatusFailed marks a provisional message the server never confirmed. It
// exists only on the client.
const StatusFailed domain.Status = "failed"

// DefaultSoftTimeout is how long a provisional message may wait for its
// confirmation before it is marked failed.
const DefaultSoftTimeout = 5 * time.Second

// Entry is one message in the local view. Provisional entries carry a
// temp_<n> id until the server confirms them.
type Entry struct {
	domain.Message
	Provisional bool
	queuedAt    time.Time
}

// Conversation is the ordered local view of one two-party thread.
type Conversation struct {
	mu          sync.Mutex
	self        string
	peer        string
	entries     []*Entry
	seq         int
	softTimeout time.Duration
	now         func() time.Time
}

func NewConversation(self, peer string) *Conversation {
	return &Conversation{
		self:        self,
		peer:        peer,
		softTimeout: DefaultSoftTimeout,
		now:         time.Now,
	}
}

func (c *Conversation) Peer() string { return c.peer }

func (c *Conversation) belongs(m *domain.Message) bool {
	return (m.SenderID == c.self && m.RecipientID == c.peer) ||
		(m.SenderID == c.peer && m.RecipientID == c.self)
}

// LoadHistory merges a history snapshot into the view. Known messages only
// move forward, a snapshot record carrying a pending clientMessageId
// replaces that provisional entry, and confirmed entries the snapshot lacks
// stay where they are. Unknown records are placed by creation time ahead of
// outstanding provisional entries.
func (c *Conversation) LoadHistory(msgs []*domain.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range msgs {
		if !c.belongs(m) {
			continue
		}
		if e := c.byID(m.ID); e != nil {
			advance(e, m)
			continue
		}
		if e := c.provisionalByClientID(m.ClientMessageID); e != nil {
			e.Message = *m
			e.Provisional = false
			continue
		}
		c.insert(&Entry{Message: *m})
	}
}

func (c *Conversation) insert(e *Entry) {
	at := len(c.entries)
	for i, cur := range c.entries {
		if cur.Provisional || cur.CreatedAt.After(e.CreatedAt) {
			at = i
			break
		}
	}
	c.entries = append(c.entries, nil)
	copy(c.entries[at+1:], c.entries[at:])
	c.entries[at] = e
}

// AddProvisional appends a locally composed message in status sending.
func (c *Conversation) AddProvisional(body string) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	now := c.now()
	e := &Entry{
		Message: domain.Message{
			ID:              fmt.Sprintf("temp_%d", c.seq),
			SenderID:        c.self,
			RecipientID:     c.peer,
			Body:            body,
			Status:          domain.StatusSending,
			ClientMessageID: uuid.NewString(),
			CreatedAt:       now,
		},
		Provisional: true,
		queuedAt:    now,
	}
	c.entries = append(c.entries, e)
	return *e
}

// ApplyConfirmation reconciles a server record of a message this user sent.
// A known id is updated in place. Otherwise the record replaces the matching
// provisional entry, found by clientMessageId, or by sender and body when the
// record has none. Unmatched records are appended.
func (c *Conversation) ApplyConfirmation(m *domain.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.belongs(m) {
		return
	}
	if e := c.byID(m.ID); e != nil {
		advance(e, m)
		return
	}
	if e := c.provisionalFor(m); e != nil {
		e.Message = *m
		e.Provisional = false
		return
	}
	c.entries = append(c.entries, &Entry{Message: *m})
}

// ApplyMessage records a server message by id. Statuses only move forward.
func (c *Conversation) ApplyMessage(m *domain.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.belongs(m) {
		return
	}
	if e := c.byID(m.ID); e != nil {
		advance(e, m)
		return
	}
	c.entries = append(c.entries, &Entry{Message: *m})
}

// ApplyRead marks this user's confirmed messages read after readerID
// opened the thread. It returns how many changed.
func (c *Conversation) ApplyRead(readerID string) int {
	if readerID != c.peer {
		return 0
	}
	return c.markRead(c.self)
}

// markIncomingRead mirrors a local mark-read of the peer's messages.
func (c *Conversation) markIncomingRead() int {
	return c.markRead(c.peer)
}

func (c *Conversation) markRead(sender string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for _, e := range c.entries {
		if e.Provisional || e.SenderID != sender || !e.Status.Before(domain.StatusRead) {
			continue
		}
		t := now
		e.Status = domain.StatusRead
		e.ReadAt = &t
		n++
	}
	return n
}

// Fail marks a provisional entry failed.
func (c *Conversation) Fail(tempID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.byID(tempID)
	if e == nil || !e.Provisional {
		return false
	}
	e.Status = StatusFailed
	return true
}

// Retry puts a failed entry back in sending and returns it for resending.
func (c *Conversation) Retry(tempID string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.byID(tempID)
	if e == nil || !e.Provisional || e.Status != StatusFailed {
		return Entry{}, false
	}
	e.Status = domain.StatusSending
	e.queuedAt = c.now()
	return *e, true
}

// Discard drops a provisional entry.
func (c *Conversation) Discard(tempID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.entries {
		if e.ID == tempID && e.Provisional {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return true
		}
	}
	return false
}

// ExpireProvisional fails every provisional entry still sending after the
// soft timeout and returns their temp ids.
func (c *Conversation) ExpireProvisional(now time.Time) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var expired []string
	for _, e := range c.entries {
		if e.Provisional && e.Status == domain.StatusSending && now.Sub(e.queuedAt) >= c.softTimeout {
			e.Status = StatusFailed
			expired = append(expired, e.ID)
		}
	}
	return expired
}

func (c *Conversation) Messages() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	return out
}

// Pending lists provisional entries still waiting for confirmation.
func (c *Conversation) Pending() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Entry
	for _, e := range c.entries {
		if e.Provisional && e.Status == domain.StatusSending {
			out = append(out, *e)
		}
	}
	return out
}

func (c *Conversation) byID(id string) *Entry {
	for _, e := range c.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (c *Conversation) provisionalByClientID(id string) *Entry {
	if id == "" {
		return nil
	}
	for _, e := range c.entries {
		if e.Provisional && e.ClientMessageID == id {
			return e
		}
	}
	return nil
}

// provisionalFor finds the entry a confirmation settles. Records without a
// clientMessageId fall back to the oldest live provisional with the same
// sender and body.
func (c *Conversation) provisionalFor(m *domain.Message) *Entry {
	if m.ClientMessageID != "" {
		return c.provisionalByClientID(m.ClientMessageID)
	}
	for _, e := range c.entries {
		if e.Provisional && e.Status != StatusFailed && e.SenderID == m.SenderID && e.Body == m.Body {
			return e
		}
	}
	return nil
}

func advance(e *Entry, m *domain.Message) {
	if !e.Status.Before(m.Status) {
		return
	}
	e.Status = m.Status
	if m.ReadAt != nil {
		e.ReadAt = m.ReadAt
	}
}
