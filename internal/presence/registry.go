package presence

import (
	"sort"
	"sync"
	"time"
)

// Entry describes one live connection and the rooms it belongs to.
type Entry struct {
	ConnID      string
	UserID      string
	Rooms       []string
	ConnectedAt time.Time
}

// Registry tracks room membership of the connections held by this process.
// Membership changes only on connect and disconnect.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	rooms   map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		rooms:   make(map[string]map[string]struct{}),
	}
}

// Join adds connID to rooms. Joining again only adds the missing rooms.
func (r *Registry) Join(connID, userID string, rooms ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[connID]
	if !ok {
		e = &Entry{ConnID: connID, UserID: userID, ConnectedAt: time.Now()}
		r.entries[connID] = e
	}
	for _, room := range rooms {
		members := r.rooms[room]
		if members == nil {
			members = make(map[string]struct{})
			r.rooms[room] = members
		}
		if _, in := members[connID]; in {
			continue
		}
		members[connID] = struct{}{}
		e.Rooms = append(e.Rooms, room)
	}
}

// Leave removes connID from every room it joined and returns its entry.
func (r *Registry) Leave(connID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[connID]
	if !ok {
		return Entry{}, false
	}
	for _, room := range e.Rooms {
		if members, ok := r.rooms[room]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(r.rooms, room)
			}
		}
	}
	delete(r.entries, connID)
	return copyEntry(e), true
}

// Members returns the connection ids in room, sorted.
func (r *Registry) Members(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Count(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

func (r *Registry) Entry(connID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[connID]
	if !ok {
		return Entry{}, false
	}
	return copyEntry(e), true
}

// Connections is the number of live connections.
func (r *Registry) Connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func copyEntry(e *Entry) Entry {
	cp := *e
	cp.Rooms = append([]string(nil), e.Rooms...)
	return cp
}
