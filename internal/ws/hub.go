package ws

import (
	"context"
	"sync"
	"time"

	"github.com/fathima-sithara/realtime-service/internal/metrics"
	"github.com/fathima-sithara/realtime-service/internal/presence"
	"github.com/fathima-sithara/realtime-service/internal/protocol"
	"go.uber.org/zap"
)

// Hub owns the live connections of this process and routes room emissions
// to them. With a relay configured, emissions also reach other instances.
type Hub struct {
	registry *presence.Registry
	mirror   *presence.Mirror
	relay    *presence.Relay
	metrics  *metrics.Metrics
	log      *zap.Logger

	mu      sync.RWMutex
	clients map[string]*Client

	ctx    context.Context
	cancel context.CancelFunc
}

type HubOption func(*Hub)

func WithMirror(m *presence.Mirror) HubOption { return func(h *Hub) { h.mirror = m } }

func WithRelay(r *presence.Relay) HubOption { return func(h *Hub) { h.relay = r } }

func WithMetrics(m *metrics.Metrics) HubOption { return func(h *Hub) { h.metrics = m } }

func NewHub(log *zap.Logger, opts ...HubOption) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		registry: presence.NewRegistry(),
		clients:  make(map[string]*Client),
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, o := range opts {
		o(h)
	}
	if h.relay != nil {
		go h.relay.Run(ctx, h.deliverLocal)
	}
	return h
}

// Register records c and joins it to rooms.
func (h *Hub) Register(c *Client, rooms ...string) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.registry.Join(c.id, c.userID, rooms...)

	if h.mirror != nil {
		ctx, cancel := context.WithTimeout(h.ctx, 2*time.Second)
		defer cancel()
		if err := h.mirror.Join(ctx, c.id, rooms...); err != nil {
			h.log.Warn("presence mirror join failed", zap.String("user_id", c.userID), zap.Error(err))
		}
	}
	if h.metrics != nil {
		h.metrics.Connections.Inc()
	}
	h.log.Debug("client registered", zap.String("conn_id", c.id), zap.String("user_id", c.userID))
}

// Unregister drops c from every room and closes its send queue. Safe to call
// more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, known := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()
	c.close()
	if !known {
		return
	}

	entry, ok := h.registry.Leave(c.id)
	if ok && h.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.mirror.Leave(ctx, c.id, entry.Rooms...); err != nil {
			h.log.Warn("presence mirror leave failed", zap.String("user_id", c.userID), zap.Error(err))
		}
	}
	if h.metrics != nil {
		h.metrics.Connections.Dec()
	}
	h.log.Debug("client unregistered", zap.String("conn_id", c.id), zap.String("user_id", c.userID))
}

// EmitToRoom validates ev and delivers it to every member of room.
func (h *Hub) EmitToRoom(ctx context.Context, room string, ev protocol.Event) error {
	data, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	h.deliverLocal(room, data)
	if h.metrics != nil {
		h.metrics.EmittedEvents.WithLabelValues(ev.EventName()).Inc()
	}
	if h.relay != nil {
		if err := h.relay.Publish(ctx, room, data); err != nil {
			return err
		}
	}
	return nil
}

// EmitTo sends ev to a single connection.
func (h *Hub) EmitTo(c *Client, ev protocol.Event) error {
	data, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	if !c.enqueue(data) {
		h.dropSlow(c)
	}
	return nil
}

// RoomActive reports whether room has at least one member on any instance.
func (h *Hub) RoomActive(ctx context.Context, room string) (bool, error) {
	if h.registry.Count(room) > 0 {
		return true, nil
	}
	if h.mirror == nil {
		return false, nil
	}
	return h.mirror.Active(ctx, room)
}

// Touch refreshes the mirrored presence of c.
func (h *Hub) Touch(c *Client) {
	if h.mirror == nil {
		return
	}
	entry, ok := h.registry.Entry(c.id)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(h.ctx, 2*time.Second)
	defer cancel()
	if err := h.mirror.Join(ctx, c.id, entry.Rooms...); err != nil {
		h.log.Debug("presence refresh failed", zap.String("conn_id", c.id), zap.Error(err))
	}
}

func (h *Hub) Registry() *presence.Registry { return h.registry }

func (h *Hub) deliverLocal(room string, data []byte) {
	members := h.registry.Members(room)
	if len(members) == 0 {
		return
	}
	targets := make([]*Client, 0, len(members))
	h.mu.RLock()
	for _, id := range members {
		if c, ok := h.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(data) {
			h.dropSlow(c)
		}
	}
}

func (h *Hub) dropSlow(c *Client) {
	h.log.Warn("dropping slow client", zap.String("conn_id", c.id), zap.String("user_id", c.userID))
	if h.metrics != nil {
		h.metrics.DroppedClients.Inc()
	}
	h.Unregister(c)
}

// Shutdown closes every connection and stops the relay.
func (h *Hub) Shutdown() {
	h.cancel()
	h.mu.RLock()
	all := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()
	for _, c := range all {
		h.Unregister(c)
	}
}
