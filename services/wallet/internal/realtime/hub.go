package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

type subscriber struct {
	id       uint64
	table    string
	userID   uuid.UUID
	onChange func(Change)
}

// Hub fans changes out to in-process subscribers filtered by table and user.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*subscriber
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subs: make(map[uint64]*subscriber), logger: logger}
}

func (h *Hub) Subscribe(table string, userID uuid.UUID, onChange func(Change)) Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	s := &subscriber{id: h.nextID, table: table, userID: userID, onChange: onChange}
	h.subs[s.id] = s
	return &hubSubscription{hub: h, id: s.id}
}

// PublishChange delivers c synchronously to every matching subscriber.
// Callbacks must not block.
func (h *Hub) PublishChange(_ context.Context, c Change) error {
	h.mu.RLock()
	matched := make([]func(Change), 0, 2)
	for _, s := range h.subs {
		if s.table == c.Table && s.userID == c.UserID {
			matched = append(matched, s.onChange)
		}
	}
	h.mu.RUnlock()

	for _, fn := range matched {
		h.deliver(fn, c)
	}
	return nil
}

func (h *Hub) deliver(fn func(Change), c Change) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("realtime subscriber panic", "table", c.Table, "user_id", c.UserID, "panic", r)
		}
	}()
	fn(c)
}

// Size returns the number of live subscriptions.
func (h *Hub) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

type hubSubscription struct {
	hub  *Hub
	id   uint64
	once sync.Once
}

func (s *hubSubscription) Unsubscribe() {
	s.once.Do(func() { s.hub.remove(s.id) })
}
