package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/2001-daminho/nexcrypto/services/wallet/internal/ledger"
	"github.com/google/uuid"
)

const defaultCapacity = 50

// Inbox keeps the most recent notifications per user in memory.
type Inbox struct {
	mu       sync.RWMutex
	capacity int
	byUser   map[uuid.UUID][]ledger.Notification
	logger   *slog.Logger
}

func NewInbox(capacity int, logger *slog.Logger) *Inbox {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Inbox{capacity: capacity, byUser: make(map[uuid.UUID][]ledger.Notification), logger: logger}
}

func (i *Inbox) Notify(_ context.Context, n ledger.Notification) {
	attrs := []any{"user_id", n.UserID, "workflow", n.Workflow, "title", n.Title}
	if n.Level == ledger.LevelError {
		i.logger.Warn("notification", attrs...)
	} else {
		i.logger.Info("notification", attrs...)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	list := append(i.byUser[n.UserID], n)
	if len(list) > i.capacity {
		list = append([]ledger.Notification(nil), list[len(list)-i.capacity:]...)
	}
	i.byUser[n.UserID] = list
}

// List returns the user's notifications, newest first.
func (i *Inbox) List(userID uuid.UUID) []ledger.Notification {
	i.mu.RLock()
	defer i.mu.RUnlock()
	list := i.byUser[userID]
	out := make([]ledger.Notification, len(list))
	for idx, n := range list {
		out[len(list)-1-idx] = n
	}
	return out
}

// Forget drops a user's notifications.
func (i *Inbox) Forget(userID uuid.UUID) {
	i.mu.Lock()
	delete(i.byUser, userID)
	i.mu.Unlock()
}
