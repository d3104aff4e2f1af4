package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/2001-daminho/nexcrypto/services/wallet/internal/identity"
	"github.com/2001-daminho/nexcrypto/services/wallet/internal/ledger"
	"github.com/google/uuid"
)

var ErrClosed = errors.New("session registry closed")

// Factory builds an engine bound to provider. The registry starts it.
type Factory func(provider identity.Provider) (*ledger.Engine, error)

type entry struct {
	session  *identity.Session
	engine   *ledger.Engine
	lastUsed time.Time
}

// Registry hands out one running engine per signed-in user and closes
// engines that have been idle longer than the configured TTL.
type Registry struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*entry
	closed  bool

	factory Factory
	idleTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRegistry(ctx context.Context, factory Factory, idleTTL time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	r := &Registry{
		entries: make(map[uuid.UUID]*entry),
		factory: factory,
		idleTTL: idleTTL,
		logger:  logger,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
	if idleTTL > 0 {
		r.wg.Add(1)
		go r.janitor()
	}
	return r
}

// Acquire returns the user's engine, creating, starting and loading it on
// first use.
func (r *Registry) Acquire(ctx context.Context, user identity.User) (*ledger.Engine, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if e, ok := r.entries[user.ID]; ok {
		e.lastUsed = r.now()
		r.mu.Unlock()
		return e.engine, nil
	}

	sess := identity.NewSession()
	sess.SignIn(user)
	engine, err := r.factory(sess)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	engine.Start(r.ctx)
	r.entries[user.ID] = &entry{session: sess, engine: engine, lastUsed: r.now()}
	r.mu.Unlock()

	r.logger.Info("engine started", "user_id", user.ID)
	if err := engine.Refresh(ctx); err != nil {
		r.logger.Warn("initial refresh failed", "user_id", user.ID, "error", err)
	}
	return engine, nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close stops the janitor and every engine. Later Acquire calls fail.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	entries := r.entries
	r.entries = make(map[uuid.UUID]*entry)
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	for _, e := range entries {
		e.session.SignOut()
		e.engine.Close()
	}
}

func (r *Registry) janitor() {
	defer r.wg.Done()
	interval := r.idleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.sweep(r.now())
		}
	}
}

// sweep closes engines idle since before now-idleTTL and returns how many.
func (r *Registry) sweep(now time.Time) int {
	r.mu.Lock()
	var idle []*entry
	for id, e := range r.entries {
		if now.Sub(e.lastUsed) > r.idleTTL {
			idle = append(idle, e)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, e := range idle {
		e.session.SignOut()
		e.engine.Close()
	}
	if len(idle) > 0 {
		r.logger.Info("evicted idle engines", "count", len(idle))
	}
	return len(idle)
}
