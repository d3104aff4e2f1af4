package identity

import (
	"sync"

	"github.com/2001-daminho/nexcrypto/libs/auth"
	"github.com/google/uuid"
)

type User struct {
	ID       uuid.UUID         `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Provider yields the signed-in user and announces sign-in/sign-out.
type Provider interface {
	CurrentUser() *User
	Subscribe(fn func(*User)) (unsubscribe func())
}

// Session is an in-memory Provider for one signed-in identity at a time.
type Session struct {
	mu        sync.RWMutex
	user      *User
	nextID    int
	listeners map[int]func(*User)
}

func NewSession() *Session {
	return &Session{listeners: make(map[int]func(*User))}
}

func (s *Session) CurrentUser() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Session) Subscribe(fn func(*User)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Session) SignIn(u User) {
	s.set(&u)
}

func (s *Session) SignOut() {
	s.set(nil)
}

func (s *Session) set(u *User) {
	s.mu.Lock()
	if sameUser(s.user, u) {
		s.user = u
		s.mu.Unlock()
		return
	}
	s.user = u
	fns := make([]func(*User), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		if u == nil {
			fn(nil)
			continue
		}
		cp := *u
		fn(&cp)
	}
}

func sameUser(a, b *User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}

// UserFromClaims maps verified token claims to a User.
func UserFromClaims(claims *auth.Claims) (User, bool) {
	if claims == nil {
		return User{}, false
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return User{}, false
	}
	return User{ID: id, Email: claims.Email, Metadata: claims.Metadata}, true
}
