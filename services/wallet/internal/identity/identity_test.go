package identity

import (
	"testing"

	"github.com/2001-daminho/nexcrypto/libs/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestSessionNotifiesOnIdentityChange(t *testing.T) {
	s := NewSession()
	var seen []*User
	unsubscribe := s.Subscribe(func(u *User) { seen = append(seen, u) })

	alice := User{ID: uuid.New(), Email: "alice@example.com"}
	s.SignIn(alice)
	s.SignIn(alice)
	s.SignOut()

	if len(seen) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(seen))
	}
	if seen[0] == nil || seen[0].ID != alice.ID {
		t.Fatalf("expected sign-in of alice, got %+v", seen[0])
	}
	if seen[1] != nil {
		t.Fatalf("expected sign-out notification")
	}

	unsubscribe()
	unsubscribe()
	s.SignIn(alice)
	if len(seen) != 2 {
		t.Fatalf("expected no notification after unsubscribe")
	}
	if s.CurrentUser() == nil || s.CurrentUser().Email != "alice@example.com" {
		t.Fatalf("expected alice signed in")
	}
}

func TestUserFromClaims(t *testing.T) {
	id := uuid.New()
	u, ok := UserFromClaims(&auth.Claims{Email: "demo@example.com", RegisteredClaims: jwt.RegisteredClaims{Subject: id.String()}})
	if !ok || u.ID != id || u.Email != "demo@example.com" {
		t.Fatalf("unexpected user %+v ok=%v", u, ok)
	}
	if _, ok := UserFromClaims(&auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user123"}}); ok {
		t.Fatalf("expected non-uuid subject to be rejected")
	}
}
