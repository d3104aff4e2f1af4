package testutil

import (
	"time"

	"github.com/2001-daminho/nexcrypto/libs/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	DemoUserID  = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	AdminUserID = uuid.MustParse("00000000-0000-0000-0000-0000000000ad")
)

// GenerateJWT signs an HS256 token for userID with the given roles.
func GenerateJWT(userID uuid.UUID, secret []byte, ttl time.Duration, now time.Time, roles ...string) (string, error) {
	if len(roles) == 0 {
		roles = []string{"user"}
	}
	claims := auth.Claims{
		Email: userID.String()[:8] + "@example.com",
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "nex-auth",
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
