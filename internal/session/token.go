// Package session issues and verifies the bearer tokens that carry the
// signed-in user's identity to the gRPC facade.
package session

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/TomaszGol/iOS-Messenger/internal/model"
)

// Claims are the JWT claims of a session token.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// Sign issues an HS256 token for s valid for ttl from now.
func Sign(key []byte, s model.Session, ttl time.Duration, now time.Time) (string, error) {
	if len(key) == 0 {
		return "", errors.New("empty signing key")
	}
	claims := Claims{
		Email: s.Email,
		Name:  s.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.Key(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// Verify checks signature, algorithm and validity window of tok and returns
// the session it carries.
func Verify(key []byte, tok string) (model.Session, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return key, nil
	}, jwt.WithLeeway(30*time.Second))
	if err != nil || !parsed.Valid {
		return model.Session{}, errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Email) == "" {
		return model.Session{}, errors.New("token without email")
	}
	return model.Session{Email: claims.Email, Name: claims.Name}, nil
}
