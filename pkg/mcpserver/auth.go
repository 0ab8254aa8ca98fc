package mcpserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Authenticator checks a bearer token presented on the HTTP transport.
type Authenticator interface {
	Authenticate(token string) error
}

// Claims represents the JWT payload accepted by the HTTP transport.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTAuth accepts HS256 tokens signed with a shared secret.
type JWTAuth struct {
	secret []byte
}

// NewJWTAuth creates a JWT authenticator.
func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{secret: []byte(secret)}
}

// Authenticate parses and verifies the token.
func (a *JWTAuth) Authenticate(token string) error {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid {
		return errors.New("invalid token")
	}
	return nil
}

// Issue signs a token for subject that expires after ttl.
func (a *JWTAuth) Issue(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// KeyAuth accepts a static API key compared against its bcrypt hash.
type KeyAuth struct {
	hash []byte
}

// NewKeyAuth creates a static key authenticator from a bcrypt hash.
func NewKeyAuth(hash string) *KeyAuth {
	return &KeyAuth{hash: []byte(hash)}
}

// Authenticate compares token with the stored hash.
func (a *KeyAuth) Authenticate(token string) error {
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(token)); err != nil {
		return errors.New("invalid api key")
	}
	return nil
}

// HashKey returns the bcrypt hash of an API key for use with NewKeyAuth.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash key: %w", err)
	}
	return string(hash), nil
}

// AnyAuth accepts a token if any of its authenticators does.
type AnyAuth []Authenticator

// Authenticate tries each authenticator in order.
func (a AnyAuth) Authenticate(token string) error {
	errs := make([]error, 0, len(a))
	for _, auth := range a {
		err := auth.Authenticate(token)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return errors.New("no authenticator configured")
	}
	return errors.Join(errs...)
}
