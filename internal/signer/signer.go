// Package signer mints and verifies the bearer-capability tokens behind
// time-limited download URLs. Possession of a valid token is the only
// authorization the download path checks.
package signer

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrExpiredToken = errors.New("download token expired")
	ErrInvalidToken = errors.New("invalid download token")
)

// Grant names the artifact a token unlocks.
type Grant struct {
	Key         string
	ContentType string
	Filename    string
}

type downloadClaims struct {
	Key         string `json:"key"`
	ContentType string `json:"ct,omitempty"`
	Filename    string `json:"fn,omitempty"`
	jwt.RegisteredClaims
}

type Signer struct {
	secret []byte
	ttl    time.Duration
}

func New(secret string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl}
}

func (s *Signer) TTL() time.Duration { return s.ttl }

func (s *Signer) Mint(key, contentType, filename string) (string, error) {
	now := time.Now()
	claims := downloadClaims{
		Key:         key,
		ContentType: contentType,
		Filename:    filename,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Signer) Verify(token string) (*Grant, error) {
	var claims downloadClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid || claims.Key == "" {
		return nil, ErrInvalidToken
	}

	return &Grant{
		Key:         claims.Key,
		ContentType: claims.ContentType,
		Filename:    claims.Filename,
	}, nil
}
