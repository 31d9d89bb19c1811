// Package auth resolves the player identity carried by a session token.
package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/leaderboard-live/internal/config"
	"github.com/leaderboard-live/internal/domain"
)

// Claims is the payload of a session token
type Claims struct {
	PlayerID string `json:"id"`
	Name     string `json:"name"`
	Country  string `json:"country"`
	jwt.RegisteredClaims
}

// TokenIdentifier extracts identities from JWT session tokens. Without a
// secret the token is decoded but its signature is not checked; issuing
// and verifying tokens is left to the gateway in that setup.
type TokenIdentifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenIdentifier creates a token identifier
func NewTokenIdentifier(cfg *config.AuthConfig) *TokenIdentifier {
	return &TokenIdentifier{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})),
	}
}

// Identify resolves the identity of a request from its Authorization
// header or, for browsers that cannot set headers on websockets, from the
// token query parameter.
func (t *TokenIdentifier) Identify(r *http.Request) (domain.Identity, error) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
	if raw == "" {
		raw = r.URL.Query().Get("token")
	}
	if raw == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing token", domain.ErrInvalidIdentity)
	}
	return t.Parse(raw)
}

// Parse decodes a raw token into an identity
func (t *TokenIdentifier) Parse(raw string) (domain.Identity, error) {
	claims := &Claims{}

	var err error
	if len(t.secret) == 0 {
		_, _, err = t.parser.ParseUnverified(raw, claims)
	} else {
		_, err = t.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
			return t.secret, nil
		})
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrInvalidIdentity, err)
	}

	id := claims.PlayerID
	if id == "" {
		id = claims.Subject
	}
	if id == "" {
		return domain.Identity{}, fmt.Errorf("%w: token has no player id", domain.ErrInvalidIdentity)
	}

	return domain.Identity{
		ID:      id,
		Name:    claims.Name,
		Country: claims.Country,
	}, nil
}
