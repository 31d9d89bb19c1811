package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/leaderboard-live/internal/config"
	"github.com/leaderboard-live/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestIdentifyFromHeader(t *testing.T) {
	ident := NewTokenIdentifier(&config.AuthConfig{Secret: "s3cret"})
	token := sign(t, "s3cret", Claims{PlayerID: "42", Name: "Ada", Country: "TR"})

	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	identity, err := ident.Identify(req)
	require.NoError(t, err)
	assert.Equal(t, domain.Identity{ID: "42", Name: "Ada", Country: "TR"}, identity)
}

func TestIdentifyFromQuery(t *testing.T) {
	ident := NewTokenIdentifier(&config.AuthConfig{Secret: "s3cret"})
	token := sign(t, "s3cret", Claims{PlayerID: "7", Name: "Bob"})

	req := httptest.NewRequest("GET", "/ws?token="+token, nil)

	identity, err := ident.Identify(req)
	require.NoError(t, err)
	assert.Equal(t, "7", identity.ID)
}

func TestIdentifyRejectsBadSignature(t *testing.T) {
	ident := NewTokenIdentifier(&config.AuthConfig{Secret: "s3cret"})
	token := sign(t, "other", Claims{PlayerID: "42"})

	_, err := ident.Parse(token)
	assert.ErrorIs(t, err, domain.ErrInvalidIdentity)
}

func TestIdentifyRejectsExpired(t *testing.T) {
	ident := NewTokenIdentifier(&config.AuthConfig{Secret: "s3cret"})
	token := sign(t, "s3cret", Claims{
		PlayerID: "42",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	_, err := ident.Parse(token)
	assert.ErrorIs(t, err, domain.ErrInvalidIdentity)
}

func TestIdentifyUnverified(t *testing.T) {
	ident := NewTokenIdentifier(&config.AuthConfig{})
	token := sign(t, "whatever", Claims{
		Name:             "Cem",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-1"},
	})

	identity, err := ident.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "sub-1", identity.ID)
	assert.Equal(t, "Cem", identity.Name)
}

func TestIdentifyMalformed(t *testing.T) {
	ident := NewTokenIdentifier(&config.AuthConfig{})

	_, err := ident.Parse("not-a-token")
	assert.ErrorIs(t, err, domain.ErrInvalidIdentity)

	_, err = ident.Identify(httptest.NewRequest("GET", "/ws", nil))
	assert.ErrorIs(t, err, domain.ErrInvalidIdentity)

	token := sign(t, "k", Claims{Name: "anonymous"})
	_, err = ident.Parse(token)
	assert.ErrorIs(t, err, domain.ErrInvalidIdentity)
}
