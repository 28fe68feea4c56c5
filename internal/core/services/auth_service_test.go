package services

import (
	"testing"
	"time"

	"omnicast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewAuthService("test-secret", time.Hour, 24*time.Hour)

	token, err := svc.GenerateToken("u1", "alice", domain.PlanCreator)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u1"), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, domain.PlanCreator, claims.Plan)
}

func TestExpiredTokenRejected(t *testing.T) {
	svc := NewAuthService("test-secret", -time.Minute, 24*time.Hour)

	token, err := svc.GenerateToken("u1", "alice", domain.PlanFree)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokenWrongSecretRejected(t *testing.T) {
	issuer := NewAuthService("secret-a", time.Hour, 24*time.Hour)
	verifier := NewAuthService("secret-b", time.Hour, 24*time.Hour)

	token, err := issuer.GenerateToken("u1", "alice", domain.PlanPro)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMalformedTokenRejected(t *testing.T) {
	svc := NewAuthService("test-secret", time.Hour, 24*time.Hour)

	_, err := svc.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshTokenCarriesOnlyUserID(t *testing.T) {
	svc := NewAuthService("test-secret", time.Hour, 24*time.Hour)

	token, err := svc.GenerateRefreshToken("u1")
	require.NoError(t, err)

	claims, err := svc.ValidateRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u1"), claims.UserID)
	assert.Empty(t, claims.Username)
}
