package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_RoundTrip(t *testing.T) {
	svc := NewService("segredo", time.Hour)

	tok, err := svc.GenerateToken("c-1", "customer")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "c-1", claims.UserID)
	assert.Equal(t, "customer", claims.Role)
}

func TestService_RejectsExpiredAndForeignTokens(t *testing.T) {
	svc := NewService("segredo", time.Minute)
	tok, err := svc.GenerateToken("c-1", "customer")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.ValidateToken(tok)
	assert.Error(t, err)

	other := NewService("outro-segredo", time.Hour)
	tok, err = other.GenerateToken("c-1", "admin")
	require.NoError(t, err)
	_, err = NewService("segredo", time.Hour).ValidateToken(tok)
	assert.Error(t, err)
}
