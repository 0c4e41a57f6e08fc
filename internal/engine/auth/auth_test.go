package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"missiondesk/internal/domain"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)
	require.NoError(t, CheckPassword(hash, "s3cret"))

	var cerr CredentialsError
	require.True(t, errors.As(CheckPassword(hash, "nope"), &cerr))
	assert.Equal(t, CodeWrongPassword, cerr.Code)

	_, err = HashPassword("")
	assert.Error(t, err)
}

func TestTokens(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tokens := Tokens{Secret: []byte("k"), Issuer: "missiondesk", TTL: time.Hour, Now: func() time.Time { return now }}
	user := domain.User{ID: "U1", Name: "sara", Role: domain.RoleAdmin}

	raw, exp, err := tokens.Issue(user)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), exp)

	claims, err := tokens.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "U1", claims.Subject)
	assert.Equal(t, "ADMIN", claims.Role)

	other := tokens
	other.Secret = []byte("different")
	_, err = other.Parse(raw)
	assert.Error(t, err)

	later := tokens
	later.Now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = later.Parse(raw)
	assert.Error(t, err)

	_, _, err = Tokens{}.Issue(user)
	assert.ErrorIs(t, err, ErrTokenDisabled)
}
