package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminsVerify(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	admins := Admins{"alice": hash, "broken": "not-a-hash"}

	assert.True(t, admins.Verify("alice", "hunter2"))
	assert.False(t, admins.Verify("alice", "hunter3"))
	assert.False(t, admins.Verify("broken", "hunter2"))
	assert.False(t, admins.Verify("mallory", "hunter2"))

	assert.True(t, admins.Has("alice"))
	assert.False(t, admins.Has("mallory"))
	assert.False(t, Admins(nil).Verify("alice", "hunter2"))

	_, err = HashPassword("")
	assert.Error(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	token, exp, err := issuer.GenerateToken("alice")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := issuer.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "alice", claims.Username)

	_, _, err = issuer.GenerateToken("")
	assert.Error(t, err)
}

func TestParseTokenRejects(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	token, _, err := issuer.GenerateToken("alice")
	require.NoError(t, err)

	_, err = NewTokenIssuer("other", time.Hour).ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.ParseToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewTokenIssuer("secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _, err := expired.GenerateToken("alice")
	require.NoError(t, err)
	_, err = issuer.ParseToken(old)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
