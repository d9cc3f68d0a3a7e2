package web

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthTokenIsSingleUse(t *testing.T) {
	t.Parallel()
	am := NewAuthManager(time.Hour)

	_, ok := am.ValidateToken("")
	assert.False(t, ok, "empty token before any was issued")

	token := am.GenerateToken()
	_, ok = am.ValidateToken("wrong")
	assert.False(t, ok)

	sid, ok := am.ValidateToken(token)
	require.True(t, ok)
	assert.True(t, am.ValidateSession(sid))

	_, ok = am.ValidateToken(token)
	assert.False(t, ok, "token must not be accepted twice")

	// новая ссылка не разлогинивает уже открытые сессии
	am.GenerateToken()
	assert.True(t, am.ValidateSession(sid))
}

func TestAuthSessionExpiry(t *testing.T) {
	t.Parallel()
	am := NewAuthManager(time.Minute)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	am.now = func() time.Time { return now }

	sid, ok := am.ValidateToken(am.GenerateToken())
	require.True(t, ok)

	now = now.Add(30 * time.Second)
	assert.True(t, am.ValidateSession(sid), "activity extends the session")

	now = now.Add(50 * time.Second)
	assert.True(t, am.ValidateSession(sid))

	other, ok := am.ValidateToken(am.GenerateToken())
	require.True(t, ok)
	now = now.Add(2 * time.Minute)
	am.CleanExpiredSessions()
	assert.Zero(t, am.SessionCount())
	assert.False(t, am.ValidateSession(other))

	am.InvalidateSession(sid)
	assert.False(t, am.ValidateSession(sid))
}
