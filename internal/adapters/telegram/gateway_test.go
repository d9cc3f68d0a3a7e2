package telegram

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/gotd/td/bin"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bebra552/TgGroopSoft/internal/domain/authflow"
)

// authReplying возвращает адаптер, у которого любой RPC завершается rpcErr.
func authReplying(rpcErr error) authClient {
	inv := telegram.InvokeFunc(func(context.Context, bin.Encoder, bin.Decoder) error {
		return rpcErr
	})
	return authClient{client: auth.NewClient(tg.NewClient(inv), rand.Reader, 1, "hash")}
}

func TestAuthClientSignInErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	_, err := authReplying(tgerr.New(401, "SESSION_PASSWORD_NEEDED")).SignIn(ctx, "+1", "123", "h")
	require.ErrorIs(t, err, authflow.ErrPasswordRequired)

	_, err = authReplying(tgerr.New(400, "PHONE_CODE_INVALID")).SignIn(ctx, "+1", "000", "h")
	require.Error(t, err)
	assert.NotErrorIs(t, err, authflow.ErrPasswordRequired)
	assert.True(t, tgerr.Is(err, "PHONE_CODE_INVALID"))
}

func TestAuthClientCheckPasswordError(t *testing.T) {
	t.Parallel()

	_, err := authReplying(tgerr.New(400, "PASSWORD_HASH_INVALID")).CheckPassword(context.Background(), "wrong")
	require.Error(t, err)
	assert.NotErrorIs(t, err, authflow.ErrPasswordRequired)
	assert.True(t, tgerr.Is(err, "PASSWORD_HASH_INVALID"))
}

func TestAutoWaitLimit(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Nanosecond, autoWaitLimit(0), "0 не должен снимать предел ожидания")
	assert.Equal(t, time.Nanosecond, autoWaitLimit(-time.Second))
	assert.Equal(t, 3*time.Second, autoWaitLimit(3*time.Second))
}
