package authflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bebra552/TgGroopSoft/internal/domain/authflow"
	"github.com/bebra552/TgGroopSoft/internal/infra/concurrency"
)

type fakeClient struct {
	mu         sync.Mutex
	authorized bool
	needPass   bool
	sendErr    error
	signInErr  error
	passErr    error
	calls      []string
}

func (f *fakeClient) record(s string) {
	f.mu.Lock()
	f.calls = append(f.calls, s)
	f.mu.Unlock()
}

func (f *fakeClient) Status(context.Context) (*tg.User, bool, error) {
	f.record("status")
	if f.authorized {
		return &tg.User{ID: 1, FirstName: "Ann"}, true, nil
	}
	return nil, false, nil
}

func (f *fakeClient) SendCode(_ context.Context, phone string) (string, error) {
	f.record("send:" + phone)
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return "hash", nil
}

func (f *fakeClient) SignIn(_ context.Context, phone, code, hash string) (*tg.User, error) {
	f.record("signin:" + phone + ":" + code + ":" + hash)
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	if f.needPass {
		return nil, authflow.ErrPasswordRequired
	}
	return &tg.User{ID: 2}, nil
}

func (f *fakeClient) CheckPassword(_ context.Context, password string) (*tg.User, error) {
	f.record("password:" + password)
	if f.passErr != nil {
		return nil, f.passErr
	}
	return &tg.User{ID: 3}, nil
}

func (f *fakeClient) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type result struct {
	user *tg.User
	err  error
}

func run(t *testing.T, client authflow.AuthClient, stop *concurrency.Token) (*authflow.Coordinator, <-chan authflow.Prompt, <-chan result) {
	t.Helper()
	prompts := make(chan authflow.Prompt, 8)
	coord := authflow.NewCoordinator(func(p authflow.Prompt) { prompts <- p })
	done := make(chan result, 1)
	go func() {
		u, err := coord.Authenticate(context.Background(), stop, client)
		done <- result{user: u, err: err}
	}()
	return coord, prompts, done
}

func nextPrompt(t *testing.T, prompts <-chan authflow.Prompt) authflow.Prompt {
	t.Helper()
	select {
	case p := <-prompts:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("prompt was not requested")
		return authflow.Prompt{}
	}
}

func wait(t *testing.T, done <-chan result) result {
	t.Helper()
	select {
	case r := <-done:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("authenticate did not return")
		return result{}
	}
}

func TestAuthenticateAlreadyAuthorized(t *testing.T) {
	t.Parallel()

	client := &fakeClient{authorized: true}
	_, prompts, done := run(t, client, concurrency.NewToken())

	r := wait(t, done)
	require.NoError(t, r.err)
	assert.Equal(t, int64(1), r.user.ID)
	assert.Empty(t, prompts)
	assert.Equal(t, []string{"status"}, client.Calls())
}

func TestAuthenticatePhoneCode(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	coord, prompts, done := run(t, client, concurrency.NewToken())

	p := nextPrompt(t, prompts)
	assert.Equal(t, authflow.KindPhone, p.Kind)
	require.ErrorIs(t, coord.Submit(authflow.KindCode, "123"), authflow.ErrNoPendingPrompt)
	require.ErrorIs(t, coord.Submit(authflow.KindPhone, "   "), authflow.ErrEmptyAnswer)
	require.NoError(t, coord.Submit(authflow.KindPhone, " +79990000000 "))

	p = nextPrompt(t, prompts)
	assert.Equal(t, authflow.KindCode, p.Kind)
	kind, err := coord.SubmitPending("12345")
	require.NoError(t, err)
	assert.Equal(t, authflow.KindCode, kind)

	r := wait(t, done)
	require.NoError(t, r.err)
	assert.Equal(t, int64(2), r.user.ID)
	assert.Equal(t, []string{"status", "send:+79990000000", "signin:+79990000000:12345:hash"}, client.Calls())

	_, ok := coord.Pending()
	assert.False(t, ok)
}

func TestAuthenticateTwoFactor(t *testing.T) {
	t.Parallel()

	client := &fakeClient{needPass: true}
	coord, prompts, done := run(t, client, concurrency.NewToken())

	require.Equal(t, authflow.KindPhone, nextPrompt(t, prompts).Kind)
	require.NoError(t, coord.Submit(authflow.KindPhone, "+1"))
	require.Equal(t, authflow.KindCode, nextPrompt(t, prompts).Kind)
	require.NoError(t, coord.Submit(authflow.KindCode, "00000"))

	p := nextPrompt(t, prompts)
	require.Equal(t, authflow.KindPassword, p.Kind)
	assert.True(t, p.Kind.Secret())
	require.NoError(t, coord.Submit(authflow.KindPassword, "hunter2"))
	err := coord.Submit(authflow.KindPassword, "again")
	assert.True(t, errors.Is(err, authflow.ErrAlreadyAnswered) || errors.Is(err, authflow.ErrNoPendingPrompt), err)

	r := wait(t, done)
	require.NoError(t, r.err)
	assert.Equal(t, int64(3), r.user.ID)
	assert.Contains(t, client.Calls(), "password:hunter2")
}

func TestAuthenticateCancelWhileWaiting(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	stop := concurrency.NewToken()
	coord, prompts, done := run(t, client, stop)

	require.Equal(t, authflow.KindPhone, nextPrompt(t, prompts).Kind)
	stop.Cancel()

	r := wait(t, done)
	require.ErrorIs(t, r.err, authflow.ErrCancelled)
	assert.Equal(t, []string{"status"}, client.Calls())

	_, ok := coord.Pending()
	assert.False(t, ok)
}

func TestAuthenticateSendCodeFailureIsTerminal(t *testing.T) {
	t.Parallel()

	boom := errors.New("PHONE_NUMBER_INVALID")
	client := &fakeClient{sendErr: boom}
	coord, prompts, done := run(t, client, concurrency.NewToken())

	require.Equal(t, authflow.KindPhone, nextPrompt(t, prompts).Kind)
	require.NoError(t, coord.Submit(authflow.KindPhone, "bad"))

	r := wait(t, done)
	require.ErrorIs(t, r.err, authflow.ErrAuthFailed)
	require.ErrorIs(t, r.err, boom)
	assert.Empty(t, prompts, "код не запрашивается после ошибки")
}

func TestAuthenticateWrongCredentialsAreTerminal(t *testing.T) {
	t.Parallel()

	badCode := errors.New("PHONE_CODE_INVALID")
	badPass := errors.New("PASSWORD_HASH_INVALID")
	cases := []struct {
		name      string
		client    *fakeClient
		answers   []authflow.Kind
		wantErr   error
		wantCalls []string
	}{
		{
			name:      "неверный код",
			client:    &fakeClient{signInErr: badCode},
			answers:   []authflow.Kind{authflow.KindPhone, authflow.KindCode},
			wantErr:   badCode,
			wantCalls: []string{"status", "send:+1", "signin:+1:answer:hash"},
		},
		{
			name:      "неверный пароль",
			client:    &fakeClient{needPass: true, passErr: badPass},
			answers:   []authflow.Kind{authflow.KindPhone, authflow.KindCode, authflow.KindPassword},
			wantErr:   badPass,
			wantCalls: []string{"status", "send:+1", "signin:+1:answer:hash", "password:answer"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			coord, prompts, done := run(t, tc.client, concurrency.NewToken())

			for _, kind := range tc.answers {
				require.Equal(t, kind, nextPrompt(t, prompts).Kind)
				value := "answer"
				if kind == authflow.KindPhone {
					value = "+1"
				}
				require.NoError(t, coord.Submit(kind, value))
			}

			r := wait(t, done)
			require.ErrorIs(t, r.err, authflow.ErrAuthFailed)
			require.ErrorIs(t, r.err, tc.wantErr)
			assert.NotErrorIs(t, r.err, authflow.ErrPasswordRequired)
			assert.Nil(t, r.user)
			assert.Empty(t, prompts, "повторный запрос не открывается")
			assert.Equal(t, tc.wantCalls, tc.client.Calls(), "без повторных попыток")

			_, ok := coord.Pending()
			assert.False(t, ok)
		})
	}
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		user *tg.User
		want string
	}{
		{user: &tg.User{FirstName: "Ann", LastName: "Lee", Username: "ann"}, want: "Ann Lee (@ann)"},
		{user: &tg.User{Username: "ann"}, want: "@ann"},
		{user: &tg.User{FirstName: "Ann"}, want: "Ann"},
		{user: &tg.User{ID: 5}, want: "id5"},
		{user: nil, want: ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, authflow.DisplayName(tc.user))
	}
}
