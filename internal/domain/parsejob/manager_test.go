package parsejob_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bebra552/TgGroopSoft/internal/domain/authflow"
	"github.com/bebra552/TgGroopSoft/internal/domain/collector"
	"github.com/bebra552/TgGroopSoft/internal/domain/members"
	"github.com/bebra552/TgGroopSoft/internal/domain/parsejob"
	"github.com/bebra552/TgGroopSoft/internal/infra/concurrency"
)

var creds = parsejob.Credentials{APIID: 1, APIHash: "hash"}

// source отдаёт total пользователей; при block ждёт его закрытия или отмены ctx.
type source struct {
	total int
	block chan struct{}
	err   error
	calls atomic.Int32
}

func (s *source) Fetch(ctx context.Context, offset, limit int) (collector.Page, error) {
	s.calls.Add(1)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return collector.Page{}, ctx.Err()
		}
	}
	if s.err != nil {
		return collector.Page{}, s.err
	}
	var users []tg.UserClass
	for i := offset; i < offset+limit && i < s.total; i++ {
		users = append(users, &tg.User{ID: int64(i + 1), FirstName: "u"})
	}
	return collector.Page{Users: users, Total: s.total}, nil
}

type authClient struct {
	authorized bool
}

func (a authClient) Status(context.Context) (*tg.User, bool, error) {
	if a.authorized {
		return &tg.User{ID: 1, Username: "me"}, true, nil
	}
	return nil, false, nil
}

func (authClient) SendCode(context.Context, string) (string, error) { return "h", nil }

func (authClient) SignIn(context.Context, string, string, string) (*tg.User, error) {
	return &tg.User{ID: 1, Username: "me"}, nil
}

func (authClient) CheckPassword(context.Context, string) (*tg.User, error) {
	return &tg.User{ID: 1}, nil
}

type session struct {
	auth authClient
	src  collector.Source
}

func (s session) Auth() authflow.AuthClient { return s.auth }

func (s session) ResolveGroup(_ context.Context, handle string) (parsejob.Group, error) {
	return parsejob.Group{ID: 10, Title: "Group " + handle, Members: 3, Source: s.src}, nil
}

// connector проверяет, что подключения никогда не пересекаются.
type connector struct {
	sessions []session
	runs     atomic.Int32
	active   atomic.Int32
	overlap  atomic.Bool
}

func (c *connector) Run(ctx context.Context, _ parsejob.Credentials, f func(context.Context, parsejob.Session) error) error {
	n := c.runs.Add(1) - 1
	if c.active.Add(1) > 1 {
		c.overlap.Store(true)
	}
	defer c.active.Add(-1)
	return f(ctx, c.sessions[int(n)%len(c.sessions)])
}

type recorder struct {
	mu     sync.Mutex
	events []parsejob.Event
	term   chan parsejob.Event
}

func newRecorder(m *parsejob.Manager) *recorder {
	r := &recorder{term: make(chan parsejob.Event, 16)}
	m.Subscribe(func(ev parsejob.Event) {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
		if ev.Terminal() {
			r.term <- ev
		}
	})
	return r
}

func (r *recorder) waitTerminal(t *testing.T) parsejob.Event {
	t.Helper()
	select {
	case ev := <-r.term:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no terminal event")
		return parsejob.Event{}
	}
}

func (r *recorder) byJob(id int64) []parsejob.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []parsejob.Event
	for _, ev := range r.events {
		if ev.JobID == id {
			out = append(out, ev)
		}
	}
	return out
}

func noSleep(stop *concurrency.Token, _ time.Duration) bool { return !stop.Cancelled() }

func settings() parsejob.Settings {
	return parsejob.Settings{
		PageSize:      2,
		ProgressEvery: 1,
		StartGrace:    time.Second,
		StopGrace:     time.Second,
		Sleep:         noSleep,
	}
}

func terminalCount(events []parsejob.Event) int {
	n := 0
	for _, ev := range events {
		if ev.Terminal() {
			n++
		}
	}
	return n
}

func TestManagerHappyPath(t *testing.T) {
	t.Parallel()

	conn := &connector{sessions: []session{{auth: authClient{authorized: true}, src: &source{total: 3}}}}
	m := parsejob.NewManager(conn, settings())
	rec := newRecorder(m)

	id, err := m.Start(context.Background(), parsejob.Params{Link: "https://t.me/gophers", Credentials: creds})
	require.NoError(t, err)

	ev := rec.waitTerminal(t)
	require.Equal(t, parsejob.EventFinished, ev.Kind)
	assert.Equal(t, id, ev.JobID)
	assert.Equal(t, "Group gophers", ev.Chat)
	require.Len(t, ev.Records, 3)
	assert.Equal(t, "1", ev.Records[0].ID)

	<-waitDone(t, m)
	events := rec.byJob(id)
	assert.Equal(t, 1, terminalCount(events))
	for i := 1; i < len(events); i++ {
		assert.Less(t, events[i-1].Seq, events[i].Seq, "события упорядочены")
	}

	st := m.Status()
	assert.Equal(t, parsejob.StateFinished, st.State)
	assert.False(t, st.Running)
	assert.Equal(t, "gophers", st.Handle)

	var messages []string
	for _, ev := range m.Log() {
		messages = append(messages, ev.Message)
	}
	joined := strings.Join(messages, "\n")
	assert.Contains(t, joined, "✅ Авторизован как: @me")
	assert.Contains(t, joined, "👥 Участников: 3")
	assert.Contains(t, joined, "🎉 Парсинг завершен! Получено 3 участников")
}

func TestManagerStartValidation(t *testing.T) {
	t.Parallel()

	conn := &connector{sessions: []session{{auth: authClient{authorized: true}, src: &source{}}}}
	m := parsejob.NewManager(conn, settings())

	_, err := m.Start(context.Background(), parsejob.Params{Link: "  ", Credentials: creds})
	require.ErrorIs(t, err, members.ErrInvalidLink)

	_, err = m.Start(context.Background(), parsejob.Params{Link: "@gophers"})
	require.ErrorIs(t, err, parsejob.ErrNoCredentials)
	assert.Contains(t, parsejob.DescribeStartError(err), "API ID")

	assert.False(t, m.Running())
	assert.Equal(t, int32(0), conn.runs.Load())

	_, err = m.Stop(context.Background())
	require.ErrorIs(t, err, parsejob.ErrNotRunning)
}

func TestManagerStopIsGraceful(t *testing.T) {
	t.Parallel()

	src := &source{total: 100, block: make(chan struct{})}
	conn := &connector{sessions: []session{{auth: authClient{authorized: true}, src: src}}}
	m := parsejob.NewManager(conn, settings())
	rec := newRecorder(m)

	id, err := m.Start(context.Background(), parsejob.Params{Link: "@g", Credentials: creds})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return src.calls.Load() > 0 }, 5*time.Second, 5*time.Millisecond)

	// ответ сервера приходит уже после запроса остановки
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(src.block)
	}()
	res, err := m.Stop(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Graceful)
	assert.Equal(t, id, res.JobID)

	ev := rec.waitTerminal(t)
	assert.Equal(t, parsejob.EventStopped, ev.Kind)
	assert.Equal(t, 1, terminalCount(rec.byJob(id)))
	assert.Equal(t, int32(1), src.calls.Load(), "после остановки новых запросов нет")
	assert.Equal(t, parsejob.StateStopped, m.Status().State)
}

func TestManagerForcedStop(t *testing.T) {
	t.Parallel()

	src := &source{total: 100, block: make(chan struct{})}
	conn := &connector{sessions: []session{{auth: authClient{authorized: true}, src: src}}}
	s := settings()
	s.StopGrace = 30 * time.Millisecond
	m := parsejob.NewManager(conn, s)
	rec := newRecorder(m)

	id, err := m.Start(context.Background(), parsejob.Params{Link: "@g", Credentials: creds})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return src.calls.Load() > 0 }, 5*time.Second, 5*time.Millisecond)

	res, err := m.Stop(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Graceful, "вызов висел до разрыва соединения")

	ev := rec.waitTerminal(t)
	assert.Equal(t, parsejob.EventStopped, ev.Kind)
	assert.Equal(t, 1, terminalCount(rec.byJob(id)))
	assert.False(t, m.Running())
}

// stuckSession зависает в ResolveGroup, не глядя ни на токен, ни на ctx.
type stuckSession struct {
	entered atomic.Bool
	release chan struct{}
}

func (s *stuckSession) Auth() authflow.AuthClient { return authClient{authorized: true} }

func (s *stuckSession) ResolveGroup(context.Context, string) (parsejob.Group, error) {
	s.entered.Store(true)
	<-s.release
	return parsejob.Group{ID: 10, Title: "Late", Source: &source{total: 1}}, nil
}

type stuckConnector struct {
	sess     *stuckSession
	returned chan struct{}
}

func (c *stuckConnector) Run(ctx context.Context, _ parsejob.Credentials, f func(context.Context, parsejob.Session) error) error {
	defer close(c.returned)
	return f(ctx, c.sess)
}

func TestManagerDropsEventsAfterDetach(t *testing.T) {
	t.Parallel()

	sess := &stuckSession{release: make(chan struct{})}
	conn := &stuckConnector{sess: sess, returned: make(chan struct{})}
	s := settings()
	s.StopGrace = 20 * time.Millisecond
	m := parsejob.NewManager(conn, s)
	rec := newRecorder(m)

	id, err := m.Start(context.Background(), parsejob.Params{Link: "@g", Credentials: creds})
	require.NoError(t, err)
	require.Eventually(t, sess.entered.Load, 5*time.Second, 5*time.Millisecond)

	res, err := m.Stop(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Graceful)
	assert.Equal(t, parsejob.EventStopped, rec.waitTerminal(t).Kind)
	assert.False(t, m.Running())

	// отпущенный воркер продолжает конвейер и пытается писать в журнал
	close(sess.release)
	select {
	case <-conn.returned:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not return")
	}

	events := rec.byJob(id)
	require.NotEmpty(t, events)
	assert.True(t, events[len(events)-1].Terminal(), "после терминального события ничего не приходит")
	assert.Equal(t, 1, terminalCount(events))
	for _, ev := range m.Log() {
		assert.NotContains(t, ev.Message, "Late")
	}
}

func TestManagerStartReplacesRunningJob(t *testing.T) {
	t.Parallel()

	first := &source{total: 100, block: make(chan struct{})}
	second := &source{total: 2}
	conn := &connector{sessions: []session{
		{auth: authClient{authorized: true}, src: first},
		{auth: authClient{authorized: true}, src: second},
	}}
	m := parsejob.NewManager(conn, settings())
	rec := newRecorder(m)

	id1, err := m.Start(context.Background(), parsejob.Params{Link: "@one", Credentials: creds})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return first.calls.Load() > 0 }, 5*time.Second, 5*time.Millisecond)

	id2, err := m.Start(context.Background(), parsejob.Params{Link: "@two", Credentials: creds})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	ev := rec.waitTerminal(t)
	assert.Equal(t, id1, ev.JobID)
	assert.Equal(t, parsejob.EventStopped, ev.Kind)

	ev = rec.waitTerminal(t)
	assert.Equal(t, id2, ev.JobID)
	assert.Equal(t, parsejob.EventFinished, ev.Kind)
	assert.Len(t, ev.Records, 2)

	assert.False(t, conn.overlap.Load(), "задачи не должны работать одновременно")
	assert.Equal(t, 1, terminalCount(rec.byJob(id1)))
	assert.Equal(t, 1, terminalCount(rec.byJob(id2)))
}

func TestManagerInteractiveAuth(t *testing.T) {
	t.Parallel()

	conn := &connector{sessions: []session{{auth: authClient{}, src: &source{total: 1}}}}
	m := parsejob.NewManager(conn, settings())

	prompts := make(chan authflow.Prompt, 4)
	m.Subscribe(func(ev parsejob.Event) {
		if ev.Kind == parsejob.EventPrompt {
			prompts <- *ev.Prompt
		}
	})
	rec := newRecorder(m)

	_, err := m.Answer("", "x")
	require.ErrorIs(t, err, parsejob.ErrNotRunning)

	_, err = m.Start(context.Background(), parsejob.Params{Link: "@g", Credentials: creds})
	require.NoError(t, err)

	for _, want := range []authflow.Kind{authflow.KindPhone, authflow.KindCode} {
		select {
		case p := <-prompts:
			require.Equal(t, want, p.Kind)
		case <-time.After(5 * time.Second):
			t.Fatalf("prompt %s not requested", want)
		}
		st := m.Status()
		require.NotNil(t, st.Prompt)
		assert.Equal(t, want, st.Prompt.Kind)
		kind, err := m.Answer("", "+100")
		require.NoError(t, err)
		assert.Equal(t, want, kind)
	}

	ev := rec.waitTerminal(t)
	assert.Equal(t, parsejob.EventFinished, ev.Kind)
}

func TestManagerAdminRequiredFails(t *testing.T) {
	t.Parallel()

	src := &source{err: tgerr.New(400, "CHAT_ADMIN_REQUIRED")}
	conn := &connector{sessions: []session{{auth: authClient{authorized: true}, src: src}}}
	m := parsejob.NewManager(conn, settings())
	rec := newRecorder(m)

	_, err := m.Start(context.Background(), parsejob.Params{Link: "@g", Credentials: creds})
	require.NoError(t, err)

	ev := rec.waitTerminal(t)
	assert.Equal(t, parsejob.EventFailed, ev.Kind)
	assert.Contains(t, ev.Message, "права администратора")
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestManagerListenerPanicDoesNotBreakJob(t *testing.T) {
	t.Parallel()

	conn := &connector{sessions: []session{{auth: authClient{authorized: true}, src: &source{total: 1}}}}
	m := parsejob.NewManager(conn, settings())
	m.Subscribe(func(parsejob.Event) { panic("ui bug") })
	rec := newRecorder(m)

	_, err := m.Start(context.Background(), parsejob.Params{Link: "@g", Credentials: creds})
	require.NoError(t, err)
	assert.Equal(t, parsejob.EventFinished, rec.waitTerminal(t).Kind)
}

// waitDone ждёт, пока воркер последней задачи вернётся.
func waitDone(t *testing.T, m *parsejob.Manager) <-chan struct{} {
	t.Helper()
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		for m.Running() {
			time.Sleep(time.Millisecond)
		}
	}()
	return ch
}
