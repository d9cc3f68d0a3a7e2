package commands

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bebra552/TgGroopSoft/internal/domain/parsejob"
	"github.com/bebra552/TgGroopSoft/internal/domain/results"
	"github.com/bebra552/TgGroopSoft/internal/infra/telegram/session"
)

// holdingConnector держит подключение до отмены ctx и считает запуски.
type holdingConnector struct {
	runs    atomic.Int32
	entered chan struct{}
}

func (c *holdingConnector) Run(ctx context.Context, _ parsejob.Credentials, _ func(context.Context, parsejob.Session) error) error {
	c.runs.Add(1)
	select {
	case c.entered <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestWhoamiRechecksJobAfterLock(t *testing.T) {
	t.Parallel()

	paths := session.NewPaths(t.TempDir(), "test")
	require.NoError(t, os.MkdirAll(paths.Dir, 0o700))
	require.NoError(t, os.WriteFile(paths.SessionFile(), []byte("{}"), 0o600))

	creds := parsejob.Credentials{APIID: 1, APIHash: "h"}
	conn := &holdingConnector{entered: make(chan struct{}, 1)}
	m := parsejob.NewManager(conn, parsejob.Settings{
		StartGrace: 20 * time.Millisecond,
		StopGrace:  20 * time.Millisecond,
	})
	t.Cleanup(m.Shutdown)
	e := NewExecutor(m, conn, results.NewSink(), Options{Session: paths, Credentials: creds})
	t.Cleanup(e.Close)

	// Whoami проходит первую проверку и встаёт в очередь за замком
	e.probeMu.Lock()
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, err := e.Whoami(ctx)
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)

	_, err := m.Start(context.Background(), parsejob.Params{Link: "gophers", Credentials: creds})
	require.NoError(t, err)
	select {
	case <-conn.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not connect")
	}
	e.probeMu.Unlock()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrJobRunning)
	case <-time.After(5 * time.Second):
		t.Fatal("whoami did not return")
	}
	assert.Equal(t, int32(1), conn.runs.Load(), "сессию открывает только задача")
}
