package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bebra552/TgGroopSoft/internal/domain/commands"
	"github.com/bebra552/TgGroopSoft/internal/domain/parsejob"
	"github.com/bebra552/TgGroopSoft/internal/domain/results"
	"github.com/bebra552/TgGroopSoft/internal/infra/config"
)

func TestSettingsFromEnv(t *testing.T) {
	t.Parallel()
	s := settingsFromEnv(config.EnvConfig{
		PageSize:      200,
		MemberDelayMS: 100,
		ProgressEvery: 50,
		StartGraceSec: 3,
		StopGraceSec:  5,
	})
	assert.Equal(t, 200, s.PageSize)
	assert.Equal(t, 100*time.Millisecond, s.ItemDelay)
	assert.Equal(t, 50, s.ProgressEvery)
	assert.Equal(t, 3*time.Second, s.StartGrace)
	assert.Equal(t, 5*time.Second, s.StopGrace)
}

func TestRunnerWithoutFrontend(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := parsejob.NewManager(nil, parsejob.Settings{})
	exec := commands.NewExecutor(m, nil, results.NewSink(), commands.Options{})
	r := NewRunner(ctx, cancel, config.EnvConfig{WebServerEnable: false}, m, exec)

	require.ErrorIs(t, r.Run(), ErrNoFrontend)
}

func TestAppRunRequiresInit(t *testing.T) {
	t.Parallel()
	require.Error(t, NewApp().Run())
}
