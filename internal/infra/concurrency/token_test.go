package concurrency_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bebra552/TgGroopSoft/internal/infra/concurrency"
)

func TestTokenSleepInterruptedByCancel(t *testing.T) {
	t.Parallel()

	tok := concurrency.NewToken()
	go func() {
		time.Sleep(20 * time.Millisecond)
		tok.Cancel()
	}()

	start := time.Now()
	ok := tok.Sleep(10 * time.Second)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, tok.Cancelled())

	// повторная отмена безопасна
	tok.Cancel()
	assert.False(t, tok.Sleep(time.Millisecond))
}

func TestTokenSleepCompletes(t *testing.T) {
	t.Parallel()

	tok := concurrency.NewToken()
	assert.True(t, tok.Sleep(5*time.Millisecond))
	assert.True(t, tok.Sleep(0))
	assert.False(t, tok.Cancelled())
}

func TestWaitTimeout(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	assert.False(t, concurrency.WaitTimeout(done, 10*time.Millisecond))
	assert.False(t, concurrency.WaitTimeout(done, 0))

	close(done)
	assert.True(t, concurrency.WaitTimeout(done, time.Second))
	assert.True(t, concurrency.WaitTimeout(done, 0))
}
