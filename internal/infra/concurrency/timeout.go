// Package concurrency — утилиты для безопасного конкурентного исполнения:
// кооперативный токен отмены фоновой задачи и ожидание завершения с таймаутом.
package concurrency

import (
	"time"

	"go.uber.org/zap"

	"github.com/bebra552/TgGroopSoft/internal/infra/logger"
)

// WaitTimeout ждёт закрытия done не дольше timeout.
// Возвращает true, если done закрылся вовремя. Нулевой или отрицательный
// timeout означает проверку без ожидания.
func WaitTimeout(done <-chan struct{}, timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		logger.Debug("wait timeout reached", zap.Duration("timeout", timeout))
		return false
	}
}
