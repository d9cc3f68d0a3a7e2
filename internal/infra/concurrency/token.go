package concurrency

import (
	"sync"
	"time"
)

// Token — кооперативный сигнал остановки. Воркер проверяет его на границах
// шагов и в каждом ожидании; уже начатый сетевой вызов токен не прерывает.
// Нулевое значение непригодно, используйте NewToken.
type Token struct {
	once sync.Once
	ch   chan struct{}
}

// NewToken создаёт неотменённый токен.
func NewToken() *Token {
	return &Token{ch: make(chan struct{})}
}

// Cancel запрашивает остановку. Идемпотентна.
func (t *Token) Cancel() {
	t.once.Do(func() { close(t.ch) })
}

// Done закрывается после Cancel.
func (t *Token) Done() <-chan struct{} {
	return t.ch
}

// Cancelled сообщает, запрошена ли остановка.
func (t *Token) Cancelled() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

// Sleep спит d или до отмены. Возвращает false, если сон прерван отменой.
func (t *Token) Sleep(d time.Duration) bool {
	if t.Cancelled() {
		return false
	}
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-t.ch:
		return false
	}
}
