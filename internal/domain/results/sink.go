// Package results хранит последний собранный список участников и выгружает
// его в CSV или XLSX.
package results

import (
	"errors"
	"sync"
	"time"

	"github.com/bebra552/TgGroopSoft/internal/domain/members"
)

// ErrEmpty — сохранять нечего.
var ErrEmpty = errors.New("no records to save")

// Sink — упорядоченный набор записей последней успешной задачи.
// Безопасен для одновременного чтения из UI и записи из обработчика событий.
type Sink struct {
	mu      sync.RWMutex
	records []members.Record
	chat    string
	updated time.Time
}

// NewSink создаёт пустой набор.
func NewSink() *Sink {
	return &Sink{}
}

// Replace заменяет содержимое результатом новой задачи.
func (s *Sink) Replace(chat string, recs []members.Record) {
	cp := make([]members.Record, len(recs))
	copy(cp, recs)

	s.mu.Lock()
	s.records = cp
	s.chat = chat
	s.updated = time.Now()
	s.mu.Unlock()
}

// Clear очищает набор.
func (s *Sink) Clear() {
	s.mu.Lock()
	s.records = nil
	s.chat = ""
	s.updated = time.Time{}
	s.mu.Unlock()
}

// Len — число записей.
func (s *Sink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Chat — название группы, из которой получены записи.
func (s *Sink) Chat() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chat
}

// Updated — время последней замены (нулевое, если набор пуст).
func (s *Sink) Updated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}

// Records возвращает копию записей.
func (s *Sink) Records() []members.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]members.Record, len(s.records))
	copy(out, s.records)
	return out
}

// Columns — заголовок таблицы по первой записи; у пустого набора колонок нет.
func (s *Sink) Columns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return nil
	}
	cols := make([]string, len(members.Columns))
	copy(cols, members.Columns)
	return cols
}

// Rows возвращает первые limit строк (limit <= 0 — все).
func (s *Sink) Rows(limit int) [][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.records)
	if limit > 0 && limit < n {
		n = limit
	}
	rows := make([][]string, 0, n)
	for _, r := range s.records[:n] {
		rows = append(rows, r.Fields())
	}
	return rows
}
