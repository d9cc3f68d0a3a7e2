package parsejob

import (
	"time"

	"github.com/bebra552/TgGroopSoft/internal/domain/authflow"
	"github.com/bebra552/TgGroopSoft/internal/domain/members"
)

// EventKind — тип события задачи.
type EventKind string

const (
	// EventLog — строка журнала прогресса.
	EventLog EventKind = "log"
	// EventProgress — числовой прогресс сбора.
	EventProgress EventKind = "progress"
	// EventPrompt — воркер ждёт ввода пользователя.
	EventPrompt EventKind = "prompt"
	// Терминальные события: ровно одно на задачу.
	EventFinished EventKind = "finished"
	EventFailed   EventKind = "failed"
	EventStopped  EventKind = "stopped"
)

// Event — сообщение от воркера к UI. События одной задачи приходят в порядке Seq.
type Event struct {
	JobID     int64
	Seq       int64
	Kind      EventKind
	Time      time.Time
	Message   string
	Collected int
	Target    int
	Prompt    *authflow.Prompt
	Chat      string
	// Records заполнен только у EventFinished.
	Records []members.Record
}

// Terminal сообщает, завершает ли событие задачу.
func (e Event) Terminal() bool {
	switch e.Kind {
	case EventFinished, EventFailed, EventStopped:
		return true
	default:
		return false
	}
}

// Listener получает события в горутине, которая их породила. Должен
// возвращаться быстро и не вызывать методы Manager, меняющие задачу.
type Listener func(Event)
