// Package parsejob запускает выгрузку участников в фоне: вход, поиск группы,
// сбор и нормализация. Manager держит не больше одной активной задачи и
// доставляет её события подписчикам (CLI, веб) в порядке возникновения.
package parsejob

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/bebra552/TgGroopSoft/internal/domain/authflow"
	"github.com/bebra552/TgGroopSoft/internal/domain/members"
	"github.com/bebra552/TgGroopSoft/internal/infra/concurrency"
	"github.com/bebra552/TgGroopSoft/internal/infra/logger"
	"github.com/bebra552/TgGroopSoft/internal/infra/metrics"
)

var (
	// ErrNoCredentials — API ID/hash не заданы.
	ErrNoCredentials = errors.New("api id and api hash are required")
	// ErrNotRunning — нет активной задачи.
	ErrNotRunning = errors.New("no running job")
)

const (
	defaultGrace = 5 * time.Second
	// forceWait — сколько ждём воркер после разрыва соединения.
	forceWait = 2 * time.Second
	// logLimit — сколько событий журнала хранится для UI.
	logLimit = 500
)

// Settings — политика задач.
type Settings struct {
	PageSize      int
	ItemDelay     time.Duration
	ProgressEvery int
	// StartGrace — ожидание остановки предыдущей задачи при Start.
	StartGrace time.Duration
	// StopGrace — ожидание остановки при Stop.
	StopGrace time.Duration
	// Sleep подменяет паузы сборщика в тестах.
	Sleep func(stop *concurrency.Token, d time.Duration) bool
}

// Status — снимок для UI.
type Status struct {
	JobID     int64
	Running   bool
	State     State
	Link      string
	Handle    string
	Chat      string
	Collected int
	Target    int
	Started   time.Time
	Finished  time.Time
	Prompt    *authflow.Prompt
	// Account — аккаунт, под которым прошла авторизация (nil до входа).
	Account *tg.User
}

// StopResult — итог Stop.
type StopResult struct {
	JobID    int64
	Graceful bool
}

// Manager управляет жизненным циклом задач.
type Manager struct {
	connector Connector
	settings  Settings

	// ctlMu сериализует Start/Stop: новая задача не стартует, пока старая не
	// остановлена.
	ctlMu sync.Mutex

	mu        sync.Mutex
	current   *Job
	nextID    int64
	listeners map[int]Listener
	nextSub   int

	// emitMu упорядочивает доставку событий.
	emitMu sync.Mutex
	seq    int64
	log    []Event
}

// NewManager создаёт менеджер задач.
func NewManager(connector Connector, settings Settings) *Manager {
	if settings.StartGrace <= 0 {
		settings.StartGrace = defaultGrace
	}
	if settings.StopGrace <= 0 {
		settings.StopGrace = defaultGrace
	}
	return &Manager{
		connector: connector,
		settings:  settings,
		listeners: make(map[int]Listener),
	}
}

// Subscribe добавляет слушателя событий. Возвращает функцию отписки.
func (m *Manager) Subscribe(l Listener) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.listeners[id] = l
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Start останавливает текущую задачу (если есть) и запускает новую.
// Ошибки валидации возвращаются сразу, задача при этом не создаётся.
func (m *Manager) Start(ctx context.Context, p Params) (int64, error) {
	handle, err := members.ExtractHandle(p.Link)
	if err != nil {
		return 0, err
	}
	if !p.Credentials.Valid() {
		return 0, ErrNoCredentials
	}
	if p.MaxMembers < 0 {
		p.MaxMembers = 0
	}

	m.ctlMu.Lock()
	defer m.ctlMu.Unlock()

	if prev := m.active(); prev != nil {
		logger.Info("stopping previous job before start", zap.Int64("job", prev.id))
		m.stopJob(prev, m.settings.StartGrace)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.nextID++
	connCtx, connCancel := context.WithCancel(context.Background())
	job := &Job{
		id:         m.nextID,
		params:     p,
		handle:     handle,
		settings:   m.settings,
		started:    time.Now(),
		stop:       concurrency.NewToken(),
		connCtx:    connCtx,
		connCancel: connCancel,
		done:       make(chan struct{}),
		emit:       m.emit,
		state:      StateRunning,
	}
	job.coord = authflow.NewCoordinator(func(pr authflow.Prompt) {
		prompt := pr
		m.emit(job, Event{Kind: EventPrompt, Message: pr.Message, Prompt: &prompt})
	})
	m.current = job
	m.mu.Unlock()

	m.emitMu.Lock()
	m.log = nil
	m.emitMu.Unlock()

	logger.Info("parse job started",
		zap.Int64("job", job.id),
		zap.String("handle", handle),
		zap.Int("max_members", p.MaxMembers),
	)
	metrics.JobActive.Set(1)
	go func() {
		defer func() {
			if m.active() == nil {
				metrics.JobActive.Set(0)
			}
		}()
		job.run(m.connector)
	}()
	return job.id, nil
}

// Stop запрашивает остановку активной задачи и ждёт её StopGrace.
// Если воркер не уложился, соединение разрывается принудительно.
func (m *Manager) Stop(_ context.Context) (StopResult, error) {
	m.ctlMu.Lock()
	defer m.ctlMu.Unlock()

	job := m.active()
	if job == nil {
		return StopResult{}, ErrNotRunning
	}
	graceful := m.stopJob(job, m.settings.StopGrace)
	return StopResult{JobID: job.id, Graceful: graceful}, nil
}

// Shutdown останавливает активную задачу при выходе из приложения.
func (m *Manager) Shutdown() {
	m.ctlMu.Lock()
	defer m.ctlMu.Unlock()
	if job := m.active(); job != nil {
		m.stopJob(job, m.settings.StopGrace)
	}
}

// stopJob: токен → ожидание grace → разрыв соединения → короткое ожидание.
// Если воркер так и не вернулся, Manager сам публикует Stopped и отпускает его.
func (m *Manager) stopJob(job *Job, grace time.Duration) bool {
	job.logf("⏹️ Остановка парсинга...")
	job.stop.Cancel()
	if concurrency.WaitTimeout(job.done, grace) {
		return true
	}

	logger.Warn("parse job did not stop within grace period, forcing",
		zap.Int64("job", job.id), zap.Duration("grace", grace))
	metrics.ForcedStopsTotal.Inc()
	job.connCancel()
	if !concurrency.WaitTimeout(job.done, forceWait) {
		logger.Error("parse job is still running after forced termination, detaching",
			zap.Int64("job", job.id))
		job.finish(Event{Kind: EventStopped, Message: "⏹️ Парсинг остановлен принудительно"})
		m.mu.Lock()
		if m.current == job {
			m.current = nil
		}
		m.mu.Unlock()
	}
	return false
}

// active возвращает задачу, воркер которой ещё работает.
func (m *Manager) active() *Job {
	m.mu.Lock()
	job := m.current
	m.mu.Unlock()
	if job == nil {
		return nil
	}
	select {
	case <-job.done:
		return nil
	default:
		return job
	}
}

// Running сообщает, есть ли активная задача.
func (m *Manager) Running() bool {
	return m.active() != nil
}

// Answer передаёт ответ пользователя на открытый запрос авторизации.
// Пустой kind означает «ответ на текущий запрос».
func (m *Manager) Answer(kind authflow.Kind, value string) (authflow.Kind, error) {
	job := m.active()
	if job == nil {
		return "", ErrNotRunning
	}
	if kind == "" {
		return job.coord.SubmitPending(value)
	}
	return kind, job.coord.Submit(kind, value)
}

// Pending — открытый запрос авторизации активной задачи.
func (m *Manager) Pending() (authflow.Prompt, bool) {
	job := m.active()
	if job == nil {
		return authflow.Prompt{}, false
	}
	return job.coord.Pending()
}

// Status возвращает снимок последней задачи (активной или завершённой).
func (m *Manager) Status() Status {
	m.mu.Lock()
	job := m.current
	m.mu.Unlock()
	if job == nil {
		return Status{}
	}

	job.mu.Lock()
	st := Status{
		JobID:     job.id,
		State:     job.state,
		Link:      job.params.Link,
		Handle:    job.handle,
		Chat:      job.chat,
		Collected: job.collected,
		Target:    job.target,
		Started:   job.started,
		Finished:  job.finished,
		Account:   job.self,
	}
	job.mu.Unlock()

	st.Running = m.active() == job
	if p, ok := job.coord.Pending(); ok && st.Running {
		st.Prompt = &p
	}
	return st
}

// Log возвращает копию журнала последней задачи.
func (m *Manager) Log() []Event {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()
	out := make([]Event, len(m.log))
	copy(out, m.log)
	return out
}

// emit нумерует событие, сохраняет его в журнал и раздаёт слушателям.
func (m *Manager) emit(job *Job, ev Event) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	// воркер, отпущенный после принудительной остановки, может ещё писать
	if !ev.Terminal() && job.ended() {
		logger.Debug("event after job end dropped",
			zap.Int64("job", job.id), zap.String("kind", string(ev.Kind)))
		return
	}

	m.seq++
	ev.JobID = job.id
	ev.Seq = m.seq
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	logged := ev
	logged.Records = nil
	m.log = append(m.log, logged)
	if len(m.log) > logLimit {
		m.log = append([]Event(nil), m.log[len(m.log)-logLimit:]...)
	}

	m.mu.Lock()
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		deliver(l, ev)
	}
}

// deliver защищает воркер от паники в UI.
func deliver(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event listener panicked", zap.String("kind", string(ev.Kind)), zap.Any("panic", r))
		}
	}()
	l(ev)
}

// DescribeStartError — текст ошибки Start для пользователя.
func DescribeStartError(err error) string {
	switch {
	case errors.Is(err, ErrNoCredentials):
		return "❌ Заполните API ID и API Hash"
	case errors.Is(err, members.ErrInviteLink):
		return "❌ Приватные пригласительные ссылки не поддерживаются, укажите публичную ссылку"
	case errors.Is(err, members.ErrInvalidLink):
		return "❌ Укажите ссылку на группу"
	default:
		return fmt.Sprintf("❌ %v", err)
	}
}
