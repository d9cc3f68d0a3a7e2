package parsejob

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/bebra552/TgGroopSoft/internal/domain/authflow"
	"github.com/bebra552/TgGroopSoft/internal/domain/collector"
	"github.com/bebra552/TgGroopSoft/internal/domain/members"
	"github.com/bebra552/TgGroopSoft/internal/infra/concurrency"
	"github.com/bebra552/TgGroopSoft/internal/infra/logger"
	"github.com/bebra552/TgGroopSoft/internal/infra/metrics"
)

// ErrCancelled — задача остановлена пользователем.
var ErrCancelled = errors.New("job cancelled")

// ErrGroupNotFound оборачивает ошибки разрешения имени группы.
var ErrGroupNotFound = errors.New("group not found")

// State — состояние задачи.
type State string

const (
	StateRunning  State = "running"
	StateFinished State = "finished"
	StateFailed   State = "failed"
	StateStopped  State = "stopped"
)

// Params — входные данные задачи.
type Params struct {
	Link        string
	MaxMembers  int
	Credentials Credentials
}

// Job — одна фоновая выгрузка. Все поля после mu меняются только под ним.
type Job struct {
	id       int64
	params   Params
	handle   string
	settings Settings
	started  time.Time

	stop       *concurrency.Token
	connCtx    context.Context
	connCancel context.CancelFunc
	coord      *authflow.Coordinator
	done       chan struct{}
	emit       func(*Job, Event)

	mu        sync.Mutex
	state     State
	finished  time.Time
	collected int
	target    int
	chat      string
	self      *tg.User
	records   []members.Record
	terminal  bool
}

// ID — порядковый номер задачи в процессе.
func (j *Job) ID() int64 { return j.id }

// Done закрывается, когда горутина воркера вернулась.
func (j *Job) Done() <-chan struct{} { return j.done }

func (j *Job) logf(format string, args ...any) {
	j.emit(j, Event{Kind: EventLog, Message: fmt.Sprintf(format, args...)})
}

func (j *Job) setProgress(collected, target int) {
	j.mu.Lock()
	j.collected, j.target = collected, target
	j.mu.Unlock()
	j.emit(j, Event{Kind: EventProgress, Collected: collected, Target: target})
}

// finish публикует единственное терминальное событие. Повторные вызовы
// игнорируются.
func (j *Job) finish(ev Event) bool {
	j.mu.Lock()
	if j.terminal {
		j.mu.Unlock()
		return false
	}
	j.terminal = true
	j.finished = time.Now()
	switch ev.Kind {
	case EventFinished:
		j.state = StateFinished
	case EventFailed:
		j.state = StateFailed
	default:
		j.state = StateStopped
	}
	j.mu.Unlock()

	metrics.JobsTotal.WithLabelValues(string(j.State())).Inc()
	j.emit(j, ev)
	return true
}

func (j *Job) ended() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.terminal
}

// State — текущее состояние.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// run — тело воркера. Всегда завершается ровно одним терминальным событием
// (если его уже не опубликовал Manager при принудительной остановке).
func (j *Job) run(connector Connector) {
	defer close(j.done)
	defer j.connCancel()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("parse job panicked", zap.Int64("job", j.id), zap.Any("panic", r))
			j.finish(Event{Kind: EventFailed, Message: fmt.Sprintf("❌ Внутренняя ошибка: %v", r)})
		}
	}()

	j.logf("🔄 Инициализация клиента...")
	err := connector.Run(j.connCtx, j.params.Credentials, j.pipeline)
	j.complete(err)
}

func (j *Job) complete(err error) {
	if err == nil {
		j.mu.Lock()
		chat, recs := j.chat, j.records
		j.mu.Unlock()
		j.finish(Event{
			Kind:      EventFinished,
			Message:   fmt.Sprintf("🎉 Парсинг завершен! Получено %d участников", len(recs)),
			Chat:      chat,
			Records:   recs,
			Collected: len(recs),
			Target:    len(recs),
		})
		return
	}

	if j.stop.Cancelled() || isCancelled(err) {
		logger.Info("parse job stopped", zap.Int64("job", j.id), zap.Error(err))
		j.finish(Event{Kind: EventStopped, Message: "⏹️ Парсинг остановлен"})
		return
	}

	logger.Error("parse job failed", zap.Int64("job", j.id), zap.Error(err))
	j.finish(Event{Kind: EventFailed, Message: describeError(err)})
}

func (j *Job) pipeline(ctx context.Context, s Session) error {
	j.logf("🔐 Подключение к Telegram...")
	self, err := j.coord.Authenticate(ctx, j.stop, s.Auth())
	if err != nil {
		return err
	}
	j.mu.Lock()
	j.self = self
	j.mu.Unlock()
	j.logf("✅ Авторизован как: %s", authflow.DisplayName(self))

	if j.stop.Cancelled() {
		return ErrCancelled
	}
	j.logf("🔍 Поиск группы: %s", j.handle)
	group, err := s.ResolveGroup(ctx, j.handle)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGroupNotFound, err)
	}
	j.mu.Lock()
	j.chat = group.Title
	j.mu.Unlock()

	j.logf("📊 Группа: %s", group.Title)
	count := members.Unknown
	if group.Members > 0 {
		count = strconv.Itoa(group.Members)
	}
	j.logf("👥 Участников: %s", count)

	if j.stop.Cancelled() {
		return ErrCancelled
	}
	j.logf("📥 Получение участников...")
	coll := collector.New(collector.Options{
		Cap:           j.params.MaxMembers,
		PageSize:      j.settings.PageSize,
		ItemDelay:     j.settings.ItemDelay,
		ProgressEvery: j.settings.ProgressEvery,
		Sleep:         j.settings.Sleep,
		OnProgress: func(p collector.Progress) {
			if p.FloodWait > 0 {
				j.logf("⏳ FloodWait: ожидание %d сек", int(p.FloodWait.Seconds()))
				return
			}
			j.setProgress(p.Collected, p.Target)
			j.logf("📥 Получено участников: %d", p.Collected)
		},
	})
	raw, err := coll.Collect(ctx, j.stop, group.Source)
	if err != nil {
		return err
	}

	j.logf("📦 Получено %d участников, обработка...", len(raw))
	recs := members.NormalizeAll(raw, j.settings.ProgressEvery, func(done, total int) {
		j.logf("🔄 Обработано: %d/%d", done, total)
	})
	if j.stop.Cancelled() {
		return ErrCancelled
	}

	j.mu.Lock()
	j.records = recs
	j.mu.Unlock()
	return nil
}

func isCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, collector.ErrCancelled) ||
		errors.Is(err, authflow.ErrCancelled)
}

// describeError превращает ошибку в строку для пользователя.
func describeError(err error) string {
	switch {
	case errors.Is(err, collector.ErrAdminRequired):
		return "❌ Требуются права администратора для получения списка участников"
	case errors.Is(err, authflow.ErrAuthFailed):
		return "❌ Ошибка авторизации: " + err.Error()
	case errors.Is(err, ErrGroupNotFound):
		return "❌ Группа не найдена: " + err.Error()
	default:
		return "❌ Ошибка: " + err.Error()
	}
}
