package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/bebra552/TgGroopSoft/internal/domain/authflow"
	"github.com/bebra552/TgGroopSoft/internal/domain/parsejob"
	"github.com/bebra552/TgGroopSoft/internal/domain/results"
	"github.com/bebra552/TgGroopSoft/internal/infra/apptime"
	"github.com/bebra552/TgGroopSoft/internal/infra/logger"
	"github.com/bebra552/TgGroopSoft/internal/infra/telegram/session"
	versioninfo "github.com/bebra552/TgGroopSoft/internal/support/version"
)

// probeTimeout ограничивает whoami-подключение вне задачи.
const probeTimeout = 20 * time.Second

// Options - окружение исполнителя команд.
type Options struct {
	Session     session.Paths        // файлы сессии
	SaveDir     string               // каталог выгрузки по умолчанию
	MaxMembers  int                  // лимит участников по умолчанию
	Credentials parsejob.Credentials // API ID/hash по умолчанию
}

// CommandExecutor - реализация интерфейса Executor
type CommandExecutor struct {
	manager   *parsejob.Manager
	connector parsejob.Connector
	sink      *results.Sink
	opts      Options

	mu    sync.Mutex
	creds parsejob.Credentials
	self  *tg.User // последний подтверждённый аккаунт

	// probeMu не даёт whoami-проверке и задаче открыть сессию одновременно.
	probeMu sync.Mutex

	unsubscribe func()
}

var _ Executor = (*CommandExecutor)(nil)

// NewExecutor создает новый экземпляр CommandExecutor и подписывает таблицу
// результатов на завершение задач.
func NewExecutor(
	manager *parsejob.Manager,
	connector parsejob.Connector,
	sink *results.Sink,
	opts Options,
) *CommandExecutor {
	e := &CommandExecutor{
		manager:   manager,
		connector: connector,
		sink:      sink,
		opts:      opts,
		creds:     opts.Credentials,
	}
	e.unsubscribe = manager.Subscribe(e.onEvent)
	return e
}

// Close отписывает исполнителя от событий менеджера.
func (e *CommandExecutor) Close() {
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
}

func (e *CommandExecutor) onEvent(ev parsejob.Event) {
	if ev.Kind != parsejob.EventFinished {
		return
	}
	e.sink.Replace(ev.Chat, ev.Records)
	logger.Info("results table updated",
		zap.Int64("job", ev.JobID),
		zap.String("chat", ev.Chat),
		zap.Int("records", len(ev.Records)),
	)
}

// Start запускает парсинг группы; текущая задача, если есть, останавливается
func (e *CommandExecutor) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	creds := e.credentials()
	if req.APIID > 0 {
		creds.APIID = req.APIID
	}
	if h := strings.TrimSpace(req.APIHash); h != "" {
		creds.APIHash = h
	}

	limit := e.opts.MaxMembers
	if req.MaxMembers != nil {
		limit = *req.MaxMembers
	}
	if limit < 0 {
		return nil, fmt.Errorf("max members must not be negative: %d", limit)
	}

	e.probeMu.Lock()
	defer e.probeMu.Unlock()

	id, err := e.manager.Start(ctx, parsejob.Params{
		Link:        req.Link,
		MaxMembers:  limit,
		Credentials: creds,
	})
	if err != nil {
		return nil, err
	}
	return &StartResult{JobID: id, MaxMembers: limit}, nil
}

// Stop останавливает активную задачу
func (e *CommandExecutor) Stop(ctx context.Context) (*StopResult, error) {
	res, err := e.manager.Stop(ctx)
	if err != nil {
		return nil, err
	}
	return &StopResult{JobID: res.JobID, Graceful: res.Graceful}, nil
}

// Answer передаёт ответ на запрос авторизации (телефон, код, пароль)
func (e *CommandExecutor) Answer(_ context.Context, kind authflow.Kind, value string) (authflow.Kind, error) {
	return e.manager.Answer(kind, value)
}

// Pending возвращает открытый запрос авторизации активной задачи
func (e *CommandExecutor) Pending(_ context.Context) (authflow.Prompt, bool) {
	return e.manager.Pending()
}

// Status возвращает состояние последней задачи и результатов
func (e *CommandExecutor) Status(_ context.Context) (*StatusResult, error) {
	st := e.manager.Status()
	if st.Account != nil {
		e.rememberSelf(st.Account)
	}
	return &StatusResult{
		Job:            st,
		Prompt:         st.Prompt,
		ResultsCount:   e.sink.Len(),
		ResultsChat:    e.sink.Chat(),
		ResultsUpdated: e.sink.Updated(),
		HasCredentials: e.credentials().Valid(),
		SessionExists:  e.opts.Session.Exists(),
	}, nil
}

// Events возвращает журнал последней задачи
func (e *CommandExecutor) Events(_ context.Context) []parsejob.Event {
	return e.manager.Log()
}

// Subscribe подписывает на события задач
func (e *CommandExecutor) Subscribe(l parsejob.Listener) func() {
	return e.manager.Subscribe(l)
}

// Results возвращает таблицу результатов
func (e *CommandExecutor) Results(_ context.Context, limit int) (*ResultsResult, error) {
	return &ResultsResult{
		Chat:    e.sink.Chat(),
		Columns: e.sink.Columns(),
		Rows:    e.sink.Rows(limit),
		Total:   e.sink.Len(),
	}, nil
}

// Save сохраняет результаты в файл. Пустой путь — файл по умолчанию в SaveDir.
func (e *CommandExecutor) Save(_ context.Context, path string) (*SaveResult, error) {
	if e.sink.Len() == 0 {
		return nil, results.ErrEmpty
	}
	target := results.ResolvePath(e.opts.SaveDir, path, apptime.Now())
	format, err := e.sink.Save(target)
	if err != nil {
		return nil, err
	}
	return &SaveResult{Path: target, Format: format, Records: e.sink.Len()}, nil
}

// Export пишет результаты в w в указанном формате
func (e *CommandExecutor) Export(_ context.Context, format results.Format, w io.Writer) error {
	if e.sink.Len() == 0 {
		return results.ErrEmpty
	}
	switch format {
	case results.FormatCSV:
		return e.sink.WriteCSV(w)
	case results.FormatXLSX:
		return e.sink.WriteXLSX(w)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// ClearResults очищает таблицу результатов
func (e *CommandExecutor) ClearResults(_ context.Context) error {
	e.sink.Clear()
	return nil
}

// ClearSession удаляет файлы сохранённой сессии. Во время парсинга запрещено:
// воркер держит файлы открытыми.
func (e *CommandExecutor) ClearSession(_ context.Context) (*ClearSessionResult, error) {
	e.probeMu.Lock()
	defer e.probeMu.Unlock()

	if e.manager.Running() {
		return nil, ErrJobRunning
	}
	removed, err := e.opts.Session.Clear()
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.self = nil
	e.mu.Unlock()
	return &ClearSessionResult{Removed: removed}, nil
}

// SetCredentials задаёт API ID/hash по умолчанию для следующих запусков
func (e *CommandExecutor) SetCredentials(_ context.Context, apiID int, apiHash string) error {
	creds := parsejob.Credentials{APIID: apiID, APIHash: strings.TrimSpace(apiHash)}
	if !creds.Valid() {
		return parsejob.ErrNoCredentials
	}
	e.mu.Lock()
	e.creds = creds
	e.mu.Unlock()
	logger.Info("default credentials updated", zap.Int("api_id", apiID))
	return nil
}

// Whoami возвращает информацию о текущем аккаунте. Во время задачи отвечает
// из её состояния; в простое проверяет сохранённую сессию без интерактивного входа.
func (e *CommandExecutor) Whoami(ctx context.Context) (*WhoamiResult, error) {
	if st := e.manager.Status(); st.Account != nil && st.Running {
		return whoamiOf(st.Account), nil
	}
	if e.manager.Running() {
		return nil, ErrJobRunning
	}
	if !e.opts.Session.Exists() {
		return nil, ErrNotAuthorized
	}
	creds := e.credentials()
	if !creds.Valid() {
		if self := e.cachedSelf(); self != nil {
			return whoamiOf(self), nil
		}
		return nil, parsejob.ErrNoCredentials
	}

	e.probeMu.Lock()
	defer e.probeMu.Unlock()
	// пока ждали замок, Start мог запустить задачу: сессия уже у воркера
	if e.manager.Running() {
		return nil, ErrJobRunning
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var self *tg.User
	err := e.connector.Run(probeCtx, creds, func(ctx context.Context, s parsejob.Session) error {
		u, ok, err := s.Auth().Status(ctx)
		if err != nil {
			return err
		}
		if !ok || u == nil {
			return ErrNotAuthorized
		}
		self = u
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotAuthorized) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get self: %w", err)
	}
	e.rememberSelf(self)
	return whoamiOf(self), nil
}

// Version возвращает информацию о версии приложения
func (e *CommandExecutor) Version(_ context.Context) (*VersionResult, error) {
	return &VersionResult{
		Name:    versioninfo.Name,
		Version: versioninfo.Version,
	}, nil
}

func (e *CommandExecutor) credentials() parsejob.Credentials {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.creds
}

func (e *CommandExecutor) rememberSelf(u *tg.User) {
	e.mu.Lock()
	e.self = u
	e.mu.Unlock()
}

func (e *CommandExecutor) cachedSelf() *tg.User {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.self
}

func whoamiOf(self *tg.User) *WhoamiResult {
	fullname := strings.TrimSpace(strings.Join([]string{self.FirstName, self.LastName}, " "))
	if fullname == "" {
		fullname = "<unknown>"
	}
	return &WhoamiResult{
		ID:       self.ID,
		FullName: fullname,
		Username: self.Username,
		Phone:    self.Phone,
	}
}
