// Package commands предоставляет общий интерфейс для выполнения команд управления
// парсером. Команды используются как CLI-адаптером, так и веб-интерфейсом.
package commands

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/bebra552/TgGroopSoft/internal/domain/authflow"
	"github.com/bebra552/TgGroopSoft/internal/domain/parsejob"
	"github.com/bebra552/TgGroopSoft/internal/domain/results"
)

var (
	// ErrJobRunning — операция недоступна во время парсинга.
	ErrJobRunning = errors.New("parse job is running")
	// ErrNotAuthorized — сохранённой авторизации нет.
	ErrNotAuthorized = errors.New("not authorized")
)

// Executor - интерфейс для выполнения команд управления парсером.
type Executor interface {
	// Start запускает парсинг группы; текущая задача, если есть, останавливается
	Start(ctx context.Context, req StartRequest) (*StartResult, error)

	// Stop останавливает активную задачу
	Stop(ctx context.Context) (*StopResult, error)

	// Answer передаёт ответ на запрос авторизации (телефон, код, пароль)
	Answer(ctx context.Context, kind authflow.Kind, value string) (authflow.Kind, error)

	// Pending возвращает открытый запрос авторизации активной задачи
	Pending(ctx context.Context) (authflow.Prompt, bool)

	// Status возвращает состояние последней задачи и результатов
	Status(ctx context.Context) (*StatusResult, error)

	// Events возвращает журнал последней задачи
	Events(ctx context.Context) []parsejob.Event

	// Subscribe подписывает на события задач
	Subscribe(l parsejob.Listener) func()

	// Results возвращает таблицу результатов (не больше limit строк, 0 — все)
	Results(ctx context.Context, limit int) (*ResultsResult, error)

	// Save сохраняет результаты в файл (CSV или XLSX по расширению)
	Save(ctx context.Context, path string) (*SaveResult, error)

	// Export пишет результаты в w в указанном формате
	Export(ctx context.Context, format results.Format, w io.Writer) error

	// ClearResults очищает таблицу результатов
	ClearResults(ctx context.Context) error

	// ClearSession удаляет файлы сохранённой сессии
	ClearSession(ctx context.Context) (*ClearSessionResult, error)

	// SetCredentials задаёт API ID/hash по умолчанию для следующих запусков
	SetCredentials(ctx context.Context, apiID int, apiHash string) error

	// Whoami возвращает информацию о текущем аккаунте
	Whoami(ctx context.Context) (*WhoamiResult, error)

	// Version возвращает информацию о версии приложения
	Version(ctx context.Context) (*VersionResult, error)
}

// StartRequest - параметры команды Start
type StartRequest struct {
	Link       string // ссылка или @username группы
	MaxMembers *int   // лимит участников; nil — из конфигурации, 0 — без лимита
	APIID      int    // 0 — из конфигурации
	APIHash    string // пусто — из конфигурации
}

// StartResult - результат команды Start
type StartResult struct {
	JobID      int64
	MaxMembers int
}

// StopResult - результат команды Stop
type StopResult struct {
	JobID    int64
	Graceful bool // false — соединение было разорвано принудительно
}

// StatusResult - результат команды Status
type StatusResult struct {
	Job            parsejob.Status  // снимок последней задачи
	Prompt         *authflow.Prompt // открытый запрос авторизации
	ResultsCount   int              // записей в таблице результатов
	ResultsChat    string           // группа, из которой получены результаты
	ResultsUpdated time.Time        // время получения результатов
	HasCredentials bool             // заданы ли API ID/hash по умолчанию
	SessionExists  bool             // есть ли сохранённая сессия
}

// ResultsResult - результат команды Results
type ResultsResult struct {
	Chat    string
	Columns []string
	Rows    [][]string
	Total   int // всего записей (Rows может быть обрезан)
}

// SaveResult - результат команды Save
type SaveResult struct {
	Path    string
	Format  results.Format
	Records int
}

// ClearSessionResult - результат команды ClearSession
type ClearSessionResult struct {
	Removed []string // удалённые файлы
}

// WhoamiResult - результат команды Whoami
type WhoamiResult struct {
	ID       int64  // ID пользователя
	FullName string // полное имя
	Username string // username
	Phone    string // телефон
}

// VersionResult - результат команды Version
type VersionResult struct {
	Name    string // название приложения
	Version string // версия
}
