package parsejob

import (
	"context"

	"github.com/bebra552/TgGroopSoft/internal/domain/authflow"
	"github.com/bebra552/TgGroopSoft/internal/domain/collector"
)

// Credentials — API ID/hash приложения Telegram.
type Credentials struct {
	APIID   int
	APIHash string
}

// Valid — проверка только на заполненность.
func (c Credentials) Valid() bool {
	return c.APIID > 0 && c.APIHash != ""
}

// Group — разрешённая по имени группа.
type Group struct {
	ID    int64
	Title string
	// Members — число участников по данным Telegram, 0 — неизвестно.
	Members int
	Source  collector.Source
}

// Session — открытое подключение к Telegram на время одной задачи.
type Session interface {
	Auth() authflow.AuthClient
	ResolveGroup(ctx context.Context, handle string) (Group, error)
}

// Connector открывает подключение, выполняет f и гарантированно закрывает
// подключение после его завершения.
type Connector interface {
	Run(ctx context.Context, creds Credentials, f func(ctx context.Context, s Session) error) error
}
