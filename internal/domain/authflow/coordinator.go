// Package authflow проводит интерактивный вход в Telegram: телефон → код →
// (при необходимости) пароль 2FA. Ответы пользователя приходят из UI через
// Submit в одноместные каналы; воркер ждёт их, пока токен отмены не сработал.
package authflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/bebra552/TgGroopSoft/internal/infra/concurrency"
	"github.com/bebra552/TgGroopSoft/internal/infra/logger"
	"github.com/bebra552/TgGroopSoft/internal/infra/metrics"
)

var (
	// ErrCancelled — ожидание ответа прервано остановкой задачи.
	ErrCancelled = errors.New("authentication cancelled")
	// ErrPasswordRequired — аккаунт защищён паролем 2FA (возвращает AuthClient.SignIn).
	ErrPasswordRequired = errors.New("two-factor password required")
	// ErrAuthFailed оборачивает терминальные ошибки входа.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrNoPendingPrompt — ответ пришёл, но такого запроса нет.
	ErrNoPendingPrompt = errors.New("no pending prompt of this kind")
	// ErrAlreadyAnswered — ответ на текущий запрос уже принят.
	ErrAlreadyAnswered = errors.New("prompt already answered")
	// ErrEmptyAnswer — пустой ответ не принимается, запрос остаётся открытым.
	ErrEmptyAnswer = errors.New("empty answer")
)

// Kind — вид запрашиваемого у пользователя значения.
type Kind string

const (
	KindPhone    Kind = "phone"
	KindCode     Kind = "code"
	KindPassword Kind = "password"
)

// Secret сообщает, нужно ли скрывать ввод.
func (k Kind) Secret() bool { return k == KindPassword }

// Prompt — открытый запрос к пользователю.
type Prompt struct {
	Kind    Kind
	Message string
}

// AuthClient — операции Telegram, нужные для входа.
type AuthClient interface {
	// Status — лёгкая проверка «кто я»: текущий пользователь, если сессия авторизована.
	Status(ctx context.Context) (*tg.User, bool, error)
	SendCode(ctx context.Context, phone string) (codeHash string, err error)
	// SignIn возвращает ErrPasswordRequired, если нужен пароль 2FA.
	SignIn(ctx context.Context, phone, code, codeHash string) (*tg.User, error)
	CheckPassword(ctx context.Context, password string) (*tg.User, error)
}

// Coordinator связывает воркер, который ждёт ответы, и UI, который их даёт.
// Одновременно открыт не больше одного запроса.
type Coordinator struct {
	mu       sync.Mutex
	pending  *Prompt
	answered bool
	slots    map[Kind]chan string
	onPrompt func(Prompt)
}

// NewCoordinator создаёт координатор. onPrompt вызывается в горутине воркера
// каждый раз, когда нужен ввод пользователя.
func NewCoordinator(onPrompt func(Prompt)) *Coordinator {
	return &Coordinator{
		slots: map[Kind]chan string{
			KindPhone:    make(chan string, 1),
			KindCode:     make(chan string, 1),
			KindPassword: make(chan string, 1),
		},
		onPrompt: onPrompt,
	}
}

// Pending возвращает открытый запрос, если он есть и ещё не получил ответ.
func (c *Coordinator) Pending() (Prompt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil || c.answered {
		return Prompt{}, false
	}
	return *c.pending, true
}

// Submit передаёт ответ на открытый запрос вида kind. Каждый запрос
// принимает ровно один непустой ответ.
func (c *Coordinator) Submit(kind Kind, value string) error {
	value = strings.TrimSpace(value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil || c.pending.Kind != kind {
		return ErrNoPendingPrompt
	}
	if c.answered {
		return ErrAlreadyAnswered
	}
	if value == "" {
		return ErrEmptyAnswer
	}
	select {
	case c.slots[kind] <- value:
		c.answered = true
		return nil
	default:
		return ErrAlreadyAnswered
	}
}

// SubmitPending отвечает на текущий открытый запрос, какого бы вида он ни был.
func (c *Coordinator) SubmitPending(value string) (Kind, error) {
	p, ok := c.Pending()
	if !ok {
		return "", ErrNoPendingPrompt
	}
	return p.Kind, c.Submit(p.Kind, value)
}

// await открывает запрос и ждёт ответ или отмену.
func (c *Coordinator) await(stop *concurrency.Token, kind Kind, message string) (string, error) {
	slot := c.slots[kind]

	c.mu.Lock()
	// старый ответ от прошлого запроса не должен попасть в новый
	select {
	case <-slot:
	default:
	}
	c.pending = &Prompt{Kind: kind, Message: message}
	c.answered = false
	c.mu.Unlock()

	defer c.clear()

	metrics.AuthPromptsTotal.WithLabelValues(string(kind)).Inc()
	logger.Debug("auth prompt opened", zap.String("kind", string(kind)))
	if c.onPrompt != nil {
		c.onPrompt(Prompt{Kind: kind, Message: message})
	}

	select {
	case v := <-slot:
		return v, nil
	case <-stop.Done():
		return "", ErrCancelled
	}
}

func (c *Coordinator) clear() {
	c.mu.Lock()
	c.pending = nil
	c.answered = false
	c.mu.Unlock()
}

// Authenticate гарантирует авторизованную сессию. Если проверка «кто я»
// успешна, ввод не запрашивается. Любая ошибка Telegram, кроме требования
// пароля, терминальна.
func (c *Coordinator) Authenticate(ctx context.Context, stop *concurrency.Token, client AuthClient) (*tg.User, error) {
	if stop.Cancelled() {
		return nil, ErrCancelled
	}

	self, ok, err := client.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: status: %w", ErrAuthFailed, err)
	}
	if ok {
		return self, nil
	}

	phone, err := c.await(stop, KindPhone, "Введите номер телефона (в формате +79991234567)")
	if err != nil {
		return nil, err
	}
	if stop.Cancelled() {
		return nil, ErrCancelled
	}
	hash, err := client.SendCode(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("%w: send code: %w", ErrAuthFailed, err)
	}

	code, err := c.await(stop, KindCode, "Введите код из Telegram")
	if err != nil {
		return nil, err
	}
	if stop.Cancelled() {
		return nil, ErrCancelled
	}
	user, err := client.SignIn(ctx, phone, code, hash)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrPasswordRequired) {
		return nil, fmt.Errorf("%w: sign in: %w", ErrAuthFailed, err)
	}

	password, err := c.await(stop, KindPassword, "Введите пароль двухфакторной аутентификации")
	if err != nil {
		return nil, err
	}
	if stop.Cancelled() {
		return nil, ErrCancelled
	}
	user, err = client.CheckPassword(ctx, password)
	if err != nil {
		return nil, fmt.Errorf("%w: password: %w", ErrAuthFailed, err)
	}
	return user, nil
}

// DisplayName — «Имя Фамилия (@username)» для сообщений о входе.
func DisplayName(u *tg.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if u.Username != "" {
		if name == "" {
			return "@" + u.Username
		}
		return fmt.Sprintf("%s (@%s)", name, u.Username)
	}
	if name == "" {
		return fmt.Sprintf("id%d", u.ID)
	}
	return name
}
