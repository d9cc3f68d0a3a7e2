// Package app — верхний уровень сборки парсера участников групп Telegram.
// Здесь связываются конфигурация, коннектор MTProto (gotd/telegram), менеджер
// фоновых задач, таблица результатов и фронтенды (CLI, веб). Отсюда стартует
// Runner, который держит приложение до сигнала и корректно его гасит.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	tgadapter "github.com/bebra552/TgGroopSoft/internal/adapters/telegram"
	"github.com/bebra552/TgGroopSoft/internal/domain/commands"
	"github.com/bebra552/TgGroopSoft/internal/domain/parsejob"
	"github.com/bebra552/TgGroopSoft/internal/domain/results"
	"github.com/bebra552/TgGroopSoft/internal/infra/config"
	"github.com/bebra552/TgGroopSoft/internal/infra/logger"
	"github.com/bebra552/TgGroopSoft/internal/infra/telegram/session"
	"github.com/bebra552/TgGroopSoft/internal/support/version"
)

// App агрегирует зависимости парсера и управляет их связью.
// Отвечает за:
//   - сборку коннектора Telegram из конфигурации (сессия, прокси, лимиты),
//   - менеджер задач и таблицу результатов,
//   - общий исполнитель команд для CLI и веба,
//   - запуск Runner, который оркестрирует жизненный цикл и graceful shutdown.
type App struct {
	env        config.EnvConfig          // Снимок конфигурации окружения.
	mainCtx    context.Context           // Контекст жизненного цикла приложения.
	mainCancel context.CancelFunc        // Инициирует отмену mainCtx.
	connector  *tgadapter.Connector      // Подключение к Telegram на время задачи.
	manager    *parsejob.Manager         // Фоновые задачи парсинга (не больше одной).
	sink       *results.Sink             // Таблица результатов последней успешной задачи.
	executor   *commands.CommandExecutor // Общие команды для CLI и веба.
	runner     *Runner                   // Оркестратор жизненного цикла.
}

// NewApp создаёт пустой каркас приложения. Фактическая инициализация выполняется в Init().
func NewApp() *App {
	return &App{}
}

// Init собирает зависимости из глобальной конфигурации.
func (a *App) Init(mainCtx context.Context, mainCancel context.CancelFunc) error {
	a.mainCtx = mainCtx
	a.mainCancel = mainCancel
	a.env = config.Env()

	logger.Info("Parser initializing...", zap.String("version", version.Version))

	paths := session.NewPaths(a.env.SessionDir, a.env.SessionName)
	connector, err := tgadapter.NewConnector(tgadapter.Options{
		Session:       paths,
		FloodWaitAuto: time.Duration(a.env.FloodWaitAutoSec) * time.Second,
		ThrottleRPS:   a.env.ThrottleRPS,
		TestDC:        a.env.TestDC,
		ProxyURL:      a.env.ProxyURL,
	})
	if err != nil {
		return fmt.Errorf("init telegram connector: %w", err)
	}
	a.connector = connector

	a.manager = parsejob.NewManager(a.connector, settingsFromEnv(a.env))
	a.sink = results.NewSink()
	a.executor = commands.NewExecutor(a.manager, a.connector, a.sink, commands.Options{
		Session:    paths,
		SaveDir:    a.env.SaveDir,
		MaxMembers: a.env.MaxMembers,
		Credentials: parsejob.Credentials{
			APIID:   a.env.APIID,
			APIHash: a.env.APIHash,
		},
	})

	a.runner = NewRunner(a.mainCtx, a.mainCancel, a.env, a.manager, a.executor)
	return nil
}

// Run запускает фронтенды и блокируется до остановки приложения.
func (a *App) Run() error {
	if a.runner == nil {
		return fmt.Errorf("app is not initialized")
	}
	return a.runner.Run()
}

// settingsFromEnv переводит параметры окружения в политику задач.
func settingsFromEnv(env config.EnvConfig) parsejob.Settings {
	return parsejob.Settings{
		PageSize:      env.PageSize,
		ItemDelay:     time.Duration(env.MemberDelayMS) * time.Millisecond,
		ProgressEvery: env.ProgressEvery,
		StartGrace:    time.Duration(env.StartGraceSec) * time.Second,
		StopGrace:     time.Duration(env.StopGraceSec) * time.Second,
	}
}
