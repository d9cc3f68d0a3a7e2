// Package app реализует верхний уровень управления жизненным циклом парсера.
// Файл runner.go — точка оркестрации: здесь фронтенды запускаются в правильном
// порядке и организуется корректный graceful shutdown: сначала останавливается
// фоновая задача (она держит сессию и кеш пиров), затем веб и CLI.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bebra552/TgGroopSoft/internal/adapters/cli"
	"github.com/bebra552/TgGroopSoft/internal/adapters/web"
	"github.com/bebra552/TgGroopSoft/internal/domain/commands"
	"github.com/bebra552/TgGroopSoft/internal/domain/parsejob"
	"github.com/bebra552/TgGroopSoft/internal/infra/config"
	"github.com/bebra552/TgGroopSoft/internal/infra/logger"
	"github.com/bebra552/TgGroopSoft/internal/infra/pr"
)

// ErrNoFrontend — нечем управлять парсером: нет терминала и веб выключен.
var ErrNoFrontend = errors.New("stdin is not a terminal and WEB_SERVER_ENABLE=false: nothing to control the parser with")

// Runner инкапсулирует сценарий запуска и остановки фронтендов.
type Runner struct {
	env         config.EnvConfig
	mainCtx     context.Context    // Внешний контекст процесса: отменяется по Ctrl+C/сигналам.
	mainCancel  context.CancelFunc // Функция, инициирующая общий shutdown (exit в CLI).
	manager     *parsejob.Manager
	cmdExecutor *commands.CommandExecutor // Исполнитель команд (используется CLI и Web).
	cliService  *cli.Service              // CLI сервис для интерактивных команд.
	webServer   *web.Server               // Web-сервер для управления через браузер.
	webWG       sync.WaitGroup
	stopOnce    sync.Once
}

const (
	webServerShutdownTimeout = 10 * time.Second
)

// NewRunner подготавливает Runner с переданными зависимостями.
func NewRunner(
	mainCtx context.Context,
	mainCancel context.CancelFunc,
	env config.EnvConfig,
	manager *parsejob.Manager,
	executor *commands.CommandExecutor,
) *Runner {
	return &Runner{
		env:         env,
		mainCtx:     mainCtx,
		mainCancel:  mainCancel,
		manager:     manager,
		cmdExecutor: executor,
	}
}

// Run запускает фронтенды и блокируется до отмены mainCtx.
func (r *Runner) Run() error {
	if err := r.startAllServices(); err != nil {
		r.stopAllServices()
		return err
	}
	logger.Info("Parser running...")

	<-r.mainCtx.Done()
	logger.Debug("Shutdown signal received, stopping runner...")
	r.stopAllServices()
	return nil
}

func (r *Runner) startAllServices() error {
	interactive := pr.Rl() != nil
	if !interactive && !r.env.WebServerEnable {
		return ErrNoFrontend
	}

	// web server (если включен)
	var webLink func() string
	if r.env.WebServerEnable {
		logger.Debug("starting service web_server")
		r.webServer = web.NewServer(r.cmdExecutor, web.Options{
			Addr:    r.env.WebServerAddress,
			LogFile: r.env.LogFile,
		})
		webLink = r.webServer.LoginURL

		r.webWG.Go(func() {
			if err := r.webServer.Start(); err != nil {
				logger.Error("web server error", zap.Error(err))
				r.mainCancel()
			}
		})
		// Ссылку печатаем в консоль, не в журнал: токен даёт доступ к интерфейсу.
		pr.Println("Web UI:", r.webServer.LoginURL())
		logger.Debug("service web_server started")
	}

	// cli
	if interactive {
		logger.Debug("starting service cli")
		r.cliService = cli.NewService(r.cmdExecutor, r.mainCancel, webLink)
		r.cliService.Start(r.mainCtx)
		logger.Debug("service cli started")
	}

	return nil
}

func (r *Runner) stopAllServices() {
	r.stopOnce.Do(func() {
		// parse job: держит сессию и кеш пиров, гасим первой
		logger.Debug("stopping service parse_jobs")
		r.manager.Shutdown()
		r.cmdExecutor.Close()
		logger.Debug("service parse_jobs stopped")

		// web server
		if r.webServer != nil {
			logger.Debug("stopping service web_server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), webServerShutdownTimeout)
			defer cancel()
			if err := r.webServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to stop web_server", zap.Error(err))
			}
			r.webWG.Wait()
			logger.Debug("service web_server stopped")
		}

		// cli
		if r.cliService != nil {
			logger.Debug("stopping service cli")
			r.cliService.Stop()
			logger.Debug("service cli stopped")
		}
	})
}
