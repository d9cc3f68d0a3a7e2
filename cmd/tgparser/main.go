package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/bebra552/TgGroopSoft/internal/app"
	"github.com/bebra552/TgGroopSoft/internal/infra/config"
	"github.com/bebra552/TgGroopSoft/internal/infra/logger"
	"github.com/bebra552/TgGroopSoft/internal/infra/pr"
)

func main() {
	// Без терминала (systemd, docker) работаем только через веб: readline не поднимаем.
	if pr.IsTerminal() {
		if err := pr.Init("> "); err != nil {
			logger.Fatal("failed to assigning stdout and stderr", zap.Error(err))
		}
	}
	defer pr.Close()

	// envPath определяет расположение .env с API ID/hash и общими настройками.
	envPath := flag.String("env", "assets/.env", "path to .env file")
	flag.Parse()

	// config.Load загружает конфигурацию из .env и окружения процесса,
	// заодно выставляет таймзону приложения (APP_TIMEZONE).
	if err := config.Load(*envPath); err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// logger.Init задаёт уровень, а SetWriters перенаправляет выводы в подсистему pr (чтобы видеть логи в CLI UI).
	logger.Init(config.Env().LogLevel)
	logger.SetWriters(pr.Stdout(), pr.Stderr())
	if env := config.Env(); env.LogFile != "" {
		logger.EnableFile(logger.FileOptions{
			Path:       env.LogFile,
			Level:      env.LogFileLevel,
			MaxSizeMB:  env.LogFileMaxSize,
			MaxBackups: env.LogFileMaxBackups,
			MaxAgeDays: env.LogFileMaxAge,
			Compress:   env.LogFileCompress,
		})
	}
	defer logger.Close()
	for _, msg := range config.Warnings() {
		logger.Warn(msg)
	}

	// Контекст с обработкой системных сигналов (Ctrl+C/SIGTERM). Важно: stop() нужно вызвать, чтобы снять подписку.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	a := app.NewApp()
	if iniErr := a.Init(ctx, stop); iniErr != nil {
		stop()
		logger.Fatal("app init failed", zap.Error(iniErr))
	}

	// Основной цикл; блокируется до shutdown.
	if runErr := a.Run(); runErr != nil {
		stop()
		logger.Fatal("app run failed", zap.Error(runErr))
	}
	stop()
	logger.Info("Graceful shutdown complete")
}
