// Package web — веб-интерфейс парсера: запуск задачи, ответы на запросы
// авторизации, живой журнал через WebSocket, таблица результатов и выгрузка.
// Доступ по одноразовой ссылке из консоли (команда weblink).
package web

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bebra552/TgGroopSoft/internal/domain/commands"
	"github.com/bebra552/TgGroopSoft/internal/infra/logger"
)

// Options — параметры веб-сервера.
type Options struct {
	Addr    string // адрес прослушивания, например 127.0.0.1:8080
	LogFile string // NDJSON-журнал для страницы логов; пусто — страница недоступна
}

// Server представляет веб-сервер
type Server struct {
	srv          *http.Server
	auth         *AuthManager
	executor     commands.Executor
	hub          *Hub
	opts         Options
	tmpl         *template.Template
	logsTemplate *template.Template
	ctx          context.Context
	cancel       context.CancelFunc
	unsubscribe  func()
}

const (
	readTimeout  = 15 * time.Second
	writeTimeout = 60 * time.Second
	idleTimeout  = 60 * time.Second

	cleanExpiredSessionsInterval = 3 * time.Minute
)

// NewServer создает новый веб-сервер
func NewServer(executor commands.Executor, opts Options) *Server {
	s := &Server{
		auth:     NewAuthManager(time.Hour),
		executor: executor,
		hub:      NewHub(),
		opts:     opts,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.loadTemplates()

	s.srv = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.routes(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Публичные эндпоинты (без авторизации)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("GET /{$}", s.handleDashboard)
	protected.HandleFunc("GET /logs", s.handleLogs)
	protected.HandleFunc("GET /ws", s.handleWS)

	// API эндпоинты для HTMX
	protected.HandleFunc("GET /api/status", s.handleAPIStatus)
	protected.HandleFunc("POST /api/start", s.handleAPIStart)
	protected.HandleFunc("POST /api/stop", s.handleAPIStop)
	protected.HandleFunc("POST /api/answer", s.handleAPIAnswer)
	protected.HandleFunc("POST /api/creds", s.handleAPICreds)
	protected.HandleFunc("POST /api/save", s.handleAPISave)
	protected.HandleFunc("POST /api/clear", s.handleAPIClear)
	protected.HandleFunc("POST /api/clear-session", s.handleAPIClearSession)
	protected.HandleFunc("GET /api/events", s.handleAPIEvents)
	protected.HandleFunc("GET /api/results", s.handleAPIResults)
	protected.HandleFunc("GET /api/whoami", s.handleAPIWhoami)
	protected.HandleFunc("GET /api/version", s.handleAPIVersion)
	protected.HandleFunc("GET /api/logs", s.handleAPILogs)
	protected.HandleFunc("GET /export.csv", s.handleExportCSV)
	protected.HandleFunc("GET /export.xlsx", s.handleExportXLSX)

	mux.Handle("/", s.authMiddleware(protected))
	return loggingMiddleware(mux)
}

// Start запускает веб-сервер и блокируется до Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("web server listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve обслуживает уже открытый listener.
func (s *Server) Serve(ln net.Listener) error {
	logger.Info("Starting web server", zap.String("address", ln.Addr().String()))
	s.startBackground()

	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server error: %w", err)
	}
	return nil
}

// Shutdown корректно останавливает веб-сервер
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down web server...")
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.cancel()
	return s.srv.Shutdown(ctx)
}

// startBackground запускает хаб WebSocket, очистку сессий и подписку на события.
func (s *Server) startBackground() {
	go s.hub.Run(s.ctx)
	go s.cleanupLoop(s.ctx)
	s.unsubscribe = s.executor.Subscribe(s.hub.Publish)
}

// cleanupLoop периодически очищает истекшие сессии
func (s *Server) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanExpiredSessionsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.auth.CleanExpiredSessions()
		}
	}
}

// GenerateAuthToken генерирует новый токен авторизации
func (s *Server) GenerateAuthToken() string {
	token := s.auth.GenerateToken()
	logger.Info("Generated new auth token for web interface")
	return token
}

// LoginURL — ссылка для входа с новым токеном. Прежняя ссылка перестаёт работать.
func (s *Server) LoginURL() string {
	return fmt.Sprintf("http://%s/?token=%s", publicHost(s.srv.Addr), s.GenerateAuthToken())
}

// publicHost подставляет localhost вместо пустого или wildcard-хоста.
func publicHost(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}

// handleHealth проверка здоровья сервера
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	writeResponse(w, []byte("OK"))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.serveWS(s.ctx, w, r)
}

// loadTemplates загружает HTML шаблоны
func (s *Server) loadTemplates() {
	s.tmpl = template.Must(template.New("").Funcs(templateFuncs).Parse(layoutTemplate))
	template.Must(s.tmpl.Parse(dashboardTemplate))
	template.Must(s.tmpl.Parse(logsTemplate))
	template.Must(s.tmpl.Parse(statusTemplate))
	template.Must(s.tmpl.Parse(resultsTemplate))
	template.Must(s.tmpl.Parse(eventsTemplate))

	s.logsTemplate = template.Must(template.New("").Funcs(templateFuncs).Parse(journalFiltersTemplate))
	template.Must(s.logsTemplate.Parse(journalEntryTemplate))
	template.Must(s.logsTemplate.Parse(journalPaginationTemplate))
	template.Must(s.logsTemplate.Parse(journalTemplate))
}
