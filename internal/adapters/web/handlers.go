package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bebra552/TgGroopSoft/internal/domain/authflow"
	"github.com/bebra552/TgGroopSoft/internal/domain/commands"
	"github.com/bebra552/TgGroopSoft/internal/domain/parsejob"
	"github.com/bebra552/TgGroopSoft/internal/domain/results"
	"github.com/bebra552/TgGroopSoft/internal/infra/apptime"
	"github.com/bebra552/TgGroopSoft/internal/infra/logger"
)

// PageData - данные для рендеринга страницы
type PageData struct {
	Title string
	Page  string
	Data  any
}

const (
	shortTimeOut  = 5 * time.Second
	mediumTimeOut = 30 * time.Second
	longTimeOut   = 120 * time.Second

	// previewRows — строк таблицы результатов на дашборде.
	previewRows = 100
)

// handleDashboard отображает главную страницу
func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	s.renderPage(w, PageData{Title: "Parser", Page: "dashboard"})
}

// handleLogs отображает страницу логов
func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	s.renderPage(w, PageData{Title: "Logs", Page: "logs"})
}

func (s *Server) renderPage(w http.ResponseWriter, data PageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		logger.Errorf("Error rendering %s: %v", data.Page, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (s *Server) renderFragment(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		logger.Errorf("Error rendering %s: %v", name, err)
		writeError(w, "Template error")
	}
}

// API Handlers

// promptView — открытый запрос авторизации для формы ответа.
type promptView struct {
	Kind    string
	Message string
	Secret  bool
}

// statusView — данные панели состояния.
type statusView struct {
	JobID          int64
	Running        bool
	State          string
	Link           string
	Chat           string
	Collected      int
	Target         int
	Percent        int
	Started        string
	Finished       string
	Account        string
	Prompt         *promptView
	ResultsCount   int
	ResultsChat    string
	ResultsUpdated string
	HasCredentials bool
	SessionExists  bool
}

func newStatusView(st *commands.StatusResult) statusView {
	job := st.Job
	v := statusView{
		JobID:          job.JobID,
		Running:        job.Running,
		State:          string(job.State),
		Link:           job.Link,
		Chat:           job.Chat,
		Collected:      job.Collected,
		Target:         job.Target,
		Started:        displayTime(job.Started),
		Finished:       displayTime(job.Finished),
		ResultsCount:   st.ResultsCount,
		ResultsChat:    st.ResultsChat,
		ResultsUpdated: displayTime(st.ResultsUpdated),
		HasCredentials: st.HasCredentials,
		SessionExists:  st.SessionExists,
	}
	if job.Target > 0 {
		v.Percent = min(100, job.Collected*100/job.Target)
	}
	if job.Account != nil {
		v.Account = authflow.DisplayName(job.Account)
	}
	if st.Prompt != nil {
		v.Prompt = &promptView{
			Kind:    string(st.Prompt.Kind),
			Message: st.Prompt.Message,
			Secret:  st.Prompt.Kind.Secret(),
		}
	}
	return v
}

func displayTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return apptime.Display(t)
}

// handleAPIStatus возвращает панель состояния задачи
func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), shortTimeOut)
	defer cancel()

	st, err := s.executor.Status(ctx)
	if err != nil {
		logger.Errorf("Status command failed: %v", err)
		writeError(w, fmt.Sprintf("Error: %v", err))
		return
	}
	s.renderFragment(w, "status", newStatusView(st))
}

// parseStartForm разбирает форму запуска. Пустые поля берутся из конфигурации.
func parseStartForm(r *http.Request) (commands.StartRequest, error) {
	req := commands.StartRequest{
		Link:    strings.TrimSpace(r.FormValue("link")),
		APIHash: strings.TrimSpace(r.FormValue("api_hash")),
	}
	if v := strings.TrimSpace(r.FormValue("max_members")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return req, fmt.Errorf("❌ Некорректное число участников: %q", v)
		}
		req.MaxMembers = &n
	}
	if v := strings.TrimSpace(r.FormValue("api_id")); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil || id <= 0 {
			return req, fmt.Errorf("❌ API ID должен быть числом: %q", v)
		}
		req.APIID = id
	}
	return req, nil
}

// handleAPIStart запускает парсинг
func (s *Server) handleAPIStart(w http.ResponseWriter, r *http.Request) {
	req, err := parseStartForm(r)
	if err != nil {
		writeError(w, err.Error())
		return
	}

	// Start может ждать остановки предыдущей задачи
	ctx, cancel := context.WithTimeout(r.Context(), mediumTimeOut)
	defer cancel()

	res, err := s.executor.Start(ctx, req)
	if err != nil {
		logger.Warnf("Start command failed: %v", err)
		writeError(w, parsejob.DescribeStartError(err))
		return
	}
	limit := "без лимита"
	if res.MaxMembers > 0 {
		limit = strconv.Itoa(res.MaxMembers)
	}
	writeOK(w, fmt.Sprintf("🚀 Задача #%d запущена (лимит: %s)", res.JobID, limit))
}

// handleAPIStop останавливает задачу
func (s *Server) handleAPIStop(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), mediumTimeOut)
	defer cancel()

	res, err := s.executor.Stop(ctx)
	if err != nil {
		if errors.Is(err, parsejob.ErrNotRunning) {
			writeError(w, "Нет активной задачи")
			return
		}
		logger.Errorf("Stop command failed: %v", err)
		writeError(w, fmt.Sprintf("Error: %v", err))
		return
	}
	if !res.Graceful {
		writeOK(w, fmt.Sprintf("Задача #%d остановлена принудительно", res.JobID))
		return
	}
	writeOK(w, fmt.Sprintf("Задача #%d остановлена", res.JobID))
}

// handleAPIAnswer передаёт ответ на запрос авторизации
func (s *Server) handleAPIAnswer(w http.ResponseWriter, r *http.Request) {
	kind := authflow.Kind(strings.TrimSpace(r.FormValue("kind")))
	value := r.FormValue("value")

	ctx, cancel := context.WithTimeout(r.Context(), shortTimeOut)
	defer cancel()

	answered, err := s.executor.Answer(ctx, kind, value)
	if err != nil {
		switch {
		case errors.Is(err, authflow.ErrEmptyAnswer):
			writeError(w, "Введите значение")
		case errors.Is(err, parsejob.ErrNotRunning), errors.Is(err, authflow.ErrNoPendingPrompt):
			writeError(w, "Нет открытого запроса")
		default:
			writeError(w, fmt.Sprintf("Error: %v", err))
		}
		return
	}
	writeOK(w, fmt.Sprintf("Ответ принят (%s)", answered))
}

// handleAPICreds задаёт API ID/hash по умолчанию
func (s *Server) handleAPICreds(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(strings.TrimSpace(r.FormValue("api_id")))
	if err != nil {
		writeError(w, "❌ API ID должен быть числом")
		return
	}
	if err := s.executor.SetCredentials(r.Context(), id, r.FormValue("api_hash")); err != nil {
		writeError(w, parsejob.DescribeStartError(err))
		return
	}
	writeOK(w, "Учётные данные сохранены")
}

// handleAPISave сохраняет результаты на диск сервера
func (s *Server) handleAPISave(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), longTimeOut)
	defer cancel()

	name := strings.TrimSpace(r.FormValue("path"))
	if err := results.CheckFileName(name); err != nil {
		writeError(w, "❌ Укажите только имя файла: он сохраняется в каталог выгрузки")
		return
	}

	res, err := s.executor.Save(ctx, name)
	if err != nil {
		if errors.Is(err, results.ErrEmpty) {
			writeError(w, "Нет данных для сохранения")
			return
		}
		logger.Errorf("Save command failed: %v", err)
		writeError(w, fmt.Sprintf("❌ Ошибка сохранения: %v", err))
		return
	}
	writeOK(w, fmt.Sprintf("✅ Сохранено %d записей в %s", res.Records, res.Path))
}

// handleAPIClear очищает таблицу результатов
func (s *Server) handleAPIClear(w http.ResponseWriter, r *http.Request) {
	if err := s.executor.ClearResults(r.Context()); err != nil {
		writeError(w, fmt.Sprintf("Error: %v", err))
		return
	}
	s.handleAPIResults(w, r)
}

// handleAPIClearSession удаляет сохранённую сессию
func (s *Server) handleAPIClearSession(w http.ResponseWriter, r *http.Request) {
	res, err := s.executor.ClearSession(r.Context())
	if err != nil {
		if errors.Is(err, commands.ErrJobRunning) {
			writeError(w, "Сначала остановите парсинг")
			return
		}
		logger.Errorf("ClearSession command failed: %v", err)
		writeError(w, fmt.Sprintf("Error: %v", err))
		return
	}
	if len(res.Removed) == 0 {
		writeOK(w, "Сохранённой сессии нет")
		return
	}
	writeOK(w, fmt.Sprintf("Сессия удалена (%d файлов)", len(res.Removed)))
}

// eventLine — строка журнала задачи.
type eventLine struct {
	Time    string
	Message string
	Class   string
}

// handleAPIEvents возвращает журнал последней задачи. Прогресс в журнал не
// выводится: он виден на полосе в панели состояния.
func (s *Server) handleAPIEvents(w http.ResponseWriter, r *http.Request) {
	events := s.executor.Events(r.Context())
	lines := make([]eventLine, 0, len(events))
	for _, ev := range events {
		if ev.Kind == parsejob.EventProgress || ev.Message == "" {
			continue
		}
		lines = append(lines, eventLine{
			Time:    apptime.Clock(ev.Time),
			Message: ev.Message,
			Class:   eventClass(ev.Kind),
		})
	}
	s.renderFragment(w, "events", lines)
}

func eventClass(kind parsejob.EventKind) string {
	switch kind {
	case parsejob.EventFailed:
		return "text-red-700"
	case parsejob.EventFinished:
		return "text-green-700 font-semibold"
	case parsejob.EventPrompt:
		return "text-blue-700"
	case parsejob.EventStopped:
		return "text-yellow-700"
	default:
		return "text-gray-800"
	}
}

// handleAPIResults возвращает таблицу результатов
func (s *Server) handleAPIResults(w http.ResponseWriter, r *http.Request) {
	limit := previewRows
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			limit = n
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), shortTimeOut)
	defer cancel()

	res, err := s.executor.Results(ctx, limit)
	if err != nil {
		writeError(w, fmt.Sprintf("Error: %v", err))
		return
	}
	s.renderFragment(w, "results", res)
}

// handleAPIWhoami возвращает информацию о текущем пользователе
func (s *Server) handleAPIWhoami(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), mediumTimeOut)
	defer cancel()

	res, err := s.executor.Whoami(ctx)
	if err != nil {
		switch {
		case errors.Is(err, commands.ErrNotAuthorized):
			writeHTML(w, `<p class="text-sm text-gray-500">Не авторизован</p>`)
		case errors.Is(err, commands.ErrJobRunning):
			writeHTML(w, `<p class="text-sm text-gray-500">Идёт авторизация...</p>`)
		default:
			logger.Errorf("Whoami command failed: %v", err)
			writeError(w, fmt.Sprintf("Error: %v", err))
		}
		return
	}
	s.renderFragment(w, "whoami", res)
}

// handleAPIVersion возвращает версию приложения
func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	res, err := s.executor.Version(r.Context())
	if err != nil {
		writeError(w, fmt.Sprintf("Error: %v", err))
		return
	}
	s.renderFragment(w, "version", res)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	s.export(w, r, results.FormatCSV, "text/csv; charset=utf-8")
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	s.export(w, r, results.FormatXLSX, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
}

// export отдаёт результаты файлом. Пустая таблица — 404.
func (s *Server) export(w http.ResponseWriter, r *http.Request, format results.Format, contentType string) {
	ctx, cancel := context.WithTimeout(r.Context(), longTimeOut)
	defer cancel()

	res, err := s.executor.Results(ctx, 1)
	if err != nil || res.Total == 0 {
		http.Error(w, "no results to export", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s"`, results.DefaultFileName(apptime.Now(), format)))
	if err := s.executor.Export(ctx, format, w); err != nil {
		logger.Errorf("Export %s failed: %v", format, err)
	}
}
