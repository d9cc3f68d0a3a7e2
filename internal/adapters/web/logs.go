package web

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bebra552/TgGroopSoft/internal/infra/apptime"
	"github.com/bebra552/TgGroopSoft/internal/infra/logger"
)

const (
	journalPageSize    = 200
	paginationMaxPages = 100
	maxLogFileSize     = 100 * 1024 * 1024 // 100MB

	// legacyTimeLayout — формат консоли; старые файлы писались им без зоны.
	legacyTimeLayout = "2006-01-02 15:04:05"
)

var errNoLogFile = errors.New("log file not configured (set LOG_FILE)")

// Исходы задачи по последнему сообщению с её номером.
const (
	outcomeRunning  = "running"
	outcomeFinished = "finished"
	outcomeStopped  = "stopped"
	outcomeFailed   = "failed"
)

var outcomeByMessage = map[string]string{
	"parse job started":     outcomeRunning,
	"results table updated": outcomeFinished,
	"parse job stopped":     outcomeStopped,
	"parse job failed":      outcomeFailed,
	"parse job panicked":    outcomeFailed,
}

var levelRank = map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}

// journalEntry — строка файла логов. Job > 0, если строка относится к задаче парсинга.
type journalEntry struct {
	Time    time.Time
	Level   string
	Caller  string
	Message string
	Job     int64
	Handle  string
	Error   string
}

// journalFilter — фильтр страницы журнала. Job == 0 — все строки; MinLevel пусто — любой уровень.
type journalFilter struct {
	Job      int64
	MinLevel string
}

func (f journalFilter) match(e journalEntry) bool {
	if f.Job > 0 && e.Job != f.Job {
		return false
	}
	if f.MinLevel == "" {
		return true
	}
	rank, ok := levelRank[e.Level]
	return ok && rank >= levelRank[f.MinLevel]
}

// jobSummary — одна задача парсинга, восстановленная по журналу.
type jobSummary struct {
	ID      int64
	Handle  string
	Started time.Time
	Outcome string
	Lines   int
}

// journalPage — результат чтения: страница строк и список задач для фильтра.
type journalPage struct {
	Entries    []journalEntry
	Jobs       []jobSummary
	TotalPages int
}

// handleAPILogs отдаёт страницу журнала с фильтром по задаче и уровню
func (s *Server) handleAPILogs(w http.ResponseWriter, r *http.Request) {
	filter := parseJournalFilter(r)
	page := parsePage(r)

	res, err := readJournal(s.opts.LogFile, filter, page, journalPageSize)
	if err != nil {
		logger.Errorf("Failed to read logs: %v", err)
		writeError(w, fmt.Sprintf("Не удалось прочитать журнал: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.logsTemplate.ExecuteTemplate(w, "journal", newJournalView(res, filter, page)); err != nil {
		logger.Errorf("Failed to render logs template: %v", err)
		writeError(w, "Template error")
	}
}

// parsePage извлекает номер страницы из запроса
func parsePage(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return min(page, paginationMaxPages)
}

func parseJournalFilter(r *http.Request) journalFilter {
	q := r.URL.Query()
	var f journalFilter
	if id, err := strconv.ParseInt(q.Get("job"), 10, 64); err == nil && id > 0 {
		f.Job = id
	}
	if lvl := normalizeLevel(strings.ToLower(strings.TrimSpace(q.Get("level")))); levelRank[lvl] > 0 {
		f.MinLevel = lvl
	}
	return f
}

// readJournal читает NDJSON-файл целиком. Строки идут новыми сверху, задачи —
// последняя первой. Список задач строится по всему файлу, без учёта фильтра.
func readJournal(path string, filter journalFilter, page, pageSize int) (journalPage, error) {
	if path == "" {
		return journalPage{}, errNoLogFile
	}

	file, err := os.Open(path)
	if err != nil {
		return journalPage{}, fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return journalPage{}, fmt.Errorf("failed to stat log file: %w", err)
	}
	if stat.Size() > maxLogFileSize {
		return journalPage{}, fmt.Errorf("log file too large: %d bytes (max %d), consider log rotation",
			stat.Size(), maxLogFileSize)
	}

	var (
		matched []journalEntry
		jobs    []jobSummary
		byID    = make(map[int64]int)
	)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		entry := parseJournalLine(line)
		if entry.Job > 0 {
			i, ok := byID[entry.Job]
			if !ok {
				i = len(jobs)
				byID[entry.Job] = i
				jobs = append(jobs, jobSummary{ID: entry.Job, Started: entry.Time})
			}
			jobs[i].track(entry)
		}
		if filter.match(entry) {
			matched = append(matched, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return journalPage{}, fmt.Errorf("failed to read log file: %w", err)
	}

	slices.Reverse(matched)
	slices.Reverse(jobs)

	res := journalPage{
		Jobs:       jobs,
		TotalPages: (len(matched) + pageSize - 1) / pageSize,
	}
	start := (page - 1) * pageSize
	if start < len(matched) {
		res.Entries = matched[start:min(start+pageSize, len(matched))]
	}
	return res, nil
}

func (j *jobSummary) track(e journalEntry) {
	j.Lines++
	if e.Handle != "" {
		j.Handle = e.Handle
	}
	if outcome, ok := outcomeByMessage[e.Message]; ok {
		j.Outcome = outcome
	}
}

// parseJournalLine разбирает строку; не-JSON попадает в журнал как есть с уровнем UNKNOWN.
func parseJournalLine(line string) journalEntry {
	var raw struct {
		Level  string `json:"level"`
		Time   any    `json:"time"`
		TS     any    `json:"ts"`
		Caller string `json:"caller"`
		Msg    string `json:"msg"`
		Job    int64  `json:"job"`
		Handle string `json:"handle"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return journalEntry{Level: "UNKNOWN", Message: line}
	}

	ts := raw.Time
	if ts == nil {
		ts = raw.TS
	}
	return journalEntry{
		Time:    parseLogTime(ts),
		Level:   normalizeLevel(raw.Level),
		Caller:  raw.Caller,
		Message: raw.Msg,
		Job:     raw.Job,
		Handle:  raw.Handle,
		Error:   raw.Error,
	}
}

// parseLogTime понимает RFC3339, формат консоли (локальное время) и epoch-секунды zap.
func parseLogTime(v any) time.Time {
	switch t := v.(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts
		}
		if ts, err := time.ParseInLocation(legacyTimeLayout, t, time.Local); err == nil {
			return ts
		}
	case float64:
		sec := int64(t)
		return time.Unix(sec, int64((t-float64(sec))*float64(time.Second)))
	}
	return time.Time{}
}

// normalizeLevel приводит уровень к верхнему регистру
func normalizeLevel(level string) string {
	switch strings.ToLower(level) {
	case "debug":
		return "DEBUG"
	case "info":
		return "INFO"
	case "warn", "warning":
		return "WARN"
	case "error", "dpanic", "panic", "fatal":
		return "ERROR"
	default:
		return level
	}
}

// displayTime — время строки в таймзоне приложения; пусто, если разобрать не удалось.
func displayTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return apptime.Display(t)
}
