// Package cli — интерактивная командная консоль парсера участников.
// Сервис стартует фоном, читает команды из readline и передаёт их в
// commands.Executor; события фоновой задачи печатаются по мере поступления
// с отметкой времени, как в журнале прогресса. Поддерживается корректная
// интеграция в lifecycle: Start/Stop идемпотентны.
package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bebra552/TgGroopSoft/internal/domain/authflow"
	"github.com/bebra552/TgGroopSoft/internal/domain/commands"
	"github.com/bebra552/TgGroopSoft/internal/domain/parsejob"
	"github.com/bebra552/TgGroopSoft/internal/domain/results"
	"github.com/bebra552/TgGroopSoft/internal/infra/apptime"
	"github.com/bebra552/TgGroopSoft/internal/infra/logger"
	"github.com/bebra552/TgGroopSoft/internal/infra/pr"
)

// commandDescriptor описывает одну CLI-команду: её имя и краткое описание для help.
type commandDescriptor struct {
	name        string
	description string
}

// commandDescriptors — реестр доступных команд. Рендерится в help и подсказки.
// Важно: имена должны совпадать с кейсами в handleCommand().
var (
	commandDescriptors = []commandDescriptor{
		{name: "help", description: "Show available commands with short descriptions"},
		{name: "start", description: "start <link> [max] - parse group members (max 0 = no limit)"},
		{name: "stop", description: "Stop the running parse job"},
		{name: "answer", description: "answer <value> - reply to the pending login prompt (phone, code)"},
		{name: "password", description: "Enter the 2FA password with hidden input"},
		{name: "status", description: "Show job progress and results summary"},
		{name: "results", description: "results [n] - print first n rows of the results table (default 20)"},
		{name: "save", description: "save [path|csv|xlsx] - save results (default: CSV in SAVE_DIR)"},
		{name: "clear", description: "Clear the results table"},
		{name: "clear-session", description: "Delete the saved Telegram session"},
		{name: "creds", description: "creds <api_id> <api_hash> - set API credentials for this run"},
		{name: "whoami", description: "Display information about the current account"},
		{name: "weblink", description: "Print the web UI login link"},
		{name: "version", description: "Print parser version"},
		{name: "exit", description: "Stop CLI and terminate the service"},
	}
)

const (
	defaultResultRows = 20
	commandTimeout    = 30 * time.Second
)

// Service инкапсулирует CLI и интегрируется в lifecycle приложения.
// Имеет собственный cancel, запускает цикл чтения команд в отдельной горутине
// и синхронно закрывается через Stop().
type Service struct {
	exec        commands.Executor  // общий исполнитель команд (тот же, что у веба)
	stopApp     context.CancelFunc // внешняя отмена приложения (exit и Ctrl-C на пустой строке)
	webLink     func() string      // ссылка входа в веб-интерфейс; nil — веб выключен
	cancel      context.CancelFunc // локальная отмена run-цикла CLI
	unsubscribe func()
	wg          sync.WaitGroup // ожидание завершения фоновой горутины run
	onceStart   sync.Once      // идемпотентный запуск
	onceStop    sync.Once      // идемпотентная остановка
}

// NewService создаёт CLI-сервис. Параметр stopApp используется как «глобальная»
// остановка приложения (команда exit, Ctrl-C на пустой строке).
func NewService(exec commands.Executor, stopApp context.CancelFunc, webLink func() string) *Service {
	return &Service{exec: exec, stopApp: stopApp, webLink: webLink}
}

// Start подписывается на события задач и запускает цикл CLI в отдельной горутине.
// Повторные вызовы безопасно игнорируются.
func (s *Service) Start(ctx context.Context) {
	s.onceStart.Do(func() {
		s.unsubscribe = s.exec.Subscribe(printEvent)
		runCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.wg.Go(func() {
			s.run(runCtx)
		})
	})
}

// Stop завершает CLI: посылает внешнюю остановку приложения (если предусмотрено),
// прерывает readline, отменяет локальный контекст и дожидается завершения run-цикла.
func (s *Service) Stop() {
	s.onceStop.Do(func() {
		if s.stopApp != nil {
			s.stopApp()
		}
		if rl := pr.Rl(); rl != nil {
			pr.InterruptReadline()
		}
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
	})
}

// run — основной цикл обработчика CLI.
func (s *Service) run(ctx context.Context) {
	logger.Debug("CLI run started")
	pr.SetPrompt("> ")
	pr.Println("CLI started. Enter commands:", joinCommandNames(commandDescriptors))
	pr.Println("Press '?' or type 'help' for detailed descriptions.")
	installKeyHandlers(s.stopApp)

	defer func() {
		if rl := pr.Rl(); rl != nil {
			_ = rl.Close()
		}
	}()

	// Главный цикл чтения команд. Выход — по отмене контекста или по EOF от readline.
	for {
		if ctx.Err() != nil {
			logger.Debug("CLI: context canceled")
			return
		}

		line, err := pr.Rl().Readline()
		if err != nil {
			logger.Debug("CLI: deactivated (io.EOF)")
			if s.stopApp != nil {
				s.stopApp()
			}
			return
		}

		cmd := strings.TrimSpace(line)
		if s.handleCommand(ctx, cmd) {
			logger.Debugf("CLI: command %q requested exit", cmd)
			return
		}
	}
}

// installKeyHandlers подключает обработчики специальных клавиш для readline:
//   - '?' — печать help без отправки символа в текущую строку;
//   - Ctrl-C на пустой строке — мягкая остановка приложения (stopApp) и прерывание readline;
//   - Ctrl-C на непустой строке — очистка текущей строки (как в типичных CLI).
func installKeyHandlers(stop context.CancelFunc) {
	rl := pr.Rl()
	if rl == nil || rl.Config == nil {
		return
	}

	prev := rl.Config.Listener
	rl.Config.SetListener(func(line []rune, pos int, key rune) ([]rune, int, bool) {
		if key == '?' {
			printCommandHelp()
			if pos > 0 && pos <= len(line) {
				trimmed := append([]rune{}, line[:pos-1]...)
				trimmed = append(trimmed, line[pos:]...)
				return trimmed, pos - 1, true
			}
			return line, pos, true
		}
		if key == 3 { //nolint: mnd // Ctrl-C (ETX, rune value 3)
			if strings.TrimSpace(string(line)) == "" {
				if stop != nil {
					stop()
				}
				pr.InterruptReadline()
				return line, pos, true
			}
			return []rune{}, 0, true
		}
		if prev != nil {
			return prev.OnChange(line, pos, key)
		}
		return nil, 0, false
	})
}

// printCommandHelp печатает список поддерживаемых команд и их описания.
func printCommandHelp() {
	for _, text := range buildCommandHelpLines(commandDescriptors) {
		pr.Println(text)
	}
}

// handleCommand разбирает введённую команду и выполняет соответствующее действие.
// Возвращает true, если команда инициирует завершение CLI ("exit").
func (s *Service) handleCommand(parent context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	ctx, cancel := context.WithTimeout(parent, commandTimeout)
	defer cancel()

	switch name {
	case "help":
		printCommandHelp()
	case "start":
		s.handleStart(ctx, args)
	case "stop":
		s.handleStop(ctx)
	case "answer":
		s.handleAnswer(ctx, "", strings.TrimSpace(strings.TrimPrefix(line, fields[0])))
	case "password":
		s.handlePassword(ctx)
	case "status":
		s.handleStatus(ctx)
	case "results":
		s.handleResults(ctx, args)
	case "save":
		s.handleSave(ctx, strings.TrimSpace(strings.TrimPrefix(line, fields[0])))
	case "clear":
		_ = s.exec.ClearResults(ctx)
		pr.Println("Results cleared.")
	case "clear-session":
		s.handleClearSession(ctx)
	case "creds":
		s.handleCreds(ctx, args)
	case "whoami":
		s.handleWhoami(ctx)
	case "weblink":
		if s.webLink == nil {
			pr.ErrPrintln("web server is disabled (WEB_SERVER_ENABLE=false)")
		} else {
			pr.Println(s.webLink())
		}
	case "version":
		if v, err := s.exec.Version(ctx); err == nil {
			pr.Printf("%s v%s\n", v.Name, v.Version)
		}
	case "exit":
		if s.stopApp != nil {
			s.stopApp()
		}
		return true
	default:
		pr.Println("unknown command:", name)
	}
	return false
}

func (s *Service) handleStart(ctx context.Context, args []string) {
	req, err := parseStartArgs(args)
	if err != nil {
		pr.ErrPrintln(err)
		return
	}
	res, err := s.exec.Start(ctx, req)
	if err != nil {
		pr.ErrPrintln(parsejob.DescribeStartError(err))
		return
	}
	limit := "без лимита"
	if res.MaxMembers > 0 {
		limit = strconv.Itoa(res.MaxMembers)
	}
	pr.Printf("Job #%d started (max members: %s)\n", res.JobID, limit)
}

// parseStartArgs: start <link> [max].
func parseStartArgs(args []string) (commands.StartRequest, error) {
	if len(args) == 0 {
		return commands.StartRequest{}, errors.New("usage: start <link> [max]")
	}
	req := commands.StartRequest{Link: args[0]}
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 0 {
			return commands.StartRequest{}, fmt.Errorf("invalid max members %q: expected a non-negative number", args[1])
		}
		req.MaxMembers = &n
	}
	return req, nil
}

func (s *Service) handleStop(ctx context.Context) {
	res, err := s.exec.Stop(ctx)
	if errors.Is(err, parsejob.ErrNotRunning) {
		pr.Println("No running job.")
		return
	}
	if err != nil {
		pr.ErrPrintln("stop error:", err)
		return
	}
	if !res.Graceful {
		pr.Printf("Job #%d terminated forcibly.\n", res.JobID)
	}
}

func (s *Service) handleAnswer(ctx context.Context, kind authflow.Kind, value string) {
	answered, err := s.exec.Answer(ctx, kind, value)
	switch {
	case errors.Is(err, authflow.ErrEmptyAnswer):
		pr.ErrPrintln("Empty answer, try again.")
	case errors.Is(err, authflow.ErrNoPendingPrompt), errors.Is(err, parsejob.ErrNotRunning):
		pr.ErrPrintln("Nothing is waiting for an answer.")
	case err != nil:
		pr.ErrPrintln("answer error:", err)
	default:
		logger.Debugf("CLI: %s submitted", answered)
	}
}

func (s *Service) handlePassword(ctx context.Context) {
	if p, ok := s.exec.Pending(ctx); !ok || p.Kind != authflow.KindPassword {
		pr.ErrPrintln("No password prompt is pending.")
		return
	}
	pwd, err := pr.ReadSecret("2FA password: ")
	if err != nil {
		pr.ErrPrintln("password input error:", err)
		return
	}
	s.handleAnswer(ctx, authflow.KindPassword, pwd)
}

// handleStatus печатает состояние последней задачи, открытый запрос и сводку результатов.
func (s *Service) handleStatus(ctx context.Context) {
	st, err := s.exec.Status(ctx)
	if err != nil {
		pr.ErrPrintln("status error:", err)
		return
	}
	for _, line := range statusLines(st) {
		pr.Println(line)
	}
}

func statusLines(st *commands.StatusResult) []string {
	var lines []string
	job := st.Job
	if job.JobID == 0 {
		lines = append(lines, "Job: <none>")
	} else {
		lines = append(lines, fmt.Sprintf("Job #%d: %s (%s)", job.JobID, job.State, job.Link))
		if job.Chat != "" {
			lines = append(lines, "Group: "+job.Chat)
		}
		lines = append(lines, fmt.Sprintf("Progress: %d/%d", job.Collected, job.Target))
		lines = append(lines, "Started: "+apptime.Display(job.Started))
		if !job.Finished.IsZero() {
			lines = append(lines, "Finished: "+apptime.Display(job.Finished))
		}
	}
	if st.Prompt != nil {
		hint := "answer <value>"
		if st.Prompt.Kind.Secret() {
			hint = "password"
		}
		lines = append(lines, fmt.Sprintf("Waiting for %s: %s (use '%s')", st.Prompt.Kind, st.Prompt.Message, hint))
	}
	if st.ResultsCount > 0 {
		lines = append(lines, fmt.Sprintf("Results: %d records from %q (%s)",
			st.ResultsCount, st.ResultsChat, apptime.Display(st.ResultsUpdated)))
	} else {
		lines = append(lines, "Results: <empty>")
	}
	lines = append(lines, fmt.Sprintf("Credentials: %t, saved session: %t", st.HasCredentials, st.SessionExists))
	return lines
}

func (s *Service) handleResults(ctx context.Context, args []string) {
	limit := defaultResultRows
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			pr.ErrPrintln("usage: results [n]")
			return
		}
		limit = n
	}
	res, err := s.exec.Results(ctx, limit)
	if err != nil {
		pr.ErrPrintln("results error:", err)
		return
	}
	if res.Total == 0 {
		pr.Println("Results table is empty.")
		return
	}
	pr.Println(strings.Join(res.Columns, " | "))
	for _, row := range res.Rows {
		pr.Println(strings.Join(row, " | "))
	}
	pr.Printf("Shown %d of %d (%s)\n", len(res.Rows), res.Total, res.Chat)
}

func (s *Service) handleSave(ctx context.Context, path string) {
	res, err := s.exec.Save(ctx, path)
	if errors.Is(err, results.ErrEmpty) {
		pr.ErrPrintln("Nothing to save: run 'start' first.")
		return
	}
	if err != nil {
		pr.ErrPrintln("save error:", err)
		return
	}
	pr.Printf("💾 Saved %d records to %s\n", res.Records, res.Path)
}

func (s *Service) handleClearSession(ctx context.Context) {
	res, err := s.exec.ClearSession(ctx)
	if errors.Is(err, commands.ErrJobRunning) {
		pr.ErrPrintln("Stop the running job first.")
		return
	}
	if err != nil {
		pr.ErrPrintln("clear-session error:", err)
		return
	}
	if len(res.Removed) == 0 {
		pr.Println("No saved session.")
		return
	}
	pr.Printf("Session cleared (%d files removed).\n", len(res.Removed))
}

func (s *Service) handleCreds(ctx context.Context, args []string) {
	if len(args) != 2 { //nolint:mnd // api_id + api_hash
		pr.ErrPrintln("usage: creds <api_id> <api_hash>")
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		pr.ErrPrintln("api_id must be a number")
		return
	}
	if err := s.exec.SetCredentials(ctx, id, args[1]); err != nil {
		pr.ErrPrintln(parsejob.DescribeStartError(err))
		return
	}
	pr.Println("Credentials set for this run.")
}

// handleWhoami печатает краткую информацию о текущем аккаунте (имя, username, id).
func (s *Service) handleWhoami(ctx context.Context) {
	res, err := s.exec.Whoami(ctx)
	switch {
	case errors.Is(err, commands.ErrNotAuthorized):
		pr.Println("Not logged in: the first 'start' will ask for phone and code.")
	case errors.Is(err, commands.ErrJobRunning):
		pr.Println("Job is logging in right now, try again later.")
	case err != nil:
		pr.ErrPrintln("whoami error:", err)
	case res.Username != "":
		pr.Printf("You are: %s (@%s), id=%d\n", res.FullName, res.Username, res.ID)
	default:
		pr.Printf("You are: %s, id=%d\n", res.FullName, res.ID)
	}
}

// printEvent печатает событие задачи. Вызывается в горутине воркера.
func printEvent(ev parsejob.Event) {
	line, ok := formatEvent(ev)
	if !ok {
		return
	}
	if ev.Kind == parsejob.EventFailed {
		pr.ErrPrintln(line)
		return
	}
	pr.Println(line)
}

// formatEvent — строка журнала "[HH:MM:SS] текст". Числовой прогресс не
// печатается: его дублирует строка журнала.
func formatEvent(ev parsejob.Event) (string, bool) {
	stamp := "[" + apptime.Clock(ev.Time) + "] "
	switch ev.Kind {
	case parsejob.EventProgress:
		return "", false
	case parsejob.EventPrompt:
		hint := "answer <value>"
		if ev.Prompt != nil && ev.Prompt.Kind.Secret() {
			hint = "password"
		}
		return fmt.Sprintf("%s🔑 %s (введите '%s')", stamp, ev.Message, hint), true
	case parsejob.EventFinished:
		return fmt.Sprintf("%s%s\n%s💾 Сохранить: save [путь|csv|xlsx]", stamp, ev.Message, stamp), true
	default:
		return stamp + ev.Message, true
	}
}

// joinCommandNames собирает строку имён команд, разделённых запятыми, для короткой подсказки.
func joinCommandNames(descriptors []commandDescriptor) string {
	names := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		names = append(names, d.name)
	}
	return strings.Join(names, ", ")
}

// buildCommandHelpLines генерирует строки помощи вида "<name> - <description>".
func buildCommandHelpLines(descriptors []commandDescriptor) []string {
	lines := make([]string, 0, len(descriptors)+1)
	lines = append(lines, "Available commands:")
	for _, descriptor := range descriptors {
		lines = append(lines, fmt.Sprintf("  %-13s - %s", descriptor.name, descriptor.description))
	}
	return lines
}
