// Package pr — тонкая обёртка для вывода в интерактивной консоли.
// Инициализирует readline с отменяемым stdin, переназначает stdout/stderr на его буферы
// (чтобы логи и журнал задачи не ломали строку ввода) и даёт функции печати.
// Без Init() всё пишется в os.Stdout/os.Stderr: так работает фоновый режим без терминала.

package pr

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/chzyer/readline"
	"github.com/kr/pretty"
	"golang.org/x/term"
)

var (
	// rl — активный инстанс readline. nil до Init().
	rl *readline.Instance
	// out/errOut — текущие потоки вывода.
	out    io.Writer = os.Stdout
	errOut io.Writer = os.Stderr
	// mu защищает замену ссылок на writer'ы и cancelableIn.
	mu sync.Mutex

	// cancelableIn — stdin, закрытие которого прерывает Readline() с io.EOF.
	cancelableIn interface{ Close() error }
)

// ErrNoTerminal — ввод недоступен: stdin не терминал и readline не инициализирован.
var ErrNoTerminal = errors.New("interactive input is not available")

// Init настраивает readline с приглашением prompt. Повторный вызов не предусмотрен.
func Init(prompt string) error {
	cs := readline.NewCancelableStdin(os.Stdin)
	newRl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		Stdin:           cs,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		_ = cs.Close()
		return err
	}

	mu.Lock()
	rl = newRl
	cancelableIn = cs
	out = rl.Stdout()
	errOut = rl.Stderr()
	mu.Unlock()

	return nil
}

// IsTerminal сообщает, подключён ли stdin к терминалу.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// InterruptReadline закрывает cancelable stdin: Readline() получает io.EOF и возвращается.
func InterruptReadline() {
	mu.Lock()
	defer mu.Unlock()
	if cancelableIn != nil {
		_ = cancelableIn.Close()
	}
}

// Close освобождает readline и возвращает вывод в os.Stdout/os.Stderr.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if rl != nil {
		_ = rl.Close()
		rl = nil
	}
	out = os.Stdout
	errOut = os.Stderr
}

// SetPrompt задаёт строку приглашения. Без readline — no-op.
func SetPrompt(prompt string) {
	if r := Rl(); r != nil {
		r.SetPrompt(prompt)
	}
}

// Rl возвращает текущий инстанс readline (nil, если Init() не вызывался).
func Rl() *readline.Instance {
	mu.Lock()
	defer mu.Unlock()
	return rl
}

// ReadSecret читает строку без эха: через readline, если он активен, иначе
// напрямую из терминала.
func ReadSecret(prompt string) (string, error) {
	if r := Rl(); r != nil {
		b, err := r.ReadPassword(prompt)
		return string(b), err
	}
	if !IsTerminal() {
		return "", ErrNoTerminal
	}
	fmt.Fprint(Stdout(), prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(Stdout())
	return string(b), err
}

// Stdout возвращает текущий writer стандартного вывода.
func Stdout() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return out
}

// Stderr возвращает текущий writer ошибок.
func Stderr() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return errOut
}

func Print(a ...any) {
	fmt.Fprint(Stdout(), a...)
}

func Println(a ...any) {
	fmt.Fprintln(Stdout(), a...)
}

func Printf(format string, a ...any) {
	fmt.Fprintf(Stdout(), format, a...)
}

func ErrPrintln(a ...any) {
	fmt.Fprintln(Stderr(), a...)
}

func ErrPrintf(format string, a ...any) {
	fmt.Fprintf(Stderr(), format, a...)
}

// PP pretty-печатает значение в Stdout (отладочная команда CLI).
func PP(v any) {
	fmt.Fprintf(Stdout(), "%# v\n", pretty.Formatter(v))
}

// Pf возвращает pretty-строку значения.
func Pf(v any) string {
	return fmt.Sprintf("%# v\n", pretty.Formatter(v))
}
