package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bebra552/TgGroopSoft/internal/domain/authflow"
	"github.com/bebra552/TgGroopSoft/internal/domain/commands"
	"github.com/bebra552/TgGroopSoft/internal/domain/parsejob"
)

func TestParseStartArgs(t *testing.T) {
	t.Parallel()

	_, err := parseStartArgs(nil)
	require.Error(t, err)

	req, err := parseStartArgs([]string{"https://t.me/gophers"})
	require.NoError(t, err)
	assert.Equal(t, "https://t.me/gophers", req.Link)
	assert.Nil(t, req.MaxMembers)

	req, err = parseStartArgs([]string{"@gophers", "0"})
	require.NoError(t, err)
	require.NotNil(t, req.MaxMembers)
	assert.Equal(t, 0, *req.MaxMembers)

	_, err = parseStartArgs([]string{"@gophers", "-5"})
	require.Error(t, err)
	_, err = parseStartArgs([]string{"@gophers", "many"})
	require.Error(t, err)
}

func TestFormatEvent(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 5, 1, 13, 4, 5, 0, time.Local)

	line, ok := formatEvent(parsejob.Event{Kind: parsejob.EventLog, Time: at, Message: "🔍 Поиск группы: gophers"})
	require.True(t, ok)
	assert.Equal(t, "[13:04:05] 🔍 Поиск группы: gophers", line)

	_, ok = formatEvent(parsejob.Event{Kind: parsejob.EventProgress, Time: at, Collected: 5})
	assert.False(t, ok)

	line, ok = formatEvent(parsejob.Event{
		Kind:    parsejob.EventPrompt,
		Time:    at,
		Message: "Введите пароль 2FA",
		Prompt:  &authflow.Prompt{Kind: authflow.KindPassword},
	})
	require.True(t, ok)
	assert.Contains(t, line, "'password'")
}

func TestStatusLines(t *testing.T) {
	t.Parallel()

	lines := statusLines(&commands.StatusResult{})
	assert.Equal(t, "Job: <none>", lines[0])
	assert.Contains(t, strings.Join(lines, "\n"), "Results: <empty>")

	lines = statusLines(&commands.StatusResult{
		Job:          parsejob.Status{JobID: 2, State: parsejob.StateRunning, Link: "@g", Collected: 10, Target: 100},
		Prompt:       &authflow.Prompt{Kind: authflow.KindCode, Message: "Введите код"},
		ResultsCount: 3,
		ResultsChat:  "Gophers",
	})
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "Job #2: running (@g)")
	assert.Contains(t, joined, "Progress: 10/100")
	assert.Contains(t, joined, "use 'answer <value>'")
	assert.Contains(t, joined, `Results: 3 records from "Gophers"`)
}

func TestHelpCoversAllCommands(t *testing.T) {
	t.Parallel()

	lines := buildCommandHelpLines(commandDescriptors)
	require.Len(t, lines, len(commandDescriptors)+1)
	for _, name := range []string{"start", "stop", "answer", "password", "save", "clear-session", "weblink"} {
		assert.Contains(t, joinCommandNames(commandDescriptors), name)
	}
}
