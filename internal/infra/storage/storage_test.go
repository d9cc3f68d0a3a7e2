package storage_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bebra552/TgGroopSoft/internal/infra/storage"
)

func TestAtomicWriteFileCreatesDirAndReplaces(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "session.bin")
	require.NoError(t, storage.AtomicWriteFile(path, []byte("first")))
	require.NoError(t, storage.AtomicWriteFile(path, []byte("second")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "временные файлы не должны оставаться")
}

func TestRemoveByPrefix(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{
		"telegram_parser_persistent.session",
		"telegram_parser_persistent.peers.bbolt",
		"telegram_parser_persistent_other.session",
		"unrelated.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "telegram_parser_persistent.d"), 0o700))

	removed, err := storage.RemoveByPrefix(dir, "telegram_parser_persistent.")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "telegram_parser_persistent.peers.bbolt"),
		filepath.Join(dir, "telegram_parser_persistent.session"),
	}, removed)

	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(left))
	for _, e := range left {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{
		"telegram_parser_persistent_other.session",
		"unrelated.txt",
		"telegram_parser_persistent.d",
	}, names)
}

func TestRemoveByPrefixMissingDir(t *testing.T) {
	t.Parallel()

	removed, err := storage.RemoveByPrefix(filepath.Join(t.TempDir(), "nope"), "x.")
	require.NoError(t, err)
	assert.Empty(t, removed)
}
