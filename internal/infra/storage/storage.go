// Package storage — утилиты безопасной работы с локальным хранилищем:
//   - EnsureDir — гарантирует наличие директории для целевого пути;
//   - AtomicWriteFile/AtomicWrite — атомарная запись файла;
//   - RemoveByPrefix — удаление семейства файлов с общим префиксом имени.
//
// Используется для MTProto-сессий и файлов экспорта, где недопустимы
// частично записанные файлы.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bebra552/TgGroopSoft/internal/infra/logger"
)

// DefaultFilePerm — права на файлы сессии: только владелец процесса.
const DefaultFilePerm = 0o600

// ExportFilePerm — права на файлы экспорта, которые пользователь открывает сам.
const ExportFilePerm = 0o644

// EnsureDir гарантирует наличие каталога для указанного файла.
// Если путь не содержит директорию ("." или пустая строка), ничего не делает.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	return nil
}

// AtomicWriteFile атомарно записывает байты в файл path с правами DefaultFilePerm.
func AtomicWriteFile(path string, data []byte) error {
	return AtomicWrite(path, DefaultFilePerm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// AtomicWrite пишет файл через temp в том же каталоге:
// write → fsync(temp) → chmod(perm) → close → rename → fsync(dir).
// Либо старый файл остаётся цел, либо новый записан полностью. os.Rename
// атомарен только в пределах одного тома, fsync каталога — best-effort.
func AtomicWrite(path string, perm os.FileMode, write func(w io.Writer) error) error {
	clean := filepath.Clean(path)
	if err := EnsureDir(clean); err != nil {
		return err
	}
	dir := filepath.Dir(clean)

	tmp, err := os.CreateTemp(dir, "atomic-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, clean); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	if dirFile, err := os.Open(dir); err == nil {
		if errSync := dirFile.Sync(); errSync != nil {
			logger.Warnf("AtomicWrite: dir sync error: %v", errSync) // best-effort для Windows/некоторых FS
		}
		_ = dirFile.Close()
	}
	return nil
}

// RemoveByPrefix удаляет в dir все обычные файлы, имя которых начинается с prefix.
// Подкаталоги не трогает. Отсутствующий каталог — не ошибка. Возвращает
// отсортированный список удалённых путей; при ошибке удаления продолжает с
// остальными и возвращает первую ошибку.
func RemoveByPrefix(dir, prefix string) ([]string, error) {
	if prefix == "" {
		return nil, fmt.Errorf("remove by prefix: empty prefix")
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var (
		removed  []string
		firstErr error
	)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove %s: %w", path, err)
			}
			continue
		}
		removed = append(removed, path)
	}
	sort.Strings(removed)
	return removed, firstErr
}
