package session

// Пакет session хранит MTProto-сессию в файле рядом с кешем пиров.
// Все файлы одной сессии имеют общий префикс "<name>.", поэтому «очистка
// сессии» удаляет их одной маской. Запись атомарная: оборванная запись не
// портит ранее сохраненную авторизацию.

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bebra552/TgGroopSoft/internal/infra/logger"
	"github.com/bebra552/TgGroopSoft/internal/infra/storage"

	"github.com/go-faster/errors"
	tdsession "github.com/gotd/td/session"
	"go.uber.org/zap"
)

// Paths — раскладка файлов одной именованной сессии.
type Paths struct {
	Dir  string
	Name string
}

// NewPaths собирает раскладку для каталога dir и имени name.
func NewPaths(dir, name string) Paths {
	return Paths{Dir: dir, Name: name}
}

// SessionFile — файл MTProto-сессии.
func (p Paths) SessionFile() string {
	return filepath.Join(p.Dir, p.Name+".session")
}

// PeersFile — bbolt-кеш разрешенных пиров.
func (p Paths) PeersFile() string {
	return filepath.Join(p.Dir, p.Name+".peers.bbolt")
}

// Exists сообщает, есть ли сохраненная сессия.
func (p Paths) Exists() bool {
	st, err := os.Stat(p.SessionFile())
	return err == nil && !st.IsDir()
}

// Clear удаляет все файлы "<name>.*" в каталоге сессии и возвращает их список.
// Отсутствие файлов — не ошибка.
func (p Paths) Clear() ([]string, error) {
	removed, err := storage.RemoveByPrefix(p.Dir, p.Name+".")
	if err != nil {
		return removed, errors.Wrap(err, "clear session")
	}
	logger.Info("session files removed", zap.String("name", p.Name), zap.Int("count", len(removed)))
	return removed, nil
}

// FileStorage реализует tdsession.Storage поверх обычного файла.
// Потокобезопасен: операции Load/Store защищены мьютексом.
type FileStorage struct {
	Path string
	mux  sync.Mutex
}

// Компиляторная проверка соответствия интерфейсу tdsession.Storage.
var _ tdsession.Storage = (*FileStorage)(nil)

// LoadSession читает файл сессии с диска.
func (f *FileStorage) LoadSession(_ context.Context) ([]byte, error) {
	if f == nil {
		return nil, errors.New("nil session storage is invalid")
	}
	f.mux.Lock()
	defer f.mux.Unlock()

	data, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return nil, tdsession.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "read session")
	}
	return data, nil
}

// StoreSession атомарно сохраняет данные сессии на диск.
func (f *FileStorage) StoreSession(_ context.Context, data []byte) error {
	if f == nil {
		return errors.New("nil session storage is invalid")
	}

	f.mux.Lock()
	defer f.mux.Unlock()

	if err := storage.AtomicWriteFile(f.Path, data); err != nil {
		return fmt.Errorf("atomic write session: %w", err)
	}
	logger.Debug("session stored", zap.String("path", f.Path))
	return nil
}
