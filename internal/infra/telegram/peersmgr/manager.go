// Package peersmgr — обёртка над gotd peers.Manager с персистентным хранилищем на bbolt.
// Сервис отвечает за:
//   - открытие/закрытие базы данных кэша пиров;
//   - подготовку менеджера пиров (в памяти) и доступ к нему;
//   - загрузку сохранённых peers из файла в менеджер при старте;
//   - запоминание найденных групп по их публичному имени, чтобы повторный
//     парсинг той же группы не тратил запрос contacts.resolveUsername.
package peersmgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	bboltdb "github.com/gotd/contrib/bbolt"
	contribstorage "github.com/gotd/contrib/storage"
	"github.com/gotd/td/telegram/peers"
	"github.com/gotd/td/telegram/query/dialogs"
	"github.com/gotd/td/tg"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/bebra552/TgGroopSoft/internal/infra/logger"
	"github.com/bebra552/TgGroopSoft/internal/infra/storage"
)

const (
	peersBucketName = "peers"
	dbOpenTimeout   = time.Second
	// handleKeyPrefix — пространство ключей Assign/Resolve для имён групп.
	handleKeyPrefix = "handle:"
)

var peersBucketBytes = []byte(peersBucketName)

// ErrNotCached — имя ещё не разрешалось.
var ErrNotCached = errors.New("peersmgr: handle is not cached")

// Service инкапсулирует менеджер пиров и bbolt-хранилище.
type Service struct {
	db    *bbolt.DB
	store contribstorage.PeerStorage
	Mgr   *peers.Manager
}

// New создаёт сервис пиров поверх bbolt и gotd peers.Manager.
// Файл открывается с таймаутом: пока он занят другим процессом, New вернёт ошибку.
func New(api *tg.Client, dbPath string) (*Service, error) {
	if api == nil {
		return nil, errors.New("peersmgr: api client is nil")
	}
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}
	return &Service{
		db:    db,
		store: bboltdb.NewPeerStorage(db, peersBucketBytes),
		Mgr:   (peers.Options{}).Build(api),
	}, nil
}

func openDB(dbPath string) (*bbolt.DB, error) {
	path := strings.TrimSpace(dbPath)
	if path == "" {
		return nil, errors.New("peersmgr: db path is empty")
	}
	if err := storage.EnsureDir(path); err != nil {
		return nil, fmt.Errorf("peersmgr: %w", err)
	}
	db, err := bbolt.Open(path, storage.DefaultFilePerm, &bbolt.Options{Timeout: dbOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("peersmgr: open db: %w", err)
	}
	return db, nil
}

// Close закрывает файл базы данных.
func (s *Service) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Store возвращает персистентное хранилище пиров.
func (s *Service) Store() contribstorage.PeerStorage {
	return s.store
}

// LoadFromStorage прогружает сохранённые peers из bbolt в оперативный peers.Manager.
// Повреждённый bucket сбрасывается: кеш восстановится при следующих запросах.
func (s *Service) LoadFromStorage(ctx context.Context) error {
	iter, exists, err := s.iterateStoredPeers(ctx)
	if err != nil {
		if isJSONUnmarshalError(err) {
			logger.Warn("peer cache is corrupted, resetting", zap.Error(err))
			return s.resetPeersBucket()
		}
		return fmt.Errorf("peersmgr: iterate stored peers: %w", err)
	}
	if !exists {
		return nil
	}
	defer func() {
		_ = iter.Close()
	}()

	var (
		users []tg.UserClass
		chats []tg.ChatClass
	)
	for iter.Next(ctx) {
		value := iter.Value()
		switch value.Key.Kind {
		case dialogs.User:
			if value.User != nil {
				users = append(users, value.User)
			}
		case dialogs.Chat:
			chat := value.Chat
			if chat == nil {
				chat = &tg.Chat{ID: value.Key.ID}
			}
			chats = append(chats, chat)
		case dialogs.Channel:
			channel := value.Channel
			if channel == nil {
				channel = &tg.Channel{
					ID:         value.Key.ID,
					AccessHash: value.Key.AccessHash,
				}
			}
			chats = append(chats, channel)
		}
	}

	if err = iter.Err(); err != nil {
		return fmt.Errorf("peersmgr: iterate stored peers: %w", err)
	}
	if len(users) == 0 && len(chats) == 0 {
		return nil
	}
	logger.Debug("peer cache loaded", zap.Int("users", len(users)), zap.Int("chats", len(chats)))
	return s.Mgr.Apply(ctx, users, chats)
}

// RememberHandle сохраняет группу под её публичным именем.
func (s *Service) RememberHandle(ctx context.Context, handle string, chat tg.ChatClass) error {
	var value contribstorage.Peer
	if !value.FromChat(chat) {
		return fmt.Errorf("peersmgr: unsupported chat type %T", chat)
	}
	if err := s.store.Add(ctx, value); err != nil {
		return fmt.Errorf("peersmgr: add peer: %w", err)
	}
	if err := s.store.Assign(ctx, handleKey(handle), value); err != nil {
		return fmt.Errorf("peersmgr: assign handle: %w", err)
	}
	return nil
}

// LookupHandle возвращает группу, ранее сохранённую RememberHandle, и
// применяет её к peers.Manager. Для неизвестного имени — ErrNotCached.
func (s *Service) LookupHandle(ctx context.Context, handle string) (peers.Peer, error) {
	value, err := s.store.Resolve(ctx, handleKey(handle))
	if errors.Is(err, contribstorage.ErrPeerNotFound) {
		return nil, ErrNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("peersmgr: resolve handle: %w", err)
	}

	switch {
	case value.Channel != nil:
		if err := s.Mgr.Apply(ctx, nil, []tg.ChatClass{value.Channel}); err != nil {
			return nil, err
		}
		return s.Mgr.Channel(value.Channel), nil
	case value.Chat != nil:
		if err := s.Mgr.Apply(ctx, nil, []tg.ChatClass{value.Chat}); err != nil {
			return nil, err
		}
		return s.Mgr.Chat(value.Chat), nil
	default:
		return nil, ErrNotCached
	}
}

// handleKey нормализует имя: Telegram не различает регистр username.
func handleKey(handle string) string {
	return handleKeyPrefix + strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}

func (s *Service) iterateStoredPeers(ctx context.Context) (contribstorage.PeerIterator, bool, error) {
	exists := false
	if err := s.db.View(func(tx *bbolt.Tx) error {
		exists = tx.Bucket(peersBucketBytes) != nil
		return nil
	}); err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, nil
	}
	iter, err := s.store.Iterate(ctx)
	if err != nil {
		return nil, false, err
	}
	return iter, true, nil
}

func isJSONUnmarshalError(err error) bool {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return true
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return true
	}
	return strings.Contains(err.Error(), "json:")
}

func (s *Service) resetPeersBucket() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(peersBucketBytes); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(peersBucketBytes)
		return err
	})
}
