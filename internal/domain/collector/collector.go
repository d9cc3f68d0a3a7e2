// Package collector постранично выгружает участников группы.
//
// Правила:
//   - между элементами выдерживается пауза ItemDelay (политика, а не гарантия
//     соблюдения лимитов Telegram);
//   - FLOOD_WAIT: ждём ровно указанное время и повторяем запрос с того же offset;
//   - ошибки прав (CHAT_ADMIN_REQUIRED и родственные) — терминальные;
//   - токен отмены проверяется перед каждой страницей, на каждом элементе и
//     прерывает любое ожидание.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"go.uber.org/zap"

	"github.com/bebra552/TgGroopSoft/internal/infra/concurrency"
	"github.com/bebra552/TgGroopSoft/internal/infra/logger"
	"github.com/bebra552/TgGroopSoft/internal/infra/metrics"
)

var (
	// ErrCancelled — сбор прерван токеном отмены.
	ErrCancelled = errors.New("collection cancelled")
	// ErrAdminRequired — список участников закрыт для текущего аккаунта.
	ErrAdminRequired = errors.New("admin rights required to list members")
)

// permissionErrors — RPC-ошибки, после которых повтор бессмысленен.
var permissionErrors = []string{
	"CHAT_ADMIN_REQUIRED",
	"CHANNEL_PRIVATE",
	"CHAT_FORBIDDEN",
}

const (
	defaultPageSize = 200
	// defaultTarget — шкала прогресса, когда ни лимит, ни общее число неизвестны.
	defaultTarget = 1000
	minFloodWait  = time.Second
)

// Page — одна страница участников.
type Page struct {
	Users []tg.UserClass
	// Total — общее число участников по данным сервера (0, если неизвестно).
	Total int
}

// Source — постраничный источник участников.
type Source interface {
	Fetch(ctx context.Context, offset, limit int) (Page, error)
}

// Progress — снимок хода сбора для UI.
type Progress struct {
	Collected int
	Target    int
	// FloodWait > 0 — сборщик ушёл в ожидание на это время.
	FloodWait time.Duration
}

// Options — политика сбора.
type Options struct {
	// Cap — максимум участников; 0 — без ограничения.
	Cap           int
	PageSize      int
	ItemDelay     time.Duration
	ProgressEvery int
	OnProgress    func(Progress)
	// Sleep заменяет ожидание в тестах. По умолчанию stop.Sleep.
	Sleep func(stop *concurrency.Token, d time.Duration) bool
}

// Collector выгружает участников по Options.
type Collector struct {
	opts Options
}

// New создаёт сборщик, подставляя значения по умолчанию.
func New(opts Options) *Collector {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.Cap < 0 {
		opts.Cap = 0
	}
	if opts.Sleep == nil {
		opts.Sleep = func(stop *concurrency.Token, d time.Duration) bool { return stop.Sleep(d) }
	}
	return &Collector{opts: opts}
}

// Collect выгружает участников из src. Порядок — порядок выдачи сервера,
// повторяющиеся ID (сдвиг offset при изменении состава) отбрасываются.
// При ошибке возвращает уже собранное вместе с ошибкой.
func (c *Collector) Collect(ctx context.Context, stop *concurrency.Token, src Source) ([]tg.UserClass, error) {
	var (
		out    []tg.UserClass
		seen   = make(map[int64]struct{})
		offset int
		total  int
	)

	for {
		if stop.Cancelled() {
			return out, ErrCancelled
		}

		limit := c.opts.PageSize
		if c.opts.Cap > 0 && c.opts.Cap-len(out) < limit {
			limit = c.opts.Cap - len(out)
		}

		metrics.PagesFetchedTotal.Inc()
		page, err := src.Fetch(ctx, offset, limit)
		if err != nil {
			if wait, ok := tgerr.AsFloodWait(err); ok {
				if wait < minFloodWait {
					wait = minFloodWait
				}
				metrics.FloodWaitsTotal.Inc()
				metrics.FloodWaitSeconds.Add(wait.Seconds())
				logger.Warn("flood wait while listing members",
					zap.Duration("wait", wait), zap.Int("offset", offset))
				c.report(Progress{Collected: len(out), Target: c.target(total, len(out)), FloodWait: wait})
				if !c.opts.Sleep(stop, wait) {
					return out, ErrCancelled
				}
				continue
			}
			if tgerr.Is(err, permissionErrors...) {
				return out, fmt.Errorf("%w: %w", ErrAdminRequired, err)
			}
			if stop.Cancelled() {
				return out, ErrCancelled
			}
			return out, fmt.Errorf("fetch members at offset %d: %w", offset, err)
		}

		if page.Total > 0 {
			total = page.Total
		}
		if len(page.Users) == 0 {
			break
		}
		offset += len(page.Users)
		metrics.MembersCollectedTotal.Add(float64(len(page.Users)))

		for _, u := range page.Users {
			if stop.Cancelled() {
				return out, ErrCancelled
			}
			if id, ok := userID(u); ok {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
			}
			out = append(out, u)

			if c.opts.ProgressEvery > 0 && len(out)%c.opts.ProgressEvery == 0 {
				c.report(Progress{Collected: len(out), Target: c.target(total, len(out))})
			}
			if c.opts.Cap > 0 && len(out) >= c.opts.Cap {
				return out, nil
			}
			if !c.opts.Sleep(stop, c.opts.ItemDelay) {
				return out, ErrCancelled
			}
		}

		if total > 0 && offset >= total {
			break
		}
	}

	return out, nil
}

func (c *Collector) report(p Progress) {
	if c.opts.OnProgress != nil {
		c.opts.OnProgress(p)
	}
}

// target — верхняя граница шкалы прогресса.
func (c *Collector) target(total, collected int) int {
	switch {
	case c.opts.Cap > 0:
		return c.opts.Cap
	case total > 0:
		return total
	case collected > defaultTarget:
		return collected
	default:
		return defaultTarget
	}
}

func userID(u tg.UserClass) (int64, bool) {
	switch v := u.(type) {
	case *tg.User:
		if v != nil {
			return v.ID, true
		}
	case *tg.UserEmpty:
		if v != nil {
			return v.ID, true
		}
	}
	return 0, false
}
