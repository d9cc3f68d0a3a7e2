// Package telegram связывает доменные порты парсера с gotd: создаёт MTProto-клиент
// на время задачи, проводит вход через client.Auth() и отдаёт постраничные
// источники участников для супергрупп и обычных групп.
package telegram

import (
	"context"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/contrib/middleware/ratelimit"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/dcs"
	"go.uber.org/zap"
	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"

	"github.com/bebra552/TgGroopSoft/internal/domain/parsejob"
	"github.com/bebra552/TgGroopSoft/internal/infra/logger"
	"github.com/bebra552/TgGroopSoft/internal/infra/storage"
	"github.com/bebra552/TgGroopSoft/internal/infra/telegram/peersmgr"
	"github.com/bebra552/TgGroopSoft/internal/infra/telegram/session"
	"github.com/bebra552/TgGroopSoft/internal/support/version"
)

// Options — параметры подключения.
type Options struct {
	Session session.Paths
	// FloodWaitAuto — короткие FLOOD_WAIT (не дольше) middleware переждёт сам,
	// длинные вернутся вызывающему коду. 0 — не ждать в middleware вовсе.
	FloodWaitAuto time.Duration
	ThrottleRPS   int
	TestDC        bool
	// ProxyURL — socks5://[user:pass@]host:port, пусто — напрямую.
	ProxyURL string
}

// Connector открывает MTProto-подключение на время одной задачи.
type Connector struct {
	opts Options
}

var _ parsejob.Connector = (*Connector)(nil)

// NewConnector проверяет параметры и создаёт коннектор.
func NewConnector(opts Options) (*Connector, error) {
	if opts.ThrottleRPS <= 0 {
		opts.ThrottleRPS = 1
	}
	if opts.ProxyURL != "" {
		if _, err := proxyDialer(opts.ProxyURL); err != nil {
			return nil, err
		}
	}
	return &Connector{opts: opts}, nil
}

// Run создаёт клиент, подключается, выполняет f и отключается. Кеш пиров
// открывается внутри подключения и закрывается при любом исходе.
func (c *Connector) Run(ctx context.Context, creds parsejob.Credentials, f func(ctx context.Context, s parsejob.Session) error) error {
	if err := storage.EnsureDir(c.opts.Session.SessionFile()); err != nil {
		return errors.Wrap(err, "prepare session dir")
	}

	waiter := floodwait.NewWaiter().WithMaxWait(autoWaitLimit(c.opts.FloodWaitAuto))
	options, err := c.clientOptions(waiter)
	if err != nil {
		return err
	}
	client := telegram.NewClient(creds.APIID, creds.APIHash, options)

	return waiter.Run(ctx, func(ctx context.Context) error {
		return client.Run(ctx, func(ctx context.Context) error {
			peersSvc, err := peersmgr.New(client.API(), c.opts.Session.PeersFile())
			if err != nil {
				return errors.Wrap(err, "open peer cache")
			}
			defer func() {
				if closeErr := peersSvc.Close(); closeErr != nil {
					logger.Warn("peer cache close failed", zap.Error(closeErr))
				}
			}()
			if err := peersSvc.LoadFromStorage(ctx); err != nil {
				logger.Warn("peer cache load failed", zap.Error(err))
			}

			return f(ctx, newGateway(client, peersSvc))
		})
	})
}

// autoWaitLimit переводит настройку в maxWait для floodwait. У waiter 0 значит
// «без предела», а ожидание меньше секунды он округляет до секунды, поэтому
// наносекунда отдаёт любой FLOOD_WAIT наверх, в отменяемую паузу сборщика.
func autoWaitLimit(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Nanosecond
	}
	return d
}

func (c *Connector) clientOptions(waiter *floodwait.Waiter) (telegram.Options, error) {
	options := telegram.Options{
		SessionStorage: &session.FileStorage{Path: c.opts.Session.SessionFile()},
		NoUpdates:      true,
		Middlewares: []telegram.Middleware{
			waiter,
			ratelimit.New(
				rate.Limit(c.opts.ThrottleRPS),
				c.opts.ThrottleRPS*2, //nolint:mnd // burst = 2*rate
			),
		},
		Device: telegram.DeviceConfig{
			DeviceModel:   "Desktop",
			SystemVersion: "Go",
			AppVersion:    version.Version,
		},
	}
	if logger.IsDebugEnabled() {
		options.Logger = logger.Logger().Named("mtproto")
	}

	// Для тестовых окружений используем DC тестового стенда Telegram.
	if c.opts.TestDC {
		options.DCList = dcs.Test()
	}

	if c.opts.ProxyURL != "" {
		dial, err := proxyDialer(c.opts.ProxyURL)
		if err != nil {
			return telegram.Options{}, err
		}
		options.Resolver = dcs.Plain(dcs.PlainOptions{Dial: dial})
	}
	return options, nil
}

// proxyDialer строит функцию соединения через SOCKS5-прокси.
func proxyDialer(raw string) (dcs.DialFunc, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, errors.Wrap(err, "parse PROXY_URL")
	}
	if u.Scheme != "socks5" && u.Scheme != "socks5h" {
		return nil, errors.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	d, err := proxy.FromURL(u, proxy.Direct)
	if err != nil {
		return nil, errors.Wrap(err, "create proxy dialer")
	}
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext, nil
	}
	return func(_ context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(network, addr)
	}, nil
}
