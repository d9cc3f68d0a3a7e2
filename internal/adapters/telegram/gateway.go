package telegram

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/peers"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/bebra552/TgGroopSoft/internal/domain/authflow"
	"github.com/bebra552/TgGroopSoft/internal/domain/parsejob"
	"github.com/bebra552/TgGroopSoft/internal/infra/logger"
	"github.com/bebra552/TgGroopSoft/internal/infra/telegram/peersmgr"
)

// ErrNotGroup — имя принадлежит пользователю или боту.
var ErrNotGroup = errors.New("peer is not a group or channel")

// gateway — открытое подключение: вход и поиск групп.
type gateway struct {
	client *telegram.Client
	api    *tg.Client
	peers  *peersmgr.Service
}

var _ parsejob.Session = (*gateway)(nil)

func newGateway(client *telegram.Client, peersSvc *peersmgr.Service) *gateway {
	return &gateway{client: client, api: client.API(), peers: peersSvc}
}

func (g *gateway) Auth() authflow.AuthClient {
	return authClient{client: g.client.Auth()}
}

// ResolveGroup ищет группу сначала в кеше пиров, затем через
// contacts.resolveUsername. Устаревшая запись кеша (сменился access hash)
// разрешается заново.
func (g *gateway) ResolveGroup(ctx context.Context, handle string) (parsejob.Group, error) {
	if p, err := g.peers.LookupHandle(ctx, handle); err == nil {
		group, groupErr := g.group(ctx, p)
		if groupErr == nil {
			logger.Debug("group resolved from peer cache", zap.String("handle", handle))
			return group, nil
		}
		logger.Info("cached group is stale, resolving again",
			zap.String("handle", handle), zap.Error(groupErr))
	} else if !errors.Is(err, peersmgr.ErrNotCached) {
		logger.Warn("peer cache lookup failed", zap.String("handle", handle), zap.Error(err))
	}

	p, err := g.peers.Mgr.ResolveDomain(ctx, handle)
	if err != nil {
		return parsejob.Group{}, errors.Wrapf(err, "resolve %q", handle)
	}
	group, err := g.group(ctx, p)
	if err != nil {
		return parsejob.Group{}, err
	}

	var raw tg.ChatClass
	switch v := p.(type) {
	case peers.Channel:
		raw = v.Raw()
	case peers.Chat:
		raw = v.Raw()
	}
	if err := g.peers.RememberHandle(ctx, handle, raw); err != nil {
		logger.Warn("failed to cache group", zap.String("handle", handle), zap.Error(err))
	}
	return group, nil
}

// group собирает описание группы и источник участников. Запрос полной
// информации заодно проверяет, что пир доступен.
func (g *gateway) group(ctx context.Context, p peers.Peer) (parsejob.Group, error) {
	switch v := p.(type) {
	case peers.Channel:
		raw := v.Raw()
		full, err := g.api.ChannelsGetFullChannel(ctx, v.InputChannel())
		if err != nil {
			return parsejob.Group{}, errors.Wrap(err, "get full channel")
		}
		count := raw.ParticipantsCount
		if cf, ok := full.FullChat.(*tg.ChannelFull); ok && cf.ParticipantsCount > 0 {
			count = cf.ParticipantsCount
		}
		return parsejob.Group{
			ID:      raw.ID,
			Title:   raw.Title,
			Members: count,
			Source:  &channelSource{api: g.api, channel: v.InputChannel()},
		}, nil

	case peers.Chat:
		raw := v.Raw()
		full, err := g.api.MessagesGetFullChat(ctx, raw.ID)
		if err != nil {
			return parsejob.Group{}, errors.Wrap(err, "get full chat")
		}
		return parsejob.Group{
			ID:      raw.ID,
			Title:   raw.Title,
			Members: raw.ParticipantsCount,
			Source:  newChatSource(full),
		}, nil

	default:
		return parsejob.Group{}, errors.Wrapf(ErrNotGroup, "%T", p)
	}
}

// authClient адаптирует gotd auth.Client к authflow.AuthClient.
type authClient struct {
	client *auth.Client
}

func (a authClient) Status(ctx context.Context) (*tg.User, bool, error) {
	st, err := a.client.Status(ctx)
	if err != nil {
		return nil, false, errors.Wrap(err, "auth status")
	}
	if !st.Authorized {
		return nil, false, nil
	}
	return st.User, true, nil
}

func (a authClient) SendCode(ctx context.Context, phone string) (string, error) {
	sent, err := a.client.SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		return "", errors.Wrap(err, "send code")
	}
	code, ok := sent.(*tg.AuthSentCode)
	if !ok {
		return "", errors.Errorf("unexpected send code response %T", sent)
	}
	return code.PhoneCodeHash, nil
}

func (a authClient) SignIn(ctx context.Context, phone, code, codeHash string) (*tg.User, error) {
	res, err := a.client.SignIn(ctx, phone, code, codeHash)
	if errors.Is(err, auth.ErrPasswordAuthNeeded) {
		return nil, authflow.ErrPasswordRequired
	}
	var signUp *auth.SignUpRequired
	if errors.As(err, &signUp) {
		return nil, errors.New("phone number is not registered in Telegram")
	}
	if err != nil {
		return nil, errors.Wrap(err, "sign in")
	}
	return authorizedUser(res)
}

func (a authClient) CheckPassword(ctx context.Context, password string) (*tg.User, error) {
	res, err := a.client.Password(ctx, password)
	if err != nil {
		return nil, errors.Wrap(err, "check password")
	}
	return authorizedUser(res)
}

func authorizedUser(res *tg.AuthAuthorization) (*tg.User, error) {
	if res == nil {
		return nil, errors.New("empty authorization")
	}
	u, ok := res.User.(*tg.User)
	if !ok {
		return nil, errors.Errorf("unexpected user type %T", res.User)
	}
	return u, nil
}
