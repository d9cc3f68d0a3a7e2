package telegram

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/bebra552/TgGroopSoft/internal/domain/collector"
)

// channelSource листает участников супергруппы через channels.getParticipants.
type channelSource struct {
	api     *tg.Client
	channel tg.InputChannelClass
}

func (s *channelSource) Fetch(ctx context.Context, offset, limit int) (collector.Page, error) {
	res, err := s.api.ChannelsGetParticipants(ctx, &tg.ChannelsGetParticipantsRequest{
		Channel: s.channel,
		Filter:  &tg.ChannelParticipantsSearch{Q: ""},
		Offset:  offset,
		Limit:   limit,
	})
	if err != nil {
		return collector.Page{}, err
	}
	switch r := res.(type) {
	case *tg.ChannelsChannelParticipants:
		return collector.Page{Users: orderUsers(channelParticipantIDs(r.Participants), r.Users), Total: r.Count}, nil
	case *tg.ChannelsChannelParticipantsNotModified:
		return collector.Page{}, nil
	default:
		return collector.Page{}, errors.Errorf("unexpected participants response %T", res)
	}
}

// chatSource — обычная группа: весь список приходит одним messages.getFullChat,
// страницы режутся локально.
type chatSource struct {
	users []tg.UserClass
	err   error
}

func newChatSource(full *tg.MessagesChatFull) *chatSource {
	cf, ok := full.FullChat.(*tg.ChatFull)
	if !ok {
		return &chatSource{err: errors.Errorf("unexpected full chat %T", full.FullChat)}
	}
	switch p := cf.Participants.(type) {
	case *tg.ChatParticipants:
		ids := make([]int64, 0, len(p.Participants))
		for _, part := range p.Participants {
			ids = append(ids, part.GetUserID())
		}
		return &chatSource{users: orderUsers(ids, full.Users)}
	default:
		// ChatParticipantsForbidden: список скрыт от нас.
		return &chatSource{err: tgerr.New(403, "CHAT_ADMIN_REQUIRED")} //nolint:mnd // HTTP-like RPC code
	}
}

func (s *chatSource) Fetch(_ context.Context, offset, limit int) (collector.Page, error) {
	if s.err != nil {
		return collector.Page{}, s.err
	}
	if offset >= len(s.users) {
		return collector.Page{Total: len(s.users)}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(s.users) {
		end = len(s.users)
	}
	return collector.Page{Users: s.users[offset:end], Total: len(s.users)}, nil
}

// channelParticipantIDs извлекает ID пользователей в порядке выдачи сервера.
func channelParticipantIDs(parts []tg.ChannelParticipantClass) []int64 {
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		switch v := p.(type) {
		case *tg.ChannelParticipant:
			ids = append(ids, v.UserID)
		case *tg.ChannelParticipantSelf:
			ids = append(ids, v.UserID)
		case *tg.ChannelParticipantCreator:
			ids = append(ids, v.UserID)
		case *tg.ChannelParticipantAdmin:
			ids = append(ids, v.UserID)
		case *tg.ChannelParticipantBanned:
			if u, ok := v.Peer.(*tg.PeerUser); ok {
				ids = append(ids, u.UserID)
			}
		case *tg.ChannelParticipantLeft:
			if u, ok := v.Peer.(*tg.PeerUser); ok {
				ids = append(ids, u.UserID)
			}
		}
	}
	return ids
}

// orderUsers раскладывает пользователей в порядке ids. Пользователи, которых
// нет в ids, идут в конце в исходном порядке; ID без пользователя пропускаются.
func orderUsers(ids []int64, users []tg.UserClass) []tg.UserClass {
	byID := make(map[int64]tg.UserClass, len(users))
	for _, u := range users {
		byID[u.GetID()] = u
	}
	out := make([]tg.UserClass, 0, len(users))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, u)
			delete(byID, id)
		}
	}
	for _, u := range users {
		if _, ok := byID[u.GetID()]; ok {
			out = append(out, u)
			delete(byID, u.GetID())
		}
	}
	return out
}
