package members

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidLink — из ссылки не удалось выделить имя группы.
	ErrInvalidLink = errors.New("invalid group link")
	// ErrInviteLink — приватная пригласительная ссылка, у неё нет публичного имени.
	ErrInviteLink = errors.New("private invite links are not supported")
)

var linkPrefixes = []string{
	"https://t.me/",
	"http://t.me/",
	"https://telegram.me/",
	"http://telegram.me/",
	"t.me/",
	"telegram.me/",
	"@",
}

// ExtractHandle выделяет публичное имя группы из ссылки:
// "https://t.me/name", "t.me/name/123", "@name", "name?x=1" → "name".
func ExtractHandle(link string) (string, error) {
	h := strings.TrimSpace(link)
	h = strings.TrimPrefix(h, "www.")
	for _, p := range linkPrefixes {
		if len(h) >= len(p) && strings.EqualFold(h[:len(p)], p) {
			h = h[len(p):]
			break
		}
	}
	if i := strings.IndexAny(h, "/?"); i >= 0 {
		h = h[:i]
	}
	h = strings.TrimSpace(h)

	if h == "" {
		return "", ErrInvalidLink
	}
	if strings.HasPrefix(h, "+") || strings.EqualFold(h, "joinchat") {
		return "", ErrInviteLink
	}
	return h, nil
}
