package members

import (
	"strconv"

	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/bebra552/TgGroopSoft/internal/infra/apptime"
	"github.com/bebra552/TgGroopSoft/internal/infra/logger"
	"github.com/bebra552/TgGroopSoft/internal/infra/metrics"
)

// Normalize превращает профиль Telegram в Record. Функция тотальна: ошибка
// чтения любого поля даёт сокращённую запись (ID, username, имя, фамилия,
// остальное — Unknown), но никогда не прерывает обработку пачки.
func Normalize(u tg.UserClass) (rec Record) {
	user, ok := u.(*tg.User)
	if !ok || user == nil {
		metrics.DegradedRecordsTotal.Inc()
		return reduced(u)
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Warn("member normalize failed, using reduced record",
				zap.Int64("user_id", user.ID),
				zap.Any("panic", r),
			)
			metrics.DegradedRecordsTotal.Inc()
			rec = reduced(user)
		}
	}()

	status := describeStatus(user.Status)
	return Record{
		ID:         strconv.FormatInt(user.ID, 10),
		Username:   user.Username,
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		Phone:      user.Phone,
		Status:     status,
		LastOnline: status,
		IsBot:      yesNo(user.Bot),
		IsVerified: yesNo(user.Verified),
		IsScam:     yesNo(user.Scam),
		IsPremium:  yesNo(user.Premium),
	}
}

// NormalizeAll сохраняет порядок входа. progress вызывается после каждых
// every записей и в конце (если every > 0 и progress != nil).
func NormalizeAll(users []tg.UserClass, every int, progress func(done, total int)) []Record {
	out := make([]Record, 0, len(users))
	for i, u := range users {
		out = append(out, Normalize(u))
		if progress != nil && every > 0 && ((i+1)%every == 0 || i+1 == len(users)) {
			progress(i+1, len(users))
		}
	}
	return out
}

// describeStatus возвращает текст статуса. Он же идёт в колонку Last Online:
// для оффлайна с известным временем это само время.
func describeStatus(s tg.UserStatusClass) string {
	switch st := s.(type) {
	case nil:
		return StatusHidden
	case *tg.UserStatusOnline:
		return StatusOnline
	case *tg.UserStatusOffline:
		if st.WasOnline > 0 {
			return apptime.Display(apptime.FromUnix(st.WasOnline))
		}
		return StatusOffline
	case *tg.UserStatusRecently:
		return StatusRecently
	case *tg.UserStatusLastWeek:
		return StatusLastWeek
	case *tg.UserStatusLastMonth:
		return StatusLastMonth
	case *tg.UserStatusEmpty:
		return StatusLongAgo
	default:
		logger.Debug("unknown user status", zap.String("type", st.TypeName()))
		return StatusHidden
	}
}

// reduced строит запись из того, что удалось прочитать. Сама защищена от
// паники: в худшем случае все поля будут Unknown.
func reduced(u tg.UserClass) (rec Record) {
	rec = Record{
		ID:         Unknown,
		Phone:      Unknown,
		Status:     Unknown,
		LastOnline: Unknown,
		IsBot:      Unknown,
		IsVerified: Unknown,
		IsScam:     Unknown,
		IsPremium:  Unknown,
	}
	defer func() {
		if r := recover(); r != nil {
			rec.ID = Unknown
		}
	}()

	switch v := u.(type) {
	case *tg.User:
		if v == nil {
			return rec
		}
		rec.ID = strconv.FormatInt(v.ID, 10)
		rec.Username = v.Username
		rec.FirstName = v.FirstName
		rec.LastName = v.LastName
	case *tg.UserEmpty:
		if v == nil {
			return rec
		}
		rec.ID = strconv.FormatInt(v.ID, 10)
	}
	return rec
}
