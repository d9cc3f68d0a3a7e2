// Package members описывает строку экспорта участника группы и правила
// превращения профиля Telegram в эту строку.
package members

// Отображаемые значения для полей, которые Telegram не раскрывает или которые
// не удалось прочитать.
const (
	StatusOnline    = "Онлайн"
	StatusOffline   = "Не в сети"
	StatusRecently  = "Недавно"
	StatusLastWeek  = "На прошлой неделе"
	StatusLastMonth = "В прошлом месяце"
	StatusLongAgo   = "Давно"
	StatusHidden    = "Скрыто"

	Yes     = "Да"
	No      = "Нет"
	Unknown = "Неизвестно"
)

// Columns — порядок колонок таблицы и заголовок CSV/XLSX.
var Columns = []string{
	"ID",
	"Username",
	"First Name",
	"Last Name",
	"Phone",
	"Status",
	"Last Online",
	"Is Bot",
	"Is Verified",
	"Is Scam",
	"Is Premium",
}

// Record — строка экспорта. Все поля уже отформатированы для показа.
type Record struct {
	ID         string
	Username   string
	FirstName  string
	LastName   string
	Phone      string
	Status     string
	LastOnline string
	IsBot      string
	IsVerified string
	IsScam     string
	IsPremium  string
}

// Fields возвращает значения в порядке Columns.
func (r Record) Fields() []string {
	return []string{
		r.ID,
		r.Username,
		r.FirstName,
		r.LastName,
		r.Phone,
		r.Status,
		r.LastOnline,
		r.IsBot,
		r.IsVerified,
		r.IsScam,
		r.IsPremium,
	}
}

// Degraded сообщает, что запись построена по сокращённой схеме.
func (r Record) Degraded() bool {
	return r.Status == Unknown
}

func yesNo(v bool) string {
	if v {
		return Yes
	}
	return No
}
