// Package apptime предоставляет централизованные функции для работы со временем в приложении.
// Все временные метки, которые видит пользователь (Last Online, строки журнала,
// имена файлов экспорта), форматируются в config.AppLocation.
package apptime

import (
	"time"

	"github.com/bebra552/TgGroopSoft/internal/infra/config"
	"github.com/bebra552/TgGroopSoft/internal/infra/timeutil"
)

// Now возвращает текущее время в таймзоне приложения.
func Now() time.Time {
	return time.Now().In(location())
}

// ToAppTime конвертирует любое время в таймзону приложения.
func ToAppTime(t time.Time) time.Time {
	return t.In(location())
}

// FromUnix переводит unix-секунды Telegram в время приложения.
func FromUnix(sec int) time.Time {
	return ToAppTime(time.Unix(int64(sec), 0))
}

// Display форматирует метку в виде "2006-01-02 15:04:05".
func Display(t time.Time) string {
	return ToAppTime(t).Format(timeutil.DisplayLayout)
}

// Clock форматирует метку для строк журнала ("15:04:05").
func Clock(t time.Time) string {
	return ToAppTime(t).Format(timeutil.ClockLayout)
}

// FileStamp форматирует метку для имени файла экспорта.
func FileStamp(t time.Time) string {
	return ToAppTime(t).Format(timeutil.FileStampLayout)
}

func location() *time.Location {
	if config.AppLocation == nil {
		return time.Local
	}
	return config.AppLocation
}
