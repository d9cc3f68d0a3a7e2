// Package version хранит имя и версию приложения. Version переопределяется
// при сборке: -ldflags "-X github.com/bebra552/TgGroopSoft/internal/support/version.Version=1.2.3".
package version

var (
	Name    = "tgparser"
	Version = "0.3.0-dev"
)
