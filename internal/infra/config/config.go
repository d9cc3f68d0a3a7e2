// Пакет config отвечает за сбор и предоставление конфигурации всего приложения
// (экспорт участников групп Telegram). Он:
//  1. читает переменные окружения из .env (через godotenv),
//  2. нормализует и валидирует входные значения,
//  3. накапливает предупреждения о подставленных значениях по умолчанию,
//  4. предоставляет доступ к результату через глобальный снимок.
//
// Учетные данные API (API_ID/API_HASH) здесь необязательны: их можно ввести
// при запуске задачи из CLI или веб-формы. Отсутствие .env тоже не фатально,
// тогда используется окружение процесса.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bebra552/TgGroopSoft/internal/infra/timeutil"

	"github.com/joho/godotenv"
)

// EnvConfig описывает параметры, приходящие из окружения (.env): учетные данные
// MTProto, расположение сессии, политику сбора участников, логирование и веб-сервер.
//
// NB: значения уже проходят минимальную валидацию и нормализацию в loadConfig.
type EnvConfig struct {
	APIID       int
	APIHash     string
	SessionName string
	SessionDir  string
	SaveDir     string
	AppTimezone string
	LogLevel    string
	TestDC      bool
	ProxyURL    string
	// Политика сбора
	MaxMembers       int
	PageSize         int
	MemberDelayMS    int
	ProgressEvery    int
	ThrottleRPS      int
	FloodWaitAutoSec int
	// Остановка задачи
	StartGraceSec int
	StopGraceSec  int
	// Файловое логирование
	LogFile           string
	LogFileLevel      string
	LogFileMaxSize    int
	LogFileMaxBackups int
	LogFileMaxAge     int
	LogFileCompress   bool
	// Web Server
	WebServerEnable  bool
	WebServerAddress string
}

// HasCredentials сообщает, заданы ли учетные данные API в окружении.
func (e EnvConfig) HasCredentials() bool {
	return e.APIID > 0 && e.APIHash != ""
}

// Config хранит конфигурацию среды.
type Config struct {
	Env      EnvConfig
	warnings []string     // предупреждения, накопленные при чтении окружения
	mu       sync.RWMutex // защита конкурентного доступа к конфигурации
}

// Значения по умолчанию для параметров окружения.
const (
	defaultSessionName      = "telegram_parser_persistent"
	defaultSessionDir       = "data"
	defaultAppTimezone      = "Local"
	defaultLogLevel         = "info"
	defaultMaxMembers       = 1000
	defaultPageSize         = 200
	defaultMemberDelayMS    = 100
	defaultProgressEvery    = 50
	defaultThrottleRPS      = 5
	defaultFloodWaitAutoSec = 3
	defaultStartGraceSec    = 3
	defaultStopGraceSec     = 5
	// Файловое логирование (LOG_FILE не имеет дефолта - должен быть явно указан для активации)
	defaultLogFileLevel      = "debug"
	defaultLogFileMaxSize    = 50
	defaultLogFileMaxBackups = 3
	defaultLogFileMaxAge     = 7
	defaultLogFileCompress   = true
	// Web Server
	defaultWebServerEnable  = false
	defaultWebServerAddress = "127.0.0.1:8080"
	// maxPageSize — предел Telegram для channels.getParticipants.
	maxPageSize = 200
)

var (
	cfgInstance *Config
	cfgDone     bool
)

// AppLocation — таймзона, в которой форматируются временные метки (Last Online,
// имена файлов экспорта). До Load равна time.Local.
var AppLocation = time.Local

// Load — точка входа для инициализации глобальной конфигурации.
// Повторный вызов запрещен (возвращается ошибка), чтобы избежать гонок
// конфигурации на старте.
func Load(envPath string) error {
	if cfgDone {
		return errors.New("config already loaded")
	}
	newCfg, err := loadConfig(envPath)
	if err != nil {
		return err
	}
	cfgInstance = newCfg
	cfgDone = true
	return nil
}

// loadConfig выполняет фактическую загрузку/валидацию без установки глобального
// состояния (кроме AppLocation). Удобно для тестов.
func loadConfig(envPath string) (*Config, error) {
	var warnings []string

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to load .env: %w", err)
			}
			appendWarningf(&warnings, "env file %q not found; using process environment", envPath)
		}
	}

	apiID, err := parseOptionalInt("API_ID")
	if err != nil {
		return nil, err
	}
	apiHash := strings.TrimSpace(os.Getenv("API_HASH"))
	if apiID == 0 || apiHash == "" {
		appendWarningf(&warnings, "env API_ID/API_HASH are not set; credentials must be provided on start")
	}

	sessionName := sanitizeSessionName(os.Getenv("SESSION_NAME"), &warnings)
	sessionDir := sanitizeFile("SESSION_DIR", os.Getenv("SESSION_DIR"), defaultSessionDir, &warnings)
	saveDir := sanitizeFile("SAVE_DIR", os.Getenv("SAVE_DIR"), defaultSaveDir(), &warnings)
	logLevel := sanitizeLogLevel(os.Getenv("LOG_LEVEL"), defaultLogLevel, &warnings)
	testDC := strings.EqualFold(strings.TrimSpace(os.Getenv("TEST_DC")), "true")
	proxyURL := strings.TrimSpace(os.Getenv("PROXY_URL"))
	appTimezone := sanitizeTimezoneFlexible(os.Getenv("APP_TIMEZONE"), defaultAppTimezone, &warnings)

	maxMembers := parseIntDefault("MAX_MEMBERS", defaultMaxMembers, nonNegative, &warnings)
	pageSize := parseIntDefault("PAGE_SIZE", defaultPageSize, validPageSize, &warnings)
	memberDelay := parseIntDefault("MEMBER_DELAY_MS", defaultMemberDelayMS, nonNegative, &warnings)
	progressEvery := parseIntDefault("PROGRESS_EVERY", defaultProgressEvery, greaterThanZero, &warnings)
	throttleRPS := parseIntDefault("THROTTLE_RPS", defaultThrottleRPS, greaterThanZero, &warnings)
	floodAuto := parseIntDefault("FLOOD_WAIT_AUTO_SEC", defaultFloodWaitAutoSec, nonNegative, &warnings)
	startGrace := parseIntDefault("START_GRACE_SEC", defaultStartGraceSec, greaterThanZero, &warnings)
	stopGrace := parseIntDefault("STOP_GRACE_SEC", defaultStopGraceSec, greaterThanZero, &warnings)

	logFile := strings.TrimSpace(os.Getenv("LOG_FILE"))
	logFileLevel := sanitizeLogLevel(os.Getenv("LOG_FILE_LEVEL"), defaultLogFileLevel, &warnings)
	logFileMaxSize := parseIntDefault("LOG_FILE_MAX_SIZE_MB", defaultLogFileMaxSize, greaterThanZero, &warnings)
	logFileMaxBackups := parseIntDefault("LOG_FILE_MAX_BACKUPS", defaultLogFileMaxBackups, nonNegative, &warnings)
	logFileMaxAge := parseIntDefault("LOG_FILE_MAX_AGE_DAYS", defaultLogFileMaxAge, nonNegative, &warnings)
	logFileCompress := parseBoolDefault("LOG_FILE_COMPRESS", defaultLogFileCompress, &warnings)
	// Web Server
	webServerEnable := parseBoolDefault("WEB_SERVER_ENABLE", defaultWebServerEnable, &warnings)
	webServerAddress := sanitizeFile("WEB_SERVER_ADDRESS", os.Getenv("WEB_SERVER_ADDRESS"),
		defaultWebServerAddress, &warnings)

	AppLocation, err = timeutil.ParseLocation(appTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid APP_TIMEZONE %q: %w", appTimezone, err)
	}

	env := EnvConfig{
		APIID:            apiID,
		APIHash:          apiHash,
		SessionName:      sessionName,
		SessionDir:       sessionDir,
		SaveDir:          saveDir,
		AppTimezone:      appTimezone,
		LogLevel:         logLevel,
		TestDC:           testDC,
		ProxyURL:         proxyURL,
		MaxMembers:       maxMembers,
		PageSize:         pageSize,
		MemberDelayMS:    memberDelay,
		ProgressEvery:    progressEvery,
		ThrottleRPS:      throttleRPS,
		FloodWaitAutoSec: floodAuto,
		StartGraceSec:    startGrace,
		StopGraceSec:     stopGrace,
		// Файловое логирование
		LogFile:           logFile,
		LogFileLevel:      logFileLevel,
		LogFileMaxSize:    logFileMaxSize,
		LogFileMaxBackups: logFileMaxBackups,
		LogFileMaxAge:     logFileMaxAge,
		LogFileCompress:   logFileCompress,
		// Web Server
		WebServerEnable:  webServerEnable,
		WebServerAddress: webServerAddress,
	}

	return &Config{Env: env, warnings: warnings}, nil
}

// Warnings возвращает копию предупреждений, возникших при загрузке .env.
func Warnings() []string {
	if cfgInstance == nil {
		return nil
	}
	cfgInstance.mu.RLock()
	defer cfgInstance.mu.RUnlock()
	result := make([]string, len(cfgInstance.warnings))
	copy(result, cfgInstance.warnings)
	return result
}

// Env возвращает EnvConfig из глобального singleton.
func Env() EnvConfig {
	if cfgInstance == nil {
		return EnvConfig{}
	}
	cfgInstance.mu.RLock()
	defer cfgInstance.mu.RUnlock()
	return cfgInstance.Env
}

// parseOptionalInt читает целочисленную переменную окружения name.
// Пустое значение дает 0; мусор в значении считается ошибкой конфигурации.
func parseOptionalInt(name string) (int, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("env %s must be a valid integer: %w", name, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("env %s must be positive", name)
	}
	return v, nil
}

// parseIntDefault читает name как int. Если пусто/некорректно/не проходит
// дополнительную проверку validator — возвращает defaultVal и пишет предупреждение.
func parseIntDefault(name string, defaultVal int, validator func(int) bool, warnings *[]string) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid integer; using default %d", name, value, defaultVal)
		return defaultVal
	}
	if validator != nil && !validator(v) {
		appendWarningf(warnings, "env %s value %d does not satisfy constraints; using default %d", name, v, defaultVal)
		return defaultVal
	}
	return v
}

func appendWarningf(warnings *[]string, format string, args ...any) {
	if warnings == nil {
		return
	}
	*warnings = append(*warnings, fmt.Sprintf(format, args...))
}

func greaterThanZero(v int) bool { return v > 0 }
func nonNegative(v int) bool     { return v >= 0 }
func validPageSize(v int) bool   { return v > 0 && v <= maxPageSize }

// parseBoolDefault читает name как bool. Если пусто/некорректно — возвращает defaultVal.
func parseBoolDefault(name string, defaultVal bool, warnings *[]string) bool {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return defaultVal
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid boolean; using default %v", name, value, defaultVal)
		return defaultVal
	}
	return v
}

// sanitizeLogLevel ограничивает значения набором {debug, info, warn, error}.
func sanitizeLogLevel(level string, defaultVal string, warnings *[]string) string {
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		return defaultVal
	}
	switch lvl {
	case "debug", "info", "warn", "error":
		return lvl
	default:
		appendWarningf(warnings, "log level %q is invalid; using default %q", level, defaultVal)
		return defaultVal
	}
}

// sanitizeSessionName запрещает разделители пути в имени сессии: по имени
// строится маска файлов, которые удаляет «очистка сессии».
func sanitizeSessionName(value string, warnings *[]string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return defaultSessionName
	}
	if strings.ContainsAny(v, `/\`) || v == "." || v == ".." {
		appendWarningf(warnings, "env SESSION_NAME value %q is invalid; using default %q", v, defaultSessionName)
		return defaultSessionName
	}
	return v
}

// sanitizeFile возвращает непустое значение пути. Если переменная не
// задана, подставляет fallback.
func sanitizeFile(name, value, fallback string, warnings *[]string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		if fallback == "" {
			appendWarningf(warnings, "env %s is not set and has no default", name)
		}
		return fallback
	}
	return v
}

// sanitizeTimezoneFlexible проверяет, что значение — корректная IANA‑зона или UTC‑смещение.
func sanitizeTimezoneFlexible(value string, fallback string, warnings *[]string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return fallback
	}
	if _, err := timeutil.ParseLocation(v); err != nil {
		appendWarningf(warnings, "timezone %q is invalid; using default %q", v, fallback)
		return fallback
	}
	return v
}

// defaultSaveDir — ~/Desktop, если такой каталог есть, иначе домашний каталог.
func defaultSaveDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	desktop := filepath.Join(home, "Desktop")
	if st, err := os.Stat(desktop); err == nil && st.IsDir() {
		return desktop
	}
	return home
}
