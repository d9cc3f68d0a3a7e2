package web

import (
	"fmt"
	"html"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"go.uber.org/zap"

	"github.com/bebra552/TgGroopSoft/internal/infra/logger"
)

// writeResponse записывает ответ в ResponseWriter с автоматическим логированием ошибок.
// Автоматически определяет место вызова для отладки.
func writeResponse(w http.ResponseWriter, data []byte) {
	var writeErr error

	if _, writeErr = w.Write(data); writeErr == nil {
		return
	}

	callerLocation := "unknown"
	if _, file, line, ok := runtime.Caller(1); ok {
		if wd, getwdErr := os.Getwd(); getwdErr == nil {
			if rel, relErr := filepath.Rel(wd, file); relErr == nil {
				file = rel
			}
		}
		callerLocation = file + ":" + strconv.Itoa(line)
	}

	logger.Error("failed to write response",
		zap.String("caller", callerLocation),
		zap.Error(writeErr))
}

// writeHTML отдаёт фрагмент для htmx.
func writeHTML(w http.ResponseWriter, fragment string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	writeResponse(w, []byte(fragment))
}

// writeError отдаёт экранированное сообщение об ошибке в виде фрагмента.
func writeError(w http.ResponseWriter, msg string) {
	writeHTML(w, fmt.Sprintf(`<p class="text-red-600">%s</p>`, html.EscapeString(msg)))
}

// writeOK отдаёт экранированное сообщение об успехе.
func writeOK(w http.ResponseWriter, msg string) {
	writeHTML(w, fmt.Sprintf(`<p class="text-green-600 font-semibold">%s</p>`, html.EscapeString(msg)))
}
