package web

import (
	"net/http"

	"github.com/bebra552/TgGroopSoft/internal/infra/logger"
)

const (
	sessionCookieName = "tgparser_session"
	sessionMaxAge     = 3600 // 1 час в секундах
)

// authMiddleware проверяет аутентификацию пользователя
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Проверяем токен из query параметра (для первичной авторизации)
		token := r.URL.Query().Get("token")
		if token != "" {
			sessionID, valid := s.auth.ValidateToken(token)
			if valid {
				setSessionCookie(w, sessionID)
				// Редирект на главную без токена в URL
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}
			logger.Warn("Invalid auth token attempt")
			http.Error(w, "Invalid authentication token", http.StatusUnauthorized)
			return
		}

		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			s.renderUnauthorized(w, r)
			return
		}
		if !s.auth.ValidateSession(cookie.Value) {
			logger.Debug("Session expired or invalid")
			s.renderUnauthorized(w, r)
			return
		}

		setSessionCookie(w, cookie.Value)
		next.ServeHTTP(w, r)
	})
}

func setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// renderUnauthorized отображает страницу с сообщением об отсутствии авторизации
func (s *Server) renderUnauthorized(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Unauthorized access: %s %s from %s",
		r.Method, r.URL.Path, r.RemoteAddr)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)

	html := `<!DOCTYPE html>
<html lang="ru">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Authentication Required - Telegram Parser</title>
    <script src="https://cdn.tailwindcss.com"></script>
</head>
<body class="bg-gray-100">
    <div class="min-h-screen flex items-center justify-center">
        <div class="bg-white rounded-lg shadow-lg p-8 max-w-md w-full text-center">
            <h1 class="mt-4 text-2xl font-bold text-gray-900">Authentication Required</h1>
            <p class="mt-2 text-gray-600">You need to authenticate to access this page.</p>
            <div class="mt-6 p-4 bg-blue-50 rounded-lg">
                <p class="text-sm text-blue-800">
                    Type <code class="bg-blue-100 px-2 py-1 rounded">weblink</code> in the parser console
                    (or see the startup log) and open the printed link.
                </p>
            </div>
        </div>
    </div>
</body>
</html>`

	writeResponse(w, []byte(html))
}

// loggingMiddleware логирует все запросы
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debugf("HTTP %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}
