package web

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuthManager управляет одноразовым токеном входа и сессиями веб-интерфейса.
// Токен выдаётся в консоли (команда weblink) и сгорает после первого входа.
type AuthManager struct {
	mu         sync.RWMutex
	token      string              // текущий активный токен
	sessions   map[string]*Session // sessionID -> Session
	sessionTTL time.Duration       // время жизни сессии без активности
	now        func() time.Time
}

// Session представляет активную сессию браузера
type Session struct {
	ID        string
	CreatedAt time.Time
	LastSeen  time.Time
}

// NewAuthManager создает новый менеджер аутентификации
func NewAuthManager(sessionTTL time.Duration) *AuthManager {
	return &AuthManager{
		sessions:   make(map[string]*Session),
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

// GenerateToken выдаёт новый токен входа. Уже открытые сессии остаются:
// ссылку запрашивают и для второго браузера.
func (am *AuthManager) GenerateToken() string {
	am.mu.Lock()
	defer am.mu.Unlock()

	am.token = uuid.New().String()
	return am.token
}

// ValidateToken проверяет токен, гасит его и создает новую сессию
func (am *AuthManager) ValidateToken(token string) (string, bool) {
	am.mu.Lock()
	defer am.mu.Unlock()

	if token == "" || am.token == "" || token != am.token {
		return "", false
	}
	am.token = ""

	sessionID := uuid.New().String()
	now := am.now()
	am.sessions[sessionID] = &Session{
		ID:        sessionID,
		CreatedAt: now,
		LastSeen:  now,
	}
	return sessionID, true
}

// ValidateSession проверяет сессию и обновляет LastSeen
func (am *AuthManager) ValidateSession(sessionID string) bool {
	am.mu.Lock()
	defer am.mu.Unlock()

	session, exists := am.sessions[sessionID]
	if !exists {
		return false
	}
	if am.now().Sub(session.LastSeen) > am.sessionTTL {
		delete(am.sessions, sessionID)
		return false
	}
	session.LastSeen = am.now()
	return true
}

// InvalidateSession удаляет сессию (выход)
func (am *AuthManager) InvalidateSession(sessionID string) {
	am.mu.Lock()
	defer am.mu.Unlock()
	delete(am.sessions, sessionID)
}

// CleanExpiredSessions удаляет истекшие сессии
func (am *AuthManager) CleanExpiredSessions() {
	am.mu.Lock()
	defer am.mu.Unlock()

	now := am.now()
	for id, session := range am.sessions {
		if now.Sub(session.LastSeen) > am.sessionTTL {
			delete(am.sessions, id)
		}
	}
}

// SessionCount — число живых сессий.
func (am *AuthManager) SessionCount() int {
	am.mu.RLock()
	defer am.mu.RUnlock()
	return len(am.sessions)
}
