package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/libraria/lending/internal/db"
)

type session struct {
	principal Principal
	expiresAt time.Time
}

// SessionManager issues and validates server-held session tokens, replacing
// client-held role state. Tokens are opaque uuids; everything the request
// pipeline needs to know about the caller is resolved here.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]session
	ttl      time.Duration
}

// NewSessionManager creates a session manager with the given token lifetime
func NewSessionManager(ttl time.Duration) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]session),
		ttl:      ttl,
	}
}

// Issue creates a session for an authenticated account and returns its token.
// Issuing also sweeps expired sessions, so abandoned tokens do not pile up
// over the life of the process.
func (m *SessionManager) Issue(account *db.Account) string {
	token := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeExpiredLocked(time.Now())

	m.sessions[token] = session{
		principal: Principal{
			AccountID: account.ID,
			Username:  account.Username,
			Role:      account.Role,
		},
		expiresAt: time.Now().Add(m.ttl),
	}
	return token
}

// Resolve returns the principal behind a token, if the session is still live.
func (m *SessionManager) Resolve(token string) (Principal, bool) {
	m.mu.RLock()
	s, ok := m.sessions[token]
	m.mu.RUnlock()

	if !ok {
		return Principal{}, false
	}
	if time.Now().After(s.expiresAt) {
		m.Revoke(token)
		return Principal{}, false
	}
	return s.principal, true
}

// Revoke drops a session token.
func (m *SessionManager) Revoke(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

// purgeExpiredLocked drops every expired session. Callers hold m.mu.
func (m *SessionManager) purgeExpiredLocked(now time.Time) {
	for token, s := range m.sessions {
		if now.After(s.expiresAt) {
			delete(m.sessions, token)
		}
	}
}

// RevokeAccount drops every session belonging to an account. Called when an
// account is deleted or its role changes, so stale privileges cannot outlive
// the directory record.
func (m *SessionManager) RevokeAccount(accountID uint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for token, s := range m.sessions {
		if s.principal.AccountID == accountID {
			delete(m.sessions, token)
		}
	}
}
