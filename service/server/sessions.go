package server

import (
	"sync"

	"github.com/jasong-03/lazorkit-gateway/service/lazorkit"
)

// SessionStore holds active passkey sessions in memory, keyed by smart
// wallet address. Sessions do not survive a server restart; clients
// reconnect with their credential.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*lazorkit.Session
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*lazorkit.Session),
	}
}

// Put stores a session, replacing any existing one for the same wallet.
func (s *SessionStore) Put(session *lazorkit.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SmartWallet] = session
}

// Get returns the session for a wallet, or nil if not connected.
func (s *SessionStore) Get(walletAddress string) *lazorkit.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[walletAddress]
}

// Delete removes the session for a wallet and returns it, or nil.
func (s *SessionStore) Delete(walletAddress string) *lazorkit.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := s.sessions[walletAddress]
	delete(s.sessions, walletAddress)
	return session
}

// Count returns the number of active sessions.
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
