package offline

import "sync"

// Identity supplies the signed-in user. An empty string means no session.
type Identity interface {
	UserID() string
}

// StaticIdentity is a fixed user id.
type StaticIdentity string

// UserID implements Identity.
func (s StaticIdentity) UserID() string { return string(s) }

// Session is an Identity updated on sign-in and sign-out.
type Session struct {
	mu     sync.RWMutex
	userID string
}

// NewSession creates a Session signed in as userID ("" for signed out).
func NewSession(userID string) *Session {
	return &Session{userID: userID}
}

// UserID implements Identity.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// SignIn sets the current user.
func (s *Session) SignIn(userID string) {
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
}

// SignOut clears the current user.
func (s *Session) SignOut() {
	s.SignIn("")
}
