// Package auth authenticates dashboard users and keeps their sessions in
// memory. Sessions do not survive a restart.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Roles.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// DefaultTTL is the session lifetime when none is configured.
const DefaultTTL = 24 * time.Hour

// User is a configured login.
type User struct {
	ID           string
	Name         string
	Role         string
	Password     string
	PasswordHash string
}

// Session is an authenticated login.
type Session struct {
	ID        string    `json:"-"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsAdmin reports whether the session may trigger refreshes.
func (s Session) IsAdmin() bool { return s.Role == RoleAdmin }

type account struct {
	name string
	role string
	hash []byte
}

// Store validates credentials and tracks sessions.
type Store struct {
	ttl     time.Duration
	now     func() time.Time
	cost    int
	observe func(int)

	users map[string]account

	mu       sync.RWMutex
	sessions map[string]Session
}

// NewStore hashes plain passwords and returns a store for users.
func NewStore(users []User, opts ...Option) (*Store, error) {
	s := &Store{
		ttl:      DefaultTTL,
		now:      time.Now,
		cost:     bcrypt.DefaultCost,
		users:    make(map[string]account, len(users)),
		sessions: make(map[string]Session),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, u := range users {
		if u.ID == "" {
			return nil, fmt.Errorf("%w: empty id", ErrInvalidUser)
		}
		hash := []byte(u.PasswordHash)
		if len(hash) == 0 {
			if u.Password == "" {
				return nil, fmt.Errorf("%w: %s has no password", ErrInvalidUser, u.ID)
			}
			var err error
			hash, err = bcrypt.GenerateFromPassword([]byte(u.Password), s.cost)
			if err != nil {
				return nil, fmt.Errorf("%w: hash %s: %w", ErrInvalidUser, u.ID, err)
			}
		} else if _, err := bcrypt.Cost(hash); err != nil {
			return nil, fmt.Errorf("%w: %s password_hash: %w", ErrInvalidUser, u.ID, err)
		}
		name := u.Name
		if name == "" {
			name = u.ID
		}
		s.users[u.ID] = account{name: name, role: u.Role, hash: hash}
	}
	return s, nil
}

// Authenticate checks credentials and opens a session.
func (s *Store) Authenticate(_ context.Context, userID, password string) (Session, error) {
	if userID == "" || password == "" {
		return Session{}, ErrMissingCredentials
	}
	acc, ok := s.users[userID]
	if !ok {
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("compare password: %w", err)
	}

	id, err := newSessionID()
	if err != nil {
		return Session{}, err
	}
	sess := Session{
		ID:        id,
		UserID:    userID,
		Name:      acc.name,
		Role:      acc.role,
		ExpiresAt: s.now().Add(s.ttl),
	}

	s.mu.Lock()
	s.sessions[id] = sess
	n := len(s.sessions)
	s.mu.Unlock()
	s.notify(n)
	return sess, nil
}

// Get returns a live session. Expired sessions are removed.
func (s *Store) Get(_ context.Context, id string) (Session, error) {
	if id == "" {
		return Session{}, ErrSessionNotFound
	}
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if s.now().After(sess.ExpiresAt) {
		s.mu.Lock()
		delete(s.sessions, id)
		n := len(s.sessions)
		s.mu.Unlock()
		s.notify(n)
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

// Logout ends a session. Unknown ids are ignored.
func (s *Store) Logout(_ context.Context, id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()
	s.notify(n)
}

// Sweep removes sessions expired at now and returns how many were removed.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	removed := 0
	for id, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()
	if removed > 0 {
		s.notify(n)
	}
	return removed
}

// Count returns the number of stored sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Run sweeps expired sessions every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep(s.now())
		}
	}
}

func (s *Store) notify(n int) {
	if s.observe != nil {
		s.observe(n)
	}
}

func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
