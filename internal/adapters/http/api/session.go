package api

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/sessions"

	"github.com/variantgroup/dashboard/internal/domain/auth"
	"github.com/variantgroup/dashboard/pkg/metrics"
)

// SessionCookie is the name of the login cookie.
const SessionCookie = "dashboard-session"

const sessionKeyID = "sid"

// SessionConfig configures the login cookie.
type SessionConfig struct {
	// Secret signs the cookie. It is SHA-256 hashed into the signing key.
	// A random key is used when empty, which logs everyone out on restart.
	Secret string
	Path   string
	MaxAge time.Duration
	Secure bool
}

// Sessions ties the signed login cookie to sessions held by an auth.Store.
// The cookie only carries the session id.
type Sessions struct {
	cookies *sessions.CookieStore
	store   *auth.Store
}

// NewSessions creates the cookie store.
func NewSessions(store *auth.Store, cfg SessionConfig) (*Sessions, error) {
	var key [32]byte
	if cfg.Secret != "" {
		key = sha256.Sum256([]byte(cfg.Secret))
	} else if _, err := rand.Read(key[:]); err != nil {
		return nil, fmt.Errorf("session key: %w", err)
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = auth.DefaultTTL
	}

	cookies := sessions.NewCookieStore(key[:])
	cookies.Options = &sessions.Options{
		Path:     cfg.Path,
		MaxAge:   int(cfg.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Sessions{cookies: cookies, store: store}, nil
}

// Login authenticates the user and writes the session cookie.
func (s *Sessions) Login(w http.ResponseWriter, r *http.Request, userID, password string) (auth.Session, error) {
	sess, err := s.store.Authenticate(r.Context(), userID, password)
	if err != nil {
		metrics.RecordLogin("failed")
		return auth.Session{}, err
	}
	metrics.RecordLogin("succeeded")

	// A cookie signed with an old key decodes with an error but still
	// yields a fresh session to save over it.
	cs, _ := s.cookies.Get(r, SessionCookie)
	cs.Values[sessionKeyID] = sess.ID
	if err := cs.Save(r, w); err != nil {
		s.store.Logout(r.Context(), sess.ID)
		return auth.Session{}, fmt.Errorf("save session cookie: %w", err)
	}
	return sess, nil
}

// Current returns the session the request's cookie refers to.
func (s *Sessions) Current(r *http.Request) (auth.Session, error) {
	cs, err := s.cookies.Get(r, SessionCookie)
	if err != nil {
		return auth.Session{}, auth.ErrSessionNotFound
	}
	id, ok := cs.Values[sessionKeyID].(string)
	if !ok || id == "" {
		return auth.Session{}, auth.ErrSessionNotFound
	}
	return s.store.Get(r.Context(), id)
}

// Logout ends the session and expires the cookie.
func (s *Sessions) Logout(w http.ResponseWriter, r *http.Request) {
	cs, _ := s.cookies.Get(r, SessionCookie)
	if id, ok := cs.Values[sessionKeyID].(string); ok {
		s.store.Logout(r.Context(), id)
	}
	delete(cs.Values, sessionKeyID)
	cs.Options.MaxAge = -1
	_ = cs.Save(r, w)
}

type sessionCtxKey struct{}

// WithSession stores sess in ctx.
func WithSession(ctx context.Context, sess auth.Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, sess)
}

// SessionFrom returns the session stored by RequireSession.
func SessionFrom(ctx context.Context) (auth.Session, bool) {
	sess, ok := ctx.Value(sessionCtxKey{}).(auth.Session)
	return sess, ok
}

// RequireSession runs next with the current session in the request
// context, or deny when there is none.
func (s *Sessions) RequireSession(next http.Handler, deny http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.Current(r)
		if err != nil {
			deny(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}
