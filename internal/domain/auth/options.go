package auth

import "time"

// Option configures a Store.
type Option func(*Store)

// WithTTL sets the session lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBcryptCost sets the cost used when hashing plain passwords.
func WithBcryptCost(cost int) Option {
	return func(s *Store) {
		s.cost = cost
	}
}

// WithSessionObserver is called with the live session count after every change.
func WithSessionObserver(fn func(int)) Option {
	return func(s *Store) {
		s.observe = fn
	}
}
