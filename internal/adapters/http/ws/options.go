package ws

import (
	"time"

	"github.com/variantgroup/dashboard/pkg/logger"
)

// Option configures a Hub.
type Option func(*Hub)

// WithAllowedOrigins sets the accepted Origin values. "*" accepts any.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Hub) {
		if len(origins) > 0 {
			h.origins = origins
		}
	}
}

// WithPingPeriod sets how often clients are pinged. The read deadline is
// derived from it.
func WithPingPeriod(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pingPeriod = d
		}
	}
}

// WithSendBuffer sets how many messages may wait for a slow client before
// new ones are dropped.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}
