// Package ratelimit implements request throttling for the middleware
// chain. The default strategy is a fixed-window counter per subject; a
// token-bucket strategy is available for deployments that want to smooth
// the burst a fixed window admits at its boundaries.
package ratelimit

import (
	"net"
	"strings"
	"time"

	"github.com/ooyeku/crux/internal/core/domain"
)

// Config is one limiting policy: at most MaxRequests per Window.
type Config struct {
	MaxRequests int
	Window      time.Duration
	// Message overrides the rejection message for route-specific limits.
	Message string
}

// Decision is the outcome of a Check.
type Decision struct {
	Allowed bool
	// Reason identifies which counter rejected: "ip" or "route".
	Reason string
	// Message is the policy's rejection message, empty for the default.
	Message    string
	RetryAfter time.Duration
}

// Limiter decides whether a request may proceed. A single Check advances
// both the per-IP and per-route bookkeeping; implementations are
// internally thread safe.
type Limiter interface {
	Check(ip, route string) Decision
	SetRouteConfig(route string, cfg Config)
	Cleanup()
}

// UnknownClient is the shared identity for requests whose client address
// cannot be determined. Such requests are still limited, as one group,
// rather than being waved through.
const UnknownClient = "unknown"

// ClientIP derives the client identity: the first forwarded-for hop when
// present, then the direct connection address, then UnknownClient.
func ClientIP(req *domain.Request) string {
	if xff := req.Header("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			xff = xff[:i]
		}
		if ip := strings.TrimSpace(xff); ip != "" {
			return ip
		}
	}
	if req.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(req.RemoteAddr); err == nil && host != "" {
			return host
		}
		return req.RemoteAddr
	}
	return UnknownClient
}
