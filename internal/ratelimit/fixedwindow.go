package ratelimit

import (
	"sync"
	"time"
)

// windowEntry is one fixed (non-sliding) window counter.
type windowEntry struct {
	count   int
	resetAt time.Time
}

// FixedWindow is the default Limiter: independent per-IP and per-route
// fixed-window counters, both advanced by every Check. One mutex guards
// both maps; every read-modify-write happens inside it.
type FixedWindow struct {
	mu       sync.Mutex
	byIP     map[string]*windowEntry
	byRoute  map[string]*windowEntry
	global   Config
	routeCfg map[string]Config

	now func() time.Time // test hook
}

// NewFixedWindow creates a limiter with the given global policy.
func NewFixedWindow(global Config) *FixedWindow {
	return &FixedWindow{
		byIP:     make(map[string]*windowEntry),
		byRoute:  make(map[string]*windowEntry),
		global:   global,
		routeCfg: make(map[string]Config),
		now:      time.Now,
	}
}

// SetRouteConfig installs a per-route override. Intended for startup
// configuration, but safe to call at any time.
func (l *FixedWindow) SetRouteConfig(route string, cfg Config) {
	l.mu.Lock()
	l.routeCfg[route] = cfg
	l.mu.Unlock()
}

// Check advances both counters for this request and rejects the moment
// either exceeds its limit for the window in effect. The route counter
// uses the route override when one exists; the IP counter, being shared
// across routes, always uses the global policy.
func (l *FixedWindow) Check(ip, route string) Decision {
	if ip == "" {
		ip = UnknownClient
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	routePolicy, hasOverride := l.routeCfg[route]
	if !hasOverride {
		routePolicy = l.global
	}

	ipEntry := advance(l.byIP, ip, now, l.global.Window)
	routeEntry := advance(l.byRoute, route, now, routePolicy.Window)

	if l.global.MaxRequests > 0 && ipEntry.count > l.global.MaxRequests {
		return Decision{
			Allowed:    false,
			Reason:     "ip",
			RetryAfter: ipEntry.resetAt.Sub(now),
		}
	}
	if routePolicy.MaxRequests > 0 && routeEntry.count > routePolicy.MaxRequests {
		return Decision{
			Allowed:    false,
			Reason:     "route",
			Message:    routePolicy.Message,
			RetryAfter: routeEntry.resetAt.Sub(now),
		}
	}
	return Decision{Allowed: true}
}

// advance opens, resets, or increments the subject's window. Caller holds
// the lock.
func advance(m map[string]*windowEntry, key string, now time.Time, window time.Duration) *windowEntry {
	e, ok := m[key]
	if !ok || !now.Before(e.resetAt) {
		e = &windowEntry{count: 1, resetAt: now.Add(window)}
		m[key] = e
		return e
	}
	e.count++
	return e
}

// Cleanup removes every expired window. Meant to run periodically so
// subjects seen once do not accumulate forever.
func (l *FixedWindow) Cleanup() {
	now := l.now()
	l.mu.Lock()
	for k, e := range l.byIP {
		if !now.Before(e.resetAt) {
			delete(l.byIP, k)
		}
	}
	for k, e := range l.byRoute {
		if !now.Before(e.resetAt) {
			delete(l.byRoute, k)
		}
	}
	l.mu.Unlock()
}
