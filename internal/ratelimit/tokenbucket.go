package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket is an alternative Limiter built on x/time/rate. Unlike the
// fixed window it refills continuously, so it does not admit the up-to-2x
// burst a fixed window allows across a window boundary. Observable
// behavior therefore differs from FixedWindow; it is opt-in via
// configuration.
type TokenBucket struct {
	mu       sync.Mutex
	byIP     map[string]*bucketEntry
	byRoute  map[string]*bucketEntry
	global   Config
	routeCfg map[string]Config
	idleTTL  time.Duration
}

type bucketEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewTokenBucket creates a token-bucket limiter equivalent in steady-state
// throughput to the given fixed-window policy: MaxRequests tokens per
// Window, with a burst of MaxRequests.
func NewTokenBucket(global Config) *TokenBucket {
	return &TokenBucket{
		byIP:     make(map[string]*bucketEntry),
		byRoute:  make(map[string]*bucketEntry),
		global:   global,
		routeCfg: make(map[string]Config),
		idleTTL:  15 * time.Minute,
	}
}

// SetRouteConfig installs a per-route override.
func (l *TokenBucket) SetRouteConfig(route string, cfg Config) {
	l.mu.Lock()
	l.routeCfg[route] = cfg
	l.mu.Unlock()
}

func policyRate(cfg Config) (rate.Limit, int) {
	if cfg.MaxRequests <= 0 || cfg.Window <= 0 {
		return rate.Inf, 1
	}
	return rate.Limit(float64(cfg.MaxRequests) / cfg.Window.Seconds()), cfg.MaxRequests
}

// Check draws a token from both the IP and route buckets. Both are
// advanced on every call; either running dry rejects the request.
func (l *TokenBucket) Check(ip, route string) Decision {
	if ip == "" {
		ip = UnknownClient
	}
	now := time.Now()

	l.mu.Lock()
	routePolicy, ok := l.routeCfg[route]
	if !ok {
		routePolicy = l.global
	}
	ipLim := l.bucket(l.byIP, ip, l.global, now)
	routeLim := l.bucket(l.byRoute, route, routePolicy, now)
	l.mu.Unlock()

	ipOK := ipLim.Allow()
	routeOK := routeLim.Allow()
	if !ipOK {
		return Decision{Allowed: false, Reason: "ip"}
	}
	if !routeOK {
		return Decision{Allowed: false, Reason: "route", Message: routePolicy.Message}
	}
	return Decision{Allowed: true}
}

// bucket returns the subject's limiter, creating it on first sight.
// Caller holds the lock.
func (l *TokenBucket) bucket(m map[string]*bucketEntry, key string, cfg Config, now time.Time) *rate.Limiter {
	if e, ok := m[key]; ok {
		e.lastSeen = now
		return e.lim
	}
	r, burst := policyRate(cfg)
	e := &bucketEntry{lim: rate.NewLimiter(r, burst), lastSeen: now}
	m[key] = e
	return e.lim
}

// Cleanup drops buckets idle past the TTL.
func (l *TokenBucket) Cleanup() {
	cutoff := time.Now().Add(-l.idleTTL)
	l.mu.Lock()
	for k, e := range l.byIP {
		if e.lastSeen.Before(cutoff) {
			delete(l.byIP, k)
		}
	}
	for k, e := range l.byRoute {
		if e.lastSeen.Before(cutoff) {
			delete(l.byRoute, k)
		}
	}
	l.mu.Unlock()
}
