package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ooyeku/crux/internal/cache"
	"github.com/ooyeku/crux/internal/core/domain"
	"github.com/ooyeku/crux/internal/ratelimit"
	"github.com/ooyeku/crux/internal/reqctx"
)

// RateLimit returns the pre-request middleware that consults the limiter.
// The route identity is the matched pattern when the dispatcher provided
// one, falling back to the concrete path.
func RateLimit(limiter ratelimit.Limiter) PreFunc {
	return func(_ context.Context, rc *reqctx.Context, req *domain.Request) Result {
		route := req.Path
		if p, ok := rc.Get(KeyRoutePattern); ok && p != "" {
			route = p
		}
		d := limiter.Check(ratelimit.ClientIP(req), route)
		if d.Allowed {
			return Proceed()
		}
		if d.Message != "" {
			rc.Set(KeyRateLimited, d.Message)
		} else {
			rc.Set(KeyRateLimited, "true")
		}
		return Abort(ReasonRateLimited)
	}
}

// BodySizeLimit rejects requests whose body exceeds maxBytes. The limit is
// published on the context so the synthesized 413 can interpolate it.
func BodySizeLimit(maxBytes int) PreFunc {
	limitStr := strconv.Itoa(maxBytes)
	return func(_ context.Context, rc *reqctx.Context, req *domain.Request) Result {
		if maxBytes > 0 && len(req.Body) > maxBytes {
			rc.Set(KeyBodySizeExceeded, "true")
			rc.Set(KeyBodySizeLimit, limitStr)
			return Abort(ReasonBodyTooLarge)
		}
		return Proceed()
	}
}

// CSRF enforces double-submit token checking on mutating methods: the
// named header must be present and equal to the csrf cookie. Safe methods
// pass through untouched.
func CSRF(headerName, cookieName string) PreFunc {
	if headerName == "" {
		headerName = "X-CSRF-Token"
	}
	if cookieName == "" {
		cookieName = "csrf_token"
	}
	return func(_ context.Context, rc *reqctx.Context, req *domain.Request) Result {
		switch req.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return Proceed()
		}
		token := req.Header(headerName)
		expected := cookieValue(req.Header("Cookie"), cookieName)
		if token == "" || expected == "" || token != expected {
			rc.Set(KeyCSRFError, "CSRF token missing or invalid")
			return Abort(ReasonCSRF)
		}
		return Proceed()
	}
}

// cookieValue extracts one cookie from a raw Cookie header.
func cookieValue(header, name string) string {
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, name+"="); ok {
			return v
		}
	}
	return ""
}

// CacheLookup serves GET requests from the response cache. On a hit the
// entry is copied onto the context side channel (arena-owned) and the
// pipeline aborts; the chain synthesizes a 304 or the cached body.
func CacheLookup(store cache.Store) PreFunc {
	return func(ctx context.Context, rc *reqctx.Context, req *domain.Request) Result {
		if req.Method != http.MethodGet {
			return Proceed()
		}
		entry, ok := store.Get(ctx, req.Path)
		if !ok {
			return Proceed()
		}
		rc.Set(KeyCacheHit, "true")
		rc.Set(KeyCacheETag, entry.ETag)
		rc.Set(KeyCacheBody, string(entry.Body))
		rc.Set(KeyCacheContentType, entry.ContentType)
		rc.Set(keyCacheMaxAge, strconv.Itoa(entry.MaxAge()))
		rc.Set(keyCacheLastModified, entry.LastModified.UTC().Format(http.TimeFormat))
		return Abort(ReasonCacheHit)
	}
}

// CacheStore writes successful GET responses into the cache during the
// response phase. Responses that were themselves served from the cache are
// skipped. A zero ttl defers to the store default.
func CacheStore(store cache.Store, ttl time.Duration) ResponseFunc {
	return func(ctx context.Context, rc *reqctx.Context, req *domain.Request, resp *domain.Response) *domain.Response {
		if req.Method != http.MethodGet || resp == nil || resp.Status != http.StatusOK {
			return nil
		}
		if rc.Has(KeyCacheHit) {
			return nil
		}
		store.Set(ctx, req.Path, resp.Body, ttl, resp.ContentType)
		return nil
	}
}
