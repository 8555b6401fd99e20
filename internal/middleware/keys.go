package middleware

// Side channel keys carried in the request context. These form the abort
// protocol shared with externally written middleware and must keep these
// exact values.
const (
	KeyRateLimited      = "rate_limited"
	KeyBodySizeExceeded = "body_size_exceeded"
	KeyBodySizeLimit    = "body_size_limit"
	KeyCSRFError        = "csrf_error"
	KeyCacheHit         = "cache_hit"
	KeyCacheETag        = "cache_etag"
	KeyCacheBody        = "cache_body"
	KeyCacheContentType = "cache_content_type"
)

// Internal keys, not part of the published protocol.
const (
	// KeyRoutePattern holds the matched route template, set by the
	// dispatcher so middleware can key per-route state by pattern rather
	// than by concrete path.
	KeyRoutePattern = "route_pattern"

	// keyCacheMaxAge and keyCacheLastModified carry the remaining cache
	// header inputs from the lookup middleware to the response phase.
	keyCacheMaxAge       = "cache_max_age"
	keyCacheLastModified = "cache_last_modified"
)
