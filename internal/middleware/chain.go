// Package middleware implements the ordered pre-request / response
// pipeline executed around the application handler, including the abort
// protocol and the synthesis of short-circuit responses.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ooyeku/crux/internal/core/domain"
	"github.com/ooyeku/crux/internal/reqctx"
)

// AbortReason is the closed set of pipeline short-circuit causes. A typed
// reason rides directly on the Abort result; middleware written against
// the string-key protocol may instead abort with ReasonUnspecified and set
// a recognized context key, which the chain classifies in fixed precedence
// order.
type AbortReason int

const (
	ReasonUnspecified AbortReason = iota
	ReasonRateLimited
	ReasonBodyTooLarge
	ReasonCSRF
	ReasonCacheHit
	ReasonUnauthorized
)

// Result is what a pre-request middleware returns.
type Result struct {
	abort  bool
	reason AbortReason
}

// Proceed continues the pipeline.
func Proceed() Result { return Result{} }

// Abort stops the pipeline with a typed reason.
func Abort(reason AbortReason) Result { return Result{abort: true, reason: reason} }

// AbortSignal stops the pipeline without a typed reason; the chain falls
// back to inspecting the context side channel keys.
func AbortSignal() Result { return Result{abort: true} }

// Aborted reports whether the result short-circuits the pipeline.
func (r Result) Aborted() bool { return r.abort }

// PreFunc runs before the handler and may abort the pipeline.
type PreFunc func(ctx context.Context, rc *reqctx.Context, req *domain.Request) Result

// ResponseFunc transforms the outgoing response. Returning nil keeps the
// current response.
type ResponseFunc func(ctx context.Context, rc *reqctx.Context, req *domain.Request, resp *domain.Response) *domain.Response

// Registration caps. Overflow is a declared startup error, never a silent
// drop.
const (
	MaxPreRequest = 32
	MaxResponse   = 32
)

// ErrTooManyMiddleware is returned by AddPreRequest/AddResponse on
// overflow.
var ErrTooManyMiddleware = errors.New("middleware limit reached")

// Chain holds the ordered middleware lists. It follows the
// configure-then-freeze convention: both lists are populated at startup
// and read-only during request handling, so execution takes no lock.
type Chain struct {
	pre  []PreFunc
	resp []ResponseFunc
}

// NewChain returns an empty chain.
func NewChain() *Chain { return &Chain{} }

// AddPreRequest appends a pre-request middleware.
func (c *Chain) AddPreRequest(fn PreFunc) error {
	if len(c.pre) >= MaxPreRequest {
		return fmt.Errorf("pre-request: %w (max %d)", ErrTooManyMiddleware, MaxPreRequest)
	}
	c.pre = append(c.pre, fn)
	return nil
}

// AddResponse appends a response middleware.
func (c *Chain) AddResponse(fn ResponseFunc) error {
	if len(c.resp) >= MaxResponse {
		return fmt.Errorf("response: %w (max %d)", ErrTooManyMiddleware, MaxResponse)
	}
	c.resp = append(c.resp, fn)
	return nil
}

// ExecutePreRequest runs the pre-request middleware in registration order.
// The first abort stops iteration immediately and a synthesized response
// is returned; nil means the handler should run.
func (c *Chain) ExecutePreRequest(ctx context.Context, rc *reqctx.Context, req *domain.Request) *domain.Response {
	for _, fn := range c.pre {
		if res := fn(ctx, rc, req); res.Aborted() {
			return c.synthesize(rc, req, res)
		}
	}
	return nil
}

// ExecuteResponse runs every response middleware in registration order (no
// short-circuit), threading the possibly replaced response through each,
// then appends cache headers when the context carries a cache hit marker.
func (c *Chain) ExecuteResponse(ctx context.Context, rc *reqctx.Context, req *domain.Request, resp *domain.Response) *domain.Response {
	current := resp
	for _, fn := range c.resp {
		if next := fn(ctx, rc, req, current); next != nil {
			current = next
		}
	}
	if rc.Has(KeyCacheHit) && current != nil {
		appendCacheHeaders(rc, current)
	}
	return current
}

// classify maps an abort to exactly one reason. A typed reason wins;
// otherwise the recognized keys are inspected in fixed precedence order.
// The order is a compatibility contract: when several keys are set, the
// first match decides the response shape.
func classify(rc *reqctx.Context, res Result) AbortReason {
	if res.reason != ReasonUnspecified {
		return res.reason
	}
	switch {
	case rc.Has(KeyRateLimited):
		return ReasonRateLimited
	case rc.Has(KeyBodySizeExceeded):
		return ReasonBodyTooLarge
	case rc.Has(KeyCSRFError):
		return ReasonCSRF
	case rc.Has(KeyCacheHit):
		return ReasonCacheHit
	default:
		return ReasonUnauthorized
	}
}

// Static fallback payloads. A formatting failure must never prevent an
// abort response from going out.
var (
	fallbackRateLimited  = []byte(`{"error":"Rate limit exceeded","message":"Too many requests"}`)
	fallbackBodyTooLarge = []byte(`{"error":"Payload too large","message":"Request body exceeds the configured limit"}`)
	fallbackCSRF         = []byte(`{"error":"Forbidden","message":"CSRF token missing or invalid"}`)
	fallbackUnauthorized = []byte(`{"error":"Unauthorized"}`)
)

type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func jsonOrFallback(p errorPayload, fallback []byte) []byte {
	b, err := json.Marshal(p)
	if err != nil {
		return fallback
	}
	return b
}

func (c *Chain) synthesize(rc *reqctx.Context, req *domain.Request, res Result) *domain.Response {
	switch classify(rc, res) {
	case ReasonRateLimited:
		message := "Too many requests"
		if v, ok := rc.Get(KeyRateLimited); ok && v != "" && v != "true" {
			message = v
		}
		body := jsonOrFallback(errorPayload{Error: "Rate limit exceeded", Message: message}, fallbackRateLimited)
		return domain.NewResponse(http.StatusTooManyRequests, body, "application/json")

	case ReasonBodyTooLarge:
		body := fallbackBodyTooLarge
		if limit, ok := rc.Get(KeyBodySizeLimit); ok && limit != "" {
			body = jsonOrFallback(errorPayload{
				Error:   "Payload too large",
				Message: fmt.Sprintf("Request body exceeds limit of %s bytes", limit),
			}, fallbackBodyTooLarge)
		}
		return domain.NewResponse(http.StatusRequestEntityTooLarge, body, "application/json")

	case ReasonCSRF:
		message := "CSRF token missing or invalid"
		if v, ok := rc.Get(KeyCSRFError); ok && v != "" && v != "true" {
			message = v
		}
		body := jsonOrFallback(errorPayload{Error: "Forbidden", Message: message}, fallbackCSRF)
		return domain.NewResponse(http.StatusForbidden, body, "application/json")

	case ReasonCacheHit:
		return c.synthesizeCacheHit(rc, req)

	default:
		return domain.NewResponse(http.StatusUnauthorized, fallbackUnauthorized, "application/json")
	}
}

// synthesizeCacheHit serves the cached entry: 304 when the request carries
// a matching conditional validator, the cached body otherwise.
func (c *Chain) synthesizeCacheHit(rc *reqctx.Context, req *domain.Request) *domain.Response {
	etag, _ := rc.Get(KeyCacheETag)
	if etag != "" && validatorMatches(req.Header("If-None-Match"), etag) {
		resp := domain.NewResponse(http.StatusNotModified, nil, "")
		appendCacheHeaders(rc, resp)
		return resp
	}

	body, _ := rc.Get(KeyCacheBody)
	contentType, _ := rc.Get(KeyCacheContentType)
	if contentType == "" {
		contentType = "application/json"
	}
	// []byte(body) and strings.Clone copy out of the arena; the response
	// outlives the request context.
	resp := domain.NewResponse(http.StatusOK, []byte(body), strings.Clone(contentType))
	appendCacheHeaders(rc, resp)
	return resp
}

// validatorMatches compares an If-None-Match header against the stored
// ETag, tolerating quotes, weak validators, and comma-separated lists.
func validatorMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		candidate = strings.Trim(candidate, `"`)
		if candidate == etag {
			return true
		}
	}
	return false
}

// appendCacheHeaders writes ETag, Cache-Control, and Last-Modified from
// the cache hit side channel onto the response.
func appendCacheHeaders(rc *reqctx.Context, resp *domain.Response) {
	if etag, ok := rc.Get(KeyCacheETag); ok && etag != "" {
		resp.SetHeader("ETag", `"`+etag+`"`)
	}
	maxAge, ok := rc.Get(keyCacheMaxAge)
	if !ok || maxAge == "" {
		maxAge = "0"
	}
	resp.SetHeader("Cache-Control", "public, max-age="+maxAge)
	if lm, ok := rc.Get(keyCacheLastModified); ok && lm != "" {
		resp.SetHeader("Last-Modified", strings.Clone(lm))
	}
}
