package reqctx

import (
	"github.com/google/uuid"
)

// KeyRequestID is the reserved context key holding the generated request
// identifier for cross-log correlation.
const KeyRequestID = "request_id"

// Context is the per-request scoped memory region and key/value store. All
// strings passed in are copied into the request's arena, so callers may
// reuse their buffers immediately; everything is released at once by
// Destroy. One goroutine owns a Context for the request's lifetime.
type Context struct {
	arena       *Arena
	values      map[string]string
	routeParams map[string]string
	destroyed   bool
}

// New creates a request context with a fresh arena and a generated request
// ID stored under KeyRequestID.
func New() *Context {
	c := &Context{
		arena:       NewArena(),
		values:      make(map[string]string, 8),
		routeParams: map[string]string{},
	}
	c.Set(KeyRequestID, uuid.New().String())
	return c
}

// RequestID returns the generated request identifier.
func (c *Context) RequestID() string {
	v, _ := c.Get(KeyRequestID)
	return v
}

// Set copies key and value into the arena and stores them in the side
// channel map.
func (c *Context) Set(key, value string) {
	if c.destroyed {
		return
	}
	c.values[c.arena.CopyString(key)] = c.arena.CopyString(value)
}

// Get looks up a side channel value.
func (c *Context) Get(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Has reports whether the key is set.
func (c *Context) Has(key string) bool {
	_, ok := c.values[key]
	return ok
}

// SetRouteParams copies the matcher's captured parameters into the arena.
// Any previously stored parameters are replaced.
func (c *Context) SetRouteParams(params map[string]string) {
	if c.destroyed {
		return
	}
	m := make(map[string]string, len(params))
	for k, v := range params {
		m[c.arena.CopyString(k)] = c.arena.CopyString(v)
	}
	c.routeParams = m
}

// RouteParam returns a captured path parameter.
func (c *Context) RouteParam(name string) (string, bool) {
	v, ok := c.routeParams[name]
	return v, ok
}

// RouteParams returns the captured parameter map. The strings are
// arena-owned; callers must not retain them past Destroy.
func (c *Context) RouteParams() map[string]string { return c.routeParams }

// Arena exposes the request arena for handlers that want scoped scratch
// memory of their own.
func (c *Context) Arena() *Arena { return c.arena }

// Destroy clears the maps and releases the arena in one operation. It is
// idempotent and must run on every exit path, including aborts and handler
// panics; the dispatcher defers it.
func (c *Context) Destroy() {
	if c.destroyed {
		return
	}
	c.destroyed = true
	clear(c.values)
	clear(c.routeParams)
	c.arena.Release()
}

// Destroyed reports whether Destroy has run.
func (c *Context) Destroyed() bool { return c.destroyed }
