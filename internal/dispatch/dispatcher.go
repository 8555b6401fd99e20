// Package dispatch ties the core together: it converts a transport
// request into the core's request form, resolves the route, runs the
// middleware chain around the handler, and writes the result back.
package dispatch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/ooyeku/crux/internal/core/domain"
	"github.com/ooyeku/crux/internal/metrics"
	"github.com/ooyeku/crux/internal/middleware"
	"github.com/ooyeku/crux/internal/ratelimit"
	"github.com/ooyeku/crux/internal/reqctx"
	"github.com/ooyeku/crux/internal/route"
	"github.com/ooyeku/crux/internal/storage"
)

var (
	notFoundBody      = []byte(`{"error":"Not found"}`)
	internalErrorBody = []byte(`{"error":"Internal server error"}`)
)

// Options carries the dispatcher's collaborators. Everything is injected
// here at construction; the core keeps no package-level state.
type Options struct {
	Table  *route.Table
	Chain  *middleware.Chain
	Logger *slog.Logger
	// Metrics may be nil.
	Metrics *metrics.Metrics
	// AccessLog may be nil; when set, completed requests are recorded
	// best effort.
	AccessLog storage.AccessLog
}

// Dispatcher implements http.Handler over the processing core.
type Dispatcher struct {
	table     *route.Table
	chain     *middleware.Chain
	logger    *slog.Logger
	metrics   *metrics.Metrics
	accessLog storage.AccessLog
}

// New constructs a dispatcher. Table and Chain are required; a nil Logger
// falls back to slog.Default().
func New(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		table:     opts.Table,
		chain:     opts.Chain,
		logger:    logger,
		metrics:   opts.Metrics,
		accessLog: opts.AccessLog,
	}
}

// ServeHTTP runs the full pipeline for one request. The per-request
// context is destroyed on every exit path, including handler panics.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		d.logger.Warn("failed to read request body",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		writeResponse(w, domain.NewResponse(http.StatusBadRequest, []byte(`{"error":"Bad request"}`), "application/json"))
		return
	}

	req := &domain.Request{
		Method:     r.Method,
		Path:       r.URL.Path,
		Query:      r.URL.Query(),
		Headers:    r.Header,
		Body:       body,
		RemoteAddr: r.RemoteAddr,
	}

	rt, params, ok := d.table.Lookup(req.Method, req.Path)
	if !ok {
		resp := domain.NewResponse(http.StatusNotFound, notFoundBody, "application/json")
		writeResponse(w, resp)
		d.metrics.ObserveRequest(req.Method, req.Path, resp.Status, time.Since(start))
		return
	}
	pattern := rt.Pattern.String()

	rc := reqctx.New()
	defer rc.Destroy()
	rc.SetRouteParams(params)
	rc.Set(middleware.KeyRoutePattern, pattern)
	// Clone out of the arena: the transport may still reference the
	// header value after the context is destroyed.
	requestID := strings.Clone(rc.RequestID())
	w.Header().Set("X-Request-ID", requestID)

	resp := d.chain.ExecutePreRequest(ctx, rc, req)
	aborted := resp != nil
	if aborted {
		switch {
		case rc.Has(middleware.KeyRateLimited):
			d.metrics.RateLimited()
		case rc.Has(middleware.KeyCacheHit):
			d.metrics.CacheHit()
		}
	} else {
		if req.Method == http.MethodGet {
			d.metrics.CacheMiss()
		}
		resp = d.invoke(ctx, rc, rt, req)
	}

	resp = d.chain.ExecuteResponse(ctx, rc, req, resp)
	if resp == nil {
		resp = domain.NewResponse(http.StatusInternalServerError, internalErrorBody, "application/json")
	}
	writeResponse(w, resp)

	duration := time.Since(start)
	d.metrics.ObserveRequest(req.Method, pattern, resp.Status, duration)
	d.record(ctx, rc, req, pattern, resp.Status, duration)
}

// invoke runs the application handler, converting errors and panics into
// a generic 500. A panic must not take down the worker, and the deferred
// context destroy in ServeHTTP still runs.
func (d *Dispatcher) invoke(ctx context.Context, rc *reqctx.Context, rt *route.Route, req *domain.Request) (resp *domain.Response) {
	defer func() {
		if rec := recover(); rec != nil {
			d.metrics.PanicRecovered()
			d.logger.Error("handler panic",
				slog.String("request_id", rc.RequestID()),
				slog.String("method", req.Method),
				slog.String("path", req.Path),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			resp = domain.NewResponse(http.StatusInternalServerError, internalErrorBody, "application/json")
		}
	}()

	resp, err := rt.Handler(ctx, rc, req)
	if err != nil {
		d.logger.Error("handler error",
			slog.String("request_id", rc.RequestID()),
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.Any("error", err),
		)
		return domain.NewResponse(http.StatusInternalServerError, internalErrorBody, "application/json")
	}
	if resp == nil {
		return domain.NewResponse(http.StatusNoContent, nil, "")
	}
	return resp
}

// record writes the access log entry. Failures are logged and swallowed;
// the cancellation of the client's context must not lose the record.
func (d *Dispatcher) record(ctx context.Context, rc *reqctx.Context, req *domain.Request, pattern string, status int, duration time.Duration) {
	if d.accessLog == nil {
		return
	}
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	// The request ID is arena-owned; clone it so the record survives the
	// arena release.
	err := d.accessLog.Record(recCtx, storage.AccessRecord{
		RequestID:  strings.Clone(rc.RequestID()),
		Method:     req.Method,
		Path:       req.Path,
		Route:      pattern,
		Status:     status,
		ClientIP:   ratelimit.ClientIP(req),
		DurationMS: duration.Milliseconds(),
		CreatedAt:  time.Now(),
	})
	if err != nil {
		d.logger.Warn("access log record failed",
			slog.String("request_id", rc.RequestID()),
			slog.Any("error", err),
		)
	}
}

// writeResponse converts the core response back to the transport.
func writeResponse(w http.ResponseWriter, resp *domain.Response) {
	h := w.Header()
	for name, values := range resp.Headers {
		for _, v := range values {
			h.Add(name, v)
		}
	}
	if resp.ContentType != "" {
		h.Set("Content-Type", resp.ContentType)
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		w.Write(resp.Body)
	}
}
