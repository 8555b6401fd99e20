package route

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ooyeku/crux/internal/core/domain"
	"github.com/ooyeku/crux/internal/reqctx"
)

// Handler is the application entry point a route dispatches to.
type Handler func(ctx context.Context, rc *reqctx.Context, req *domain.Request) (*domain.Response, error)

// DefaultMaxRoutes bounds table growth; exceeding it is a registration
// error, not a silent drop.
const DefaultMaxRoutes = 256

// ErrTooManyRoutes is returned by Register when the table is full.
var ErrTooManyRoutes = errors.New("route table full")

// Route is one registered method/pattern/handler triple.
type Route struct {
	Method  string
	Pattern *Pattern
	Handler Handler
}

// Table is the candidate-iterating route table. It is populated during
// startup and read-only afterwards: Lookup takes no lock on the
// configure-then-freeze convention.
type Table struct {
	routes    []*Route
	maxRoutes int
}

// NewTable creates a table bounded by maxRoutes; zero or negative means
// DefaultMaxRoutes.
func NewTable(maxRoutes int) *Table {
	if maxRoutes <= 0 {
		maxRoutes = DefaultMaxRoutes
	}
	return &Table{maxRoutes: maxRoutes}
}

// Register compiles the pattern and appends the route. Malformed patterns
// and overflow surface here, at startup, never per request.
func (t *Table) Register(method, pattern string, h Handler) error {
	if len(t.routes) >= t.maxRoutes {
		return fmt.Errorf("registering %s %s: %w (max %d)", method, pattern, ErrTooManyRoutes, t.maxRoutes)
	}
	if h == nil {
		return fmt.Errorf("registering %s %s: nil handler", method, pattern)
	}
	p, err := Parse(pattern)
	if err != nil {
		return err
	}
	t.routes = append(t.routes, &Route{
		Method:  strings.ToUpper(method),
		Pattern: p,
		Handler: h,
	})
	return nil
}

// Lookup iterates candidates in registration order and returns the first
// route whose method and pattern match, with the captured parameters.
func (t *Table) Lookup(method, path string) (*Route, map[string]string, bool) {
	method = strings.ToUpper(method)
	for _, r := range t.routes {
		if r.Method != method {
			continue
		}
		if params, ok := r.Pattern.Match(path); ok {
			return r, params, true
		}
	}
	return nil, nil, false
}

// Len reports the number of registered routes.
func (t *Table) Len() int { return len(t.routes) }
