package route

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/ooyeku/crux/internal/core/domain"
	"github.com/ooyeku/crux/internal/reqctx"
)

func noopHandler(context.Context, *reqctx.Context, *domain.Request) (*domain.Response, error) {
	return domain.NewResponse(http.StatusOK, nil, ""), nil
}

func TestTable_RegisterAndLookup(t *testing.T) {
	table := NewTable(0)
	for _, reg := range []struct{ method, pattern string }{
		{"GET", "/todos"},
		{"GET", "/todos/:id"},
		{"POST", "/todos"},
	} {
		if err := table.Register(reg.method, reg.pattern, noopHandler); err != nil {
			t.Fatalf("Register(%s %s): %v", reg.method, reg.pattern, err)
		}
	}

	rt, params, ok := table.Lookup("GET", "/todos/99")
	if !ok {
		t.Fatal("expected lookup to succeed")
	}
	if rt.Pattern.String() != "/todos/:id" {
		t.Errorf("matched pattern = %q, want %q", rt.Pattern.String(), "/todos/:id")
	}
	if params["id"] != "99" {
		t.Errorf("params[id] = %q, want %q", params["id"], "99")
	}

	if _, _, ok := table.Lookup("DELETE", "/todos/99"); ok {
		t.Error("expected method mismatch to fail lookup")
	}
	if _, _, ok := table.Lookup("GET", "/nope"); ok {
		t.Error("expected unknown path to fail lookup")
	}
	// Lookup is case-insensitive on method.
	if _, _, ok := table.Lookup("get", "/todos"); !ok {
		t.Error("expected lowercase method to match")
	}
}

func TestTable_RegisterErrors(t *testing.T) {
	table := NewTable(1)
	if err := table.Register("GET", "/a", noopHandler); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := table.Register("GET", "/b", noopHandler); !errors.Is(err, ErrTooManyRoutes) {
		t.Errorf("overflow error = %v, want ErrTooManyRoutes", err)
	}

	table = NewTable(0)
	if err := table.Register("GET", "/todos/:", noopHandler); err == nil {
		t.Error("expected malformed pattern to fail registration")
	}
	if err := table.Register("GET", "/a", nil); err == nil {
		t.Error("expected nil handler to fail registration")
	}
}
