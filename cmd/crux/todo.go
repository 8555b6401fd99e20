package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/ooyeku/crux/internal/cache"
	"github.com/ooyeku/crux/internal/core/domain"
	"github.com/ooyeku/crux/internal/reqctx"
	"github.com/ooyeku/crux/internal/route"
)

// The todo API is the demo application the binary ships with: enough
// surface to exercise route parameters, cache invalidation, and every
// pipeline stage end to end.

type todo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

type todoStore struct {
	mu    sync.Mutex
	items map[string]todo
}

func registerTodoRoutes(table *route.Table, respCache cache.Store) error {
	s := &todoStore{items: make(map[string]todo)}

	registrations := []struct {
		method  string
		pattern string
		handler route.Handler
	}{
		{http.MethodGet, "/todos", s.list},
		{http.MethodGet, "/todos/:id", s.get},
		{http.MethodPost, "/todos", s.create(respCache)},
		{http.MethodDelete, "/todos/:id", s.remove(respCache)},
	}
	for _, r := range registrations {
		if err := table.Register(r.method, r.pattern, r.handler); err != nil {
			return fmt.Errorf("registering %s %s: %w", r.method, r.pattern, err)
		}
	}
	return nil
}

func jsonResponse(status int, v any) (*domain.Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return domain.NewResponse(status, body, "application/json"), nil
}

func (s *todoStore) list(_ context.Context, _ *reqctx.Context, _ *domain.Request) (*domain.Response, error) {
	s.mu.Lock()
	out := make([]todo, 0, len(s.items))
	for _, t := range s.items {
		out = append(out, t)
	}
	s.mu.Unlock()
	return jsonResponse(http.StatusOK, out)
}

func (s *todoStore) get(_ context.Context, rc *reqctx.Context, _ *domain.Request) (*domain.Response, error) {
	id, _ := rc.RouteParam("id")
	s.mu.Lock()
	t, ok := s.items[id]
	s.mu.Unlock()
	if !ok {
		return jsonResponse(http.StatusNotFound, map[string]string{"error": "todo not found"})
	}
	return jsonResponse(http.StatusOK, t)
}

func (s *todoStore) create(respCache cache.Store) route.Handler {
	return func(ctx context.Context, _ *reqctx.Context, req *domain.Request) (*domain.Response, error) {
		var in struct {
			Title string `json:"title"`
		}
		if err := json.Unmarshal(req.Body, &in); err != nil || in.Title == "" {
			return jsonResponse(http.StatusBadRequest, map[string]string{"error": "title is required"})
		}
		t := todo{ID: uuid.New().String(), Title: in.Title}
		s.mu.Lock()
		s.items[t.ID] = t
		s.mu.Unlock()

		// New item invalidates every cached todo listing.
		respCache.InvalidatePrefix(ctx, "/todos")
		return jsonResponse(http.StatusCreated, t)
	}
}

func (s *todoStore) remove(respCache cache.Store) route.Handler {
	return func(ctx context.Context, rc *reqctx.Context, _ *domain.Request) (*domain.Response, error) {
		id, _ := rc.RouteParam("id")
		s.mu.Lock()
		_, ok := s.items[id]
		delete(s.items, id)
		s.mu.Unlock()
		if !ok {
			return jsonResponse(http.StatusNotFound, map[string]string{"error": "todo not found"})
		}
		respCache.InvalidatePrefix(ctx, "/todos")
		return jsonResponse(http.StatusOK, map[string]string{"deleted": id})
	}
}
