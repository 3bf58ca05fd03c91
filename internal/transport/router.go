package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shaiso/Downloader/internal/domain"
)

// Starter — то, что умеет запускать передачу.
type Starter interface {
	Start(ctx context.Context, req domain.Request) (*Transfer, error)
}

// Router выбирает транспорт по схеме URL запроса.
type Router struct {
	routes map[string]Starter
}

// NewRouter создаёт пустой роутер.
func NewRouter() *Router {
	return &Router{routes: make(map[string]Starter)}
}

// Handle регистрирует транспорт для схем.
func (r *Router) Handle(t Starter, schemes ...string) *Router {
	for _, s := range schemes {
		r.routes[strings.ToLower(s)] = t
	}
	return r
}

// Start находит транспорт по схеме и запускает передачу.
func (r *Router) Start(ctx context.Context, req domain.Request) (*Transfer, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	t, ok := r.routes[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return t.Start(ctx, req)
}

// Schemes возвращает зарегистрированные схемы.
func (r *Router) Schemes() []string {
	out := make([]string, 0, len(r.routes))
	for s := range r.routes {
		out = append(out, s)
	}
	return out
}

// Default возвращает роутер со стандартными транспортами:
// http/https → HTTP, s3/gs/file/mem → Blob.
func Default(h *HTTP, b *Blob) *Router {
	return NewRouter().
		Handle(h, "http", "https").
		Handle(b, "s3", "gs", "file", "mem")
}
