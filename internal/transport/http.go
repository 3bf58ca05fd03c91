package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shaiso/Downloader/internal/domain"
)

// DefaultUserAgent — User-Agent по умолчанию.
const DefaultUserAgent = "Downloader"

// HTTPConfig — настройки HTTP транспорта.
type HTTPConfig struct {
	// Client — HTTP клиент. По умолчанию: клиент без общего таймаута,
	// длительность загрузки ограничивается только отменой.
	Client *http.Client

	// UserAgent — заголовок User-Agent.
	UserAgent string

	// HeaderTimeout — таймаут ожидания заголовков ответа.
	// По умолчанию: 30s
	HeaderTimeout time.Duration
}

// HTTP — транспорт для http:// и https:// URL.
type HTTP struct {
	client    *http.Client
	userAgent string
}

// NewHTTP создаёт HTTP транспорт.
func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.HeaderTimeout == 0 {
		cfg.HeaderTimeout = 30 * time.Second
	}
	if cfg.Client == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.ResponseHeaderTimeout = cfg.HeaderTimeout
		cfg.Client = &http.Client{Transport: tr}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	return &HTTP{
		client:    cfg.Client,
		userAgent: cfg.UserAgent,
	}
}

// Start запускает загрузку req.URL в req.Destination.
func (h *HTTP) Start(ctx context.Context, req domain.Request) (*Transfer, error) {
	if _, err := http.NewRequest(http.MethodGet, req.URL, nil); err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	return start(ctx, func(ctx context.Context, report reportFunc) error {
		return h.download(ctx, req, report)
	}), nil
}

func (h *HTTP) download(ctx context.Context, req domain.Request, report reportFunc) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	return writeFile(ctx, req.Destination, resp.Body, resp.ContentLength, report)
}
