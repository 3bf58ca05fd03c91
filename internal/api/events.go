package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shaiso/Downloader/internal/telemetry"
)

// SSE события.
const (
	EventTask   = "task"
	EventTasks  = "tasks"
	EventResult = "result"
)

// sseStream — поток Server-Sent Events поверх ResponseWriter.
type sseStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEStream выставляет заголовки SSE. Возвращает false,
// если ResponseWriter не поддерживает Flush.
func newSSEStream(w http.ResponseWriter) (*sseStream, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseStream{w: w, flusher: flusher}, true
}

// send пишет одно событие.
func (s *sseStream) send(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// ping пишет комментарий, чтобы прокси не закрывали соединение.
func (s *sseStream) ping() error {
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// ObserveDownload транслирует изменения одной задачи.
// Отсутствующая задача приходит как data: null.
// GET /api/v1/downloads/{id}/events
func (h *Handler) ObserveDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := telemetry.WithTaskID(telemetry.FromContext(ctx), chi.URLParam(r, "id"))

	updates, err := h.downloader.Observe(ctx, chi.URLParam(r, "id"))
	if HandleError(w, logger, err, "") {
		return
	}

	stream, ok := newSSEStream(w)
	if !ok {
		InternalError(w, logger, fmt.Errorf("streaming not supported"))
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if err := stream.ping(); err != nil {
				return
			}
		case task, ok := <-updates:
			if !ok {
				return
			}
			var payload *TaskResponse
			if task != nil {
				resp := TaskFromDomain(*task)
				payload = &resp
			}
			if err := stream.send(EventTask, payload); err != nil {
				logger.Debug("sse client gone", "error", err)
				return
			}
		}
	}
}

// ObserveDownloads транслирует снимки набора задач.
// GET /api/v1/events?ids=a,b
func (h *Handler) ObserveDownloads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := telemetry.FromContext(ctx)

	ids := parseIDs(r)
	if len(ids) == 0 {
		BadRequest(w, "ids is required")
		return
	}

	updates, err := h.downloader.ObserveMany(ctx, ids)
	if HandleError(w, logger, err, "") {
		return
	}

	stream, ok := newSSEStream(w)
	if !ok {
		InternalError(w, logger, fmt.Errorf("streaming not supported"))
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if err := stream.ping(); err != nil {
				return
			}
		case tasks, ok := <-updates:
			if !ok {
				return
			}
			if err := stream.send(EventTasks, TaskMapFromDomain(tasks)); err != nil {
				logger.Debug("sse client gone", "error", err)
				return
			}
		}
	}
}

// StreamResults транслирует финальные результаты, появившиеся
// после подключения. Прошлые результаты не повторяются.
// GET /api/v1/results
func (h *Handler) StreamResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := telemetry.FromContext(ctx)

	sub := h.downloader.Results()
	defer sub.Close()

	stream, ok := newSSEStream(w)
	if !ok {
		InternalError(w, logger, fmt.Errorf("streaming not supported"))
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if err := stream.ping(); err != nil {
				return
			}
		case res, ok := <-sub.C():
			if !ok {
				return
			}
			if err := stream.send(EventResult, ResultFromDomain(res)); err != nil {
				logger.Debug("sse client gone", "error", err)
				return
			}
		}
	}
}
