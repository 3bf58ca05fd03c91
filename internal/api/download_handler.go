package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/segmentio/ksuid"

	"github.com/shaiso/Downloader/internal/downloader"
	"github.com/shaiso/Downloader/internal/telemetry"
)

// ListDownloads возвращает все задачи или только перечисленные в ids.
// GET /api/v1/downloads?ids=a,b
func (h *Handler) ListDownloads(w http.ResponseWriter, r *http.Request) {
	logger := telemetry.FromContext(r.Context())

	if ids := parseIDs(r); len(ids) > 0 {
		tasks, err := h.downloader.GetMany(r.Context(), ids)
		if HandleError(w, logger, err, "") {
			return
		}
		List(w, TasksFromDomain(tasks), len(tasks))
		return
	}

	tasks, err := h.downloader.List(r.Context())
	if HandleError(w, logger, err, "") {
		return
	}
	List(w, TasksFromDomain(tasks), len(tasks))
}

// EnqueueDownload ставит загрузку в очередь.
// POST /api/v1/downloads
func (h *Handler) EnqueueDownload(w http.ResponseWriter, r *http.Request) {
	logger := telemetry.FromContext(r.Context())

	var body EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if strings.TrimSpace(body.ID) == "" {
		body.ID = ksuid.New().String()
	}

	req := body.ToDomain()
	if HandleError(w, logger, h.downloader.Enqueue(r.Context(), req), "") {
		return
	}

	task, err := h.downloader.Get(r.Context(), req.ID)
	if HandleError(w, logger, err, "download not found") {
		return
	}

	logger.Info("download enqueued", "task_id", req.ID)
	Accepted(w, TaskFromDomain(*task))
}

// GetDownload возвращает задачу по ID.
// GET /api/v1/downloads/{id}
func (h *Handler) GetDownload(w http.ResponseWriter, r *http.Request) {
	task, err := h.downloader.Get(r.Context(), chi.URLParam(r, "id"))
	if HandleError(w, telemetry.FromContext(r.Context()), err, "download not found") {
		return
	}
	Success(w, TaskFromDomain(*task))
}

// CancelDownload отменяет задачу. Отсутствующая задача — не ошибка.
// POST /api/v1/downloads/{id}/cancel
func (h *Handler) CancelDownload(w http.ResponseWriter, r *http.Request) {
	err := h.downloader.Cancel(r.Context(), chi.URLParam(r, "id"))
	if HandleError(w, telemetry.FromContext(r.Context()), err, "") {
		return
	}
	NoContent(w)
}

// CancelAllDownloads отменяет все незавершённые задачи.
// POST /api/v1/downloads/cancel
func (h *Handler) CancelAllDownloads(w http.ResponseWriter, r *http.Request) {
	err := h.downloader.CancelAll(r.Context())
	if HandleError(w, telemetry.FromContext(r.Context()), err, "") {
		return
	}
	NoContent(w)
}

// RemoveDownload удаляет задачу.
// DELETE /api/v1/downloads/{id}?delete_file=true
func (h *Handler) RemoveDownload(w http.ResponseWriter, r *http.Request) {
	deleteFile, ok := parseBool(w, r, "delete_file")
	if !ok {
		return
	}

	err := h.downloader.Remove(r.Context(), chi.URLParam(r, "id"), deleteFunc(deleteFile))
	if HandleError(w, telemetry.FromContext(r.Context()), err, "") {
		return
	}
	NoContent(w)
}

// RemoveAllDownloads удаляет все задачи.
// DELETE /api/v1/downloads?delete_files=true
func (h *Handler) RemoveAllDownloads(w http.ResponseWriter, r *http.Request) {
	deleteFiles, ok := parseBool(w, r, "delete_files")
	if !ok {
		return
	}

	err := h.downloader.RemoveAll(r.Context(), deleteFunc(deleteFiles))
	if HandleError(w, telemetry.FromContext(r.Context()), err, "") {
		return
	}
	NoContent(w)
}

// GetStats возвращает загрузку планировщика.
// GET /api/v1/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	Success(w, StatsFromDomain(h.downloader.Stats()))
}

// parseIDs разбирает ids=a,b и повторяющиеся ids=a&ids=b.
func parseIDs(r *http.Request) []string {
	var ids []string
	for _, v := range r.URL.Query()["ids"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func parseBool(w http.ResponseWriter, r *http.Request, key string) (bool, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		BadRequest(w, "invalid "+key)
		return false, false
	}
	return v, true
}

func deleteFunc(deleteFile bool) downloader.DeleteFileFunc {
	if deleteFile {
		return downloader.Always
	}
	return downloader.Never
}
