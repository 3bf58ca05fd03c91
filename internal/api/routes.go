package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes возвращает chi роутер со всеми маршрутами API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Chain(
		RequestLogger(h.logger),
		Recovery(),
		Logging(),
	))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/downloads", func(r chi.Router) {
			r.Get("/", h.ListDownloads)
			r.Post("/", h.EnqueueDownload)
			r.Delete("/", h.RemoveAllDownloads)
			r.Post("/cancel", h.CancelAllDownloads)

			r.Get("/{id}", h.GetDownload)
			r.Delete("/{id}", h.RemoveDownload)
			r.Post("/{id}/cancel", h.CancelDownload)
			r.Get("/{id}/events", h.ObserveDownload)
		})

		r.Get("/events", h.ObserveDownloads)
		r.Get("/results", h.StreamResults)
		r.Get("/stats", h.GetStats)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFound(w, "route not found")
	})

	return r
}
