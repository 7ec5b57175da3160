package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Router(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/v1/health", h.Health)

	r.Route("/v1/campaigns", func(r chi.Router) {
		r.Get("/active", h.ActiveCampaigns)
		r.Post("/reload", h.Reload)
		r.Post("/{id}/schedule", h.Schedule)
		r.Post("/{id}/stop", h.Stop)
		r.Get("/{id}/logs", h.ListLogs)
	})

	r.Route("/v1/maintenance", func(r chi.Router) {
		r.Post("/sweep", h.Sweep)
		r.Get("/report", h.SystemReport)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("group-campaigns"))
	})

	return r
}
