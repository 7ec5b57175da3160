package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/LeventeLantos/group-campaigns/internal/cadence"
	"github.com/LeventeLantos/group-campaigns/internal/model"
	"github.com/LeventeLantos/group-campaigns/internal/reconcile"
)

type Registry interface {
	Schedule(ctx context.Context, id string) error
	Stop(id string) bool
	Reload(ctx context.Context) (int, error)
	IsScheduled(id string) bool
}

type StatusProjector interface {
	ActiveCampaignsInfo(ctx context.Context) ([]model.CampaignInfo, error)
}

type LogReader interface {
	ListByCampaign(ctx context.Context, campaignID string, limit, offset int) ([]model.LogRecord, error)
}

type Sweeper interface {
	Sweep(ctx context.Context) (reconcile.Result, error)
}

type Monitor interface {
	Health(ctx context.Context) model.Health
	SystemReport(ctx context.Context) (model.SystemReport, error)
}

type Handler struct {
	registry Registry
	status   StatusProjector
	logs     LogReader
	sweeper  Sweeper
	monitor  Monitor
}

func NewHandler(registry Registry, status StatusProjector, logs LogReader, sweeper Sweeper, monitor Monitor) *Handler {
	return &Handler{registry: registry, status: status, logs: logs, sweeper: sweeper, monitor: monitor}
}

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	health := h.monitor.Health(r.Context())
	code := http.StatusOK
	if !health.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, health)
}

func (h *Handler) ActiveCampaigns(w http.ResponseWriter, r *http.Request) {
	infos, err := h.status.ActiveCampaignsInfo(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": infos})
}

func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.registry.Schedule(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	msg := "campaign scheduled"
	if !h.registry.IsScheduled(id) {
		msg = "campaign is not active, nothing scheduled"
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: msg})
}

func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.registry.Stop(id) {
		writeJSON(w, http.StatusOK, response{Success: false, Message: "campaign was not scheduled"})
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "campaign stopped"})
}

func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	n, err := h.registry.Reload(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "campaigns reloaded", Data: map[string]int{"scheduled": n}})
}

func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	items, err := h.logs.ListByCampaign(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []model.LogRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "integrity sweep completed", Data: res})
}

func (h *Handler) SystemReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.monitor.SystemReport(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "system report generated", Data: rep})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrNoCadence),
		errors.Is(err, cadence.ErrInvalidInterval),
		errors.Is(err, cadence.ErrInvalidExpression):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, response{Success: false, Message: err.Error()})
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
