package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/asset_bootstrap/internal/acquisition"
	"github.com/italolelis/asset_bootstrap/internal/asset"
	"github.com/italolelis/asset_bootstrap/internal/logctx"
	"github.com/italolelis/asset_bootstrap/internal/storage"
)

const defaultFetchLimit = 50

// Acquisition is the part of the orchestrator the API exposes.
type Acquisition interface {
	Status(ctx context.Context) acquisition.Status
	Evaluate(ctx context.Context, trigger string) ([]asset.FetchRequest, error)
}

type FetchRequestResponse struct {
	Asset       asset.ID  `json:"asset"`
	URL         string    `json:"url"`
	Destination string    `json:"destination"`
	Label       string    `json:"label,omitempty"`
	IssuedAt    time.Time `json:"issued_at"`
}

type EvaluateResponse struct {
	Issued []FetchRequestResponse `json:"issued"`
	Status acquisition.Status     `json:"status"`
}

type FetchRecordResponse struct {
	Handle      asset.Handle        `json:"handle"`
	Asset       asset.ID            `json:"asset"`
	URL         string              `json:"url"`
	Destination string              `json:"destination"`
	Status      storage.FetchStatus `json:"status"`
	Bytes       int64               `json:"bytes"`
	Error       string              `json:"error,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type StatusHandler struct {
	acq  Acquisition
	repo storage.FetchReadRepository
}

func NewStatusHandler(acq Acquisition, repo storage.FetchReadRepository) *StatusHandler {
	return &StatusHandler{acq: acq, repo: repo}
}

func (h *StatusHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/status", h.HandleStatus)
	r.Post("/evaluate", h.HandleEvaluate)
	r.Get("/fetches", h.HandleFetches)
	r.Get("/fetches/{handle}", h.HandleFetch)

	return r
}

// HandleStatus reports readiness. It answers 503 while the directory is not ready so it can
// back a container readiness check.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status := h.acq.Status(r.Context())

	code := http.StatusOK
	if !status.Ready {
		code = http.StatusServiceUnavailable
	}

	writeJSON(r.Context(), w, code, status)
}

func (h *StatusHandler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	issued, err := h.acq.Evaluate(ctx, "api")
	if err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "evaluate failed", "err", err)
		writeJSON(ctx, w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})

		return
	}

	resp := EvaluateResponse{Issued: make([]FetchRequestResponse, 0, len(issued)), Status: h.acq.Status(ctx)}
	for _, req := range issued {
		resp.Issued = append(resp.Issued, FetchRequestResponse{
			Asset:       req.Asset,
			URL:         req.URL,
			Destination: req.Destination,
			Label:       req.Label,
			IssuedAt:    req.IssuedAt,
		})
	}

	writeJSON(ctx, w, http.StatusOK, resp)
}

func (h *StatusHandler) HandleFetches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := defaultFetchLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(ctx, w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})

			return
		}

		limit = n
	}

	records, err := h.repo.ListFetches(ctx, limit)
	if err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to list fetches", "err", err)
		writeJSON(ctx, w, http.StatusInternalServerError, ErrorResponse{Error: "failed to list fetches"})

		return
	}

	resp := make([]FetchRecordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toFetchRecordResponse(rec))
	}

	writeJSON(ctx, w, http.StatusOK, resp)
}

func (h *StatusHandler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	handle, err := strconv.ParseInt(chi.URLParam(r, "handle"), 10, 64)
	if err != nil {
		writeJSON(ctx, w, http.StatusBadRequest, ErrorResponse{Error: "invalid fetch handle"})

		return
	}

	rec, err := h.repo.GetFetch(ctx, asset.Handle(handle))
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(ctx, w, http.StatusNotFound, ErrorResponse{Error: "fetch not found"})

		return
	}

	if err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to get fetch", "handle", handle, "err", err)
		writeJSON(ctx, w, http.StatusInternalServerError, ErrorResponse{Error: "failed to get fetch"})

		return
	}

	writeJSON(ctx, w, http.StatusOK, toFetchRecordResponse(rec))
}

func toFetchRecordResponse(rec storage.FetchRecord) FetchRecordResponse {
	return FetchRecordResponse{
		Handle:      rec.Handle,
		Asset:       rec.AssetID,
		URL:         rec.URL,
		Destination: rec.Destination,
		Status:      rec.Status,
		Bytes:       rec.Bytes,
		Error:       rec.Error,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

func writeJSON(ctx context.Context, w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to encode response", "err", err)
	}
}
