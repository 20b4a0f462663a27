// Package api serves read-only views over the recorded price history.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mjaros/dealwatch/internal/store"
)

const defaultRecentLimit = 10

// Handler exposes the listing history over HTTP.
type Handler struct {
	listings store.ListingRepository
	logger   *slog.Logger
}

// NewHandler creates an API handler over the listing store.
func NewHandler(listings store.ListingRepository, logger *slog.Logger) *Handler {
	return &Handler{listings: listings, logger: logger}
}

// Routes registers the API endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/games/{gameID}/listings", h.recent)
	mux.HandleFunc("GET /api/games/{gameID}/average", h.average)
}

type listingResponse struct {
	ID        int64     `json:"id"`
	GameID    string    `json:"game_id"`
	Name      string    `json:"name"`
	DRM       string    `json:"drm"`
	Price     string    `json:"price"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

type averageResponse struct {
	GameID       string `json:"game_id"`
	DRM          string `json:"drm"`
	AveragePrice string `json:"average_price"`
}

func (h *Handler) recent(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("gameID")
	drm := r.URL.Query().Get("drm")
	if drm == "" {
		h.writeError(w, http.StatusBadRequest, "drm query parameter is required")
		return
	}

	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	rows, err := h.listings.Recent(r.Context(), gameID, drm, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "listing query failed",
			slog.String("game_id", gameID),
			slog.String("error", err.Error()),
		)
		h.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	resp := make([]listingResponse, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, listingResponse{
			ID:        row.ID,
			GameID:    row.GameID,
			Name:      row.Name,
			DRM:       row.DRM,
			Price:     row.Price.String(),
			URL:       row.URL,
			CreatedAt: row.CreatedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) average(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("gameID")
	drm := r.URL.Query().Get("drm")
	if drm == "" {
		h.writeError(w, http.StatusBadRequest, "drm query parameter is required")
		return
	}

	avg, err := h.listings.AveragePrice(r.Context(), gameID, drm)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "average query failed",
			slog.String("game_id", gameID),
			slog.String("error", err.Error()),
		)
		h.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	h.writeJSON(w, http.StatusOK, averageResponse{
		GameID:       gameID,
		DRM:          drm,
		AveragePrice: avg.StringFixed(2),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		h.logger.Error("encoding response failed", slog.String("error", err.Error()))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, code int, msg string) {
	h.writeJSON(w, code, map[string]string{"error": msg})
}
