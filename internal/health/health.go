// Package health exposes liveness and readiness endpoints. Readiness flips
// on once the session bootstrap has succeeded and the store answers pings.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/mjaros/dealwatch/internal/clock"
)

const checkTimeout = 5 * time.Second

// Status is the JSON body of both endpoints.
type Status struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// Checker is a named dependency probe run on each readiness request.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler serves the health endpoints.
type Handler struct {
	mu       sync.RWMutex
	ready    bool
	checkers []Checker
	clock    clock.Clock
}

// NewHandler creates a handler with the given dependency probes.
func NewHandler(clk clock.Clock, checkers ...Checker) *Handler {
	return &Handler{checkers: checkers, clock: clk}
}

// SetReady marks the service ready. It is flipped on after the session
// bootstrap and off again if the process starts shutting down.
func (h *Handler) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// Routes registers the health endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.liveness)
	mux.HandleFunc("GET /readyz", h.readiness)
}

func (h *Handler) liveness(w http.ResponseWriter, r *http.Request) {
	h.writeStatus(w, http.StatusOK, "ok", nil)
}

func (h *Handler) readiness(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	ready := h.ready
	h.mu.RUnlock()

	if !ready {
		h.writeStatus(w, http.StatusServiceUnavailable, "not_ready", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	checks := make(map[string]string, len(h.checkers))
	code, status := http.StatusOK, "ready"
	for _, c := range h.checkers {
		if err := c.Check(ctx); err != nil {
			checks[c.Name] = err.Error()
			code, status = http.StatusServiceUnavailable, "not_ready"
		} else {
			checks[c.Name] = "ok"
		}
	}

	h.writeStatus(w, code, status, checks)
}

func (h *Handler) writeStatus(w http.ResponseWriter, code int, status string, checks map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(Status{
		Status:    status,
		Checks:    checks,
		Timestamp: h.clock.Now().UTC().Format(time.RFC3339),
	})
}
