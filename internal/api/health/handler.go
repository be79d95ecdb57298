// Package health serves the liveness and readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultCheckTimeout bounds one readiness check across all checkers.
const DefaultCheckTimeout = 5 * time.Second

// Reported statuses.
const (
	StatusOK       = "ok"
	StatusLive     = "live"
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
)

// Checker is one readiness dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Detailer is implemented by checkers that add context to a passing check.
type Detailer interface {
	Detail(ctx context.Context) string
}

// Handler serves the health endpoints.
type Handler struct {
	timeout time.Duration

	mu       sync.RWMutex
	checkers []Checker
}

// NewHandler creates a handler with no checkers; readiness then always
// passes.
func NewHandler() *Handler {
	return &Handler{timeout: DefaultCheckTimeout}
}

// RegisterChecker adds a readiness dependency.
func (h *Handler) RegisterChecker(c Checker) {
	h.mu.Lock()
	h.checkers = append(h.checkers, c)
	h.mu.Unlock()
}

// HealthResponse is the body of every health endpoint.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health reports that the process serves HTTP.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, HealthResponse{Status: StatusOK})
}

// Live is the liveness endpoint. It never consults dependencies.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, HealthResponse{Status: StatusLive})
}

// Ready runs every checker concurrently and answers 503 if any fails.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.mu.RLock()
	checkers := slices.Clone(h.checkers)
	h.mu.RUnlock()

	results := make([]string, len(checkers))
	failed := make([]bool, len(checkers))
	var g errgroup.Group
	for i, c := range checkers {
		g.Go(func() error {
			results[i], failed[i] = runCheck(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	resp := HealthResponse{Status: StatusReady, Checks: make(map[string]string, len(checkers))}
	code := http.StatusOK
	for i, c := range checkers {
		resp.Checks[c.Name()] = results[i]
		if failed[i] {
			resp.Status = StatusNotReady
			code = http.StatusServiceUnavailable
		}
	}
	writeHealth(w, code, resp)
}

// runCheck returns the reported result and whether the check failed.
func runCheck(ctx context.Context, c Checker) (string, bool) {
	if err := c.Check(ctx); err != nil {
		return err.Error(), true
	}
	if d, ok := c.(Detailer); ok {
		if detail := d.Detail(ctx); detail != "" {
			return StatusOK + " (" + detail + ")", false
		}
	}
	return StatusOK, false
}

func writeHealth(w http.ResponseWriter, code int, resp HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}
