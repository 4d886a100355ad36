package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/kaimono-app/api/internal/repositories"
)

const readyzTimeout = 5 * time.Second

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	health repositories.HealthRepository
	now    func() time.Time
	start  time.Time
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthRepository wires the backend connectivity check used by /readyz.
func WithHealthRepository(repo repositories.HealthRepository) HealthOption {
	return func(h *HealthHandlers) {
		h.health = repo
	}
}

// WithHealthClock overrides the clock, used by tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.now = clock
		}
	}
}

// NewHealthHandlers constructs handlers for /healthz and /readyz.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	h.start = h.now()
	return h
}

// Healthz reports process liveness; it never touches the backend.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    h.now().Sub(h.start).String(),
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// Readyz reports whether the backend is reachable.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK

	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyzTimeout)
		defer cancel()
		if err := h.health.Check(ctx); err != nil {
			status = "unavailable"
			code = http.StatusServiceUnavailable
		}
	}

	writeJSONResponse(w, code, map[string]any{
		"status":    status,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}
