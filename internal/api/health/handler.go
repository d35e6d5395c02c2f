// Package health provides liveness and readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Checker reports whether one dependency is reachable.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Handler serves health endpoints.
type Handler struct {
	checkers []Checker
	timeout  time.Duration
}

// NewHandler creates a health handler over checkers.
func NewHandler(checkers ...Checker) *Handler {
	return &Handler{checkers: checkers, timeout: 5 * time.Second}
}

// Response is the health endpoint body.
type Response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health reports that the process is serving.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	write(w, http.StatusOK, Response{Status: "ok"})
}

// Ready runs every checker concurrently and returns 503 if any fails.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]string, len(h.checkers))
		healthy = true
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range h.checkers {
		g.Go(func() error {
			status := "ok"
			if err := c.Check(gctx); err != nil {
				status = err.Error()
			}
			mu.Lock()
			results[c.Name()] = status
			if status != "ok" {
				healthy = false
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	if !healthy {
		write(w, http.StatusServiceUnavailable, Response{Status: "not_ready", Checks: results})
		return
	}
	write(w, http.StatusOK, Response{Status: "ready", Checks: results})
}

func write(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
