// Package health serves the liveness and readiness probes for the
// voice-review server.
//
// /healthz reports process liveness and always answers 200. /readyz runs
// every registered [Checker] and answers 503 until the entity store and the
// speech provider are both reachable. Readiness bodies are JSON:
//
//	{"status":"ready","checks":{"database":{"status":"ok"},"speech":{"status":"fail","error":"..."}}}
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// probeTimeout bounds each dependency probe on /readyz.
const probeTimeout = 5 * time.Second

// Checker probes one dependency for readiness.
type Checker struct {
	// Name keys the check in the readiness response ("database", "speech").
	Name string

	// Probe returns nil when the dependency is usable. It must respect
	// context cancellation.
	Probe func(ctx context.Context) error
}

// checkState is one probe's outcome within the readiness body.
type checkState struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// readiness is the /readyz response body. /healthz reuses the shape with
// just the status field set.
type readiness struct {
	Status string                `json:"status"`
	Checks map[string]checkState `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. The checker set is fixed at
// construction; the handler itself holds no mutable state and is safe for
// concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a Handler that evaluates the given checkers on every /readyz
// request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz answers 200 whenever the process can serve HTTP.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, readiness{Status: "alive"})
}

// Readyz runs all checkers concurrently, each under its own [probeTimeout],
// and answers 503 when any of them fails. A slow store probe therefore
// cannot delay the speech probe past its own deadline.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	results := make([]checkState, len(h.checkers))

	var wg sync.WaitGroup
	for i, c := range h.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			defer cancel()
			if err := c.Probe(ctx); err != nil {
				results[i] = checkState{Status: "fail", Error: err.Error()}
			} else {
				results[i] = checkState{Status: "ok"}
			}
		}()
	}
	wg.Wait()

	body := readiness{
		Status: "ready",
		Checks: make(map[string]checkState, len(h.checkers)),
	}
	status := http.StatusOK
	for i, c := range h.checkers {
		body.Checks[c.Name] = results[i]
		if results[i].Status != "ok" {
			body.Status = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
