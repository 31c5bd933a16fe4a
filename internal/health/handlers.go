// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/noah-isme/toko-cart/internal/common"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips readiness, typically to false when shutdown starts.
func SetReady(v bool) { ready.Store(v) }

// Probe checks one dependency within Timeout.
type Probe struct {
	Name    string
	Timeout time.Duration
	Check   func(ctx context.Context) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Probes []Probe
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready runs every probe and answers 503 when any fails or shutdown began.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}
	status := make(map[string]string, len(h.Probes))
	code := http.StatusOK
	for _, p := range h.Probes {
		timeout := p.Timeout
		if timeout <= 0 {
			timeout = 500 * time.Millisecond
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		err := p.Check(ctx)
		cancel()
		if err != nil {
			status[p.Name] = err.Error()
			code = http.StatusServiceUnavailable
			continue
		}
		status[p.Name] = "ok"
	}
	common.JSON(w, code, status)
}
