// Package health serves the worker's liveness and readiness probes. Each
// backing store the worker depends on registers a probe; readiness fails
// when a required probe fails and degrades when an optional one does.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Probe returns nil when the dependency is reachable.
type Probe func(ctx context.Context) error

// Pinger is satisfied by the redis and postgres clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingProbe adapts a Pinger.
func PingProbe(p Pinger) Probe {
	return p.Ping
}

type ComponentHealth struct {
	Status   Status `json:"status"`
	Required bool   `json:"required"`
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency,omitempty"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

type registration struct {
	probe    Probe
	required bool
}

// Checker runs registered probes concurrently.
type Checker struct {
	mu     sync.RWMutex
	probes map[string]registration
	now    func() time.Time
	logger *slog.Logger
}

func NewChecker() *Checker {
	return &Checker{
		probes: make(map[string]registration),
		now:    time.Now,
		logger: slog.Default().With("component", "health"),
	}
}

// Register adds or replaces a named probe. A failing required probe marks
// the whole report down; a failing optional one only degrades it.
func (c *Checker) Register(name string, probe Probe, required bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = registration{probe: probe, required: required}
}

// Run probes every component and folds the results into one Report.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	probes := make(map[string]registration, len(c.probes))
	for name, reg := range c.probes {
		probes[name] = reg
	}
	c.mu.RUnlock()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(probes)),
		Timestamp:  c.now().UTC().Format(time.RFC3339),
	}
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, reg := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := reg.probe(ctx)
			comp := ComponentHealth{
				Status:   StatusUp,
				Required: reg.required,
				Latency:  time.Since(start).Round(time.Millisecond).String(),
			}
			if err != nil {
				comp.Status = StatusDown
				comp.Message = err.Error()
				c.logger.Warn("health probe failed", "component", name, "error", err)
			}
			mu.Lock()
			report.Components[name] = comp
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, comp := range report.Components {
		if comp.Status != StatusDown {
			continue
		}
		if comp.Required {
			report.Status = StatusDown
			break
		}
		report.Status = StatusDegraded
	}
	return report
}

// LiveHandler answers 200 as long as the process can serve HTTP.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers 503 only when a required probe fails.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		report := c.Run(ctx)
		code := http.StatusOK
		if report.Status == StatusDown {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	}
}

// Routes mounts both probes on mux under /health/.
func (c *Checker) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health/live", c.LiveHandler())
	mux.HandleFunc("GET /health/ready", c.ReadyHandler())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
