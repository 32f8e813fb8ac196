package core

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// healthCheckTimeout bounds all probes together.
const healthCheckTimeout = 2 * time.Second

// HealthProbe checks one critical dependency.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

// PingProbe adapts a ping function (pgxpool.Pool.Ping, for instance) to a
// HealthProbe.
type PingProbe struct {
	name string
	ping func(ctx context.Context) error
}

// NewPingProbe returns a probe named name that calls ping.
func NewPingProbe(name string, ping func(ctx context.Context) error) PingProbe {
	return PingProbe{name: name, ping: ping}
}

func (p PingProbe) Name() string { return p.name }

func (p PingProbe) Check(ctx context.Context) error { return p.ping(ctx) }

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs every probe concurrently and answers 200 when all pass,
// 503 otherwise. A probe still running at the deadline counts as failed.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "healthy"}
	if s.Config != nil {
		resp.Version = s.Config.Build.Version
	}
	if len(s.HealthProbes) == 0 {
		JSON(w, r, http.StatusOK, resp)
		return
	}

	var (
		mu      sync.Mutex
		results = make(map[string]error, len(s.HealthProbes))
		wg      sync.WaitGroup
	)
	for _, probe := range s.HealthProbes {
		wg.Add(1)
		go func(p HealthProbe) {
			defer wg.Done()
			err := runProbe(ctx, p)
			mu.Lock()
			results[p.Name()] = err
			mu.Unlock()
		}(probe)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()

	resp.Components = make(map[string]componentStatus, len(s.HealthProbes))
	for _, probe := range s.HealthProbes {
		name := probe.Name()
		err, finished := results[name]
		switch {
		case !finished:
			resp.Status = "unhealthy"
			resp.Components[name] = componentStatus{Status: "unhealthy", Message: "health check timed out"}
		case err != nil:
			resp.Status = "unhealthy"
			resp.Components[name] = componentStatus{Status: "unhealthy", Message: err.Error()}
		default:
			resp.Components[name] = componentStatus{Status: "healthy"}
		}
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	JSON(w, r, status, resp)
}

func runProbe(ctx context.Context, p HealthProbe) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			err = fmt.Errorf("probe panicked: %v", rvr)
		}
	}()
	return p.Check(ctx)
}
