package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type mockHealthProbe struct {
	name  string
	err   error
	delay time.Duration
	panic bool
}

func (m *mockHealthProbe) Name() string { return m.name }

func (m *mockHealthProbe) Check(ctx context.Context) error {
	if m.panic {
		panic("probe exploded")
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			// Keep running past the deadline to simulate a stuck dependency.
			time.Sleep(50 * time.Millisecond)
			return ctx.Err()
		}
	}
	return m.err
}

func runHealth(t *testing.T, probes ...HealthProbe) (*httptest.ResponseRecorder, healthResponse) {
	t.Helper()
	srv := newTestServer(t)
	srv.HealthProbes = probes

	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding health response: %v", err)
	}
	return rec, body
}

func TestHandleHealth_NoProbes(t *testing.T) {
	rec, body := runHealth(t)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if body.Status != "healthy" || body.Version != "test" {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestHandleHealth_AllHealthy(t *testing.T) {
	rec, body := runHealth(t,
		NewPingProbe("database", func(context.Context) error { return nil }),
		&mockHealthProbe{name: "queue"},
	)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if body.Components["database"].Status != "healthy" || body.Components["queue"].Status != "healthy" {
		t.Errorf("unexpected components %+v", body.Components)
	}
}

func TestHandleHealth_Failures(t *testing.T) {
	tests := []struct {
		name    string
		probe   HealthProbe
		wantMsg string
	}{
		{"error", NewPingProbe("database", func(context.Context) error { return errors.New("connection refused") }), "connection refused"},
		{"panic", &mockHealthProbe{name: "database", panic: true}, "probe panicked: probe exploded"},
		{"timeout", &mockHealthProbe{name: "database", delay: 10 * time.Second}, "health check timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := runHealth(t, tt.probe)
			if rec.Code != http.StatusServiceUnavailable {
				t.Errorf("status = %d, want 503", rec.Code)
			}
			if body.Status != "unhealthy" {
				t.Errorf("status field = %q, want unhealthy", body.Status)
			}
			if got := body.Components["database"].Message; got != tt.wantMsg {
				t.Errorf("message = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}
