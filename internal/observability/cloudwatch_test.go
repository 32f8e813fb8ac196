package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// mockCloudWatchClient records PutMetricData calls for verification.
type mockCloudWatchClient struct {
	mu        sync.Mutex
	calls     []*cloudwatch.PutMetricDataInput
	returnErr error
}

func (m *mockCloudWatchClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func (m *mockCloudWatchClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func newTestMetrics(cw *mockCloudWatchClient) *CloudWatchMetrics {
	m := NewCloudWatchMetrics(cw, "DealBadgeTest", slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.now = func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) }
	return m
}

func assertDimension(t *testing.T, dims []cwtypes.Dimension, name, want string) {
	t.Helper()
	for _, d := range dims {
		if *d.Name == name {
			if *d.Value != want {
				t.Errorf("dimension %s = %q, want %q", name, *d.Value, want)
			}
			return
		}
	}
	t.Errorf("dimension %s not found", name)
}

func TestRecordRequest_BuffersUntilFlush(t *testing.T) {
	cw := &mockCloudWatchClient{}
	m := newTestMetrics(cw)

	m.RecordRequest("POST", "/v1/storefront/price", "200", 1500*time.Microsecond)

	if cw.callCount() != 0 {
		t.Fatalf("expected no PutMetricData before Flush, got %d", cw.callCount())
	}
	if m.Buffered() != 2 {
		t.Fatalf("expected 2 buffered datums, got %d", m.Buffered())
	}

	if err := m.Flush(context.Background()); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if cw.callCount() != 1 {
		t.Fatalf("expected 1 PutMetricData call, got %d", cw.callCount())
	}

	input := cw.calls[0]
	if *input.Namespace != "DealBadgeTest" {
		t.Errorf("namespace = %q", *input.Namespace)
	}
	if len(input.MetricData) != 2 {
		t.Fatalf("expected 2 datums, got %d", len(input.MetricData))
	}

	count := input.MetricData[0]
	if *count.MetricName != MetricRequestCount || *count.Value != 1 || count.Unit != cwtypes.StandardUnitCount {
		t.Errorf("unexpected count datum: %s=%v %s", *count.MetricName, *count.Value, count.Unit)
	}
	assertDimension(t, count.Dimensions, DimEndpoint, "POST /v1/storefront/price")
	assertDimension(t, count.Dimensions, DimStatusClass, "2xx")

	latency := input.MetricData[1]
	if *latency.MetricName != MetricRequestLatency || *latency.Value != 1.5 {
		t.Errorf("unexpected latency datum: %s=%v", *latency.MetricName, *latency.Value)
	}
	if latency.Unit != cwtypes.StandardUnitMilliseconds {
		t.Errorf("latency unit = %s", latency.Unit)
	}

	if m.Buffered() != 0 {
		t.Errorf("buffer not drained: %d", m.Buffered())
	}
}

func TestFlush_SplitsIntoBatches(t *testing.T) {
	cw := &mockCloudWatchClient{}
	m := newTestMetrics(cw)

	// 300 requests produce 600 datums, more than one call allows.
	for i := 0; i < 300; i++ {
		m.RecordRequest("GET", "/health", "200", time.Millisecond)
	}
	if err := m.Flush(context.Background()); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}

	if cw.callCount() != 2 {
		t.Fatalf("expected 2 calls, got %d", cw.callCount())
	}
	if n := len(cw.calls[0].MetricData); n != maxDatumsPerCall {
		t.Errorf("first batch = %d datums, want %d", n, maxDatumsPerCall)
	}
	if n := len(cw.calls[1].MetricData); n != 100 {
		t.Errorf("second batch = %d datums, want 100", n)
	}
}

func TestFlush_ErrorDiscardsBatch(t *testing.T) {
	cw := &mockCloudWatchClient{returnErr: fmt.Errorf("throttled")}
	m := newTestMetrics(cw)

	m.RecordRequest("GET", "/health", "503", time.Millisecond)
	if err := m.Flush(context.Background()); err == nil {
		t.Fatal("expected error from Flush")
	}
	if m.Buffered() != 0 {
		t.Errorf("failed batch should not be requeued, buffered = %d", m.Buffered())
	}
}

func TestFlush_Empty(t *testing.T) {
	cw := &mockCloudWatchClient{}
	m := newTestMetrics(cw)

	if err := m.Flush(context.Background()); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if cw.callCount() != 0 {
		t.Errorf("expected no calls for an empty buffer, got %d", cw.callCount())
	}
}

func TestRecordSweep(t *testing.T) {
	cw := &mockCloudWatchClient{}
	m := newTestMetrics(cw)

	m.RecordSweep(context.Background(), 5, 4, 1)

	if cw.callCount() != 1 {
		t.Fatalf("expected 1 call, got %d", cw.callCount())
	}
	want := map[string]float64{MetricSweepDue: 5, MetricSweepApplied: 4, MetricSweepFailed: 1}
	for _, d := range cw.calls[0].MetricData {
		if w, ok := want[*d.MetricName]; !ok || w != *d.Value {
			t.Errorf("unexpected datum %s=%v", *d.MetricName, *d.Value)
		}
	}
}

func TestRun_FlushesOnCancel(t *testing.T) {
	cw := &mockCloudWatchClient{}
	m := newTestMetrics(cw)
	m.RecordRequest("GET", "/health", "200", time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if cw.callCount() != 1 {
		t.Errorf("expected final flush, got %d calls", cw.callCount())
	}
}

func TestStatusClass(t *testing.T) {
	tests := map[string]string{
		"200": "2xx",
		"404": "4xx",
		"503": "5xx",
		"":    "unknown",
		"abc": "unknown",
		"99":  "unknown",
	}
	for in, want := range tests {
		if got := statusClass(in); got != want {
			t.Errorf("statusClass(%q) = %q, want %q", in, got, want)
		}
	}
}
