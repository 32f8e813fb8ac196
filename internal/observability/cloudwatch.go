// Package observability emits service metrics to CloudWatch.
package observability

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric and dimension names.
const (
	MetricRequestCount   = "RequestCount"
	MetricRequestLatency = "RequestLatency"
	MetricSweepDue       = "TierSweepDue"
	MetricSweepApplied   = "TierSweepApplied"
	MetricSweepFailed    = "TierSweepFailed"

	DimEndpoint    = "Endpoint"
	DimStatusClass = "StatusClass"
)

const (
	// maxDatumsPerCall stays under the PutMetricData request limit.
	maxDatumsPerCall = 500
	// maxBuffered bounds memory when CloudWatch is unreachable.
	maxBuffered = 20000
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics buffers request metrics and ships them in batches.
// RecordRequest never blocks on the network; Flush or Run do the sending.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	pending []cwtypes.MetricDatum
	dropped int
}

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordRequest buffers a count and a latency datum for one HTTP request.
// status is the numeric status code; it is reported by class (2xx, 4xx...).
func (m *CloudWatchMetrics) RecordRequest(method, endpoint, status string, d time.Duration) {
	ts := aws.Time(m.now().UTC())
	dims := []cwtypes.Dimension{
		{Name: aws.String(DimEndpoint), Value: aws.String(method + " " + endpoint)},
		{Name: aws.String(DimStatusClass), Value: aws.String(statusClass(status))},
	}

	m.buffer(
		cwtypes.MetricDatum{
			MetricName: aws.String(MetricRequestCount),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Timestamp:  ts,
			Dimensions: dims,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(MetricRequestLatency),
			Value:      aws.Float64(float64(d.Microseconds()) / 1000),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Timestamp:  ts,
			Dimensions: dims,
		},
	)
}

// RecordSweep sends the outcome of one tier sweep immediately. Sweeps run in
// short-lived processes, so nothing is buffered.
func (m *CloudWatchMetrics) RecordSweep(ctx context.Context, due, applied, failed int) {
	ts := aws.Time(m.now().UTC())
	data := []cwtypes.MetricDatum{
		{MetricName: aws.String(MetricSweepDue), Value: aws.Float64(float64(due)), Unit: cwtypes.StandardUnitCount, Timestamp: ts},
		{MetricName: aws.String(MetricSweepApplied), Value: aws.Float64(float64(applied)), Unit: cwtypes.StandardUnitCount, Timestamp: ts},
		{MetricName: aws.String(MetricSweepFailed), Value: aws.Float64(float64(failed)), Unit: cwtypes.StandardUnitCount, Timestamp: ts},
	}
	if err := m.put(ctx, data); err != nil {
		m.logger.Error("failed to record sweep metrics",
			"error", err.Error(),
			"due", due,
			"applied", applied,
			"failed", failed,
		)
	}
}

func (m *CloudWatchMetrics) buffer(data ...cwtypes.MetricDatum) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending)+len(data) > maxBuffered {
		m.dropped += len(data)
		return
	}
	m.pending = append(m.pending, data...)
}

// Flush sends everything buffered so far. Data from a failed batch is
// discarded and the first error is returned.
func (m *CloudWatchMetrics) Flush(ctx context.Context) error {
	m.mu.Lock()
	batch := m.pending
	dropped := m.dropped
	m.pending = nil
	m.dropped = 0
	m.mu.Unlock()

	if dropped > 0 {
		m.logger.Warn("metrics buffer overflowed", "dropped", dropped)
	}

	var firstErr error
	for start := 0; start < len(batch); start += maxDatumsPerCall {
		end := min(start+maxDatumsPerCall, len(batch))
		if err := m.put(ctx, batch[start:end]); err != nil {
			m.logger.Error("failed to flush request metrics",
				"error", err.Error(),
				"datums", end-start,
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Run flushes every interval until ctx is cancelled, then flushes once more
// with a short detached deadline.
func (m *CloudWatchMetrics) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = m.Flush(ctx)
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			_ = m.Flush(final)
			cancel()
			return
		}
	}
}

// Buffered reports the number of datums waiting to be sent.
func (m *CloudWatchMetrics) Buffered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *CloudWatchMetrics) put(ctx context.Context, data []cwtypes.MetricDatum) error {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
	return err
}

func statusClass(status string) string {
	if len(status) != 3 || !strings.ContainsAny(status[:1], "12345") {
		return "unknown"
	}
	return status[:1] + "xx"
}
