package transaction

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "catalogtx.transaction"

type transactionMetrics struct {
	begin     metric.Int64Counter
	commit    metric.Int64Counter
	rollback  metric.Int64Counter
	artifacts metric.Int64Counter
	duration  metric.Float64Histogram
	files     metric.Int64Histogram
}

var (
	metricsMu   sync.Mutex
	provider    metric.MeterProvider
	instruments *transactionMetrics

	metricsEnabled atomic.Bool
)

func init() {
	metricsEnabled.Store(true)
}

// SetMetricsEnabled turns metric recording on or off process-wide.
func SetMetricsEnabled(enabled bool) {
	metricsEnabled.Store(enabled)
}

// SetMeterProvider sends transaction metrics to mp. A nil mp goes back to
// the global otel provider.
func SetMeterProvider(mp metric.MeterProvider) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	provider = mp
	instruments = nil
}

func newTransactionMetrics(meter metric.Meter) (*transactionMetrics, error) {
	m := &transactionMetrics{}
	var err error
	if m.begin, err = meter.Int64Counter("catalogtx_transaction_begin_total",
		metric.WithDescription("Transactions begun")); err != nil {
		return nil, err
	}
	if m.commit, err = meter.Int64Counter("catalogtx_transaction_commit_total",
		metric.WithDescription("Transactions committed")); err != nil {
		return nil, err
	}
	if m.rollback, err = meter.Int64Counter("catalogtx_transaction_rollback_total",
		metric.WithDescription("Transactions rolled back")); err != nil {
		return nil, err
	}
	if m.artifacts, err = meter.Int64Counter("catalogtx_transaction_backup_artifacts_total",
		metric.WithDescription("Backup artifacts written")); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram("catalogtx_transaction_duration_seconds",
		metric.WithDescription("Time from begin to commit or rollback"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.files, err = meter.Int64Histogram("catalogtx_transaction_files",
		metric.WithDescription("Files touched or created per transaction")); err != nil {
		return nil, err
	}
	return m, nil
}

// loadMetrics returns nil when recording is off or the instruments cannot
// be created.
func loadMetrics() *transactionMetrics {
	if !metricsEnabled.Load() {
		return nil
	}
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if instruments == nil {
		mp := provider
		if mp == nil {
			mp = otel.GetMeterProvider()
		}
		m, err := newTransactionMetrics(mp.Meter(meterName))
		if err != nil {
			return nil
		}
		instruments = m
	}
	return instruments
}

func recordBegin(success bool) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.begin.Add(context.Background(), 1, metric.WithAttributes(attribute.Bool("success", success)))
}

func recordCommit(d time.Duration, files int, clean bool) {
	m := loadMetrics()
	if m == nil {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("outcome", "commit"), attribute.Bool("clean", clean))
	m.commit.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
	m.files.Record(ctx, int64(files), attrs)
}

func recordRollback(d time.Duration, files int, clean bool) {
	m := loadMetrics()
	if m == nil {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("outcome", "rollback"), attribute.Bool("clean", clean))
	m.rollback.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
	m.files.Record(ctx, int64(files), attrs)
}

func recordArtifact() {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.artifacts.Add(context.Background(), 1)
}
