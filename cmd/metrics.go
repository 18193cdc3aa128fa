package main

import (
	"context"
	"io"

	"CatalogTx/internal/transaction"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsFile is written to the log directory when --metrics is set.
const MetricsFile = "CatalogTx-metrics.json"

// startMetrics installs a meter provider that exports the transaction
// metrics to w. The returned shutdown flushes the last readings.
func startMetrics(w io.Writer) (func(context.Context) error, error) {
	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w), stdoutmetric.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)))
	transaction.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		defer transaction.SetMeterProvider(nil)
		return mp.Shutdown(ctx)
	}, nil
}
