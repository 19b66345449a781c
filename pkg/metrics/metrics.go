// Package metrics exposes Prometheus metrics for partition conversion and
// loading.
//
// # Basic Usage
//
//	timer := metrics.NewTimer("optimize")
//	err := optimizer.Optimize(t)
//	metrics.StageDuration.WithLabelValues("optimize").Observe(timer.Stop().Seconds())
//
//	metrics.PartitionsProcessed.WithLabelValues("converted").Inc()
//
// Metrics are registered with the default registry on package load. Long
// running commands expose them over HTTP with Serve; one-shot commands can
// dump them with WriteTextfile.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// PartitionsProcessed counts partitions handled by the converter.
	// Labels: status (converted/skipped/failed/canceled)
	PartitionsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightprep_partitions_processed_total",
			Help: "Total number of partitions handled by the converter",
		},
		[]string{"status"},
	)

	// StageDuration tracks how long each conversion stage takes in seconds.
	// Labels: stage (read/optimize/write/merge)
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "flightprep_stage_duration_seconds",
			Help: "Duration of partition processing stages in seconds",
			Buckets: []float64{
				0.01, // small lookup tables
				0.1,
				1,
				10, // a typical yearly partition
				60,
				300,
			},
		},
		[]string{"stage"},
	)

	// RowsConverted counts rows written to artifacts
	RowsConverted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flightprep_rows_converted_total",
			Help: "Total number of rows written to artifacts",
		},
	)

	// BytesReclaimed accumulates the in-memory footprint saved by optimization
	BytesReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flightprep_memory_reclaimed_bytes_total",
			Help: "In-memory bytes saved by column optimization",
		},
	)

	// QueueDepth tracks partitions waiting for a worker
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flightprep_queue_depth",
			Help: "Partitions waiting for a worker",
		},
	)

	// ActiveWorkers tracks workers currently converting a partition
	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flightprep_active_workers",
			Help: "Workers currently converting a partition",
		},
	)

	// CategoricalFallbacks counts merged columns that fell back to text
	CategoricalFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flightprep_categorical_fallbacks_total",
			Help: "Merged categorical columns that fell back to plain text",
		},
	)
)

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Stop returns the elapsed duration since creation. It can be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ObserveStage stops the timer and records it under its name in StageDuration
func (t *Timer) ObserveStage() time.Duration {
	d := t.Stop()
	StageDuration.WithLabelValues(t.name).Observe(d.Seconds())
	return d
}

// Serve exposes the default registry on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// WriteTextfile writes the default registry in the text exposition format,
// for node exporter's textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
