// Package pipeline converts raw partitions into optimized artifacts and
// loads them back as one merged table.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/ajitpratap0/flightprep/pkg/artifact"
	"github.com/ajitpratap0/flightprep/pkg/errors"
	"github.com/ajitpratap0/flightprep/pkg/logger"
	"github.com/ajitpratap0/flightprep/pkg/metrics"
	"github.com/ajitpratap0/flightprep/pkg/optimize"
	"github.com/ajitpratap0/flightprep/pkg/table"
)

// TableReader reads one raw partition file
type TableReader interface {
	ReadFile(ctx context.Context, path string) (*table.Table, error)
}

// ConverterConfig configures a Converter
type ConverterConfig struct {
	// DatasetsDir holds the raw partition files
	DatasetsDir string
	// Workers is the pool size; values below one mean one
	Workers int
}

// Converter turns every raw partition in a directory into an artifact using
// a fixed pool of workers fed from a task queue.
type Converter struct {
	cfg       ConverterConfig
	cache     *artifact.Cache
	reader    TableReader
	optimizer *optimize.Optimizer
	logger    *zap.Logger
}

// NewConverter creates a converter
func NewConverter(cfg ConverterConfig, cache *artifact.Cache, reader TableReader, optimizer *optimize.Optimizer, logger *zap.Logger) (*Converter, error) {
	if cfg.DatasetsDir == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "datasets directory is required")
	}
	if cache == nil || reader == nil || optimizer == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "converter needs a cache, a reader and an optimizer")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Converter{cfg: cfg, cache: cache, reader: reader, optimizer: optimizer, logger: logger}, nil
}

// Run converts every pending partition. Failures do not stop sibling
// partitions; the returned error joins one error per failed partition.
// Cancelling ctx stops dispatch; partitions already handed to a worker run
// to completion so no half-written state is left behind.
func (c *Converter) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx, c.logger)

	tasks, err := Discover(c.cfg.DatasetsDir)
	if err != nil {
		return nil, err
	}
	report := &Report{RunID: runID, Workers: min(c.cfg.Workers, max(len(tasks), 1))}
	if len(tasks) == 0 {
		log.Debug("no raw partitions to convert", zap.String("dir", c.cfg.DatasetsDir))
		return report, nil
	}

	fields := []zap.Field{zap.Int("partitions", len(tasks)), zap.Int("workers", report.Workers)}
	if vm, err := mem.VirtualMemory(); err == nil {
		fields = append(fields, zap.Uint64("available_memory", vm.Available))
	}
	log.Info("converting partitions", fields...)

	queue := make(chan Task)
	results := make(chan Result, len(tasks))
	done := make(chan struct{})

	// Workers never observe cancellation; only the dispatcher does.
	workCtx := context.WithoutCancel(ctx)
	for i := 0; i < report.Workers; i++ {
		go func() {
			for t := range queue {
				metrics.ActiveWorkers.Inc()
				results <- c.process(workCtx, t)
				metrics.ActiveWorkers.Dec()
			}
			done <- struct{}{}
		}()
	}

	canceled := make(map[string]bool)
	for i, t := range tasks {
		metrics.QueueDepth.Set(float64(len(tasks) - i))
		if ctx.Err() == nil {
			select {
			case queue <- t:
				continue
			case <-ctx.Done():
			}
		}
		for _, rest := range tasks[i:] {
			canceled[rest.Partition] = true
		}
		break
	}
	close(queue)
	metrics.QueueDepth.Set(0)
	for i := 0; i < report.Workers; i++ {
		<-done
	}
	close(results)

	byPartition := make(map[string]Result, len(tasks))
	for r := range results {
		byPartition[r.Partition] = r
	}

	var errs []error
	for _, t := range tasks {
		r, ok := byPartition[t.Partition]
		if !ok && canceled[t.Partition] {
			r = Result{Partition: t.Partition, Path: t.Path, Status: StatusCanceled}
		}
		metrics.PartitionsProcessed.WithLabelValues(string(r.Status)).Inc()
		report.Results = append(report.Results, r)
		if r.Status == StatusFailed {
			errs = append(errs, r.Err)
		}
	}
	if len(canceled) > 0 {
		errs = append(errs, fmt.Errorf("%d partitions not converted: %w", len(canceled), ctx.Err()))
	}

	report.Duration = time.Since(start)
	metrics.BytesReclaimed.Add(float64(max(report.BytesReclaimed(), 0)))
	log.Info("conversion finished",
		zap.Int("converted", report.Count(StatusConverted)),
		zap.Int("skipped", report.Count(StatusSkipped)),
		zap.Int("failed", report.Count(StatusFailed)),
		zap.Int("canceled", report.Count(StatusCanceled)),
		zap.Duration("duration", report.Duration))
	return report, errors.Join(errs...)
}

// process converts one partition. Panics are turned into a failed result so
// one bad partition cannot take the pool down.
func (c *Converter) process(ctx context.Context, t Task) (res Result) {
	start := time.Now()
	ctx = logger.WithPartition(ctx, t.Partition)
	log := logger.FromContext(ctx, c.logger)

	res = Result{Partition: t.Partition, Path: t.Path}
	defer func() {
		if p := recover(); p != nil {
			log.Error("partition conversion panicked", zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
			res.Status = StatusFailed
			res.Err = errors.Newf(errors.ErrorTypeInternal, "panic converting partition %s: %v", t.Partition, p).
				WithDetail("partition", t.Partition)
		}
		res.Duration = time.Since(start)
	}()

	if c.cache.Exists(t.Partition) {
		log.Debug("artifact exists, skipping", zap.String("path", c.cache.Path(t.Partition)))
		res.Status = StatusSkipped
		return res
	}

	if err := c.convert(ctx, t, &res); err != nil {
		log.Error("partition conversion failed", zap.Error(err))
		res.Status = StatusFailed
		res.Err = errors.Wrap(err, errors.TypeOf(err), "convert partition "+t.Partition).
			WithDetail("partition", t.Partition)
		return res
	}
	res.Status = StatusConverted

	// The artifact is durable at this point; losing the raw file is safe.
	if err := os.Remove(t.Path); err != nil {
		log.Warn("could not remove raw file", zap.String("path", t.Path), zap.Error(err))
	}
	log.Info(fmt.Sprintf("Converted %s. Original size %d bytes shrank to %d bytes (%1.5f)",
		t.Path, res.BytesBefore, res.BytesAfter, res.Ratio()),
		zap.Int("rows", res.Rows),
		zap.Duration("duration", time.Since(start)))
	return res
}

func (c *Converter) convert(ctx context.Context, t Task, res *Result) error {
	timer := metrics.NewTimer("read")
	tbl, err := c.reader.ReadFile(ctx, t.Path)
	if err != nil {
		return err
	}
	timer.ObserveStage()
	res.Rows = tbl.NumRows()
	res.BytesBefore = tbl.MemoryUsage()

	var opts []optimize.Option
	if t.Flights {
		opts = append(opts, optimize.WithFlightTimes())
	}
	timer = metrics.NewTimer("optimize")
	if err := c.optimizer.Optimize(tbl, opts...); err != nil {
		return err
	}
	timer.ObserveStage()
	res.BytesAfter = tbl.MemoryUsage()

	timer = metrics.NewTimer("write")
	if err := c.cache.Write(t.Partition, tbl); err != nil {
		return err
	}
	timer.ObserveStage()
	metrics.RowsConverted.Add(float64(res.Rows))
	return nil
}
