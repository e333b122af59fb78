// Package export publishes a finished TF-IDF index to external stores.
// Every sink receives the full index in batches; a failing sink is retried,
// then cut off by its circuit breaker, and never prevents the other sinks
// from receiving their copy.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/resilience"
)

// Sink is one export destination.
type Sink interface {
	Name() string
	Write(ctx context.Context, batch []index.Entry) error
	Close() error
}

// Flusher is implemented by sinks that only persist once every batch has
// been written.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Options tunes batching and failure handling.
type Options struct {
	BatchSize      int
	Retry          resilience.RetryConfig
	CircuitBreaker resilience.CircuitBreakerConfig
	Metrics        *metrics.Metrics
}

type target struct {
	sink    Sink
	breaker *resilience.CircuitBreaker
}

// Exporter fans an index out to its sinks.
type Exporter struct {
	targets []target
	opts    Options
	logger  *slog.Logger
}

// NewExporter takes ownership of sinks; Close closes them.
func NewExporter(sinks []Sink, opts Options) *Exporter {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	targets := make([]target, 0, len(sinks))
	for _, s := range sinks {
		targets = append(targets, target{
			sink:    s,
			breaker: resilience.NewCircuitBreaker("export-"+s.Name(), opts.CircuitBreaker),
		})
	}
	return &Exporter{
		targets: targets,
		opts:    opts,
		logger:  slog.Default().With("component", "exporter"),
	}
}

// Export writes entries to every sink. The returned error aggregates the
// failure of each sink that did not receive the whole index.
func (e *Exporter) Export(ctx context.Context, entries []index.Entry) error {
	var errs *multierror.Error
	for _, t := range e.targets {
		start := time.Now()
		if err := e.exportTo(ctx, t, entries); err != nil {
			e.logger.Error("export failed", "sink", t.sink.Name(), "error", err)
			errs = multierror.Append(errs, fmt.Errorf("sink %s: %w", t.sink.Name(), err))
			continue
		}
		e.logger.Info("export finished",
			"sink", t.sink.Name(),
			"entries", len(entries),
			"duration", time.Since(start),
		)
	}
	return errs.ErrorOrNil()
}

func (e *Exporter) exportTo(ctx context.Context, t target, entries []index.Entry) error {
	name := t.sink.Name()
	for start := 0; start < len(entries); start += e.opts.BatchSize {
		end := min(start+e.opts.BatchSize, len(entries))
		batch := entries[start:end]
		err := t.breaker.Execute(func() error {
			return resilience.Retry(ctx, "export-"+name, e.opts.Retry, func(int) error {
				return t.sink.Write(ctx, batch)
			})
		})
		if err != nil {
			return fmt.Errorf("batch at %d: %w", start, err)
		}
		e.opts.Metrics.ExportedEntries.WithLabelValues(name).Add(float64(len(batch)))
	}
	if f, ok := t.sink.(Flusher); ok {
		return t.breaker.Execute(func() error { return f.Flush(ctx) })
	}
	return nil
}

// Close closes every sink.
func (e *Exporter) Close() error {
	var errs *multierror.Error
	for _, t := range e.targets {
		if err := t.sink.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("closing %s: %w", t.sink.Name(), err))
		}
	}
	return errs.ErrorOrNil()
}
