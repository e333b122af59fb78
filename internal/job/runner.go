// Package job runs one TF-IDF job end to end: the three pipeline stages
// followed by export of the finished index. The CLI and the Kafka worker
// both drive jobs through a Runner.
package job

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/index/export"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/resilience"
)

// SegmentDir is the directory below the output root that receives the
// exported segment file.
const SegmentDir = "index"

// SinkFactory connects the export sinks for one job.
type SinkFactory func(ctx context.Context, jobID, segmentDir string, corpusSize int64) ([]export.Sink, *export.SegmentSink, error)

// Outcome is what a finished job produced.
type Outcome struct {
	Result  *pipeline.Result
	Entries int
	Segment string
}

// Runner executes jobs with a fixed configuration.
type Runner struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	metrics  *metrics.Metrics
	sinks    SinkFactory
	logger   *slog.Logger
}

// NewRunner builds a runner whose sinks come from cfg.Export. A nil
// tokenizer selects the configured analyzer.
func NewRunner(cfg *config.Config, tok tokenizer.Tokenizer, m *metrics.Metrics) *Runner {
	if m == nil {
		m = metrics.New()
	}
	r := &Runner{
		cfg:      cfg,
		pipeline: pipeline.New(cfg.Pipeline, cfg.Tokenizer, tok, m),
		metrics:  m,
		logger:   slog.Default().With("component", "job-runner"),
	}
	r.sinks = func(ctx context.Context, jobID, segmentDir string, corpusSize int64) ([]export.Sink, *export.SegmentSink, error) {
		return export.Build(ctx, cfg, jobID, segmentDir, corpusSize)
	}
	return r
}

// WithSinks replaces the sink factory.
func (r *Runner) WithSinks(f SinkFactory) *Runner {
	r.sinks = f
	return r
}

// Run computes the index of input into output and exports it. A failed
// export is reported as a stage failure, but the committed pipeline output
// stays in place.
func (r *Runner) Run(ctx context.Context, input, output string) (*Outcome, error) {
	result, err := r.pipeline.Run(ctx, input, output)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithJobID(ctx, result.JobID)
	log := logger.FromContext(ctx).With("component", "job-runner")

	out := &Outcome{Result: result}
	entries, err := index.ReadEntries(result.OutputDir, result.Encoding)
	if err != nil {
		return out, fmt.Errorf("reading index: %w", err)
	}
	out.Entries = len(entries)

	sinks, seg, err := r.sinks(ctx, result.JobID, filepath.Join(output, SegmentDir), result.CorpusSize)
	if err != nil {
		return out, fmt.Errorf("connecting export sinks: %w", err)
	}
	if len(sinks) == 0 {
		log.Info("no export sinks enabled")
		return out, nil
	}

	start := time.Now()
	exp := export.NewExporter(sinks, export.Options{
		BatchSize: r.cfg.Export.BatchSize,
		Retry: resilience.RetryConfig{
			MaxAttempts:  r.cfg.Pipeline.TaskRetries + 1,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
		Metrics: r.metrics,
	})
	exportErr := exp.Export(ctx, entries)
	if cerr := exp.Close(); cerr != nil {
		log.Warn("closing export sinks", "error", cerr)
	}
	if seg != nil {
		out.Segment = seg.Path()
	}
	if exportErr != nil {
		return out, fmt.Errorf("exporting index: %w", exportErr)
	}
	log.Info("index exported",
		"entries", len(entries),
		"sinks", len(sinks),
		"segment", out.Segment,
		"duration", time.Since(start),
	)
	return out, nil
}
