// Package pipeline wires the numbering, term-frequency and TF-IDF stages
// into one job and runs it against an input directory.
//
// The output root receives one directory per stage:
//
//	lines/   id<TAB>document, plus the broadcast corpus size
//	terms/   term:doc<TAB>frequency, plus the corpus size
//	tf-idf/  the final index in the configured encoding
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/idf"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/mapreduce"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/numbering"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/shuffle"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/termfreq"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/tracing"
)

// Stage names double as output directory names.
const (
	StageLines = "lines"
	StageTerms = "terms"
	StageTFIDF = "tf-idf"
)

// Result describes a successful run.
type Result struct {
	JobID          string
	CorpusSize     int64
	OutputDir      string
	Encoding       idf.Encoding
	StageDurations map[string]time.Duration
	Duration       time.Duration
}

// Pipeline runs TF-IDF jobs with one configuration.
type Pipeline struct {
	cfg       config.PipelineConfig
	tokenizer tokenizer.Tokenizer
	engine    *mapreduce.Engine
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a pipeline. A nil tokenizer uses the default analyzer built
// from tokCfg; a nil metrics set gets a private registry.
func New(cfg config.PipelineConfig, tokCfg config.TokenizerConfig, tok tokenizer.Tokenizer, m *metrics.Metrics) *Pipeline {
	if tok == nil {
		tok = tokenizer.NewAnalyzer(tokCfg)
	}
	if m == nil {
		m = metrics.New()
	}
	engine := mapreduce.New(mapreduce.Options{
		WorkDir:           cfg.WorkDir,
		MapParallelism:    cfg.MapParallelism,
		ReduceParallelism: cfg.ReduceParallelism,
		CompressSpills:    cfg.SpillCompression,
		TaskRetries:       cfg.TaskRetries,
		TaskTimeout:       cfg.TaskTimeout,
		Metrics:           m,
	})
	return &Pipeline{
		cfg:       cfg,
		tokenizer: tok,
		engine:    engine,
		metrics:   m,
		logger:    slog.Default().With("component", "pipeline"),
	}
}

// Run computes the TF-IDF index of the documents under input and writes
// every stage's output below outputRoot. Existing stage directories are
// cleared first. If any stage fails no final index is left behind.
func (p *Pipeline) Run(ctx context.Context, input, outputRoot string) (*Result, error) {
	if input == "" || outputRoot == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "input and output directories are required")
	}
	if _, err := os.Stat(input); err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "input %s: %v", input, err)
	}

	jobID := uuid.NewString()
	ctx = logger.WithJobID(ctx, jobID)
	ctx, span := tracing.StartJob(ctx, "tfidf", jobID)
	log := logger.FromContext(ctx).With("component", "pipeline")
	start := time.Now()

	result, err := p.run(ctx, input, outputRoot)
	span.End(err)
	span.Log(log)
	if err != nil {
		p.metrics.JobsTotal.WithLabelValues("failed").Inc()
		log.Error("pipeline failed", "error", err)
		return nil, err
	}
	p.metrics.JobsTotal.WithLabelValues("succeeded").Inc()
	result.JobID = jobID
	result.Duration = time.Since(start)
	log.Info("pipeline finished",
		"corpus_size", result.CorpusSize,
		"output", result.OutputDir,
		"duration", result.Duration,
	)
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, input, outputRoot string) (*Result, error) {
	dirs := map[string]string{
		StageLines: filepath.Join(outputRoot, StageLines),
		StageTerms: filepath.Join(outputRoot, StageTerms),
		StageTFIDF: filepath.Join(outputRoot, StageTFIDF),
	}
	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("clearing %s: %w", dir, err)
		}
	}
	if err := os.MkdirAll(outputRoot, 0o755); err != nil {
		return nil, fmt.Errorf("creating output root: %w", err)
	}

	job, err := p.buildJob(input, dirs)
	if err != nil {
		return nil, err
	}
	jr, err := job.Run(ctx)
	if err != nil {
		return nil, err
	}

	corpusSize, err := ReadCorpusSize(dirs[StageLines])
	if err != nil {
		return nil, err
	}
	p.metrics.CorpusSize.Set(float64(corpusSize))

	durations := make(map[string]time.Duration, len(jr.Stages))
	for _, sr := range jr.Stages {
		durations[sr.Name] = sr.Duration
	}
	return &Result{
		CorpusSize:     corpusSize,
		OutputDir:      dirs[StageTFIDF],
		Encoding:       idf.Encoding(p.cfg.OutputEncoding),
		StageDurations: durations,
	}, nil
}

func (p *Pipeline) buildJob(input string, dirs map[string]string) (*mapreduce.Job, error) {
	router := shuffle.NewHashRouter()
	job := mapreduce.NewJob(p.engine)

	lines := numbering.NewStage(StageLines, []string{input}, dirs[StageLines], numbering.Options{
		NumReducers: p.cfg.NumReducers,
		SkipHeader:  p.cfg.SkipHeader,
		Router:      router,
	})
	terms := termfreq.NewStage(StageTerms, []string{dirs[StageLines]}, dirs[StageTerms], termfreq.Options{
		NumReducers: p.cfg.NumReducers,
		Combiner:    p.cfg.Combiner,
		HapaxFilter: p.cfg.HapaxFilter,
		Tokenizer:   p.tokenizer,
		Router:      router,
	})
	tfidf := idf.NewStage(StageTFIDF, []string{dirs[StageTerms]}, dirs[StageTFIDF], idf.Options{
		NumReducers: p.cfg.NumReducers,
		Scoring:     idf.Scoring(p.cfg.Scoring),
		Filter:      idf.FilterFromConfig(p.cfg.DocFreqFilter),
		Encoding:    idf.Encoding(p.cfg.OutputEncoding),
		Router:      router,
	})

	if err := job.AddStage(lines); err != nil {
		return nil, err
	}
	if err := job.AddStage(terms, StageLines); err != nil {
		return nil, err
	}
	if err := job.AddStage(tfidf, StageLines, StageTerms); err != nil {
		return nil, err
	}
	return job, nil
}

// ReadCorpusSize returns the corpus size recorded in a committed stage
// output directory.
func ReadCorpusSize(dir string) (int64, error) {
	if !mapreduce.Committed(dir) {
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, "%s is not a committed stage output", dir)
	}
	f, err := os.Open(filepath.Join(dir, mapreduce.PartName(numbering.TotalSink)))
	if err != nil {
		return 0, fmt.Errorf("opening corpus size partition: %w", err)
	}
	defer f.Close()

	s := record.NewScanner(f)
	for s.Next() {
		msg := s.Message()
		if msg.IsControl() && msg.Key == numbering.TagCorpusSize {
			return numbering.ParseCorpusSize(msg.Value)
		}
	}
	if err := s.Err(); err != nil {
		return 0, err
	}
	return 0, apperrors.Newf(apperrors.ErrParse, "no corpus size in %s", dir)
}
