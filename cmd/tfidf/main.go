package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/index/segment"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/job"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/metrics"
)

func main() {
	os.Exit(run())
}

func run() int {
	fs := flag.NewFlagSet("tfidf", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	input := fs.String("input", "", "directory (or file) of documents, one per line")
	output := fs.String("output", "", "output root for stage directories")
	reducers := fs.Int("reducers", 0, "number of reduce partitions (overrides config)")
	query := fs.String("query", "", "search the exported segment for these terms")
	segmentPath := fs.String("segment", "", "segment file to query without running the pipeline")
	limit := fs.Int("limit", 10, "maximum number of search results")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: tfidf -input DIR -output DIR [-config FILE] [-reducers N] [-query TERMS]\n")
		fmt.Fprintf(fs.Output(), "       tfidf -segment FILE -query TERMS\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		return apperrors.ExitConfigError
	}
	queryOnly := *segmentPath != "" && *input == ""
	if !queryOnly && (*input == "" || *output == "") {
		fs.Usage()
		return apperrors.ExitConfigError
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return apperrors.ExitConfigError
	}
	if *reducers > 0 {
		cfg.Pipeline.NumReducers = *reducers
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if queryOnly {
		if *query == "" {
			fs.Usage()
			return apperrors.ExitConfigError
		}
		return searchSegment(*segmentPath, *query, cfg.Tokenizer, *limit)
	}

	m := metrics.New()
	if cfg.Metrics.Enabled {
		mctx, cancel := context.WithCancel(ctx)
		served := make(chan struct{})
		go func() {
			defer close(served)
			if err := m.Serve(mctx, cfg.Metrics.Port, nil); err != nil {
				slog.Error("metrics endpoint failed", "error", err)
			}
		}()
		defer func() {
			cancel()
			<-served
		}()
	}

	slog.Info("starting tf-idf job",
		"input", *input,
		"output", *output,
		"reducers", cfg.Pipeline.NumReducers,
		"scoring", cfg.Pipeline.Scoring,
		"encoding", cfg.Pipeline.OutputEncoding,
	)
	outcome, err := job.NewRunner(cfg, nil, m).Run(ctx, *input, *output)
	if err != nil {
		slog.Error("job failed", "error", err)
		return apperrors.ExitCode(err)
	}
	fmt.Printf("job %s: %d documents, %d entries in %s\n",
		outcome.Result.JobID, outcome.Result.CorpusSize, outcome.Entries, outcome.Result.OutputDir)
	if outcome.Segment != "" {
		fmt.Printf("segment: %s\n", outcome.Segment)
	}

	if *query != "" {
		if outcome.Segment == "" {
			fmt.Fprintln(os.Stderr, "-query needs export.segment enabled")
			return apperrors.ExitConfigError
		}
		return searchSegment(outcome.Segment, *query, cfg.Tokenizer, *limit)
	}
	return apperrors.ExitOK
}

func searchSegment(path, query string, tokCfg config.TokenizerConfig, limit int) int {
	r, err := segment.OpenReader(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening segment: %v\n", err)
		return apperrors.ExitConfigError
	}
	defer r.Close()

	terms := tokenizer.NewAnalyzer(tokCfg).Tokenize(query)
	results, err := index.Search(r, terms, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "search failed: %v\n", err)
		return apperrors.ExitStageFailure
	}
	fmt.Printf("query %q -> [%s]: %d results\n", query, strings.Join(terms, " "), len(results))
	for i, res := range results {
		fmt.Printf("%3d. doc %-8d %.6f\n", i+1, res.Doc, res.Score)
	}
	return apperrors.ExitOK
}
