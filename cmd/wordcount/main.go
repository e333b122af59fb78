package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/mapreduce"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/wordcount"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	fs := flag.NewFlagSet("wordcount", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	input := fs.String("input", "", "directory (or file) of text")
	output := fs.String("output", "", "output directory, replaced if it exists")
	reducers := fs.Int("reducers", 0, "number of reduce partitions (overrides config)")
	combine := fs.Bool("combine", true, "pre-sum counts on the map side")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return apperrors.ExitConfigError
	}
	if *input == "" || *output == "" {
		fmt.Fprintln(fs.Output(), "usage: wordcount -input DIR -output DIR [-config FILE] [-reducers N] [-combine=false]")
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

	p := cfg.Pipeline
	engine := mapreduce.New(mapreduce.Options{
		WorkDir:           p.WorkDir,
		MapParallelism:    p.MapParallelism,
		ReduceParallelism: p.ReduceParallelism,
		CompressSpills:    p.SpillCompression,
		TaskRetries:       p.TaskRetries,
		TaskTimeout:       p.TaskTimeout,
	})
	res, err := engine.RunStage(ctx, wordcount.NewStage([]string{*input}, *output, p.NumReducers, *combine))
	if err != nil {
		slog.Error("wordcount failed", "error", err)
		return apperrors.ExitCode(err)
	}
	fmt.Printf("%d distinct words from %d splits in %s (%s)\n",
		res.RecordsWritten, res.MapTasks, *output, res.Duration.Round(time.Millisecond))
	return apperrors.ExitOK
}
