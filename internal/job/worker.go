package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/errors"
	pkgkafka "github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/kafka"
)

// Request asks a worker to index the documents under Input.
type Request struct {
	ID     string `json:"id"`
	Input  string `json:"input"`
	Output string `json:"output"`
}

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Completed is published once a request has been handled.
type Completed struct {
	RequestID  string `json:"request_id"`
	JobID      string `json:"job_id,omitempty"`
	Status     string `json:"status"`
	CorpusSize int64  `json:"corpus_size"`
	Entries    int    `json:"entries"`
	OutputDir  string `json:"output_dir,omitempty"`
	Segment    string `json:"segment,omitempty"`
	Error      string `json:"error,omitempty"`
	ExitCode   int    `json:"exit_code"`
	DurationMS int64  `json:"duration_ms"`
}

type runner interface {
	Run(ctx context.Context, input, output string) (*Outcome, error)
}

type publisher interface {
	Publish(ctx context.Context, event pkgkafka.Event) error
}

// Handler turns job requests into runs. Failed jobs are reported on the
// completion topic rather than returned, so one bad corpus does not stop
// the consumer; only a failed completion publish is returned.
func Handler(r runner, completions publisher) pkgkafka.MessageHandler {
	logger := slog.Default().With("component", "job-worker")
	return func(ctx context.Context, key []byte, value []byte) error {
		req, err := pkgkafka.DecodeJSON[Request](value)
		if err != nil {
			logger.Error("dropping malformed job request", "key", string(key), "error", err)
			return nil
		}
		if req.ID == "" {
			req.ID = string(key)
		}
		logger.Info("job request received", "request_id", req.ID, "input", req.Input, "output", req.Output)

		start := time.Now()
		outcome, runErr := r.Run(ctx, req.Input, req.Output)
		done := Completed{
			RequestID:  req.ID,
			Status:     StatusSucceeded,
			ExitCode:   apperrors.ExitCode(runErr),
			DurationMS: time.Since(start).Milliseconds(),
		}
		if outcome != nil && outcome.Result != nil {
			done.JobID = outcome.Result.JobID
			done.CorpusSize = outcome.Result.CorpusSize
			done.OutputDir = outcome.Result.OutputDir
			done.Entries = outcome.Entries
			done.Segment = outcome.Segment
		}
		if runErr != nil {
			done.Status = StatusFailed
			done.Error = runErr.Error()
			logger.Error("job failed", "request_id", req.ID, "error", runErr)
		}

		if err := completions.Publish(ctx, pkgkafka.Event{Key: req.ID, Value: done}); err != nil {
			return fmt.Errorf("publishing completion for %s: %w", req.ID, err)
		}
		return nil
	}
}
