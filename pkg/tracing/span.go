// Package tracing records the job → stage → task span tree of a pipeline
// run and logs it through slog when the job finishes.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type spanKey struct{}

// Span is one timed unit of pipeline work. Spans are safe for concurrent
// use; map and reduce tasks end their spans from separate goroutines.
type Span struct {
	Name  string
	JobID string

	parent *Span
	start  time.Time

	mu       sync.Mutex
	elapsed  time.Duration
	err      error
	attrs    []slog.Attr
	children []*Span
}

// StartJob opens the root span of a job.
func StartJob(ctx context.Context, name, jobID string) (context.Context, *Span) {
	s := &Span{Name: name, JobID: jobID, start: time.Now()}
	return context.WithValue(ctx, spanKey{}, s), s
}

// Start opens a child of the span in ctx. Without one the span is detached
// and still usable.
func Start(ctx context.Context, name string) (context.Context, *Span) {
	s := &Span{Name: name, start: time.Now()}
	if p := FromContext(ctx); p != nil {
		s.parent, s.JobID = p, p.JobID
		p.mu.Lock()
		p.children = append(p.children, s)
		p.mu.Unlock()
	}
	return context.WithValue(ctx, spanKey{}, s), s
}

func FromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanKey{}).(*Span)
	return s
}

func (s *Span) End(err error) {
	s.mu.Lock()
	s.elapsed, s.err = time.Since(s.start), err
	s.mu.Unlock()
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, slog.Any(key, value))
	s.mu.Unlock()
}

// Children returns a snapshot of the spans started under s.
func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

// Path is the slash-joined chain of names from the root to s.
func (s *Span) Path() string {
	if s.parent == nil {
		return s.Name
	}
	return s.parent.Path() + "/" + s.Name
}

// Log writes the tree depth first. The job and its stages log at info,
// deeper task spans at debug.
func (s *Span) Log(logger *slog.Logger) {
	s.log(context.Background(), logger, 0)
}

func (s *Span) log(ctx context.Context, logger *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := append([]slog.Attr{
		slog.String("job_id", s.JobID),
		slog.String("span", s.Name),
		slog.String("path", s.Path()),
		slog.Int64("duration_ms", s.elapsed.Milliseconds()),
	}, s.attrs...)
	if s.err != nil {
		attrs = append(attrs, slog.String("error", s.err.Error()))
	}
	s.mu.Unlock()

	level := slog.LevelInfo
	if depth > 1 {
		level = slog.LevelDebug
	}
	logger.LogAttrs(ctx, level, "span", attrs...)
	for _, c := range s.Children() {
		c.log(ctx, logger, depth+1)
	}
}
