package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/index/segment"
	pkgkafka "github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/resilience"
)

var sampleEntries = []index.Entry{
	{Doc: 0, Term: "cat", Score: 0.5},
	{Doc: 3, Term: "cat", Score: 0.5},
	{Doc: 1, Term: "bird", Score: 0.75},
	{Doc: 3, Term: "bird", Score: 0.75},
	{Doc: 2, Term: "dog", Score: 0.25},
}

type recordingSink struct {
	name     string
	mu       sync.Mutex
	batches  [][]index.Entry
	failures int
	closed   bool
	closeErr error
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Write(_ context.Context, batch []index.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("sink unavailable")
	}
	s.batches = append(s.batches, append([]index.Entry(nil), batch...))
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return s.closeErr
}

func fastOptions(m *metrics.Metrics) Options {
	return Options{
		BatchSize: 2,
		Retry:     resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Metrics:   m,
	}
}

func TestExporterBatches(t *testing.T) {
	m := metrics.New()
	sink := &recordingSink{name: "memory"}
	exp := NewExporter([]Sink{sink}, fastOptions(m))

	require.NoError(t, exp.Export(context.Background(), sampleEntries))
	require.Len(t, sink.batches, 3)
	assert.Len(t, sink.batches[2], 1)
	assert.Equal(t, float64(len(sampleEntries)), testutil.ToFloat64(m.ExportedEntries.WithLabelValues("memory")))

	require.NoError(t, exp.Close())
	assert.True(t, sink.closed)
}

func TestExporterRetriesTransientFailure(t *testing.T) {
	sink := &recordingSink{name: "flaky", failures: 2}
	exp := NewExporter([]Sink{sink}, fastOptions(nil))

	require.NoError(t, exp.Export(context.Background(), sampleEntries))
	var total int
	for _, b := range sink.batches {
		total += len(b)
	}
	assert.Equal(t, len(sampleEntries), total)
}

func TestExporterIsolatesFailingSink(t *testing.T) {
	broken := &recordingSink{name: "broken", failures: 1000}
	healthy := &recordingSink{name: "healthy"}
	opts := fastOptions(nil)
	opts.CircuitBreaker = resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour}
	exp := NewExporter([]Sink{broken, healthy}, opts)

	err := exp.Export(context.Background(), sampleEntries)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink broken")
	assert.Len(t, healthy.batches, 3)

	err = exp.Export(context.Background(), sampleEntries)
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestExporterCloseAggregatesErrors(t *testing.T) {
	a := &recordingSink{name: "a", closeErr: errors.New("a failed")}
	b := &recordingSink{name: "b", closeErr: errors.New("b failed")}
	err := NewExporter([]Sink{a, b}, fastOptions(nil)).Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closing a")
	assert.Contains(t, err.Error(), "closing b")
	assert.True(t, a.closed && b.closed)
}

func TestSegmentSinkFlushWritesSegment(t *testing.T) {
	dir := t.TempDir()
	sink := NewSegmentSink(dir, "job-7", 4)
	exp := NewExporter([]Sink{sink}, fastOptions(nil))
	require.NoError(t, exp.Export(context.Background(), sampleEntries))
	require.NotEmpty(t, sink.Path())

	r, err := segment.OpenReader(sink.Path())
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 3, r.Terms())
	assert.EqualValues(t, 4, r.CorpusSize())
	postings, err := r.Lookup("cat")
	require.NoError(t, err)
	assert.Equal(t, []index.Posting{{Doc: 0, Score: 0.5}, {Doc: 3, Score: 0.5}}, postings)
}

func TestSegmentSinkSkipsEmptyIndex(t *testing.T) {
	sink := NewSegmentSink(t.TempDir(), "empty", 0)
	require.NoError(t, sink.Flush(context.Background()))
	assert.Empty(t, sink.Path())
}

type fakePublisher struct {
	events []pkgkafka.Event
}

func (p *fakePublisher) PublishBatch(_ context.Context, events []pkgkafka.Event) error {
	p.events = append(p.events, events...)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func TestKafkaSinkKeysByTerm(t *testing.T) {
	pub := &fakePublisher{}
	require.NoError(t, NewKafkaSink(pub, "job-1").Write(context.Background(), sampleEntries[:2]))
	require.Len(t, pub.events, 2)
	assert.Equal(t, pkgkafka.Event{
		Key:   "cat",
		Value: EntryEvent{JobID: "job-1", Term: "cat", Doc: 3, Score: 0.5},
	}, pub.events[1])
}

type fakeHashWriter struct {
	hashes map[string]map[string]any
	ttl    time.Duration
}

func (w *fakeHashWriter) HSetMany(_ context.Context, hashes map[string]map[string]any, ttl time.Duration) error {
	w.hashes = hashes
	w.ttl = ttl
	return nil
}

func (w *fakeHashWriter) Close() error { return nil }

func TestRedisSinkGroupsByTerm(t *testing.T) {
	w := &fakeHashWriter{}
	sink := NewRedisSink(w, "tfidf:", time.Hour)
	require.NoError(t, sink.Write(context.Background(), sampleEntries))

	assert.Equal(t, time.Hour, w.ttl)
	assert.Equal(t, map[string]map[string]any{
		"tfidf:cat":  {"0": "0.5", "3": "0.5"},
		"tfidf:bird": {"1": "0.75", "3": "0.75"},
		"tfidf:dog":  {"2": "0.25"},
	}, w.hashes)
}

type fakeExecer struct {
	queries []string
	args    [][]any
}

func (e *fakeExecer) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	e.queries = append(e.queries, query)
	e.args = append(e.args, args)
	return nil, nil
}

const upsertSuffix = " ON CONFLICT (term, doc_id) DO UPDATE SET score = EXCLUDED.score, job_id = EXCLUDED.job_id, exported_at = now()"

func TestUpsertScoresBuildsStatement(t *testing.T) {
	db := &fakeExecer{}
	require.NoError(t, upsertScores(context.Background(), db, "job-1", sampleEntries[:2], 100))

	require.Len(t, db.queries, 1)
	assert.Equal(t,
		"INSERT INTO tfidf_scores (term, doc_id, score, job_id) VALUES ($1, $2, $3, $4), ($5, $6, $7, $8)"+upsertSuffix,
		db.queries[0])
	assert.Equal(t, []any{"cat", int64(0), 0.5, "job-1", "cat", int64(3), 0.5, "job-1"}, db.args[0])
}

func TestUpsertScoresSplitsLargeBatches(t *testing.T) {
	db := &fakeExecer{}
	require.NoError(t, upsertScores(context.Background(), db, "job-1", sampleEntries, 2))

	require.Len(t, db.queries, 3)
	for i, want := range []int{2, 2, 1} {
		assert.Len(t, db.args[i], want*4)
		assert.NotContains(t, db.queries[i], fmt.Sprintf("$%d", want*4+1))
	}
	assert.Equal(t, "dog", db.args[2][0])
}
