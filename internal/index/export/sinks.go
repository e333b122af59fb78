package export

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/idf"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/index/segment"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/config"
	pkgkafka "github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/kafka"
)

// EntryEvent is the Kafka payload for one index entry.
type EntryEvent struct {
	JobID string  `json:"job_id"`
	Term  string  `json:"term"`
	Doc   int64   `json:"doc"`
	Score float64 `json:"score"`
}

type batchPublisher interface {
	PublishBatch(ctx context.Context, events []pkgkafka.Event) error
	Close() error
}

// KafkaSink publishes every entry as one event keyed by term, so all
// postings of a term land on the same topic partition.
type KafkaSink struct {
	producer batchPublisher
	jobID    string
}

func NewKafkaSink(producer batchPublisher, jobID string) *KafkaSink {
	return &KafkaSink{producer: producer, jobID: jobID}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(ctx context.Context, batch []index.Entry) error {
	events := make([]pkgkafka.Event, 0, len(batch))
	for _, e := range batch {
		events = append(events, pkgkafka.Event{
			Key:   e.Term,
			Value: EntryEvent{JobID: s.jobID, Term: e.Term, Doc: e.Doc, Score: e.Score},
		})
	}
	return s.producer.PublishBatch(ctx, events)
}

func (s *KafkaSink) Close() error { return s.producer.Close() }

type hashWriter interface {
	HSetMany(ctx context.Context, hashes map[string]map[string]any, ttl time.Duration) error
	Close() error
}

// RedisSink stores one hash per term, mapping document id to score.
type RedisSink struct {
	client    hashWriter
	keyPrefix string
	ttl       time.Duration
}

func NewRedisSink(client hashWriter, keyPrefix string, ttl time.Duration) *RedisSink {
	return &RedisSink{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (s *RedisSink) Name() string { return "redis" }

// Key returns the hash key holding the postings of term.
func (s *RedisSink) Key(term string) string { return s.keyPrefix + term }

func (s *RedisSink) Write(ctx context.Context, batch []index.Entry) error {
	hashes := make(map[string]map[string]any)
	for _, e := range batch {
		key := s.Key(e.Term)
		fields, ok := hashes[key]
		if !ok {
			fields = make(map[string]any)
			hashes[key] = fields
		}
		fields[strconv.FormatInt(e.Doc, 10)] = idf.FormatScore(e.Score)
	}
	return s.client.HSetMany(ctx, hashes, s.ttl)
}

func (s *RedisSink) Close() error { return s.client.Close() }

type txRunner interface {
	InTx(ctx context.Context, fn func(tx *sql.Tx) error) error
	Close() error
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresSink upserts entries into tfidf_scores, one transaction per
// batch. Batches larger than config.MaxExportBatchSize are split across
// statements.
type PostgresSink struct {
	db    txRunner
	jobID string
}

func NewPostgresSink(db txRunner, jobID string) *PostgresSink {
	return &PostgresSink{db: db, jobID: jobID}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Write(ctx context.Context, batch []index.Entry) error {
	if len(batch) == 0 {
		return nil
	}
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		return upsertScores(ctx, tx, s.jobID, batch, config.MaxExportBatchSize)
	})
}

func (s *PostgresSink) Close() error { return s.db.Close() }

// upsertScores issues one statement per maxRows entries.
func upsertScores(ctx context.Context, db execer, jobID string, batch []index.Entry, maxRows int) error {
	for start := 0; start < len(batch); start += maxRows {
		if err := upsertStatement(ctx, db, jobID, batch[start:min(start+maxRows, len(batch))]); err != nil {
			return fmt.Errorf("rows %d+: %w", start, err)
		}
	}
	return nil
}

func upsertStatement(ctx context.Context, db execer, jobID string, batch []index.Entry) error {
	var sb strings.Builder
	sb.WriteString("INSERT INTO tfidf_scores (term, doc_id, score, job_id) VALUES ")
	args := make([]any, 0, len(batch)*4)
	for i, e := range batch {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 4
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4)
		args = append(args, e.Term, e.Doc, e.Score, jobID)
	}
	sb.WriteString(" ON CONFLICT (term, doc_id) DO UPDATE SET score = EXCLUDED.score, job_id = EXCLUDED.job_id, exported_at = now()")
	if _, err := db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("upserting %d scores: %w", len(batch), err)
	}
	return nil
}

// SegmentSink buffers the whole index and writes it as one segment file on
// Flush.
type SegmentSink struct {
	writer     *segment.Writer
	name       string
	corpusSize int64
	entries    []index.Entry
	path       string
}

func NewSegmentSink(dir, name string, corpusSize int64) *SegmentSink {
	return &SegmentSink{writer: segment.NewWriter(dir), name: name, corpusSize: corpusSize}
}

func (s *SegmentSink) Name() string { return "segment" }

func (s *SegmentSink) Write(_ context.Context, batch []index.Entry) error {
	s.entries = append(s.entries, batch...)
	return nil
}

func (s *SegmentSink) Flush(context.Context) error {
	if len(s.entries) == 0 {
		slog.Warn("index is empty, no segment written", "segment", s.name)
		return nil
	}
	path, err := s.writer.Write(s.name, index.GroupByTerm(s.entries), s.corpusSize)
	if err != nil {
		return err
	}
	s.path = path
	s.entries = nil
	return nil
}

// Path returns the written segment file, or "" before a successful Flush.
func (s *SegmentSink) Path() string { return s.path }

func (s *SegmentSink) Close() error { return nil }
