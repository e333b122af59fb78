package export

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/config"
	pkgkafka "github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/redis"
)

// Build connects the sinks enabled in cfg.Export for one job. The segment
// sink, when enabled, is also returned separately so callers can find the
// file it wrote.
func Build(ctx context.Context, cfg *config.Config, jobID, segmentDir string, corpusSize int64) ([]Sink, *SegmentSink, error) {
	var (
		sinks []Sink
		seg   *SegmentSink
	)
	fail := func(err error) ([]Sink, *SegmentSink, error) {
		var errs *multierror.Error
		errs = multierror.Append(errs, err)
		for _, s := range sinks {
			if cerr := s.Close(); cerr != nil {
				errs = multierror.Append(errs, cerr)
			}
		}
		return nil, nil, errs.ErrorOrNil()
	}

	if cfg.Export.Segment {
		seg = NewSegmentSink(segmentDir, jobID, corpusSize)
		sinks = append(sinks, seg)
	}
	if cfg.Export.Kafka {
		producer := pkgkafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexEntries)
		sinks = append(sinks, NewKafkaSink(producer, jobID))
	}
	if cfg.Export.Redis {
		client, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			return fail(fmt.Errorf("redis sink: %w", err))
		}
		sinks = append(sinks, NewRedisSink(client, cfg.Redis.KeyPrefix, cfg.Redis.TTL))
	}
	if cfg.Export.Postgres {
		client, err := postgres.New(cfg.Postgres)
		if err != nil {
			return fail(fmt.Errorf("postgres sink: %w", err))
		}
		if err := client.EnsureSchema(ctx); err != nil {
			client.Close()
			return fail(fmt.Errorf("postgres sink: %w", err))
		}
		sinks = append(sinks, NewPostgresSink(client, jobID))
	}
	return sinks, seg, nil
}
