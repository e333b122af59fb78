// Package config loads and validates pipeline configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Pipeline, Tokenizer, Kafka, Redis, Postgres, Export, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/errors"
)

// Scoring modes.
const (
	ScoringLinear = "linear"
	ScoringDamped = "damped"
)

// Output encodings of the final index.
const (
	EncodingPerDocTerm = "per-doc-term"
	EncodingSparseRow  = "sparse-row"
)

// Stemmers understood by the default analyzer.
const (
	StemmerSnowball = "snowball"
	StemmerSuffix   = "suffix"
	StemmerNone     = "none"
)

// Config is the top-level application configuration.
type Config struct {
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Tokenizer TokenizerConfig `yaml:"tokenizer"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Export    ExportConfig    `yaml:"export"`
	Worker    WorkerConfig    `yaml:"worker"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// PipelineConfig controls the three stages and the local execution engine.
type PipelineConfig struct {
	NumReducers       int                 `yaml:"numReducers"`
	MapParallelism    int                 `yaml:"mapParallelism"`
	ReduceParallelism int                 `yaml:"reduceParallelism"`
	SkipHeader        bool                `yaml:"skipHeader"`
	Combiner          bool                `yaml:"combiner"`
	HapaxFilter       bool                `yaml:"hapaxFilter"`
	Scoring           string              `yaml:"scoring"`
	DocFreqFilter     DocFreqFilterConfig `yaml:"docFreqFilter"`
	OutputEncoding    string              `yaml:"outputEncoding"`
	WorkDir           string              `yaml:"workDir"`
	SpillCompression  bool                `yaml:"spillCompression"`
	TaskRetries       int                 `yaml:"taskRetries"`
	TaskTimeout       time.Duration       `yaml:"taskTimeout"`
}

// DocFreqFilterConfig drops terms that are too rare or too ubiquitous to be
// discriminative.
type DocFreqFilterConfig struct {
	Enabled         bool    `yaml:"enabled"`
	MinDocFreq      int     `yaml:"minDocFreq"`
	MaxDocFreqRatio float64 `yaml:"maxDocFreqRatio"`
}

// TokenizerConfig controls the default text analyzer.
type TokenizerConfig struct {
	Stemmer        string   `yaml:"stemmer"`
	MinTokenLength int      `yaml:"minTokenLength"`
	Stopwords      []string `yaml:"stopwords"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
	// Compression is one of none, gzip, snappy, lz4 or zstd.
	Compression  string        `yaml:"compression"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	JobRequests  string `yaml:"jobRequests"`
	JobComplete  string `yaml:"jobComplete"`
	IndexEntries string `yaml:"indexEntries"`
}

// RedisConfig holds Redis connection parameters for the index sink.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	PoolSize  int           `yaml:"poolSize"`
	KeyPrefix string        `yaml:"keyPrefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// ExportConfig selects where the final index is published once the
// pipeline has succeeded.
type ExportConfig struct {
	Segment   bool `yaml:"segment"`
	Kafka     bool `yaml:"kafka"`
	Redis     bool `yaml:"redis"`
	Postgres  bool `yaml:"postgres"`
	BatchSize int  `yaml:"batchSize"`
}

// MaxExportBatchSize is the largest batch one Postgres upsert can carry:
// four bind parameters per row against the protocol's 65535.
const MaxExportBatchSize = 65535 / 4

// WorkerConfig controls the long-running job worker.
type WorkerConfig struct {
	HealthPort int `yaml:"healthPort"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config suitable for a local single-machine run.
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			NumReducers:       4,
			MapParallelism:    4,
			ReduceParallelism: 4,
			SkipHeader:        true,
			Combiner:          true,
			HapaxFilter:       false,
			Scoring:           ScoringLinear,
			DocFreqFilter: DocFreqFilterConfig{
				Enabled:         false,
				MinDocFreq:      3,
				MaxDocFreqRatio: 0.5,
			},
			OutputEncoding:   EncodingPerDocTerm,
			SpillCompression: true,
			TaskRetries:      3,
			TaskTimeout:      10 * time.Minute,
		},
		Tokenizer: TokenizerConfig{
			Stemmer:        StemmerSnowball,
			MinTokenLength: 2,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "tfidf",
			User:            "tfidf",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "tfidf-workers",
			Topics: KafkaTopics{
				JobRequests:  "tfidf-jobs",
				JobComplete:  "tfidf-complete",
				IndexEntries: "tfidf-index",
			},
			Compression:  "lz4",
			BatchTimeout: 10 * time.Millisecond,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "tfidf:",
		},
		Export: ExportConfig{
			Segment:   true,
			BatchSize: 500,
		},
		Worker: WorkerConfig{
			HealthPort: 8086,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	p := c.Pipeline
	if p.NumReducers < 1 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "numReducers must be >= 1, got %d", p.NumReducers)
	}
	if p.MapParallelism < 1 || p.ReduceParallelism < 1 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "parallelism must be >= 1 (map=%d, reduce=%d)",
			p.MapParallelism, p.ReduceParallelism)
	}
	if p.TaskRetries < 0 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "taskRetries must be >= 0, got %d", p.TaskRetries)
	}
	switch p.Scoring {
	case ScoringLinear, ScoringDamped:
	default:
		return apperrors.Newf(apperrors.ErrInvalidConfig, "unknown scoring mode %q", p.Scoring)
	}
	switch p.OutputEncoding {
	case EncodingPerDocTerm, EncodingSparseRow:
	default:
		return apperrors.Newf(apperrors.ErrInvalidConfig, "unknown output encoding %q", p.OutputEncoding)
	}
	if p.DocFreqFilter.MinDocFreq < 0 || p.DocFreqFilter.MaxDocFreqRatio < 0 {
		return apperrors.New(apperrors.ErrInvalidConfig, "docFreqFilter thresholds must be non-negative")
	}
	switch c.Tokenizer.Stemmer {
	case StemmerSnowball, StemmerSuffix, StemmerNone:
	default:
		return apperrors.Newf(apperrors.ErrInvalidConfig, "unknown stemmer %q", c.Tokenizer.Stemmer)
	}
	if c.Tokenizer.MinTokenLength < 1 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "minTokenLength must be >= 1, got %d", c.Tokenizer.MinTokenLength)
	}
	if c.Export.BatchSize < 0 || c.Export.BatchSize > MaxExportBatchSize {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "export batchSize must be in [0, %d], got %d",
			MaxExportBatchSize, c.Export.BatchSize)
	}
	switch strings.ToLower(c.Kafka.Compression) {
	case "", "none", "gzip", "snappy", "lz4", "zstd":
	default:
		return apperrors.Newf(apperrors.ErrInvalidConfig, "unknown kafka compression %q", c.Kafka.Compression)
	}
	return nil
}

// applyEnvOverrides reads TF_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TF_PIPELINE_REDUCERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.NumReducers = n
		}
	}
	if v := os.Getenv("TF_PIPELINE_MAP_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.MapParallelism = n
		}
	}
	if v := os.Getenv("TF_PIPELINE_REDUCE_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.ReduceParallelism = n
		}
	}
	if v := os.Getenv("TF_PIPELINE_SCORING"); v != "" {
		cfg.Pipeline.Scoring = v
	}
	if v := os.Getenv("TF_PIPELINE_OUTPUT_ENCODING"); v != "" {
		cfg.Pipeline.OutputEncoding = v
	}
	if v := os.Getenv("TF_PIPELINE_HAPAX_FILTER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Pipeline.HapaxFilter = b
		}
	}
	if v := os.Getenv("TF_PIPELINE_WORK_DIR"); v != "" {
		cfg.Pipeline.WorkDir = v
	}
	if v := os.Getenv("TF_TOKENIZER_STEMMER"); v != "" {
		cfg.Tokenizer.Stemmer = v
	}
	if v := os.Getenv("TF_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("TF_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("TF_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("TF_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("TF_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("TF_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("TF_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TF_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TF_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TF_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("TF_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
