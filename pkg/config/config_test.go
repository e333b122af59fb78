package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Pipeline.NumReducers)
	require.Equal(t, ScoringLinear, cfg.Pipeline.Scoring)
	require.Equal(t, EncodingPerDocTerm, cfg.Pipeline.OutputEncoding)
	require.True(t, cfg.Pipeline.SkipHeader)
	require.Equal(t, 3, cfg.Pipeline.DocFreqFilter.MinDocFreq)
	require.Equal(t, 0.5, cfg.Pipeline.DocFreqFilter.MaxDocFreqRatio)
}

func TestLoadYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	yamlDoc := `
pipeline:
  numReducers: 7
  scoring: damped
  outputEncoding: sparse-row
  docFreqFilter:
    enabled: true
tokenizer:
  stemmer: suffix
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))
	t.Setenv("TF_PIPELINE_HAPAX_FILTER", "true")
	t.Setenv("TF_KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Pipeline.NumReducers)
	require.Equal(t, ScoringDamped, cfg.Pipeline.Scoring)
	require.Equal(t, EncodingSparseRow, cfg.Pipeline.OutputEncoding)
	require.True(t, cfg.Pipeline.DocFreqFilter.Enabled)
	require.Equal(t, 3, cfg.Pipeline.DocFreqFilter.MinDocFreq)
	require.Equal(t, StemmerSuffix, cfg.Tokenizer.Stemmer)
	require.True(t, cfg.Pipeline.HapaxFilter)
	require.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]func(c *Config){
		"zero reducers":    func(c *Config) { c.Pipeline.NumReducers = 0 },
		"bad scoring":      func(c *Config) { c.Pipeline.Scoring = "bm25" },
		"bad encoding":     func(c *Config) { c.Pipeline.OutputEncoding = "csv" },
		"negative retries": func(c *Config) { c.Pipeline.TaskRetries = -1 },
		"bad stemmer":      func(c *Config) { c.Tokenizer.Stemmer = "porter2000" },
		"negative ratio":   func(c *Config) { c.Pipeline.DocFreqFilter.MaxDocFreqRatio = -0.1 },
		"bad compression":  func(c *Config) { c.Kafka.Compression = "brotli" },
		"huge batch":       func(c *Config) { c.Export.BatchSize = MaxExportBatchSize + 1 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.ErrorIs(t, err, apperrors.ErrInvalidConfig)
		})
	}
}

func TestValidateAcceptsLargestExportBatch(t *testing.T) {
	cfg := Default()
	cfg.Export.BatchSize = MaxExportBatchSize
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
