package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/config"
)

func benchCorpus(b *testing.B, docs int) string {
	b.Helper()
	words := strings.Fields("map reduce shuffle partition term document corpus score spill combine sort group")
	var sb strings.Builder
	sb.WriteString("header\n")
	for d := 0; d < docs; d++ {
		for w := 0; w < 12; w++ {
			if w > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(words[(d*w+d+w)%len(words)])
		}
		sb.WriteByte('\n')
	}
	dir := b.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "corpus.txt"), []byte(sb.String()), 0o644); err != nil {
		b.Fatal(err)
	}
	return dir
}

func BenchmarkPipelineRun(b *testing.B) {
	for _, docs := range []int{100, 2000} {
		for _, reducers := range []int{1, 4} {
			input := benchCorpus(b, docs)
			b.Run(fmt.Sprintf("docs_%d_reducers_%d", docs, reducers), func(b *testing.B) {
				cfg := config.Default().Pipeline
				cfg.NumReducers = reducers
				cfg.WorkDir = b.TempDir()
				p := New(cfg, config.Default().Tokenizer, tokenizer.Whitespace{}, nil)
				b.ReportAllocs()
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					if _, err := p.Run(context.Background(), input, b.TempDir()); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}
