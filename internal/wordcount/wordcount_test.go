package wordcount

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/mapreduce"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/shuffle"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/errors"
)

func TestLengthPartition(t *testing.T) {
	tests := []struct {
		length, partitions, want int
	}{
		{5, 1, 0},
		{1, 3, 0},
		{15, 3, 0},
		{16, 3, 1},
		{30, 3, 1},
		{31, 3, 2},
		{200, 3, 2},
		{1, 2, 0},
		{30, 2, 0},
		{31, 2, 1},
		{3, 40, 2},
		{45, 40, 39},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("len=%d/p=%d", tt.length, tt.partitions), func(t *testing.T) {
			assert.Equal(t, tt.want, LengthPartition(strings.Repeat("x", tt.length), tt.partitions))
		})
	}
}

func TestLengthPartitionCountsRunes(t *testing.T) {
	word := strings.Repeat("ž", 15)
	require.Len(t, word, 30)
	assert.Equal(t, 0, LengthPartition(word, 3))
}

func TestLengthRouterKeepsControlTargets(t *testing.T) {
	var r LengthRouter
	p, err := r.Route(shuffle.Control(2, "marker", ""), 3)
	require.NoError(t, err)
	assert.Equal(t, 2, p)

	_, err = r.Route(shuffle.Control(7, "marker", ""), 3)
	require.ErrorIs(t, err, apperrors.ErrRouting)

	_, err = r.Route(shuffle.Data("word", "1"), 0)
	require.ErrorIs(t, err, apperrors.ErrRouting)
}

func TestSumRejectsBadCount(t *testing.T) {
	err := Sum(context.Background(), mapreduce.Group{Key: "w", Values: []string{"1", "x"}},
		mapreduce.EmitFunc(func(shuffle.Message) error { return nil }))
	require.ErrorIs(t, err, apperrors.ErrParse)
}

func runWordCount(t *testing.T, content string, reducers int, combine bool) [][]shuffle.Message {
	t.Helper()
	in := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(in, "text.txt"), []byte(content), 0o644))
	out := filepath.Join(t.TempDir(), "counts")

	eng := mapreduce.New(mapreduce.Options{WorkDir: t.TempDir(), MapParallelism: 2, ReduceParallelism: 2, RetryDelay: time.Millisecond})
	_, err := eng.RunStage(context.Background(), NewStage([]string{in}, out, reducers, combine))
	require.NoError(t, err)

	parts, err := filepath.Glob(filepath.Join(out, "part-r-*"))
	require.NoError(t, err)
	sort.Strings(parts)
	require.Len(t, parts, reducers)
	result := make([][]shuffle.Message, len(parts))
	for i, p := range parts {
		f, err := os.Open(p)
		require.NoError(t, err)
		s := record.NewScanner(f)
		for s.Next() {
			result[i] = append(result[i], s.Message())
		}
		require.NoError(t, s.Err())
		f.Close()
	}
	return result
}

func TestStageCountsByLengthBandInReverseOrder(t *testing.T) {
	long := strings.Repeat("l", 20)
	huge := strings.Repeat("h", 40)
	content := "the cat  and the dog\n" + long + " the\tcat " + huge + "\n"

	for _, combine := range []bool{false, true} {
		t.Run(fmt.Sprintf("combine=%v", combine), func(t *testing.T) {
			parts := runWordCount(t, content, 3, combine)
			assert.Equal(t, []shuffle.Message{
				shuffle.Data("the", "3"),
				shuffle.Data("dog", "1"),
				shuffle.Data("cat", "2"),
				shuffle.Data("and", "1"),
			}, parts[0])
			assert.Equal(t, []shuffle.Message{shuffle.Data(long, "1")}, parts[1])
			assert.Equal(t, []shuffle.Message{shuffle.Data(huge, "1")}, parts[2])
		})
	}
}

func TestStageSingleReducer(t *testing.T) {
	parts := runWordCount(t, "b a c a\n", 1, true)
	require.Len(t, parts, 1)
	assert.Equal(t, []shuffle.Message{
		shuffle.Data("c", "1"),
		shuffle.Data("b", "1"),
		shuffle.Data("a", "2"),
	}, parts[0])
}
