package termdoc

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/errors"
)

func TestParseKey(t *testing.T) {
	k, err := Parse("cat:12")
	require.NoError(t, err)
	require.Equal(t, NewKey("cat", 12), k)
	require.Equal(t, "cat:12", k.String())

	k, err = Parse("c++:std:7")
	require.NoError(t, err)
	require.Equal(t, "c++:std", k.Term)
	require.Equal(t, int64(7), k.Doc)
}

func TestParseKeyMalformed(t *testing.T) {
	for _, s := range []string{"", "cat", "cat:", ":3", "cat:x", "cat:-1", "cat 3"} {
		_, err := Parse(s)
		require.ErrorIs(t, err, apperrors.ErrParse, "input %q", s)
	}
}

func TestCompareNumericDoc(t *testing.T) {
	keys := []string{"dog:2", "cat:10", "cat:9", "bird:100", "cat:0"}
	sort.Slice(keys, func(i, j int) bool { return CompareText(keys[i], keys[j]) < 0 })
	require.Equal(t, []string{"bird:100", "cat:0", "cat:9", "cat:10", "dog:2"}, keys)
}

func TestCompareTextInvalidLast(t *testing.T) {
	require.Equal(t, 1, CompareText("garbage", "cat:1"))
	require.Equal(t, -1, CompareText("cat:1", "garbage"))
	require.Equal(t, 0, CompareText("cat:01", "cat:1"))
}

func TestPosting(t *testing.T) {
	f := NewFreq(NewKey("cat", 3), 2)
	require.Equal(t, "3:2", f.Posting())

	back, err := ParsePosting("cat", f.Posting())
	require.NoError(t, err)
	require.Equal(t, f, back)

	for _, s := range []string{"3", "x:2", "3:y", "3:-2"} {
		_, err := ParsePosting("cat", s)
		require.ErrorIs(t, err, apperrors.ErrParse, "input %q", s)
	}
}
