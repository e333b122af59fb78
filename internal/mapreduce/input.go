package mapreduce

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/shuffle"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/errors"
)

// SuccessMarker is written into a stage output directory once it has been
// committed.
const SuccessMarker = "_SUCCESS"

// ListInputs expands input paths into the sorted list of files that become
// map splits. Directories contribute their regular files, skipping hidden
// and underscore-prefixed names such as the success marker.
func ListInputs(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, "input %s: %v", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("reading input directory %s: %w", p, err)
		}
		var names []string
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
				continue
			}
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			files = append(files, filepath.Join(p, name))
		}
	}
	return files, nil
}

// TextKey is the record key TextInput assigns to the line starting at
// offset in split.
func TextKey(split int, offset int64) string {
	return fmt.Sprintf("%05d:%012d", split, offset)
}

// readSplit feeds every record of one input file to fn.
func readSplit(ctx context.Context, path string, split int, format InputFormat, fn func(shuffle.Message) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening split %s: %w", path, err)
	}
	defer f.Close()

	if format == KeyValueInput {
		s := record.NewScanner(f)
		n := 0
		for s.Next() {
			if n++; n%4096 == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
			if err := fn(s.Message()); err != nil {
				return err
			}
		}
		if err := s.Err(); err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		return nil
	}

	r := bufio.NewReaderSize(f, 64*1024)
	var offset int64
	for n := 1; ; n++ {
		if n%4096 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			text := strings.TrimRight(line, "\r\n")
			if len(text) > record.MaxLineBytes {
				return apperrors.Newf(apperrors.ErrParse, "%s: line at offset %d is %d bytes (limit %d)",
					filepath.Base(path), offset, len(text), record.MaxLineBytes)
			}
			if err := fn(shuffle.Data(TextKey(split, offset), text)); err != nil {
				return err
			}
			offset += int64(len(line))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
	}
}
