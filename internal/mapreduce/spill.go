package mapreduce

import (
	"bufio"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pierrec/lz4/v4"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/shuffle"
)

const (
	spillExt    = ".spill"
	spillLZ4Ext = ".spill.lz4"
)

func spillName(mapTask, partition int, compress bool) string {
	ext := spillExt
	if compress {
		ext = spillLZ4Ext
	}
	return fmt.Sprintf("map-%05d-r-%05d%s", mapTask, partition, ext)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// writeSpill atomically writes msgs as a gob stream, lz4-compressed when
// compress is set, and returns the number of bytes on disk. Gob keeps keys
// and values byte for byte, invalid UTF-8 included. Re-running a task
// simply replaces its previous spill.
func writeSpill(path string, msgs []shuffle.Message, compress bool) (int64, error) {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("creating spill file: %w", err)
	}
	defer f.Close()

	cw := &countingWriter{w: f}
	var zw *lz4.Writer
	var w io.Writer = cw
	if compress {
		zw = lz4.NewWriter(cw)
		w = zw
	}
	bw := bufio.NewWriterSize(w, 64*1024)
	enc := gob.NewEncoder(bw)
	for i := range msgs {
		if err := enc.Encode(&msgs[i]); err != nil {
			return 0, fmt.Errorf("encoding spill record: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("flushing spill file: %w", err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return 0, fmt.Errorf("closing lz4 stream: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("closing spill file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("renaming spill file: %w", err)
	}
	return cw.n, nil
}

// readSpill decodes one spill file, detecting compression from its name.
func readSpill(path string) ([]shuffle.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening spill file: %w", err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReaderSize(f, 64*1024)
	if strings.HasSuffix(path, spillLZ4Ext) {
		r = lz4.NewReader(r)
	}
	dec := gob.NewDecoder(r)
	var msgs []shuffle.Message
	for {
		var msg shuffle.Message
		err := dec.Decode(&msg)
		if errors.Is(err, io.EOF) {
			return msgs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decoding spill %s: %w", filepath.Base(path), err)
		}
		msgs = append(msgs, msg)
	}
}

// spillsFor lists the spill files addressed to partition, in map task order.
func spillsFor(dir string, partition int) ([]string, error) {
	var paths []string
	for _, ext := range []string{spillExt, spillLZ4Ext} {
		matches, err := filepath.Glob(filepath.Join(dir, fmt.Sprintf("map-*-r-%05d%s", partition, ext)))
		if err != nil {
			return nil, fmt.Errorf("listing spills: %w", err)
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)
	return paths, nil
}
