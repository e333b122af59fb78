// Package segment stores a finished TF-IDF index in a single immutable
// .tfidx file: a fixed header, per-term JSON posting lists, a JSON term
// dictionary sorted by term and a footer carrying a CRC-32 of everything
// between header and footer.
package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/index"
)

const (
	MagicBytes    uint32 = 0x54464958 // "TFIX"
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 16
	Extension            = ".tfidx"
)

// Header is the fixed-size start of every segment.
type Header struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	CorpusSize int64
	DictOffset int64
	DictSize   int64
	PostOffset int64
	PostSize   int64
}

func (h Header) encode() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.CorpusSize))
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.DictSize))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.PostOffset))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.PostSize))
	return b
}

func decodeHeader(b []byte) Header {
	return Header{
		Magic:      binary.LittleEndian.Uint32(b[0:4]),
		Version:    binary.LittleEndian.Uint32(b[4:8]),
		TermCount:  binary.LittleEndian.Uint32(b[8:12]),
		DocCount:   binary.LittleEndian.Uint32(b[12:16]),
		CorpusSize: int64(binary.LittleEndian.Uint64(b[16:24])),
		DictOffset: int64(binary.LittleEndian.Uint64(b[24:32])),
		DictSize:   int64(binary.LittleEndian.Uint64(b[32:40])),
		PostOffset: int64(binary.LittleEndian.Uint64(b[40:48])),
		PostSize:   int64(binary.LittleEndian.Uint64(b[48:56])),
	}
}

// DictEntry locates one term's postings relative to the postings section.
type DictEntry struct {
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

// Writer creates segments in one directory.
type Writer struct {
	dataDir string
}

func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Write atomically creates name+Extension holding terms and returns its
// path. Terms need not be sorted.
func (w *Writer) Write(name string, terms []index.TermPostings, corpusSize int64) (string, error) {
	if len(terms) == 0 {
		return "", fmt.Errorf("cannot write empty segment")
	}
	sorted := append([]index.TermPostings(nil), terms...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Term < sorted[j].Term })

	if err := os.MkdirAll(w.dataDir, 0o755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	finalPath := filepath.Join(w.dataDir, name+Extension)
	tmpPath := finalPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	defer f.Close()
	defer os.Remove(tmpPath)

	if _, err := f.Write(make([]byte, HeaderSize)); err != nil {
		return "", fmt.Errorf("reserving header: %w", err)
	}
	crc := crc32.NewIEEE()
	body := io.MultiWriter(f, crc)

	postStart := int64(HeaderSize)
	offset := int64(0)
	dict := make([]DictEntry, 0, len(sorted))
	docs := make(map[int64]struct{})
	for _, tp := range sorted {
		data, err := json.Marshal(tp.Postings)
		if err != nil {
			return "", fmt.Errorf("marshaling postings for term %q: %w", tp.Term, err)
		}
		if _, err := body.Write(data); err != nil {
			return "", fmt.Errorf("writing postings for term %q: %w", tp.Term, err)
		}
		dict = append(dict, DictEntry{
			Term:       tp.Term,
			PostOffset: offset,
			PostLen:    len(data),
			DocFreq:    len(tp.Postings),
		})
		offset += int64(len(data))
		for _, p := range tp.Postings {
			docs[p.Doc] = struct{}{}
		}
	}

	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := body.Write(dictData); err != nil {
		return "", fmt.Errorf("writing dictionary: %w", err)
	}

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc.Sum32())
	binary.LittleEndian.PutUint32(footer[4:8], MagicBytes)
	binary.LittleEndian.PutUint64(footer[8:16], uint64(offset+int64(len(dictData))))
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}

	header := Header{
		Magic:      MagicBytes,
		Version:    FormatVersion,
		TermCount:  uint32(len(dict)),
		DocCount:   uint32(len(docs)),
		CorpusSize: corpusSize,
		DictOffset: postStart + offset,
		DictSize:   int64(len(dictData)),
		PostOffset: postStart,
		PostSize:   offset,
	}
	if _, err := f.WriteAt(header.encode(), 0); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	return finalPath, nil
}
