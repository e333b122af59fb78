package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/index"
)

// Reader serves lookups from one segment file. It is safe for concurrent
// use.
type Reader struct {
	file   *os.File
	header Header
	dict   []DictEntry
}

// OpenReader validates the segment at path and loads its dictionary.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := load(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("segment %s: %w", path, err)
	}
	return r, nil
}

func load(f *os.File) (*Reader, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("bad magic bytes %x", header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported format version %d", header.Version)
	}

	bodySize := header.PostSize + header.DictSize
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, int64(HeaderSize)+bodySize); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	if binary.LittleEndian.Uint32(footer[4:8]) != MagicBytes ||
		int64(binary.LittleEndian.Uint64(footer[8:16])) != bodySize {
		return nil, fmt.Errorf("footer does not match header")
	}
	crc := crc32.NewIEEE()
	if _, err := io.Copy(crc, io.NewSectionReader(f, int64(HeaderSize), bodySize)); err != nil {
		return nil, fmt.Errorf("checksumming body: %w", err)
	}
	if want := binary.LittleEndian.Uint32(footer[0:4]); crc.Sum32() != want {
		return nil, fmt.Errorf("checksum mismatch: got %08x, want %08x", crc.Sum32(), want)
	}

	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	return &Reader{file: f, header: header, dict: dict}, nil
}

// Lookup implements index.PostingSource.
func (r *Reader) Lookup(term string) ([]index.Posting, error) {
	i := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if i >= len(r.dict) || r.dict[i].Term != term {
		return nil, nil
	}
	entry := r.dict[i]
	data := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(data, r.header.PostOffset+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	var postings []index.Posting
	if err := json.Unmarshal(data, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings: %w", err)
	}
	return postings, nil
}

// DocFreq returns the number of documents a term was kept for.
func (r *Reader) DocFreq(term string) int {
	i := sort.Search(len(r.dict), func(i int) bool { return r.dict[i].Term >= term })
	if i < len(r.dict) && r.dict[i].Term == term {
		return r.dict[i].DocFreq
	}
	return 0
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

func (r *Reader) CorpusSize() int64 {
	return r.header.CorpusSize
}

func (r *Reader) Close() error {
	return r.file.Close()
}
