// Package record encodes the newline-delimited key<TAB>value text that
// stages materialize between each other. Control records carry a reserved
// leading NUL byte so they can never collide with data keys.
package record

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/shuffle"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/errors"
)

const (
	Separator     = '\t'
	controlMarker = '\x00'
)

// MaxLineBytes bounds one input document. Scanners allow keySlack more so
// a numbered record of a maximal document still fits.
const (
	MaxLineBytes = 16 << 20
	keySlack     = 4 << 10
)

// Format renders a message as one line without the trailing newline. Data
// keys must not contain the separator or a newline.
func Format(msg shuffle.Message) (string, error) {
	if strings.ContainsAny(msg.Key, "\t\n") || strings.ContainsRune(msg.Value, '\n') {
		return "", apperrors.Newf(apperrors.ErrInvalidInput, "record %q cannot be encoded on one line", msg.Key)
	}
	if msg.Kind == shuffle.KindControl {
		return string(controlMarker) + msg.Key + string(Separator) + msg.Value, nil
	}
	if strings.HasPrefix(msg.Key, string(controlMarker)) {
		return "", apperrors.Newf(apperrors.ErrInvalidInput, "data key %q starts with the control marker", msg.Key)
	}
	return msg.Key + string(Separator) + msg.Value, nil
}

// Parse decodes one line. Control records come back with Target set to
// shuffle.Broadcast; the consuming stage decides where to send them.
func Parse(line string) (shuffle.Message, error) {
	sep := strings.IndexByte(line, Separator)
	if sep < 0 {
		return shuffle.Message{}, apperrors.Newf(apperrors.ErrParse, "missing separator in record %q", truncate(line))
	}
	key, value := line[:sep], line[sep+1:]
	if strings.HasPrefix(key, string(controlMarker)) {
		tag := key[1:]
		if tag == "" {
			return shuffle.Message{}, apperrors.New(apperrors.ErrParse, "control record without tag")
		}
		return shuffle.Control(shuffle.Broadcast, tag, value), nil
	}
	return shuffle.Data(key, value), nil
}

// Writer writes records to an underlying stream.
type Writer struct {
	w     *bufio.Writer
	count int
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, 64*1024)}
}

func (w *Writer) Write(msg shuffle.Message) error {
	line, err := Format(msg)
	if err != nil {
		return err
	}
	if _, err := w.w.WriteString(line); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of records written so far.
func (w *Writer) Count() int {
	return w.count
}

func (w *Writer) Flush() error {
	return w.w.Flush()
}

// Scanner reads records line by line.
type Scanner struct {
	s    *bufio.Scanner
	msg  shuffle.Message
	err  error
	line int
}

func NewScanner(r io.Reader) *Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), MaxLineBytes+keySlack)
	return &Scanner{s: s}
}

// Next advances to the next record. It returns false at EOF or on error.
func (s *Scanner) Next() bool {
	for s.s.Scan() {
		s.line++
		text := s.s.Text()
		if text == "" {
			continue
		}
		msg, err := Parse(text)
		if err != nil {
			s.err = fmt.Errorf("line %d: %w", s.line, err)
			return false
		}
		s.msg = msg
		return true
	}
	switch err := s.s.Err(); {
	case errors.Is(err, bufio.ErrTooLong):
		s.err = apperrors.Newf(apperrors.ErrParse, "line %d exceeds %d bytes", s.line+1, MaxLineBytes+keySlack)
	case err != nil:
		s.err = fmt.Errorf("scanning records: %w", err)
	}
	return false
}

func (s *Scanner) Message() shuffle.Message {
	return s.msg
}

func (s *Scanner) Err() error {
	return s.err
}

func truncate(s string) string {
	if len(s) > 64 {
		return s[:64] + "..."
	}
	return s
}
