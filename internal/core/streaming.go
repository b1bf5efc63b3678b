package core

// streaming.go reads registry extracts line by line in constant memory.
//
//   - CountingReader counts raw bytes for progress reporting
//   - DecodeSource converts legacy single-byte encodings to UTF-8
//   - LineReader splits on \n, \r\n or \r, skips the UTF-8 BOM and
//     replaces invalid UTF-8
//
// OpenSource applies all three in the right order.

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// MaxLineBytes is the longest source line accepted. Longer lines are
// discarded and reported as ErrLineTooLong.
const MaxLineBytes = 1 << 20

const utf8BOM = "\xef\xbb\xbf"

// CountingReader tracks the bytes read from the underlying reader. BytesRead
// may be called from other goroutines while reads are in progress.
type CountingReader struct {
	reader io.Reader
	read   atomic.Int64
	Total  int64 // 0 if unknown
}

// NewCountingReader wraps r. total is the expected size, 0 if unknown.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{reader: r, Total: total}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.read.Add(int64(n))
	return n, err
}

// BytesRead returns the number of bytes consumed so far.
func (r *CountingReader) BytesRead() int64 { return r.read.Load() }

// NormalizeEncoding returns the canonical name of a supported source
// encoding, or ErrUnsupportedEncoding.
func NormalizeEncoding(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return "utf-8", nil
	case "latin1", "latin-1", "iso-8859-1", "iso8859-1":
		return "latin1", nil
	case "windows-1252", "cp1252":
		return "windows-1252", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedEncoding, name)
}

// DecodeSource wraps r with a decoder producing UTF-8.
func DecodeSource(r io.Reader, encoding string) (io.Reader, error) {
	enc, err := NormalizeEncoding(encoding)
	if err != nil {
		return nil, err
	}
	switch enc {
	case "latin1":
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder()), nil
	case "windows-1252":
		return transform.NewReader(r, charmap.Windows1252.NewDecoder()), nil
	}
	return r, nil
}

// LineReader yields the lines of a text stream without their terminators.
type LineReader struct {
	scanner *bufio.Scanner
	line    int64
	long    bool
	first   bool
}

// NewLineReader returns a reader splitting r on universal newlines.
func NewLineReader(r io.Reader) *LineReader {
	lr := &LineReader{first: true}
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)
	s.Split(lr.split)
	lr.scanner = s
	return lr
}

// split is a bufio.SplitFunc accepting \n, \r\n and \r terminators. When the
// buffer fills without a terminator the partial line is dropped and the rest
// of it is skipped up to the next terminator.
func (lr *LineReader) split(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		// \r: peek for \n, asking for more data when \r ends the buffer.
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if !atEOF && len(data) < MaxLineBytes {
			return 0, nil, nil
		}
		return i + 1, data[:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	if len(data) >= MaxLineBytes {
		lr.long = true
		return len(data), nil, nil
	}
	return 0, nil, nil
}

// Next returns the next line. ok is false at end of input or on a read
// error, see Err. A line longer than MaxLineBytes is returned empty with
// ErrLineTooLong so the caller can count it and continue.
func (lr *LineReader) Next() (line string, ok bool, err error) {
	if !lr.scanner.Scan() {
		return "", false, nil
	}
	lr.line++

	if lr.long {
		lr.long = false
		return "", true, fmt.Errorf("line %d: %w", lr.line, ErrLineTooLong)
	}

	b := lr.scanner.Bytes()
	if lr.first {
		lr.first = false
		b = bytes.TrimPrefix(b, []byte(utf8BOM))
	}
	if !utf8.Valid(b) {
		return strings.ToValidUTF8(string(b), string(utf8.RuneError)), true, nil
	}
	return string(b), true, nil
}

// Line returns the 1-based number of the last line returned by Next.
func (lr *LineReader) Line() int64 { return lr.line }

// Err returns the first non-EOF read error.
func (lr *LineReader) Err() error {
	if err := lr.scanner.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSourceRead, err)
	}
	return nil
}

// OpenSource layers byte counting, decoding and line splitting over a raw
// source stream.
func OpenSource(r io.Reader, size int64, encoding string) (*LineReader, *CountingReader, error) {
	counter := NewCountingReader(r, size)
	decoded, err := DecodeSource(bufio.NewReaderSize(counter, 256*1024), encoding)
	if err != nil {
		return nil, nil, err
	}
	return NewLineReader(decoded), counter, nil
}
