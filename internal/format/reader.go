package format

// reader.go wraps raw input before it reaches a parser:
//
//   - limitedReader: fails with ErrInputTooLarge past a byte limit
//   - the UTF-8 byte order mark is dropped
//   - utf8Sanitizer: replaces invalid UTF-8 bytes with '?'
//   - lineIndex: maps decoder offsets to line numbers
//   - CountingReader: tracks bytes read for ingest reporting

import (
	"bufio"
	"bytes"
	"io"
	"slices"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// newReader strips a leading byte order mark and sanitizes UTF-8.
func newReader(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return &utf8Sanitizer{br: br}
}

// utf8Sanitizer copies runes from br, replacing each invalid byte with '?'.
// The replacement is one byte wide, so output never grows past input.
type utf8Sanitizer struct {
	br *bufio.Reader

	// Encoded bytes of a rune that did not fit in the previous Read.
	pending []byte
	scratch [utf8.UTFMax]byte
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	n := copy(p, s.pending)
	s.pending = s.pending[n:]

	for n < len(p) {
		r, size, err := s.br.ReadRune()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}

		if r == utf8.RuneError && size == 1 {
			p[n] = '?'
			n++
			continue
		}

		enc := utf8.AppendRune(s.scratch[:0], r)
		m := copy(p[n:], enc)
		n += m
		if m < len(enc) {
			s.pending = append(s.pending, enc[m:]...)
			break
		}
	}
	return n, nil
}

// limitedReader returns ErrInputTooLarge once more than remaining bytes
// are available from r. The failure is sticky: every later Read returns it
// again, so a parser that retries never sees a clean EOF on truncated input.
type limitedReader struct {
	r         io.Reader
	remaining int64
	err       error
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.err != nil {
		return 0, l.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if l.remaining <= 0 {
		var extra [1]byte
		n, err := l.r.Read(extra[:])
		if n > 0 {
			l.err = ErrInputTooLarge
			return 0, l.err
		}
		return 0, err
	}

	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}

// lineIndex records the offsets of newlines passing through it so a
// decoder's input offset can be reported as a 1-based line. When consumed
// is set, newlines before the consumed offset are folded into a count on
// every Read, which keeps the index as small as the decoder's buffer.
type lineIndex struct {
	r        io.Reader
	consumed func() int64

	read     int64
	before   int
	newlines []int64
}

func (l *lineIndex) Read(p []byte) (int, error) {
	if l.consumed != nil {
		i, _ := slices.BinarySearch(l.newlines, l.consumed())
		l.before += i
		l.newlines = slices.Delete(l.newlines, 0, i)
	}

	n, err := l.r.Read(p)
	for i, b := range p[:n] {
		if b == '\n' {
			l.newlines = append(l.newlines, l.read+int64(i))
		}
	}
	l.read += int64(n)
	return n, err
}

// Line returns the line holding the byte at offset.
func (l *lineIndex) Line(offset int64) int {
	i, _ := slices.BinarySearch(l.newlines, offset)
	return l.before + i + 1
}

// CountingReader tracks bytes read from an underlying reader.
type CountingReader struct {
	r         io.Reader
	BytesRead int64
}

// NewCountingReader wraps r.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{r: r}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.BytesRead += int64(n)
	return n, err
}
