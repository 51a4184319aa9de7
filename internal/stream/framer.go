package stream

import (
	"bytes"
	"errors"
	"io"
	"iter"
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize is the read size used by Lines when reading a response body
const DefaultChunkSize = 4096

// Framer splits a byte stream arriving in arbitrary chunks into complete
// newline-terminated lines. It keeps the trailing partial line between calls.
type Framer struct {
	buf []byte
}

// Push appends a chunk and returns every line completed by it.
// Bytes are buffered until a terminator arrives, so multi-byte characters
// split across chunks are decoded intact.
func (f *Framer) Push(chunk []byte) []string {
	f.buf = append(f.buf, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, decodeLine(f.buf[:i]))
		f.buf = f.buf[i+1:]
	}

	// Reclaim the consumed prefix once the buffer is drained
	if len(f.buf) == 0 {
		f.buf = nil
	}
	return lines
}

// Residual returns the buffered partial line. A residual left at end of
// stream has no terminator and is never emitted as a line.
func (f *Framer) Residual() string {
	return decodeLine(f.buf)
}

// Lines reads r in chunks and yields complete lines lazily. The sequence
// ends at EOF (dropping any unterminated residual) or at the first read
// error, which is yielded once. It is bound to r and cannot be restarted.
func (f *Framer) Lines(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		chunk := make([]byte, DefaultChunkSize)
		for {
			n, err := r.Read(chunk)
			if n > 0 {
				for _, line := range f.Push(chunk[:n]) {
					if !yield(line, nil) {
						return
					}
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield("", err)
				}
				return
			}
		}
	}
}

func decodeLine(b []byte) string {
	b = bytes.TrimSuffix(b, []byte{'\r'})
	if utf8.Valid(b) {
		return string(b)
	}

	var sb strings.Builder
	sb.Grow(len(b) + 8)
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			sb.WriteRune(utf8.RuneError)
			b = b[invalidPrefix(b):]
			continue
		}
		sb.Write(b[:size])
		b = b[size:]
	}
	return sb.String()
}

// invalidPrefix returns the length of the maximal subpart at the start of
// b: a lead byte plus the continuation bytes that still fit its sequence.
// Each such subpart becomes one U+FFFD.
func invalidPrefix(b []byte) int {
	lo, hi := byte(0x80), byte(0xBF)
	var n int
	switch c := b[0]; {
	case c >= 0xC2 && c <= 0xDF:
		n = 2
	case c == 0xE0:
		n, lo = 3, 0xA0
	case c == 0xED:
		n, hi = 3, 0x9F
	case c >= 0xE1 && c <= 0xEF:
		n = 3
	case c == 0xF0:
		n, lo = 4, 0x90
	case c == 0xF4:
		n, hi = 4, 0x8F
	case c >= 0xF1 && c <= 0xF3:
		n = 4
	default:
		return 1
	}

	i := 1
	for i < n && i < len(b) && b[i] >= lo && b[i] <= hi {
		lo, hi = 0x80, 0xBF
		i++
	}
	return i
}
