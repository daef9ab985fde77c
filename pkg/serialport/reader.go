package serialport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

const (
	DefaultDelimiter   byte = '\n'
	defaultMaxLineSize      = 64 * 1024
)

var (
	ErrInvalidText = errors.New("serial line is not valid UTF-8")
	ErrLineTooLong = errors.New("serial line exceeds maximum length")
)

// LineReader splits a serial byte stream into delimiter-terminated text lines.
// Bytes of an unfinished line survive read errors and are never returned on
// their own.
type LineReader struct {
	// TrimCR drops one carriage return before a '\n' delimiter. Off by
	// default, so lines keep every byte the device sent.
	TrimCR bool

	br      *bufio.Reader
	delim   byte
	maxLine int
	pending []byte
}

func NewLineReader(r io.Reader, delim byte) *LineReader {
	if delim == 0 {
		delim = DefaultDelimiter
	}
	return &LineReader{
		br:      bufio.NewReader(r),
		delim:   delim,
		maxLine: defaultMaxLineSize,
	}
}

// ReadLine blocks until one complete line is available and returns it without
// the delimiter.
func (r *LineReader) ReadLine() (string, error) {
	for {
		chunk, err := r.br.ReadSlice(r.delim)
		r.pending = append(r.pending, chunk...)

		switch {
		case err == nil:
			return r.takeLine()
		case errors.Is(err, bufio.ErrBufferFull):
			if len(r.pending) > r.maxLine {
				r.pending = r.pending[:0]
				r.discardRestOfLine()
				return "", ErrLineTooLong
			}
		default:
			return "", fmt.Errorf("read serial line: %w", err)
		}
	}
}

func (r *LineReader) takeLine() (string, error) {
	raw := r.pending[:len(r.pending)-1]
	if n := len(raw); n > 0 && r.TrimCR && r.delim == '\n' && raw[n-1] == '\r' {
		raw = raw[:n-1]
	}
	valid := utf8.Valid(raw)
	line := string(raw)
	r.pending = r.pending[:0]

	if !valid {
		return "", ErrInvalidText
	}
	return line, nil
}

// discardRestOfLine drops bytes up to the next delimiter so an oversized line
// is rejected as a whole. Read errors leave the reader where it stopped.
func (r *LineReader) discardRestOfLine() {
	for {
		_, err := r.br.ReadSlice(r.delim)
		if !errors.Is(err, bufio.ErrBufferFull) {
			return
		}
	}
}
