package serialport

import (
	"fmt"
	"io"
	"sync"
)

const DefaultTerminator = "\n"

// Writer sends text lines to a serial device. Calls are serialized so lines
// from concurrent callers never interleave.
type Writer struct {
	mu         sync.Mutex
	w          io.Writer
	terminator string
}

func NewWriter(w io.Writer, terminator string) *Writer {
	if terminator == "" {
		terminator = DefaultTerminator
	}
	return &Writer{w: w, terminator: terminator}
}

// WriteLine writes text followed by the terminator and blocks until the
// device accepted the bytes.
func (w *Writer) WriteLine(text string) error {
	buf := make([]byte, 0, len(text)+len(w.terminator))
	buf = append(buf, text...)
	buf = append(buf, w.terminator...)

	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.w.Write(buf)
	if err != nil {
		return fmt.Errorf("write serial line: %w", err)
	}
	if n != len(buf) {
		return fmt.Errorf("write serial line: %w", io.ErrShortWrite)
	}
	return nil
}
