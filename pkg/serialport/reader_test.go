package serialport

import (
	"errors"
	"io"
	"strings"
	"testing"
)

// scriptedReader returns each step in turn: a chunk of bytes or an error.
type scriptedReader struct {
	steps []readStep
}

type readStep struct {
	data string
	err  error
}

func (r *scriptedReader) Read(p []byte) (int, error) {
	if len(r.steps) == 0 {
		return 0, io.EOF
	}
	step := r.steps[0]
	r.steps = r.steps[1:]
	if step.err != nil {
		return 0, step.err
	}
	return copy(p, step.data), nil
}

func TestReadLineSplitsOnDelimiter(t *testing.T) {
	r := NewLineReader(strings.NewReader("alpha\nbeta\n\ngamma\n"), '\n')

	for _, want := range []string{"alpha", "beta", "", "gamma"} {
		got, err := r.ReadLine()
		if err != nil {
			t.Fatalf("ReadLine error: %v", err)
		}
		if got != want {
			t.Fatalf("ReadLine = %q, want %q", got, want)
		}
	}

	if _, err := r.ReadLine(); !errors.Is(err, io.EOF) {
		t.Fatalf("ReadLine at end error = %v, want io.EOF", err)
	}
}

func TestReadLineKeepsCarriageReturnByDefault(t *testing.T) {
	r := NewLineReader(strings.NewReader("abc\r\ntemp=21.5\r\n"), '\n')

	for _, want := range []string{"abc\r", "temp=21.5\r"} {
		got, err := r.ReadLine()
		if err != nil {
			t.Fatalf("ReadLine error: %v", err)
		}
		if got != want {
			t.Fatalf("ReadLine = %q, want %q", got, want)
		}
	}
}

func TestReadLineTrimCR(t *testing.T) {
	r := NewLineReader(strings.NewReader("temp=21.5\r\nraw\r\r\n"), 0)
	r.TrimCR = true

	for _, want := range []string{"temp=21.5", "raw\r"} {
		got, err := r.ReadLine()
		if err != nil {
			t.Fatalf("ReadLine error: %v", err)
		}
		if got != want {
			t.Fatalf("ReadLine = %q, want %q", got, want)
		}
	}
}

func TestReadLineKeepsPartialLineAcrossErrors(t *testing.T) {
	boom := errors.New("device hiccup")
	r := NewLineReader(&scriptedReader{steps: []readStep{
		{data: "hel"},
		{err: boom},
		{data: "lo\nnext\n"},
	}}, '\n')

	if _, err := r.ReadLine(); !errors.Is(err, boom) {
		t.Fatalf("first ReadLine error = %v, want %v", err, boom)
	}

	got, err := r.ReadLine()
	if err != nil {
		t.Fatalf("second ReadLine error: %v", err)
	}
	if got != "hello" {
		t.Fatalf("second ReadLine = %q, want %q", got, "hello")
	}

	got, err = r.ReadLine()
	if err != nil {
		t.Fatalf("third ReadLine error: %v", err)
	}
	if got != "next" {
		t.Fatalf("third ReadLine = %q, want %q", got, "next")
	}
}

func TestReadLineNeverSurfacesUnterminatedTail(t *testing.T) {
	r := NewLineReader(strings.NewReader("done\npartial"), '\n')

	if got, err := r.ReadLine(); err != nil || got != "done" {
		t.Fatalf("ReadLine = %q, %v, want %q, nil", got, err, "done")
	}

	got, err := r.ReadLine()
	if err == nil {
		t.Fatalf("expected error for unterminated tail, got line %q", got)
	}
	if got != "" {
		t.Fatalf("unterminated tail surfaced as %q", got)
	}
}

func TestReadLineRejectsInvalidUTF8AndRecovers(t *testing.T) {
	r := NewLineReader(strings.NewReader("\xff\xfe\nok\n"), '\n')

	if _, err := r.ReadLine(); !errors.Is(err, ErrInvalidText) {
		t.Fatalf("ReadLine error = %v, want %v", err, ErrInvalidText)
	}

	got, err := r.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine after decode error: %v", err)
	}
	if got != "ok" {
		t.Fatalf("ReadLine = %q, want %q", got, "ok")
	}
}

func TestReadLineRejectsOversizedLine(t *testing.T) {
	long := strings.Repeat("x", 10000)
	r := NewLineReader(strings.NewReader(long+"\nshort\n"), '\n')
	r.maxLine = 5000

	if _, err := r.ReadLine(); !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("ReadLine error = %v, want %v", err, ErrLineTooLong)
	}

	got, err := r.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine after oversized line: %v", err)
	}
	if got != "short" {
		t.Fatalf("ReadLine = %q, want %q", got, "short")
	}
}

func TestReadLineCustomDelimiter(t *testing.T) {
	r := NewLineReader(strings.NewReader("a;b;"), ';')

	for _, want := range []string{"a", "b"} {
		got, err := r.ReadLine()
		if err != nil {
			t.Fatalf("ReadLine error: %v", err)
		}
		if got != want {
			t.Fatalf("ReadLine = %q, want %q", got, want)
		}
	}
}
