package mms

import (
	"bufio"
	"io"
	"os"
	"path/filepath"

	"github.com/NamanBalaji/mmsdl/internal/errors"
)

const sinkBufferSize = 64 * 1024

var errSinkClosed = errors.New("sink is not open")

// Sink receives the raw output stream of a session. Open and Close may be
// called repeatedly; Close on a closed sink is a no-op.
type Sink interface {
	io.Writer
	Open(appendMode bool) error
	// Flush pushes buffered bytes to the backing store. It is a no-op on a
	// closed sink.
	Flush() error
	Close() error
	// Path is the backing file, or "" when there is none.
	Path() string
}

type fileSink struct {
	path string
	f    *os.File
	w    *bufio.Writer
}

// NewFileSink returns a sink writing to path.
func NewFileSink(path string) Sink {
	return &fileSink{path: path}
}

func (s *fileSink) Open(appendMode bool) error {
	if err := s.Close(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}

	f, err := os.OpenFile(s.path, flags, 0o644)
	if err != nil {
		return err
	}

	s.f = f
	s.w = bufio.NewWriterSize(f, sinkBufferSize)

	return nil
}

func (s *fileSink) Write(p []byte) (int, error) {
	if s.w == nil {
		return 0, errSinkClosed
	}

	return s.w.Write(p)
}

func (s *fileSink) Flush() error {
	if s.w == nil {
		return nil
	}

	return s.w.Flush()
}

func (s *fileSink) Close() error {
	if s.f == nil {
		return nil
	}

	flushErr := s.w.Flush()
	closeErr := s.f.Close()
	s.f, s.w = nil, nil

	if flushErr != nil {
		return flushErr
	}

	return closeErr
}

func (s *fileSink) Path() string {
	return s.path
}

type writerSink struct {
	w io.Writer
}

// WriterSink adapts a caller-owned writer. The session never closes w; Close
// only flushes it when w has a Flush method.
func WriterSink(w io.Writer) Sink {
	return &writerSink{w: w}
}

func (s *writerSink) Open(bool) error { return nil }

func (s *writerSink) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

func (s *writerSink) Flush() error {
	if f, ok := s.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}

	return nil
}

func (s *writerSink) Close() error {
	return s.Flush()
}

func (s *writerSink) Path() string { return "" }

// DiscardSink drops everything, for runs with no destination.
func DiscardSink() Sink {
	return &writerSink{w: io.Discard}
}
