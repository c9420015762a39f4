package download

import (
	"io"
	"os"
)

// Sink is the write side of a download: ordinary io.Writer plus Abort,
// which callers invoke on an integrity failure or cancellation so any
// partial output doesn't linger on disk (spec.md §4.7 "Cancellation").
type Sink interface {
	io.Writer
	Abort() error
	Close() error
}

// nopAbortSink adapts a plain io.Writer (e.g. a bytes.Buffer, or a pipe
// the caller owns) into a Sink whose Abort and Close are no-ops.
type nopAbortSink struct {
	io.Writer
}

func (nopAbortSink) Abort() error { return nil }
func (nopAbortSink) Close() error { return nil }

// WrapWriter adapts w into a Sink that cannot be aborted; use this when
// the caller manages partial-output cleanup itself.
func WrapWriter(w io.Writer) Sink {
	return nopAbortSink{Writer: w}
}

// fileSink is a Sink backed by an *os.File: Abort closes and removes it.
type fileSink struct {
	f *os.File
}

// FileSink creates (or truncates) path for writing and returns a Sink
// whose Abort closes and deletes the file.
func FileSink(path string) (Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &fileSink{f: f}, nil
}

func (s *fileSink) Write(p []byte) (int, error) {
	return s.f.Write(p)
}

func (s *fileSink) Abort() error {
	closeErr := s.f.Close()
	if err := os.Remove(s.f.Name()); err != nil {
		return err
	}
	return closeErr
}

// Close finalizes a successful download's output file.
func (s *fileSink) Close() error {
	return s.f.Close()
}
