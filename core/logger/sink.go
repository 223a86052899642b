package logger

import (
	"errors"
	"io"
	"sync"
)

// sink writes whole lines to every output under one lock. The first write
// error sticks: later writes return it and close reports it.
type sink struct {
	mu      sync.Mutex
	out     io.Writer
	closers []io.Closer
	err     error
}

func newSink(outs []io.Writer, closers []io.Closer) *sink {
	return &sink{out: io.MultiWriter(outs...), closers: closers}
}

func (s *sink) write(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, err := s.out.Write(line); err != nil {
		s.err = err
	}
	return s.err
}

// close releases file outputs. Lines written afterwards are discarded.
func (s *sink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	errs := []error{s.err}
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	s.closers = nil
	s.out = io.Discard
	return errors.Join(errs...)
}
