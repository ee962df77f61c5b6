package assistant

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrConnectionClosed is returned by Emit once the connection is gone.
var ErrConnectionClosed = errors.New("assistant: connection closed")

// FrameWriter delivers one encoded frame to the client.
type FrameWriter interface {
	WriteFrame(data []byte) error
}

// Sequencer writes frames for one connection in the order Emit is called.
type Sequencer struct {
	mu      sync.Mutex
	w       FrameWriter
	closed  bool
	metrics *Metrics
}

// NewSequencer creates a sequencer over w. metrics may be nil.
func NewSequencer(w FrameWriter, metrics *Metrics) *Sequencer {
	return &Sequencer{w: w, metrics: metrics}
}

// Emit encodes and writes f. After a write error or Close every call fails
// with ErrConnectionClosed.
func (s *Sequencer) Emit(f Frame) error {
	data, err := f.MarshalJSON()
	if err != nil {
		return errors.Wrapf(err, "encode %s frame", f.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrConnectionClosed
	}
	if err := s.w.WriteFrame(data); err != nil {
		s.closed = true
		return errors.Wrapf(ErrConnectionClosed, "write %s frame: %v", f.Kind, err)
	}
	s.metrics.frameSent(f.Kind)
	return nil
}

// Close marks the connection closed. It does not close the writer.
func (s *Sequencer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Closed reports whether Emit will fail.
func (s *Sequencer) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
