package gaze

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// StreamSource reads newline-delimited JSON FaceFrame records from a
// landmark extractor's output stream (typically a sidecar process piping to
// our stdin, or a recorded session file for replay). Malformed lines are
// skipped with a diagnostic rather than killing the session, since extractor
// streams occasionally truncate a line on shutdown.
//
// A dedicated goroutine owns the blocking reads so Next can abandon a
// stalled stream the moment its context is cancelled; without it, a silent
// but still-open extractor pipe would pin the tracking loop in a read and
// block shutdown. Close tears down the reader; the goroutine may stay
// parked on the final read until the underlying stream yields, which is
// harmless once nothing waits on it.
type StreamSource struct {
	closer    io.Closer
	lines     chan []byte
	done      chan struct{}
	closeOnce sync.Once
	readErr   error // written by the reader goroutine before lines closes
	skipped   int
}

// maxFrameLine bounds a single landmark record. Frames are small; anything
// near this size is a corrupt stream.
const maxFrameLine = 1 << 20

// NewStreamSource creates a source over r and starts its reader. If r is
// also an io.Closer it is closed by Close.
func NewStreamSource(r io.Reader) *StreamSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxFrameLine)
	closer, _ := r.(io.Closer)
	s := &StreamSource{
		closer: closer,
		lines:  make(chan []byte),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.lines)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case s.lines <- line:
			case <-s.done:
				return
			}
		}
		s.readErr = scanner.Err()
	}()
	return s
}

// Next delivers the next frame, blocking until one arrives, the stream
// ends, or the context is cancelled. Cancellation wins even while the
// underlying read is stalled.
func (s *StreamSource) Next(ctx context.Context) (*FaceFrame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case line, ok := <-s.lines:
			if !ok {
				if s.readErr != nil {
					return nil, fmt.Errorf("%w: %v", ErrCaptureFailure, s.readErr)
				}
				return nil, ErrSourceExhausted
			}
			if len(line) == 0 {
				continue
			}

			var frame FaceFrame
			if err := json.Unmarshal(line, &frame); err != nil {
				s.skipped++
				diagf("[Stream] Skipping malformed frame line (%d skipped): %v", s.skipped, err)
				continue
			}
			if frame.Timestamp.IsZero() {
				frame.Timestamp = time.Now()
			}
			return &frame, nil
		}
	}
}

// Skipped returns the number of malformed lines discarded so far.
func (s *StreamSource) Skipped() int { return s.skipped }

// Close stops the reader goroutine and closes the underlying stream when it
// supports closing. Safe to call more than once.
func (s *StreamSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}
