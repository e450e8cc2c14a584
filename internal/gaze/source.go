package gaze

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCaptureFailure indicates the capture source could not deliver a frame.
// Fatal to the current loop or session; triggers clean shutdown.
var ErrCaptureFailure = errors.New("capture failure")

// ErrSourceExhausted is returned by finite sources (replays, scripted
// tests) when no frames remain.
var ErrSourceExhausted = errors.New("frame source exhausted")

// FrameSource supplies one FaceFrame per call, blocking until a frame is
// available (back-pressure) or the context is cancelled. Implementations
// wrap the external landmark extractor; the engine never sees raw camera
// data. Close releases the capture device.
type FrameSource interface {
	Next(ctx context.Context) (*FaceFrame, error)
	Close() error
}

// ScriptedSource replays a fixed sequence of frames, optionally paced at a
// fixed interval. Used by tests and by offline replay of recorded landmark
// logs. Safe for use from one consumer at a time.
type ScriptedSource struct {
	mu       sync.Mutex
	frames   []*FaceFrame
	idx      int
	interval time.Duration
	loop     bool
	closed   bool
}

// NewScriptedSource creates a source over the given frames. A zero interval
// delivers frames as fast as the consumer pulls them; loop restarts from
// the first frame after the last instead of exhausting.
func NewScriptedSource(frames []*FaceFrame, interval time.Duration, loop bool) *ScriptedSource {
	return &ScriptedSource{frames: frames, interval: interval, loop: loop}
}

// NoFaceFrame returns a frame with no detected face, stamped now.
func NoFaceFrame() *FaceFrame {
	return &FaceFrame{FaceDetected: false, Timestamp: time.Now()}
}

func (s *ScriptedSource) Next(ctx context.Context) (*FaceFrame, error) {
	if s.interval > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.interval):
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("%w: source closed", ErrCaptureFailure)
	}
	if s.idx >= len(s.frames) {
		if !s.loop || len(s.frames) == 0 {
			return nil, ErrSourceExhausted
		}
		s.idx = 0
	}
	f := s.frames[s.idx]
	s.idx++
	return f, nil
}

func (s *ScriptedSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
