package gaze

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// SessionState represents the lifecycle state of a calibration session.
type SessionState string

const (
	SessionIdle          SessionState = "idle"
	SessionAwaitingStart SessionState = "awaiting-start"
	SessionCapturing     SessionState = "capturing"
	SessionCompleted     SessionState = "completed"
	SessionCancelled     SessionState = "cancelled"
)

// CalibrationPoints is the number of guided capture targets.
const CalibrationPoints = 9

// CalibrationTarget is one fixed normalized screen position of the 3×3
// capture grid. Immutable, defined at construction.
type CalibrationTarget struct {
	NormX float64
	NormY float64
}

// CalibrationTargets returns the canonical 9-point grid over
// {0.1, 0.5, 0.9} × {0.1, 0.5, 0.9}, row-major from top-left.
func CalibrationTargets() [CalibrationPoints]CalibrationTarget {
	levels := [3]float64{0.1, 0.5, 0.9}
	var targets [CalibrationPoints]CalibrationTarget
	i := 0
	for _, y := range levels {
		for _, x := range levels {
			targets[i] = CalibrationTarget{NormX: x, NormY: y}
			i++
		}
	}
	return targets
}

// CalibrationProgress is reported to the session's caller after every
// accepted raw sample.
type CalibrationProgress struct {
	PointIndex  int // 0..8
	SamplesDone int // raw samples accepted for this point so far
	SamplesNeed int
}

// CalibrationResult summarises a completed fit.
type CalibrationResult struct {
	SessionID      string
	MeanResidualPx float64
	SampleCount    int
}

// CalibrationSession orchestrates the 9-point guided capture sequence and
// feeds the averaged samples to the PolynomialMapper. It owns no OS-level
// side effects beyond pulling frames from its FrameSource and reporting
// progress to its caller. Calibration and tracking are mutually exclusive
// operating modes; the engine enforces that exclusivity.
type CalibrationSession struct {
	ID string

	mapper          *PolynomialMapper
	source          FrameSource
	screenW         int
	screenH         int
	samplesPerPoint int
	onProgress      func(CalibrationProgress)
	targets         [CalibrationPoints]CalibrationTarget

	mu         sync.Mutex
	state      SessionState
	pointIndex int
	samples    []CalibrationSample
	cancel     context.CancelFunc
}

// NewCalibrationSession creates an idle session. onProgress may be nil.
func NewCalibrationSession(mapper *PolynomialMapper, source FrameSource, screenW, screenH, samplesPerPoint int, onProgress func(CalibrationProgress)) *CalibrationSession {
	if samplesPerPoint < 1 {
		samplesPerPoint = 1
	}
	return &CalibrationSession{
		ID:              fmt.Sprintf("cal_%s", uuid.NewString()),
		mapper:          mapper,
		source:          source,
		screenW:         screenW,
		screenH:         screenH,
		samplesPerPoint: samplesPerPoint,
		onProgress:      onProgress,
		targets:         CalibrationTargets(),
		state:           SessionIdle,
	}
}

// State returns the session's current lifecycle state.
func (cs *CalibrationSession) State() SessionState {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.state
}

// PointIndex returns the index of the target currently being captured.
func (cs *CalibrationSession) PointIndex() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.pointIndex
}

// Arm transitions Idle → AwaitingStart. The session then waits for the
// explicit begin signal (Run) before consuming frames.
func (cs *CalibrationSession) Arm() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.state != SessionIdle {
		return fmt.Errorf("cannot arm calibration session in state %q", cs.state)
	}
	cs.state = SessionAwaitingStart
	return nil
}

// Cancel signals a running capture to abort, discarding all progress. It is
// accepted in any Capturing state and is cooperative: the capture loop
// observes the cancellation at its next frame boundary.
func (cs *CalibrationSession) Cancel() {
	cs.mu.Lock()
	cancel := cs.cancel
	cs.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run is the explicit begin signal: it transitions AwaitingStart →
// Capturing(0) and drives the full capture sequence synchronously. For each
// of the 9 targets it collects exactly samplesPerPoint valid face-detected
// raw samples (frames with no face are discarded and do not count), then
// averages them into one CalibrationSample bound to the target's pixel
// coordinate. After the last point it fits the mapper over all samples.
//
// On fit failure the session reports the error but keeps its collected
// samples, so RetryFit can re-attempt without re-collecting.
func (cs *CalibrationSession) Run(ctx context.Context) (*CalibrationResult, error) {
	cs.mu.Lock()
	if cs.state != SessionAwaitingStart {
		state := cs.state
		cs.mu.Unlock()
		return nil, fmt.Errorf("cannot begin calibration session in state %q", state)
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	cs.state = SessionCapturing
	cs.pointIndex = 0
	cs.samples = cs.samples[:0]
	cs.cancel = cancel
	cs.mu.Unlock()

	for i := 0; i < CalibrationPoints; i++ {
		cs.mu.Lock()
		cs.pointIndex = i
		cs.mu.Unlock()

		sample, err := cs.capturePoint(runCtx, i)
		if err != nil {
			cs.mu.Lock()
			if runCtx.Err() != nil {
				// Explicit cancel discards all progress.
				cs.state = SessionCancelled
				cs.samples = nil
			}
			cs.mu.Unlock()
			return nil, err
		}

		cs.mu.Lock()
		cs.samples = append(cs.samples, sample)
		cs.mu.Unlock()
	}

	return cs.fit()
}

// capturePoint collects the raw samples for one target and averages them.
func (cs *CalibrationSession) capturePoint(ctx context.Context, idx int) (CalibrationSample, error) {
	target := cs.targets[idx]
	var sumX, sumY float64
	collected := 0

	for collected < cs.samplesPerPoint {
		frame, err := cs.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return CalibrationSample{}, fmt.Errorf("calibration cancelled at point %d: %w", idx, ctx.Err())
			}
			return CalibrationSample{}, fmt.Errorf("%w: point %d: %v", ErrCaptureFailure, idx, err)
		}
		if !frame.FaceDetected {
			continue
		}

		f := HeadFeature(frame)
		sumX += f.X
		sumY += f.Y
		collected++
		if cs.onProgress != nil {
			cs.onProgress(CalibrationProgress{
				PointIndex:  idx,
				SamplesDone: collected,
				SamplesNeed: cs.samplesPerPoint,
			})
		}
	}

	n := float64(collected)
	return CalibrationSample{
		Feature: Feature{X: sumX / n, Y: sumY / n},
		TargetX: target.NormX * float64(cs.screenW),
		TargetY: target.NormY * float64(cs.screenH),
	}, nil
}

// fit runs the mapper fit over the accumulated samples and finalises state.
func (cs *CalibrationSession) fit() (*CalibrationResult, error) {
	cs.mu.Lock()
	samples := append([]CalibrationSample(nil), cs.samples...)
	cs.mu.Unlock()

	residual, err := cs.mapper.Fit(samples)
	if err != nil {
		// Collected samples remain; the caller may RetryFit.
		return nil, err
	}

	cs.mu.Lock()
	cs.state = SessionCompleted
	cs.mu.Unlock()

	return &CalibrationResult{
		SessionID:      cs.ID,
		MeanResidualPx: residual,
		SampleCount:    len(samples),
	}, nil
}

// Retryable reports whether the session holds a fully collected sample set
// whose fit has not succeeded, so RetryFit can run without re-collecting.
func (cs *CalibrationSession) Retryable() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.state == SessionCapturing && len(cs.samples) == CalibrationPoints
}

// RetryFit re-attempts the fit over the already-collected samples without
// re-collecting. Valid only after a full collection whose fit failed.
func (cs *CalibrationSession) RetryFit() (*CalibrationResult, error) {
	cs.mu.Lock()
	complete := len(cs.samples) == CalibrationPoints && cs.state == SessionCapturing
	cs.mu.Unlock()
	if !complete {
		return nil, fmt.Errorf("retry fit requires a fully collected, unfitted session")
	}
	return cs.fit()
}
