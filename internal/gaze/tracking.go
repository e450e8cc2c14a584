package gaze

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/gazepoint/internal/config"
	"github.com/google/uuid"
)

// CursorInjector is the OS boundary consumed by the tracking loop.
// Implementations live in the cursor package; the loop only ever issues
// absolute moves and clicks, one at a time, from its single goroutine.
type CursorInjector interface {
	MoveCursorAbsolute(x, y int) error
	ClickAtCurrentPosition() error
}

// EventRecorder persists notable loop events. Optional: a nil recorder
// disables persistence without changing loop behaviour.
type EventRecorder interface {
	RecordClick(sessionID string, outcome ClickOutcome, x, y float64) error
	RecordBlink(sessionID string, avgEAR float64) error
	RecordFit(sessionID string, meanResidualPx float64, sampleCount, screenW, screenH int) error
}

// FrameStatus reports the per-frame outcome of the tracking loop.
type FrameStatus string

const (
	StatusNoFace  FrameStatus = "no-face"
	StatusTracked FrameStatus = "tracked"
)

// FrameReport summarises one loop iteration for callers and tests.
type FrameReport struct {
	Status  FrameStatus
	CursorX float64
	CursorY float64
	Moved   bool
	AvgEAR  float64
	Blink   bool
	Click   ClickOutcome // empty when no blink fired or clicking is disabled
}

// EngineConfig holds configuration parameters for the tracking engine.
type EngineConfig struct {
	ScreenW int
	ScreenH int

	SmoothWindow          int           // GazeSmoother capacity
	BlinkMinClosedFrames  int           // consecutive closed frames to arm a blink
	BlinkBaselineSamples  int           // open-eye samples before threshold fix
	BlinkThresholdScale   float64       // baseline mean multiplier
	BlinkInitialThreshold float64       // threshold before adaptation completes
	ClickCooldown         time.Duration // minimum spacing between accepted clicks
	SafeTopMarginPx       float64       // safe-zone band from the top edge
	SafeSideMarginPx      float64       // safe-zone band from each side edge
	MarginFraction        float64       // linear fallback margin (sensitivity)
	IrisGain              float64       // iris offset gain for the head-iris policy
	UseIrisPolicy         bool          // fallback strategy: head-iris instead of linear-margin
	CursorMoveDivisor     int           // issue a cursor move every Nth frame
	SamplesPerPoint       int           // raw samples averaged per calibration target
	TraceBufferLen        int           // recent-frame ring size for the debug chart
}

// EngineConfigFromTuning builds an EngineConfig from a loaded TuningConfig.
// Screen dimensions come from the caller; they are a property of the
// display, not a tunable.
func EngineConfigFromTuning(cfg *config.TuningConfig, screenW, screenH int) EngineConfig {
	return EngineConfig{
		ScreenW:               screenW,
		ScreenH:               screenH,
		SmoothWindow:          cfg.GetSmoothWindow(),
		BlinkMinClosedFrames:  cfg.GetBlinkMinClosedFrames(),
		BlinkBaselineSamples:  cfg.GetBlinkBaselineSamples(),
		BlinkThresholdScale:   cfg.GetBlinkThresholdScale(),
		BlinkInitialThreshold: cfg.GetBlinkInitialThreshold(),
		ClickCooldown:         cfg.GetClickCooldown(),
		SafeTopMarginPx:       cfg.GetSafeTopMarginPx(),
		SafeSideMarginPx:      cfg.GetSafeSideMarginPx(),
		MarginFraction:        cfg.GetMarginFraction(),
		IrisGain:              cfg.GetIrisGain(),
		UseIrisPolicy:         cfg.GetUseIrisPolicy(),
		CursorMoveDivisor:     cfg.GetCursorMoveDivisor(),
		SamplesPerPoint:       cfg.GetSamplesPerPoint(),
		TraceBufferLen:        cfg.GetTraceBufferLen(),
	}
}

// engineMode is the engine's exclusive operating mode. Calibration owns the
// capture source while active; tracking and calibration never run together.
type engineMode string

const (
	modeIdle        engineMode = "idle"
	modeTracking    engineMode = "tracking"
	modeCalibrating engineMode = "calibrating"
)

// TracePoint is one retained frame summary for the debug chart.
type TracePoint struct {
	TS     time.Time
	X      float64
	Y      float64
	AvgEAR float64
}

// EngineStatus is the control-surface status snapshot.
type EngineStatus struct {
	Active           bool    `json:"active"`
	Calibrated       bool    `json:"calibrated"`
	ClickCount       int     `json:"click_count"`
	Mode             string  `json:"mode"`
	Policy           string  `json:"policy"`
	ClickEnabled     bool    `json:"click_enabled"`
	MarginFraction   float64 `json:"margin_fraction"`
	Frames           int64   `json:"frames"`
	NoFaceFrames     int64   `json:"no_face_frames"`
	BlinkCount       int     `json:"blink_count"`
	SuppressedClicks int     `json:"suppressed_clicks"`
	FPS              float64 `json:"fps"`
}

// Engine composes the per-frame pipeline: feature extraction, mapping,
// smoothing, cursor actuation, blink detection, and click arbitration.
// The pipeline itself is single-threaded and frame-synchronous: one
// iteration per captured frame, paced by the FrameSource. The mutex only
// guards the control surface (HTTP handlers) against the loop goroutine.
type Engine struct {
	cfg      EngineConfig
	mapper   *PolynomialMapper
	source   FrameSource
	injector CursorInjector
	recorder EventRecorder

	mu           sync.Mutex
	mode         engineMode
	clickEnabled bool
	sessionID    string
	cancelLoop   context.CancelFunc
	loopDone     chan struct{}
	session      *CalibrationSession
	pendingFit   *CalibrationSession // failed session retained for RetryCalibrationFit

	// Per-session pipeline state, rebuilt by resetSession. Owned by the
	// loop goroutine while tracking is active.
	smoother *GazeSmoother
	blink    *BlinkDetector
	arbiter  *ClickArbiter
	frameIdx int64

	framesTotal  int64
	noFaceFrames int64
	lastFrameAt  time.Time
	fps          float64

	trace []TracePoint
}

// NewEngine creates an engine over the given capture source and OS cursor
// boundary. recorder may be nil.
func NewEngine(cfg EngineConfig, mapper *PolynomialMapper, source FrameSource, injector CursorInjector, recorder EventRecorder) *Engine {
	if cfg.CursorMoveDivisor < 1 {
		cfg.CursorMoveDivisor = 1
	}
	e := &Engine{
		cfg:          cfg,
		mapper:       mapper,
		source:       source,
		injector:     injector,
		recorder:     recorder,
		mode:         modeIdle,
		clickEnabled: true,
	}
	e.resetSession()
	return e
}

// resetSession rebuilds all per-session mutable state: smoothing buffer,
// blink baseline and counter, click cooldown clock.
func (e *Engine) resetSession() {
	e.smoother = NewGazeSmoother(e.cfg.SmoothWindow)
	e.blink = NewBlinkDetector(
		e.cfg.BlinkMinClosedFrames,
		e.cfg.BlinkBaselineSamples,
		e.cfg.BlinkThresholdScale,
		e.cfg.BlinkInitialThreshold,
	)
	e.arbiter = NewClickArbiter(
		e.injector,
		e.cfg.ScreenW, e.cfg.ScreenH,
		e.cfg.ClickCooldown,
		e.cfg.SafeTopMarginPx, e.cfg.SafeSideMarginPx,
	)
	e.frameIdx = 0
	e.framesTotal = 0
	e.noFaceFrames = 0
	e.lastFrameAt = time.Time{}
	e.fps = 0
}

// fallbackPolicy returns the configured uncalibrated mapping strategy.
func (e *Engine) fallbackPolicy() MappingPolicy {
	margin := e.mapper.FallbackMargin()
	if e.cfg.UseIrisPolicy {
		return &HeadIrisPolicy{
			ScreenW:        e.cfg.ScreenW,
			ScreenH:        e.cfg.ScreenH,
			MarginFraction: margin,
			IrisGain:       e.cfg.IrisGain,
		}
	}
	return &LinearMarginPolicy{
		ScreenW:        e.cfg.ScreenW,
		ScreenH:        e.cfg.ScreenH,
		MarginFraction: margin,
	}
}

// StartTracking begins a tracking session on a background goroutine.
// Fails when the engine is already tracking or a calibration session owns
// the capture source.
func (e *Engine) StartTracking() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != modeIdle {
		return fmt.Errorf("cannot start tracking while %s", e.mode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.mode = modeTracking
	e.sessionID = fmt.Sprintf("trk_%s", uuid.NewString())
	e.cancelLoop = cancel
	e.loopDone = make(chan struct{})
	e.resetSession()

	diagf("[Tracking] Session %s started (%dx%d, policy=%s)",
		e.sessionID, e.cfg.ScreenW, e.cfg.ScreenH, e.currentPolicyNameLocked())

	go func() {
		defer close(e.loopDone)
		err := e.runLoop(ctx)
		e.mu.Lock()
		e.mode = modeIdle
		e.cancelLoop = nil
		e.mu.Unlock()
		if err != nil && !errors.Is(err, context.Canceled) {
			opsf("[Tracking] Session ended with error: %v", err)
		} else {
			diagf("[Tracking] Session stopped")
		}
	}()
	return nil
}

// StopTracking cooperatively terminates the tracking loop and waits for it
// to release the frame cadence. No-op when not tracking.
func (e *Engine) StopTracking() {
	e.mu.Lock()
	cancel := e.cancelLoop
	done := e.loopDone
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}

// runLoop is the frame-synchronous pipeline. It suspends on the source
// until a frame arrives (back-pressure) and processes exactly one frame per
// iteration. Transient no-face frames are skipped at full rate; a source
// error is fatal and shuts the loop down cleanly.
func (e *Engine) runLoop(ctx context.Context) error {
	for {
		frame, err := e.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrSourceExhausted) {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrCaptureFailure, err)
		}
		e.ProcessFrame(frame)
	}
}

// ProcessFrame runs one pipeline iteration. Exported for replay tools and
// tests; live operation calls it from the single loop goroutine only.
func (e *Engine) ProcessFrame(frame *FaceFrame) FrameReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := frame.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	e.framesTotal++
	e.updateFPS(now)

	if !frame.FaceDetected {
		// Transient: skip mapping, smoothing, and blink steps entirely.
		// Counters are deliberately left untouched so the pipeline resumes
		// exactly where it left off when the face reappears.
		e.noFaceFrames++
		tracef("[Tracking] No face detected (frame %d)", e.framesTotal)
		return FrameReport{Status: StatusNoFace}
	}

	policy := SelectPolicy(e.mapper, e.fallbackPolicy())
	rawX, rawY := policy.Map(frame)
	smoothX, smoothY := e.smoother.Push(rawX, rawY)

	// Throttle actuation to every other frame to bound the OS call rate;
	// the smoothing buffer still advances every frame.
	moved := false
	if e.frameIdx%int64(e.cfg.CursorMoveDivisor) == 0 {
		if err := e.injector.MoveCursorAbsolute(int(smoothX), int(smoothY)); err != nil {
			opsf("[Tracking] Cursor move failed: %v", err)
		} else {
			moved = true
		}
	}
	e.frameIdx++

	avgEAR := AverageEAR(frame)
	blink := e.blink.Observe(avgEAR)

	report := FrameReport{
		Status:  StatusTracked,
		CursorX: smoothX,
		CursorY: smoothY,
		Moved:   moved,
		AvgEAR:  avgEAR,
		Blink:   blink,
	}

	if blink {
		diagf("[Tracking] Blink detected (EAR %.3f, threshold %.3f)", avgEAR, e.blink.Threshold())
		if e.recorder != nil {
			if err := e.recorder.RecordBlink(e.sessionID, avgEAR); err != nil {
				opsf("[Tracking] Failed to record blink: %v", err)
			}
		}
		if e.clickEnabled {
			outcome := e.arbiter.RequestClick(smoothX, smoothY, now)
			report.Click = outcome
			if outcome == ClickAccepted {
				diagf("[Tracking] Click accepted at (%.0f, %.0f)", smoothX, smoothY)
			} else {
				diagf("[Tracking] Click %s at (%.0f, %.0f)", outcome, smoothX, smoothY)
			}
			if e.recorder != nil {
				if err := e.recorder.RecordClick(e.sessionID, outcome, smoothX, smoothY); err != nil {
					opsf("[Tracking] Failed to record click: %v", err)
				}
			}
		}
	}

	e.appendTrace(TracePoint{TS: now, X: smoothX, Y: smoothY, AvgEAR: avgEAR})
	return report
}

// updateFPS maintains an exponentially smoothed frames-per-second estimate.
func (e *Engine) updateFPS(now time.Time) {
	if !e.lastFrameAt.IsZero() {
		dt := now.Sub(e.lastFrameAt).Seconds()
		if dt > 0 {
			instant := 1 / dt
			if e.fps == 0 {
				e.fps = instant
			} else {
				e.fps = 0.9*e.fps + 0.1*instant
			}
		}
	}
	e.lastFrameAt = now
}

func (e *Engine) appendTrace(p TracePoint) {
	limit := e.cfg.TraceBufferLen
	if limit <= 0 {
		return
	}
	e.trace = append(e.trace, p)
	if len(e.trace) > limit {
		e.trace = e.trace[len(e.trace)-limit:]
	}
}

// RecentTrace returns a copy of the retained frame summaries, oldest first.
func (e *Engine) RecentTrace() []TracePoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]TracePoint, len(e.trace))
	copy(out, e.trace)
	return out
}

// StartCalibration runs the full 9-point guided capture synchronously and,
// on success, persists the calibration event via the recorder. Tracking
// must be stopped first: calibration owns the capture source exclusively
// while active.
func (e *Engine) StartCalibration(ctx context.Context, onProgress func(CalibrationProgress)) (*CalibrationResult, error) {
	e.mu.Lock()
	if e.mode != modeIdle {
		mode := e.mode
		e.mu.Unlock()
		return nil, fmt.Errorf("cannot start calibration while %s", mode)
	}
	session := NewCalibrationSession(e.mapper, e.source, e.cfg.ScreenW, e.cfg.ScreenH, e.cfg.SamplesPerPoint, onProgress)
	e.mode = modeCalibrating
	e.session = session
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.mode = modeIdle
		e.session = nil
		e.mu.Unlock()
	}()

	if err := session.Arm(); err != nil {
		return nil, err
	}
	diagf("[Calibration] Session %s started", session.ID)

	result, err := session.Run(ctx)
	if err != nil {
		opsf("[Calibration] Session %s failed: %v", session.ID, err)
		if session.Retryable() {
			// A failed fit keeps its collected samples; retain the session
			// so the fit can be retried without re-collecting.
			e.mu.Lock()
			e.pendingFit = session
			e.mu.Unlock()
			diagf("[Calibration] Session %s retained for fit retry", session.ID)
		}
		return nil, err
	}

	e.mu.Lock()
	e.pendingFit = nil
	e.mu.Unlock()

	diagf("[Calibration] Session %s complete: mean residual %.1f px over %d samples",
		session.ID, result.MeanResidualPx, result.SampleCount)
	e.recordFit(session.ID, result)
	return result, nil
}

// RetryCalibrationFit re-runs the mapper fit over the samples retained from
// the most recent failed calibration, without re-collecting. Errors when no
// failed session is pending or when the engine is busy.
func (e *Engine) RetryCalibrationFit() (*CalibrationResult, error) {
	e.mu.Lock()
	if e.mode != modeIdle {
		mode := e.mode
		e.mu.Unlock()
		return nil, fmt.Errorf("cannot retry calibration fit while %s", mode)
	}
	session := e.pendingFit
	e.mu.Unlock()
	if session == nil {
		return nil, fmt.Errorf("no failed calibration session to retry")
	}

	result, err := session.RetryFit()
	if err != nil {
		opsf("[Calibration] Session %s fit retry failed: %v", session.ID, err)
		return nil, err
	}

	e.mu.Lock()
	e.pendingFit = nil
	e.mu.Unlock()

	diagf("[Calibration] Session %s fit retry succeeded: mean residual %.1f px over %d samples",
		session.ID, result.MeanResidualPx, result.SampleCount)
	e.recordFit(session.ID, result)
	return result, nil
}

func (e *Engine) recordFit(sessionID string, result *CalibrationResult) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordFit(sessionID, result.MeanResidualPx, result.SampleCount, e.cfg.ScreenW, e.cfg.ScreenH); err != nil {
		opsf("[Calibration] Failed to record fit: %v", err)
	}
}

// CancelCalibration aborts an in-flight calibration session, discarding all
// collected samples. No-op when no session is capturing.
func (e *Engine) CancelCalibration() {
	e.mu.Lock()
	session := e.session
	e.mu.Unlock()
	if session != nil {
		session.Cancel()
	}
}

// SetClickEnabled toggles blink-click actuation. Mapping and cursor motion
// continue regardless.
func (e *Engine) SetClickEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clickEnabled = enabled
	diagf("[Tracking] Click actuation %v", enabled)
}

// SetSensitivity updates the fallback margin fraction. Larger margins make
// smaller head motion cover the full screen. Takes effect on the next frame
// without restarting the loop.
func (e *Engine) SetSensitivity(marginFraction float64) error {
	if marginFraction < 0 || marginFraction >= 0.5 {
		return fmt.Errorf("margin fraction must be in [0, 0.5), got %v", marginFraction)
	}
	e.mapper.SetFallbackMargin(marginFraction)
	diagf("[Tracking] Sensitivity margin set to %.3f", marginFraction)
	return nil
}

func (e *Engine) currentPolicyNameLocked() string {
	return SelectPolicy(e.mapper, e.fallbackPolicy()).Name()
}

// Status returns a control-surface snapshot of the engine.
func (e *Engine) Status() EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EngineStatus{
		Active:           e.mode == modeTracking,
		Calibrated:       e.mapper.Calibrated(),
		ClickCount:       e.arbiter.ClickCount(),
		Mode:             string(e.mode),
		Policy:           e.currentPolicyNameLocked(),
		ClickEnabled:     e.clickEnabled,
		MarginFraction:   e.mapper.FallbackMargin(),
		Frames:           e.framesTotal,
		NoFaceFrames:     e.noFaceFrames,
		BlinkCount:       e.blink.BlinkCount(),
		SuppressedClicks: e.arbiter.SuppressedCount(),
		FPS:              e.fps,
	}
}

// Close releases the capture source and stops any active loop. The source
// is closed before waiting on the loop so a loop blocked on a stalled
// stream cannot hold up teardown.
func (e *Engine) Close() error {
	e.CancelCalibration()
	err := e.source.Close()
	e.StopTracking()
	return err
}
