package gaze

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// calibrationScript builds the frame sequence for a full 9-point capture:
// exactly samplesPerPoint detected frames per target, with the head feature
// sitting on the target's normalized position. A no-face frame is
// interleaved before each point to exercise transient-gap skipping.
func calibrationScript(samplesPerPoint int) []*FaceFrame {
	var frames []*FaceFrame
	for _, tgt := range CalibrationTargets() {
		frames = append(frames, NoFaceFrame())
		for i := 0; i < samplesPerPoint; i++ {
			frames = append(frames, frameAt(tgt.NormX, tgt.NormY))
		}
	}
	return frames
}

// TestCalibrationSessionCompletes tests the full guided capture and the
// accuracy of the resulting mapping.
func TestCalibrationSessionCompletes(t *testing.T) {
	t.Parallel()
	const screenW, screenH = 1920, 1080

	source := NewScriptedSource(calibrationScript(3), 0, false)
	mapper := NewPolynomialMapper(screenW, screenH, 0.2)

	var progress []CalibrationProgress
	session := NewCalibrationSession(mapper, source, screenW, screenH, 3, func(p CalibrationProgress) {
		progress = append(progress, p)
	})

	require.Equal(t, SessionIdle, session.State())
	require.NoError(t, session.Arm())
	require.Equal(t, SessionAwaitingStart, session.State())

	result, err := session.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, SessionCompleted, session.State())

	assert.True(t, strings.HasPrefix(result.SessionID, "cal_"))
	assert.Equal(t, CalibrationPoints, result.SampleCount)
	assert.Less(t, result.MeanResidualPx, 1.0)
	assert.True(t, mapper.Calibrated())

	// 3 samples × 9 points of progress callbacks, in capture order.
	require.Len(t, progress, 27)
	assert.Equal(t, 0, progress[0].PointIndex)
	assert.Equal(t, 1, progress[0].SamplesDone)
	assert.Equal(t, 8, progress[26].PointIndex)
	assert.Equal(t, 3, progress[26].SamplesDone)

	// Evaluation at each grid feature lands within 5% of the target.
	for _, tgt := range CalibrationTargets() {
		x, y := mapper.Evaluate(Feature{X: tgt.NormX, Y: tgt.NormY})
		assert.InDelta(t, tgt.NormX*screenW, x, 0.05*screenW)
		assert.InDelta(t, tgt.NormY*screenH, y, 0.05*screenH)
	}
}

// TestCalibrationTargets tests the fixed 3×3 target grid.
func TestCalibrationTargets(t *testing.T) {
	t.Parallel()
	targets := CalibrationTargets()
	require.Len(t, targets[:], 9)

	// Row-major over {0.1, 0.5, 0.9}².
	assert.Equal(t, CalibrationTarget{NormX: 0.1, NormY: 0.1}, targets[0])
	assert.Equal(t, CalibrationTarget{NormX: 0.5, NormY: 0.1}, targets[1])
	assert.Equal(t, CalibrationTarget{NormX: 0.9, NormY: 0.1}, targets[2])
	assert.Equal(t, CalibrationTarget{NormX: 0.5, NormY: 0.5}, targets[4])
	assert.Equal(t, CalibrationTarget{NormX: 0.9, NormY: 0.9}, targets[8])
}

// TestCalibrationSessionCancel tests cooperative cancellation mid-capture.
func TestCalibrationSessionCancel(t *testing.T) {
	t.Parallel()
	const screenW, screenH = 1920, 1080

	// Looping source: the session would capture forever without cancel.
	source := NewScriptedSource([]*FaceFrame{frameAt(0.5, 0.5)}, 0, true)
	mapper := NewPolynomialMapper(screenW, screenH, 0.2)

	var session *CalibrationSession
	cancelled := false
	session = NewCalibrationSession(mapper, source, screenW, screenH, 3, func(p CalibrationProgress) {
		// Abort as soon as the second point starts collecting.
		if p.PointIndex == 1 && !cancelled {
			cancelled = true
			session.Cancel()
		}
	})

	require.NoError(t, session.Arm())
	_, err := session.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, SessionCancelled, session.State())
	assert.False(t, mapper.Calibrated())
}

// TestCalibrationSessionArmTwice tests that a session cannot be re-armed.
func TestCalibrationSessionArmTwice(t *testing.T) {
	t.Parallel()
	source := NewScriptedSource(calibrationScript(1), 0, false)
	session := NewCalibrationSession(NewPolynomialMapper(1920, 1080, 0.2), source, 1920, 1080, 1, nil)

	require.NoError(t, session.Arm())
	assert.Error(t, session.Arm())
}

// TestCalibrationSessionRunWithoutArm tests that Run demands an armed
// session.
func TestCalibrationSessionRunWithoutArm(t *testing.T) {
	t.Parallel()
	source := NewScriptedSource(calibrationScript(1), 0, false)
	session := NewCalibrationSession(NewPolynomialMapper(1920, 1080, 0.2), source, 1920, 1080, 1, nil)

	_, err := session.Run(context.Background())
	assert.Error(t, err)
}

// TestCalibrationSessionSourceExhausted tests that running out of frames
// mid-capture surfaces a capture failure.
func TestCalibrationSessionSourceExhausted(t *testing.T) {
	t.Parallel()
	// Only enough frames for four points.
	frames := calibrationScript(3)[:16]
	source := NewScriptedSource(frames, 0, false)
	session := NewCalibrationSession(NewPolynomialMapper(1920, 1080, 0.2), source, 1920, 1080, 3, nil)

	require.NoError(t, session.Arm())
	_, err := session.Run(context.Background())
	require.ErrorIs(t, err, ErrCaptureFailure)
}

// TestCalibrationContextCancel tests cancellation through the caller's
// context rather than the session's own Cancel.
func TestCalibrationContextCancel(t *testing.T) {
	t.Parallel()
	source := NewScriptedSource([]*FaceFrame{NoFaceFrame()}, 0, true)
	session := NewCalibrationSession(NewPolynomialMapper(1920, 1080, 0.2), source, 1920, 1080, 3, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, session.Arm())
	_, err := session.Run(ctx)
	require.Error(t, err)
}

// degenerateScript builds a full capture sequence in which every frame sits
// on the same head position, so the collected samples cannot support a fit.
func degenerateScript(samplesPerPoint int) []*FaceFrame {
	var frames []*FaceFrame
	for range CalibrationTargets() {
		for i := 0; i < samplesPerPoint; i++ {
			frames = append(frames, frameAt(0.5, 0.5))
		}
	}
	return frames
}

// TestCalibrationSessionRetryFit tests that a failed fit keeps the collected
// samples and that the fit can be re-run without re-collecting.
func TestCalibrationSessionRetryFit(t *testing.T) {
	t.Parallel()
	const screenW, screenH = 1920, 1080

	source := NewScriptedSource(degenerateScript(3), 0, false)
	mapper := NewPolynomialMapper(screenW, screenH, 0.2)
	session := NewCalibrationSession(mapper, source, screenW, screenH, 3, nil)

	require.NoError(t, session.Arm())
	_, err := session.Run(context.Background())
	require.ErrorIs(t, err, ErrDegenerateFit)
	assert.False(t, mapper.Calibrated())

	// Samples survive the failed fit.
	require.True(t, session.Retryable())

	// Retrying over the same degenerate samples fails the same way and
	// leaves the session retryable.
	_, err = session.RetryFit()
	require.ErrorIs(t, err, ErrDegenerateFit)
	require.True(t, session.Retryable())

	// Substitute a healthy sample set and retry: the fit completes without
	// another capture pass.
	session.mu.Lock()
	session.samples = gridSamples(screenW, screenH)
	session.mu.Unlock()

	result, err := session.RetryFit()
	require.NoError(t, err)
	require.Equal(t, SessionCompleted, session.State())
	assert.False(t, session.Retryable())
	assert.Less(t, result.MeanResidualPx, 1.0)
	assert.True(t, mapper.Calibrated())
}

// TestCalibrationSessionRetryFitRequiresFullCollection tests the guard
// against retrying a session that never finished collecting.
func TestCalibrationSessionRetryFitRequiresFullCollection(t *testing.T) {
	t.Parallel()
	session := NewCalibrationSession(NewPolynomialMapper(1920, 1080, 0.2), NewScriptedSource(nil, 0, false), 1920, 1080, 3, nil)

	_, err := session.RetryFit()
	require.Error(t, err)
	assert.False(t, session.Retryable())
}
