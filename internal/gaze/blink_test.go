package gaze

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEAR tests the eye aspect ratio on synthetic contours.
func TestEAR(t *testing.T) {
	t.Parallel()

	open := EAR(openEye())
	closed := EAR(closedEye())

	assert.InDelta(t, 0.333, open, 0.01)
	assert.Less(t, closed, 0.05)
	assert.Greater(t, open, closed)
}

// TestAverageEAR tests that both eyes contribute equally.
func TestAverageEAR(t *testing.T) {
	t.Parallel()
	f := &FaceFrame{
		FaceDetected: true,
		LeftEye:      openEye(),
		RightEye:     closedEye(),
	}
	want := (EAR(openEye()) + EAR(closedEye())) / 2
	assert.InDelta(t, want, AverageEAR(f), 1e-12)
}

// TestBlinkDetectorFires tests the edge-triggered blink: EAR below threshold
// for at least the minimum closed frames, then a reopening frame.
func TestBlinkDetectorFires(t *testing.T) {
	t.Parallel()
	d := NewBlinkDetector(3, 30, 0.6, 0.15)

	const closed, open = 0.05, 0.30

	// Three closed frames arm the detector without firing.
	for i := 0; i < 3; i++ {
		assert.False(t, d.Observe(closed), "closed frame %d must not fire", i)
	}
	assert.True(t, d.Armed())

	// The reopening frame fires exactly one blink.
	assert.True(t, d.Observe(open))
	assert.Equal(t, 1, d.BlinkCount())

	// The following open frame must not fire again.
	assert.False(t, d.Observe(open))
	assert.Equal(t, 1, d.BlinkCount())
}

// TestBlinkDetectorTooShort tests that closures shorter than the minimum do
// not produce a blink on reopening.
func TestBlinkDetectorTooShort(t *testing.T) {
	t.Parallel()
	d := NewBlinkDetector(3, 30, 0.6, 0.15)

	d.Observe(0.05)
	d.Observe(0.05)
	assert.False(t, d.Armed())
	assert.False(t, d.Observe(0.30), "2-frame closure must not fire")
	assert.Equal(t, 0, d.BlinkCount())
}

// TestBlinkDetectorLongClosure tests that a long closure still fires exactly
// once on reopening.
func TestBlinkDetectorLongClosure(t *testing.T) {
	t.Parallel()
	d := NewBlinkDetector(3, 30, 0.6, 0.15)

	for i := 0; i < 20; i++ {
		assert.False(t, d.Observe(0.05))
	}
	assert.True(t, d.Observe(0.30))
	assert.Equal(t, 1, d.BlinkCount())
}

// TestBlinkThresholdAdaptation tests that the threshold fixes at the
// baseline mean scaled by the configured factor.
func TestBlinkThresholdAdaptation(t *testing.T) {
	t.Parallel()
	d := NewBlinkDetector(3, 30, 0.6, 0.15)
	require.False(t, d.ThresholdFixed())

	// 30 qualifying open-eye samples at EAR 0.30.
	for i := 0; i < 30; i++ {
		d.Observe(0.30)
	}
	require.True(t, d.ThresholdFixed())
	assert.InDelta(t, 0.18, d.Threshold(), 1e-9)

	// Further samples must not move the fixed threshold.
	for i := 0; i < 10; i++ {
		d.Observe(0.45)
	}
	assert.InDelta(t, 0.18, d.Threshold(), 1e-9)
}

// TestBlinkAdaptationIgnoresClosedSamples tests that frames at or below the
// open-eye floor never enter the baseline.
func TestBlinkAdaptationIgnoresClosedSamples(t *testing.T) {
	t.Parallel()
	d := NewBlinkDetector(3, 30, 0.6, 0.15)

	// Closed-ish samples below the 0.2 floor do not count toward the
	// baseline, so the threshold stays at its initial value.
	for i := 0; i < 50; i++ {
		d.Observe(0.18)
	}
	assert.False(t, d.ThresholdFixed())
	assert.InDelta(t, 0.15, d.Threshold(), 1e-9)
}

// TestBlinkDetectorReset tests that Reset clears baseline, threshold, and
// counters.
func TestBlinkDetectorReset(t *testing.T) {
	t.Parallel()
	d := NewBlinkDetector(3, 30, 0.6, 0.15)
	for i := 0; i < 30; i++ {
		d.Observe(0.30)
	}
	for i := 0; i < 3; i++ {
		d.Observe(0.05)
	}
	d.Observe(0.30)
	require.Equal(t, 1, d.BlinkCount())
	require.True(t, d.ThresholdFixed())

	d.Reset()
	assert.Equal(t, 0, d.BlinkCount())
	assert.False(t, d.ThresholdFixed())
	assert.False(t, d.Armed())
	assert.InDelta(t, 0.15, d.Threshold(), 1e-9)
}
