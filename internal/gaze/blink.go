package gaze

// Eye Aspect Ratio constants. The epsilon guards against a zero horizontal
// span on degenerate contours.
const (
	earEpsilon = 1e-4

	// openEyeEARFloor is the EAR above which a frame counts as "eyes
	// clearly open" for baseline collection.
	openEyeEARFloor = 0.2
)

// EAR computes the Eye Aspect Ratio for one eye contour:
//
//	EAR = (‖upper1−lower1‖ + ‖upper2−lower2‖) / (2·‖outer−inner‖ + ε)
//
// Low values indicate a closed eye.
func EAR(eye EyeContour) float64 {
	v1 := eye.Upper1.Dist(eye.Lower1)
	v2 := eye.Upper2.Dist(eye.Lower2)
	h := eye.Outer.Dist(eye.Inner)
	return (v1 + v2) / (2*h + earEpsilon)
}

// AverageEAR returns the mean EAR across both eyes of a frame.
func AverageEAR(f *FaceFrame) float64 {
	return (EAR(f.LeftEye) + EAR(f.RightEye)) / 2
}

// BlinkDetector adapts a closed-eye threshold from the user's open-eye
// baseline, then runs an edge-triggered debounce state machine: a blink is
// emitted on the frame where the eyes REOPEN after at least
// MinClosedFrames consecutive below-threshold frames, never on closure
// onset. This rejects per-frame EAR noise and emits exactly one event per
// deliberate blink.
//
// Owned by the single tracking loop; not safe for concurrent use.
type BlinkDetector struct {
	// MinClosedFrames is the consecutive below-threshold frame count
	// required before a reopening counts as a blink.
	MinClosedFrames int

	// BaselineSamples is how many open-eye EAR samples are collected
	// before the threshold is fixed.
	BaselineSamples int

	// ThresholdScale multiplies the open-eye baseline mean to derive the
	// closed-eye threshold.
	ThresholdScale float64

	// InitialThreshold is used until the adaptive threshold is finalised.
	InitialThreshold float64

	baseline       []float64
	threshold      float64
	thresholdFixed bool
	closedFrames   int
	blinkCount     int
}

// NewBlinkDetector creates a detector with the supplied debounce and
// adaptation parameters.
func NewBlinkDetector(minClosedFrames, baselineSamples int, thresholdScale, initialThreshold float64) *BlinkDetector {
	return &BlinkDetector{
		MinClosedFrames:  minClosedFrames,
		BaselineSamples:  baselineSamples,
		ThresholdScale:   thresholdScale,
		InitialThreshold: initialThreshold,
		baseline:         make([]float64, 0, baselineSamples),
		threshold:        initialThreshold,
	}
}

// Reset clears all per-session state: the counter, the baseline samples, and
// the adapted threshold. Called at tracking-session start.
func (d *BlinkDetector) Reset() {
	d.baseline = d.baseline[:0]
	d.threshold = d.InitialThreshold
	d.thresholdFixed = false
	d.closedFrames = 0
	d.blinkCount = 0
}

// Threshold returns the currently effective closed-eye threshold.
func (d *BlinkDetector) Threshold() float64 { return d.threshold }

// ThresholdFixed reports whether the adaptive threshold has been finalised
// for this session.
func (d *BlinkDetector) ThresholdFixed() bool { return d.thresholdFixed }

// BlinkCount returns the number of blinks emitted since the last Reset.
func (d *BlinkDetector) BlinkCount() int { return d.blinkCount }

// Armed reports whether the closure counter has reached the debounce
// minimum, i.e. the next reopening frame will emit a blink.
func (d *BlinkDetector) Armed() bool { return d.closedFrames >= d.MinClosedFrames }

// adapt feeds one open-eye EAR sample into the baseline. Once
// BaselineSamples qualifying samples are collected the threshold is fixed
// at mean × ThresholdScale for the remainder of the session.
func (d *BlinkDetector) adapt(avgEAR float64) {
	if d.thresholdFixed || avgEAR <= openEyeEARFloor {
		return
	}
	d.baseline = append(d.baseline, avgEAR)
	if len(d.baseline) < d.BaselineSamples {
		return
	}
	var sum float64
	for _, v := range d.baseline {
		sum += v
	}
	d.threshold = (sum / float64(len(d.baseline))) * d.ThresholdScale
	d.thresholdFixed = true
}

// Observe runs one adaptation + detection step for a frame's averaged EAR
// and reports whether a blink event fired on this frame.
func (d *BlinkDetector) Observe(avgEAR float64) bool {
	d.adapt(avgEAR)

	if avgEAR < d.threshold {
		d.closedFrames++
		return false
	}

	armed := d.closedFrames >= d.MinClosedFrames
	d.closedFrames = 0
	if armed {
		d.blinkCount++
		return true
	}
	return false
}
