package gaze

import "time"

// openEye returns a contour with EAR ≈ 0.333, well above the open-eye floor.
func openEye() EyeContour {
	return EyeContour{
		Outer:  Point{X: 0.30, Y: 0.50},
		Upper1: Point{X: 0.34, Y: 0.48},
		Upper2: Point{X: 0.38, Y: 0.48},
		Inner:  Point{X: 0.42, Y: 0.50},
		Lower1: Point{X: 0.34, Y: 0.52},
		Lower2: Point{X: 0.38, Y: 0.52},
	}
}

// closedEye returns a contour with EAR ≈ 0.017, well below any plausible
// blink threshold.
func closedEye() EyeContour {
	return EyeContour{
		Outer:  Point{X: 0.30, Y: 0.50},
		Upper1: Point{X: 0.34, Y: 0.499},
		Upper2: Point{X: 0.38, Y: 0.499},
		Inner:  Point{X: 0.42, Y: 0.50},
		Lower1: Point{X: 0.34, Y: 0.501},
		Lower2: Point{X: 0.38, Y: 0.501},
	}
}

// frameAt builds a detected face frame with the head feature at (x, y) and
// open eyes.
func frameAt(x, y float64) *FaceFrame {
	return frameWithEyes(x, y, openEye())
}

func frameWithEyes(x, y float64, eye EyeContour) *FaceFrame {
	return &FaceFrame{
		FaceDetected: true,
		Head:         Point{X: x, Y: y},
		LeftEye:      eye,
		RightEye:     eye,
		Timestamp:    time.Now(),
	}
}

// gridSamples builds one averaged calibration sample per 3×3 target with the
// head feature sitting exactly on the target's normalized position, so the
// ideal mapping is affine and a fit should reproduce it almost exactly.
func gridSamples(screenW, screenH int) []CalibrationSample {
	targets := CalibrationTargets()
	samples := make([]CalibrationSample, 0, len(targets))
	for _, tgt := range targets {
		samples = append(samples, CalibrationSample{
			Feature: Feature{X: tgt.NormX, Y: tgt.NormY},
			TargetX: tgt.NormX * float64(screenW),
			TargetY: tgt.NormY * float64(screenH),
		})
	}
	return samples
}
