package gaze

// Feature is a scalar 2D feature extracted from a frame's landmarks.
// Both components are normalized camera coordinates in [0,1].
type Feature struct {
	X float64
	Y float64
}

// HeadFeature returns the head-position feature: the raw head-reference
// landmark projected to 2D. This is the input to both the calibrated
// polynomial mapping and the linear margin fallback.
func HeadFeature(f *FaceFrame) Feature {
	return Feature{X: f.Head.X, Y: f.Head.Y}
}

// irisOffset computes the iris centroid position relative to the eye's
// bounding box, clamped to [0,1] per axis. 0.5 means centred; values toward
// 0 or 1 mean the iris is displaced toward the respective edge.
func irisOffset(iris *Iris, eye EyeContour) Feature {
	c := iris.Centroid()

	pts := [6]Point{eye.Outer, eye.Upper1, eye.Upper2, eye.Inner, eye.Lower1, eye.Lower2}
	minX, maxX := pts[0].X, pts[0].X
	minY, maxY := pts[0].Y, pts[0].Y
	for _, p := range pts[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}

	w := maxX - minX
	h := maxY - minY
	if w <= 0 || h <= 0 {
		return Feature{X: 0.5, Y: 0.5}
	}
	return Feature{
		X: clamp01((c.X - minX) / w),
		Y: clamp01((c.Y - minY) / h),
	}
}

// IrisOffsetFeature averages the per-eye iris offsets into a single gaze
// direction feature. Returns ok=false when either iris cluster is missing,
// in which case callers fall back to the head feature alone.
func IrisOffsetFeature(f *FaceFrame) (Feature, bool) {
	if f.LeftIris == nil || f.RightIris == nil {
		return Feature{}, false
	}
	l := irisOffset(f.LeftIris, f.LeftEye)
	r := irisOffset(f.RightIris, f.RightEye)
	return Feature{X: (l.X + r.X) / 2, Y: (l.Y + r.Y) / 2}, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
