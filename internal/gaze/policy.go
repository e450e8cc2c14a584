package gaze

// MappingPolicy turns a per-frame feature into a raw screen coordinate.
// Strategies are interchangeable at runtime: the tracking loop re-selects
// the active policy every frame, so loading a calibration model mid-session
// takes effect without restarting the loop.
type MappingPolicy interface {
	// Map returns the raw (unsmoothed) screen coordinate for one frame.
	Map(frame *FaceFrame) (x, y float64)
	// Name identifies the strategy for status reporting and event records.
	Name() string
}

// CalibratedPolicy maps the head feature through the fitted polynomial
// model. When the mapper is uncalibrated, Evaluate itself degrades to the
// linear margin mapping, so this policy is always safe to use.
type CalibratedPolicy struct {
	Mapper *PolynomialMapper
}

func (p *CalibratedPolicy) Map(frame *FaceFrame) (float64, float64) {
	return p.Mapper.Evaluate(HeadFeature(frame))
}

func (p *CalibratedPolicy) Name() string { return "calibrated" }

// LinearMarginPolicy is the margin-clipped linear projection used when no
// calibration model exists. It ignores any model the mapper may hold.
type LinearMarginPolicy struct {
	ScreenW        int
	ScreenH        int
	MarginFraction float64
}

func (p *LinearMarginPolicy) Map(frame *FaceFrame) (float64, float64) {
	return LinearMarginMap(HeadFeature(frame), p.ScreenW, p.ScreenH, p.MarginFraction)
}

func (p *LinearMarginPolicy) Name() string { return "linear-margin" }

// HeadIrisPolicy nudges the head feature by the iris offset before the
// margin projection, recovering some true gaze direction on top of head
// pose. IrisGain scales how far a fully-displaced iris (offset 0 or 1)
// shifts the effective feature. Frames without iris clusters fall back to
// the plain head feature.
type HeadIrisPolicy struct {
	ScreenW        int
	ScreenH        int
	MarginFraction float64
	IrisGain       float64
}

func (p *HeadIrisPolicy) Map(frame *FaceFrame) (float64, float64) {
	f := HeadFeature(frame)
	if iris, ok := IrisOffsetFeature(frame); ok {
		f.X = clamp01(f.X + (iris.X-0.5)*p.IrisGain)
		f.Y = clamp01(f.Y + (iris.Y-0.5)*p.IrisGain)
	}
	return LinearMarginMap(f, p.ScreenW, p.ScreenH, p.MarginFraction)
}

func (p *HeadIrisPolicy) Name() string { return "head-iris" }

// SelectPolicy returns the calibrated policy when the mapper holds a fitted
// model and the configured fallback otherwise. Called per frame by the
// tracking loop so strategy switches never require a loop restart.
func SelectPolicy(mapper *PolynomialMapper, fallback MappingPolicy) MappingPolicy {
	if mapper.Calibrated() {
		return &CalibratedPolicy{Mapper: mapper}
	}
	return fallback
}
