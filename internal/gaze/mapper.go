package gaze

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// BasisTerms is the number of terms in the cubic polynomial basis
// [1, x, y, x², xy, y², x³, x²y, xy², y³].
const BasisTerms = 10

// MinFitSamples is the minimum usable sample count for a fit. Below this the
// cubic system is too underdetermined to produce a usable surface even as a
// minimum-norm solution.
const MinFitSamples = 6

// maxConditionNumber is the cutoff beyond which the least-squares solve is
// treated as numerically meaningless (duplicate or collinear features).
const maxConditionNumber = 1e12

var (
	// ErrUnderdeterminedFit indicates fewer than MinFitSamples were supplied.
	ErrUnderdeterminedFit = errors.New("underdetermined fit: not enough calibration samples")
	// ErrDegenerateFit indicates the feature set was collinear or duplicated
	// and the least-squares solve was numerically unstable.
	ErrDegenerateFit = errors.New("degenerate fit: calibration features are collinear or duplicated")
	// ErrPersistence indicates a calibration record could not be read or written.
	ErrPersistence = errors.New("calibration persistence failure")
)

// CalibrationSample pairs an averaged feature with its target screen
// coordinate in pixels.
type CalibrationSample struct {
	Feature Feature
	TargetX float64
	TargetY float64
}

// CalibrationModel is the fitted mapping state. Coefficient vectors are
// either both populated (Calibrated true) or the model does not exist;
// partial states cannot be constructed because Fit replaces the model
// wholesale. The training samples are retained for reproducibility and
// offline diagnostics.
type CalibrationModel struct {
	FeatureSamples [][2]float64        `json:"feature_samples"`
	TargetSamples  [][2]float64        `json:"target_samples"`
	CoefX          [BasisTerms]float64 `json:"coef_x"`
	CoefY          [BasisTerms]float64 `json:"coef_y"`
	ScreenW        int                 `json:"screen_w"`
	ScreenH        int                 `json:"screen_h"`
	Calibrated     bool                `json:"calibrated"`
}

// basis expands a 2D feature into the 10-term cubic feature vector.
func basis(x, y float64) [BasisTerms]float64 {
	return [BasisTerms]float64{
		1,
		x, y,
		x * x, x * y, y * y,
		x * x * x, x * x * y, x * y * y, y * y * y,
	}
}

// PolynomialMapper fits and evaluates the bivariate cubic regression from
// normalized features to screen pixels. The model is read-only during a
// tracking session and replaced wholesale by a successful Fit, so Evaluate
// is a pure function of (feature, model).
type PolynomialMapper struct {
	mu       sync.RWMutex
	screenW  int
	screenH  int
	fallback float64 // margin fraction for the uncalibrated linear mapping
	model    *CalibrationModel
}

// NewPolynomialMapper creates an uncalibrated mapper for the given screen
// dimensions. marginFraction controls the linear fallback mapping used until
// a model is fitted or loaded (see LinearMarginMap).
func NewPolynomialMapper(screenW, screenH int, marginFraction float64) *PolynomialMapper {
	return &PolynomialMapper{
		screenW:  screenW,
		screenH:  screenH,
		fallback: marginFraction,
	}
}

// Calibrated reports whether a fitted model is present.
func (m *PolynomialMapper) Calibrated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.model != nil && m.model.Calibrated
}

// SetFallbackMargin updates the margin fraction used by the uncalibrated
// linear mapping. Safe to call while a tracking loop is running.
func (m *PolynomialMapper) SetFallbackMargin(frac float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = frac
}

// FallbackMargin returns the current fallback margin fraction.
func (m *PolynomialMapper) FallbackMargin() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fallback
}

// Model returns a copy of the current calibration model, or nil when
// uncalibrated.
func (m *PolynomialMapper) Model() *CalibrationModel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.model == nil {
		return nil
	}
	copied := *m.model
	copied.FeatureSamples = append([][2]float64(nil), m.model.FeatureSamples...)
	copied.TargetSamples = append([][2]float64(nil), m.model.TargetSamples...)
	return &copied
}

// Fit solves two independent least-squares systems (one per screen axis)
// over the cubic basis and replaces the calibration model atomically. The
// prior model, if any, is retained unchanged on failure.
//
// Returns the mean Euclidean pixel residual over the training samples.
//
// With 9 calibration points and 10 basis terms the system is formally
// underdetermined; the truncated-SVD solve returns the minimum-norm
// solution, which reproduces the 3×3 grid targets exactly when the samples
// are noiseless.
func (m *PolynomialMapper) Fit(samples []CalibrationSample) (float64, error) {
	if len(samples) < MinFitSamples {
		return 0, fmt.Errorf("%w: got %d samples, need at least %d",
			ErrUnderdeterminedFit, len(samples), MinFitSamples)
	}
	if featureSpreadDegenerate(samples) {
		return 0, fmt.Errorf("%w: feature spread below resolvable minimum", ErrDegenerateFit)
	}

	n := len(samples)
	a := mat.NewDense(n, BasisTerms, nil)
	bx := mat.NewVecDense(n, nil)
	by := mat.NewVecDense(n, nil)
	for i, s := range samples {
		row := basis(s.Feature.X, s.Feature.Y)
		a.SetRow(i, row[:])
		bx.SetVec(i, s.TargetX)
		by.SetVec(i, s.TargetY)
	}

	coefX, err := solveAxis(a, bx)
	if err != nil {
		return 0, err
	}
	coefY, err := solveAxis(a, by)
	if err != nil {
		return 0, err
	}

	model := &CalibrationModel{
		FeatureSamples: make([][2]float64, n),
		TargetSamples:  make([][2]float64, n),
		CoefX:          coefX,
		CoefY:          coefY,
		ScreenW:        m.screenW,
		ScreenH:        m.screenH,
		Calibrated:     true,
	}
	for i, s := range samples {
		model.FeatureSamples[i] = [2]float64{s.Feature.X, s.Feature.Y}
		model.TargetSamples[i] = [2]float64{s.TargetX, s.TargetY}
	}

	// Mean pixel residual over the training set, computed against the new
	// coefficients before the model is published.
	var residualSum float64
	for _, s := range samples {
		px, py := evaluateModel(model, s.Feature, m.screenW, m.screenH)
		dx := px - s.TargetX
		dy := py - s.TargetY
		residualSum += math.Sqrt(dx*dx + dy*dy)
	}
	meanResidual := residualSum / float64(n)

	m.mu.Lock()
	m.model = model
	m.mu.Unlock()
	return meanResidual, nil
}

// solveAxis solves the least-squares system a·c = b for one screen axis as
// a minimum-norm SVD solve. The cubic basis sampled on a small grid is
// rank-deficient (only three distinct values per axis), so singular values
// below 1/maxConditionNumber of the largest are truncated rather than
// amplified into garbage coefficients.
func solveAxis(a *mat.Dense, b *mat.VecDense) ([BasisTerms]float64, error) {
	var coef [BasisTerms]float64
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return coef, fmt.Errorf("%w: singular value decomposition failed", ErrDegenerateFit)
	}
	rank := svd.Rank(1 / maxConditionNumber)
	if rank == 0 {
		return coef, fmt.Errorf("%w: design matrix has no resolvable rank", ErrDegenerateFit)
	}
	var c mat.VecDense
	svd.SolveVecTo(&c, b, rank)
	for i := 0; i < BasisTerms; i++ {
		v := c.AtVec(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return coef, fmt.Errorf("%w: non-finite coefficient", ErrDegenerateFit)
		}
		coef[i] = v
	}
	return coef, nil
}

// featureSpreadDegenerate detects duplicate or (near-)collinear feature
// sets before the solve. The smallest eigenvalue of the centered 2x2
// feature covariance is the variance along the thinnest axis of the point
// cloud; when it (almost) vanishes the features span a line or a point in
// any orientation, not just axis-aligned, and the regression cannot resolve
// a 2D surface.
func featureSpreadDegenerate(samples []CalibrationSample) bool {
	// Variance floor equivalent to ~1e-6 of feature spread.
	const minVariance = 1e-12

	n := float64(len(samples))
	var meanX, meanY float64
	for _, s := range samples {
		meanX += s.Feature.X
		meanY += s.Feature.Y
	}
	meanX /= n
	meanY /= n

	var sxx, syy, sxy float64
	for _, s := range samples {
		dx := s.Feature.X - meanX
		dy := s.Feature.Y - meanY
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	sxx /= n
	syy /= n
	sxy /= n

	disc := math.Sqrt((sxx-syy)*(sxx-syy) + 4*sxy*sxy)
	minEig := (sxx + syy - disc) / 2
	return minEig < minVariance
}

// evaluateModel computes the calibrated mapping for one feature and clamps
// both axes to the screen.
func evaluateModel(model *CalibrationModel, f Feature, screenW, screenH int) (float64, float64) {
	phi := basis(f.X, f.Y)
	var x, y float64
	for i := 0; i < BasisTerms; i++ {
		x += phi[i] * model.CoefX[i]
		y += phi[i] * model.CoefY[i]
	}
	return clampPixel(x, screenW), clampPixel(y, screenH)
}

func clampPixel(v float64, dim int) float64 {
	if v < 0 {
		return 0
	}
	if max := float64(dim - 1); v > max {
		return max
	}
	return v
}

// Evaluate maps a feature to a screen coordinate. Uncalibrated mappers fall
// back to the linear margin mapping so the cursor remains usable before the
// first calibration.
func (m *PolynomialMapper) Evaluate(f Feature) (float64, float64) {
	m.mu.RLock()
	model := m.model
	fallback := m.fallback
	m.mu.RUnlock()

	if model == nil {
		return LinearMarginMap(f, m.screenW, m.screenH, fallback)
	}
	return evaluateModel(model, f, m.screenW, m.screenH)
}

// LinearMarginMap is the uncalibrated fallback: strip a fixed fractional
// margin from each axis of the normalized feature, clamp to [0,1], then
// scale by the screen dimensions. A larger margin makes smaller head motion
// cover the full screen.
func LinearMarginMap(f Feature, screenW, screenH int, marginFraction float64) (float64, float64) {
	span := 1 - 2*marginFraction
	if span <= 0 {
		span = 1
		marginFraction = 0
	}
	nx := clamp01((f.X - marginFraction) / span)
	ny := clamp01((f.Y - marginFraction) / span)
	return clampPixel(nx*float64(screenW), screenW), clampPixel(ny*float64(screenH), screenH)
}

// Save serialises the full calibration model to a JSON file, creating parent
// directories as needed. Saving an uncalibrated mapper is an error.
func (m *PolynomialMapper) Save(path string) error {
	model := m.Model()
	if model == nil {
		return fmt.Errorf("%w: nothing to save, mapper is uncalibrated", ErrPersistence)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	data, err := json.MarshalIndent(model, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// Load reads a previously saved calibration model. A missing or corrupt file
// leaves the mapper uncalibrated and returns an ErrPersistence-wrapped error
// rather than crashing; callers typically log it and continue on the
// fallback mapping.
func (m *PolynomialMapper) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	var model CalibrationModel
	if err := json.Unmarshal(data, &model); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !model.Calibrated {
		return fmt.Errorf("%w: record at %s is not calibrated", ErrPersistence, path)
	}
	if model.ScreenW <= 0 || model.ScreenH <= 0 {
		return fmt.Errorf("%w: record at %s has invalid screen dimensions", ErrPersistence, path)
	}

	m.mu.Lock()
	m.model = &model
	m.screenW = model.ScreenW
	m.screenH = model.ScreenH
	m.mu.Unlock()
	return nil
}
