package gaze

// GazeSmoother turns raw per-frame mapped coordinates into a jitter-free
// cursor position using a rolling weighted average. Weights increase
// linearly from 0.5 on the oldest retained sample to 1.0 on the newest, so
// recent samples dominate while older samples still damp sudden motion.
//
// Not safe for concurrent use; it is owned by the single tracking loop.
type GazeSmoother struct {
	capacity int
	xs       []float64
	ys       []float64
}

const (
	smootherOldestWeight = 0.5
	smootherNewestWeight = 1.0
)

// NewGazeSmoother creates a smoother holding up to capacity samples.
// Capacity values below 1 are clamped to 1 (no smoothing).
func NewGazeSmoother(capacity int) *GazeSmoother {
	if capacity < 1 {
		capacity = 1
	}
	return &GazeSmoother{
		capacity: capacity,
		xs:       make([]float64, 0, capacity),
		ys:       make([]float64, 0, capacity),
	}
}

// Reset discards all buffered samples. Called at tracking-session start so a
// new session is not biased by the previous one's tail.
func (s *GazeSmoother) Reset() {
	s.xs = s.xs[:0]
	s.ys = s.ys[:0]
}

// Len returns the number of currently buffered samples.
func (s *GazeSmoother) Len() int { return len(s.xs) }

// Push appends a raw coordinate, evicting the oldest sample beyond capacity,
// and returns the weighted average over the buffer's current contents.
// Weights are recomputed over whatever length is buffered, so the first
// frames after a Reset use a shorter, still-weighted window rather than
// being biased by phantom entries.
func (s *GazeSmoother) Push(x, y float64) (float64, float64) {
	if len(s.xs) == s.capacity {
		copy(s.xs, s.xs[1:])
		copy(s.ys, s.ys[1:])
		s.xs = s.xs[:s.capacity-1]
		s.ys = s.ys[:s.capacity-1]
	}
	s.xs = append(s.xs, x)
	s.ys = append(s.ys, y)

	n := len(s.xs)
	if n == 1 {
		return x, y
	}

	step := (smootherNewestWeight - smootherOldestWeight) / float64(n-1)
	var sumX, sumY, sumW float64
	for i := 0; i < n; i++ {
		w := smootherOldestWeight + step*float64(i)
		sumX += s.xs[i] * w
		sumY += s.ys[i] * w
		sumW += w
	}
	return sumX / sumW, sumY / sumW
}
