package gaze

import (
	"math"
	"time"
)

// Point is a normalized facial landmark coordinate. X and Y are in [0,1]
// relative to the camera frame; Z is an optional relative depth supplied by
// some landmark extractors and is zero when unavailable.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z,omitempty"`
}

// Dist returns the Euclidean distance between two landmark points,
// including the depth component when present.
func (p Point) Dist(q Point) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	dz := p.Z - q.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// EyeContour holds the six ordered contour landmarks of one eye:
// outer corner, two upper-lid points, inner corner, two lower-lid points.
// The ordering matches the standard EAR formulation.
type EyeContour struct {
	Outer  Point `json:"outer"`
	Upper1 Point `json:"upper1"`
	Upper2 Point `json:"upper2"`
	Inner  Point `json:"inner"`
	Lower1 Point `json:"lower1"`
	Lower2 Point `json:"lower2"`
}

// Iris holds the four iris cluster landmarks of one eye. Optional: frames
// from extractors without iris refinement leave it nil.
type Iris struct {
	Points [4]Point `json:"points"`
}

// Centroid returns the mean of the four iris landmarks.
func (ir *Iris) Centroid() Point {
	var c Point
	for _, p := range ir.Points {
		c.X += p.X
		c.Y += p.Y
		c.Z += p.Z
	}
	c.X /= 4
	c.Y /= 4
	c.Z /= 4
	return c
}

// FaceFrame is one frame's landmark set. It is ephemeral: the tracking loop
// owns it for the duration of one iteration and never retains it.
//
// FaceDetected false means the extractor found no face this frame; all other
// fields are then undefined and must not be read.
type FaceFrame struct {
	FaceDetected bool       `json:"face_detected"`
	Head         Point      `json:"head"` // head-reference landmark (nose tip or equivalent)
	LeftEye      EyeContour `json:"left_eye"`
	RightEye     EyeContour `json:"right_eye"`
	LeftIris     *Iris      `json:"left_iris,omitempty"`
	RightIris    *Iris      `json:"right_iris,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}
