// Package detector provides hand landmark types and the landmark estimators
// that feed gesture classification.
package detector

import (
	"errors"
	"fmt"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// ErrInvalidLandmarks is returned when a landmark set does not hold exactly
// NumLandmarks points. A partial hand is a contract violation, not a frame
// without a hand.
var ErrInvalidLandmarks = errors.New("invalid landmark set")

// Point3D represents a 3D point in space with x, y, z coordinates.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandLandmarks represents the 21 joints of one detected hand in one frame.
// A frame without a hand is a nil *HandLandmarks, never a partial set.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// NewHandLandmarks builds a landmark set from a slice of points.
// It fails with ErrInvalidLandmarks unless exactly NumLandmarks points are given.
func NewHandLandmarks(points []Point3D) (HandLandmarks, error) {
	var h HandLandmarks
	if len(points) != NumLandmarks {
		return h, fmt.Errorf("%w: got %d points, want %d", ErrInvalidLandmarks, len(points), NumLandmarks)
	}
	copy(h.Points[:], points)
	return h, nil
}
