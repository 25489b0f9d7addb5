package gesture

import (
	"errors"
	"fmt"
	"math"

	"github.com/ayusman/roshambo/internal/detector"
)

// ErrUnknownMode is returned by NewClassifier for an unrecognised mode.
var ErrUnknownMode = errors.New("unknown classifier mode")

// Classifier modes.
const (
	ModePredicate = "predicate"
	ModeMargin    = "margin"
)

// Classifier maps one frame's landmarks to a raw label.
// Implementations are pure: no state, no side effects.
type Classifier interface {
	// Classify returns None for a nil hand.
	Classify(hand *detector.HandLandmarks) Label
}

// Calibration holds the thresholds used by the classifiers. Units follow the
// landmark source; MediaPipe reports coordinates normalised to the frame.
type Calibration struct {
	// ThumbMargin is how far the thumb tip must sit past its IP joint along x
	// for the thumb to count as extended.
	ThumbMargin float64
	// LateralMargin and VerticalMargin drive the margin rule set.
	LateralMargin  float64
	VerticalMargin float64
}

// DefaultCalibration returns the reference thresholds.
func DefaultCalibration() Calibration {
	return Calibration{
		ThumbMargin:    0.03,
		LateralMargin:  0.075,
		VerticalMargin: 0.1,
	}
}

// NewClassifier returns the classifier for mode. The two rule sets are
// alternative calibrations and are never combined.
func NewClassifier(mode string, cal Calibration) (Classifier, error) {
	switch mode {
	case ModePredicate, "":
		return PredicateClassifier{ThumbMargin: cal.ThumbMargin}, nil
	case ModeMargin:
		return MarginClassifier{LateralMargin: cal.LateralMargin, VerticalMargin: cal.VerticalMargin}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}

// Fingers records which fingers are extended in a frame.
type Fingers struct {
	Thumb, Index, Middle, Ring, Pinky bool
}

// ExtendedFingers computes the five finger predicates. A finger other than the
// thumb is extended when its tip is above (smaller y than) its PIP joint. The
// thumb is extended when its tip lies more than thumbMargin past its IP joint
// along x, which assumes a right hand facing a mirrored camera.
func ExtendedFingers(h *detector.HandLandmarks, thumbMargin float64) Fingers {
	p := &h.Points
	return Fingers{
		Thumb:  p[detector.ThumbTip].X > p[detector.ThumbIP].X+thumbMargin,
		Index:  p[detector.IndexTip].Y < p[detector.IndexPIP].Y,
		Middle: p[detector.MiddleTip].Y < p[detector.MiddlePIP].Y,
		Ring:   p[detector.RingTip].Y < p[detector.RingPIP].Y,
		Pinky:  p[detector.PinkyTip].Y < p[detector.PinkyPIP].Y,
	}
}

// Gesture matches the finger pattern against the gestures in precedence
// order Rock, Scissors, Paper; anything else is None. The thumb never
// decides the outcome.
func (f Fingers) Gesture() Label {
	switch {
	case !f.Index && !f.Middle && !f.Ring && !f.Pinky:
		return Rock
	case f.Index && f.Middle && !f.Ring && !f.Pinky:
		return Scissors
	case f.Index && f.Middle && f.Ring && f.Pinky:
		return Paper
	default:
		return None
	}
}

// PredicateClassifier classifies from extended/curled finger predicates.
type PredicateClassifier struct {
	ThumbMargin float64
}

// Classify implements Classifier.
func (c PredicateClassifier) Classify(hand *detector.HandLandmarks) Label {
	if hand == nil {
		return None
	}
	return ExtendedFingers(hand, c.ThumbMargin).Gesture()
}

// MarginClassifier classifies from raw coordinate distances between joints.
// Rock when the index PIP sits below the thumb tip; Scissors when the thumb,
// ring and pinky tips line up within LateralMargin on x; Paper when the PIP
// row (and pinky DIP) is level within VerticalMargin and the thumb tip lies
// between the index MCP and PIP bands.
type MarginClassifier struct {
	LateralMargin  float64
	VerticalMargin float64
}

// Classify implements Classifier.
func (c MarginClassifier) Classify(hand *detector.HandLandmarks) Label {
	if hand == nil {
		return None
	}
	p := &hand.Points
	ms, mp := c.LateralMargin, c.VerticalMargin

	rock := p[detector.IndexPIP].Y > p[detector.ThumbTip].Y

	scissors := within(p[detector.ThumbTip].X, p[detector.RingTip].X, ms) &&
		within(p[detector.ThumbTip].X, p[detector.PinkyTip].X, ms) &&
		within(p[detector.RingTip].X, p[detector.PinkyTip].X, ms)

	row := [4]float64{
		p[detector.IndexPIP].Y,
		p[detector.MiddlePIP].Y,
		p[detector.RingPIP].Y,
		p[detector.PinkyDIP].Y,
	}
	paper := true
	for i := 0; i < len(row) && paper; i++ {
		for j := i + 1; j < len(row); j++ {
			if !within(row[i], row[j], mp) {
				paper = false
				break
			}
		}
	}
	thumbY := p[detector.ThumbTip].Y
	paper = paper && thumbY < p[detector.IndexMCP].Y+ms && thumbY > p[detector.IndexPIP].Y+ms

	switch {
	case rock:
		return Rock
	case scissors:
		return Scissors
	case paper:
		return Paper
	default:
		return None
	}
}

func within(a, b, margin float64) bool {
	return math.Abs(a-b) < margin
}
