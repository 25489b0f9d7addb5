package detector

import (
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu      sync.Mutex
	hands   []HandLandmarks
	err     error
	loadErr error
	delay   time.Duration
	calls   int
	closed  int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands that will be returned by Detect.
func (m *MockDetector) SetHands(hands []HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetLoadError sets the error that will be returned by Load.
func (m *MockDetector) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

// SetDelay makes every Detect call block for d before answering.
func (m *MockDetector) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Load returns the configured load error.
func (m *MockDetector) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadErr
}

// Detect returns the pre-configured hands or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	m.mu.Lock()
	m.calls++
	delay, hands, err := m.delay, m.hands, m.err
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return hands, nil
}

// Close counts how many times the detector was closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

// Calls returns the number of Detect invocations.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed returns the number of Close invocations.
func (m *MockDetector) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// finger lays out one finger from its base joint, either pointing up
// (extended, tip well above the PIP joint) or folded back toward the palm.
func finger(h *HandLandmarks, base int, x float64, extended bool) {
	if extended {
		h.Points[base] = Point3D{X: x, Y: 0.68}
		h.Points[base+1] = Point3D{X: x, Y: 0.55}
		h.Points[base+2] = Point3D{X: x, Y: 0.45}
		h.Points[base+3] = Point3D{X: x, Y: 0.35}
		return
	}
	h.Points[base] = Point3D{X: x, Y: 0.68, Z: -0.02}
	h.Points[base+1] = Point3D{X: x, Y: 0.62, Z: -0.05}
	h.Points[base+2] = Point3D{X: x - 0.02, Y: 0.66, Z: -0.04}
	h.Points[base+3] = Point3D{X: x - 0.03, Y: 0.70, Z: -0.02}
}

// HandWith returns a right hand facing the camera with the given fingers
// extended. thumbOut pushes the thumb tip sideways past its IP joint.
func HandWith(thumbOut, index, middle, ring, pinky bool) HandLandmarks {
	h := HandLandmarks{
		Handedness: "Right",
		Score:      0.95,
	}

	h.Points[Wrist] = Point3D{X: 0.5, Y: 0.8}

	h.Points[ThumbCMC] = Point3D{X: 0.55, Y: 0.75}
	h.Points[ThumbMCP] = Point3D{X: 0.58, Y: 0.70}
	h.Points[ThumbIP] = Point3D{X: 0.60, Y: 0.66}
	if thumbOut {
		h.Points[ThumbTip] = Point3D{X: 0.70, Y: 0.62}
	} else {
		h.Points[ThumbTip] = Point3D{X: 0.59, Y: 0.64}
	}

	finger(&h, IndexMCP, 0.55, index)
	finger(&h, MiddleMCP, 0.50, middle)
	finger(&h, RingMCP, 0.45, ring)
	finger(&h, PinkyMCP, 0.40, pinky)

	return h
}

// RockLandmarks returns a closed fist.
func RockLandmarks() HandLandmarks {
	return HandWith(false, false, false, false, false)
}

// PaperLandmarks returns an open palm with every finger extended.
func PaperLandmarks() HandLandmarks {
	return HandWith(true, true, true, true, true)
}

// ScissorsLandmarks returns index and middle extended, ring and pinky curled.
func ScissorsLandmarks() HandLandmarks {
	return HandWith(false, true, true, false, false)
}

// PointingLandmarks returns only the index finger extended, which matches no gesture.
func PointingLandmarks() HandLandmarks {
	return HandWith(false, true, false, false, false)
}
