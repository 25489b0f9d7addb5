package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

const (
	// blurKernel is the Gaussian kernel size used to suppress sensor noise.
	blurKernel = 21
	// pixelDelta is the grey-level change that counts a pixel as moved.
	pixelDelta = 25
	// DefaultMotionThreshold is the percentage of moved pixels that counts as motion.
	DefaultMotionThreshold = 1.0
)

// MotionDetector compares consecutive frames and reports whether the scene
// changed enough to be worth another hand estimate.
type MotionDetector struct {
	mu        sync.Mutex
	threshold float64
	prev      gocv.Mat
	primed    bool
}

// NewMotionDetector creates a detector that reports motion once more than
// threshold percent of the pixels change. Non-positive thresholds use
// DefaultMotionThreshold.
func NewMotionDetector(threshold float64) *MotionDetector {
	if threshold <= 0 {
		threshold = DefaultMotionThreshold
	}
	return &MotionDetector{
		threshold: threshold,
		prev:      gocv.NewMat(),
	}
}

// Changed compares frame with the previous one and returns whether it moved
// along with the percentage of changed pixels. The first frame after
// construction or Reset always counts as changed.
func (m *MotionDetector) Changed(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: blurKernel, Y: blurKernel}, 0, 0, gocv.BorderDefault)

	if !m.primed || blurred.Rows() != m.prev.Rows() || blurred.Cols() != m.prev.Cols() {
		blurred.CopyTo(&m.prev)
		m.primed = true
		return true, 100
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prev, &diff)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(diff, &mask, pixelDelta, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(mask)) / float64(mask.Rows()*mask.Cols()) * 100.0
	blurred.CopyTo(&m.prev)

	return changed > m.threshold, changed
}

// Reset forgets the previous frame.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked()
}

// Close releases the stored frame.
func (m *MotionDetector) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked()
}

func (m *MotionDetector) releaseLocked() {
	m.prev.Close()
	m.prev = gocv.NewMat()
	m.primed = false
}
