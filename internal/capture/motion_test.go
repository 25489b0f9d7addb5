package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gocv.io/x/gocv"
)

func TestNewMotionDetector(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		want      float64
	}{
		{"explicit", 5.0, 5.0},
		{"zero uses default", 0, DefaultMotionThreshold},
		{"negative uses default", -2, DefaultMotionThreshold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := NewMotionDetector(tt.threshold)
			defer md.Close()

			assert.Equal(t, tt.want, md.threshold)
			assert.False(t, md.primed)
		})
	}
}

func TestMotionDetector_FirstFrameCounts(t *testing.T) {
	md := NewMotionDetector(1.0)
	defer md.Close()

	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()

	moved, pct := md.Changed(&frame)
	assert.True(t, moved)
	assert.Equal(t, 100.0, pct)
}

func TestMotionDetector_StillScene(t *testing.T) {
	md := NewMotionDetector(1.0)
	defer md.Close()

	a := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer a.Close()
	b := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer b.Close()

	md.Changed(&a)
	moved, pct := md.Changed(&b)

	assert.False(t, moved)
	assert.Zero(t, pct)
}

func TestMotionDetector_WithMotion(t *testing.T) {
	md := NewMotionDetector(1.0)
	defer md.Close()

	black := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer black.Close()
	white := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer white.Close()
	white.SetTo(gocv.NewScalar(255, 255, 255, 0))

	md.Changed(&black)
	moved, pct := md.Changed(&white)

	assert.True(t, moved)
	assert.Greater(t, pct, 50.0)
}

func TestMotionDetector_Reset(t *testing.T) {
	md := NewMotionDetector(1.0)
	defer md.Close()

	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()

	md.Changed(&frame)
	assert.True(t, md.primed)

	md.Reset()
	assert.False(t, md.primed)

	// The same frame counts as new after a reset.
	moved, _ := md.Changed(&frame)
	assert.True(t, moved)
}

func TestMotionDetector_EmptyFrame(t *testing.T) {
	md := NewMotionDetector(1.0)
	defer md.Close()

	moved, _ := md.Changed(nil)
	assert.False(t, moved)

	empty := gocv.NewMat()
	defer empty.Close()
	moved, _ = md.Changed(&empty)
	assert.False(t, moved)
}
