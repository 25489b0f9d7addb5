package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/roshambo/internal/capture"
	"github.com/ayusman/roshambo/internal/detector"
	"github.com/ayusman/roshambo/internal/logging"
)

// Source produces hand landmarks for the detection loop.
type Source interface {
	// Load prepares the source. It is called once before the first Estimate.
	Load(ctx context.Context) error
	// Estimate returns the first visible hand, or nil when none is visible.
	Estimate(ctx context.Context) (*detector.HandLandmarks, error)
	// Close releases the source. Only the first call has an effect.
	Close() error
}

// closeWait bounds how long Close waits for a running estimate before it
// leaves the camera to be released when that estimate returns.
const closeWait = time.Second

// CameraSource estimates landmarks from webcam frames. Frames without enough
// motion reuse the previous estimate for up to ReuseWindow.
type CameraSource struct {
	camera   capture.Camera
	detector detector.Detector
	motion   *capture.MotionDetector
	reuse    time.Duration
	logger   *zap.Logger

	loaded atomic.Bool

	mu      sync.Mutex
	last    *detector.HandLandmarks
	lastAt  time.Time
	preview gocv.Mat
	closed  bool
	// running is closed when the estimate in flight returns. Nil when idle.
	running chan struct{}

	closeOnce   sync.Once
	closeErr    error
	releaseOnce sync.Once
	releaseErr  error
}

// CameraSourceConfig wires a CameraSource.
type CameraSourceConfig struct {
	Camera   capture.Camera
	Detector detector.Detector
	// MotionThreshold is the percentage of changed pixels counted as motion.
	MotionThreshold float64
	// ReuseWindow bounds how long a still scene reuses the last estimate.
	// Zero disables reuse.
	ReuseWindow time.Duration
	Logger      *zap.Logger
}

// NewCameraSource creates a source. Nothing is opened until Load.
func NewCameraSource(cfg CameraSourceConfig) *CameraSource {
	return &CameraSource{
		camera:   cfg.Camera,
		detector: cfg.Detector,
		motion:   capture.NewMotionDetector(cfg.MotionThreshold),
		reuse:    cfg.ReuseWindow,
		logger:   logging.OrNop(cfg.Logger).Named("source"),
		preview:  gocv.NewMat(),
	}
}

// Load opens the camera and starts the estimator.
func (s *CameraSource) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.camera.Open(); err != nil {
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if err := s.detector.Load(); err != nil {
		_ = s.camera.Close()
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	s.motion.Reset()
	s.loaded.Store(true)
	s.logger.Info("landmark source loaded")
	return nil
}

type estimate struct {
	hand *detector.HandLandmarks
	err  error
}

// Estimate reads one frame and runs the estimator on it, bounded by ctx.
// While an earlier estimate that outlived its context is still running, new
// calls return ErrFrameDropped instead of queueing behind it.
func (s *CameraSource) Estimate(ctx context.Context) (*detector.HandLandmarks, error) {
	if !s.loaded.Load() {
		return nil, ErrNotReady
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrNotReady
	}
	if s.running != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: estimator busy", ErrFrameDropped)
	}
	running := make(chan struct{})
	s.running = running
	s.mu.Unlock()

	done := make(chan estimate, 1)
	go func() {
		defer s.finish(running)
		hand, err := s.estimate()
		done <- estimate{hand: hand, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrFrameDropped, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFrameDropped, r.err)
		}
		return r.hand, nil
	}
}

// estimate does the blocking part of Estimate. Only one runs at a time.
func (s *CameraSource) estimate() (*detector.HandLandmarks, error) {
	frame, err := s.camera.ReadFrame()
	if err != nil {
		return nil, err
	}
	defer frame.Close()
	s.setPreview(frame)

	if moved, _ := s.motion.Changed(frame); !moved {
		if hand, ok := s.recent(); ok {
			return hand, nil
		}
	}

	hands, err := s.detector.Detect(frame)
	if err != nil {
		return nil, err
	}
	var hand *detector.HandLandmarks
	if len(hands) > 0 {
		h := hands[0]
		hand = &h
	}
	s.remember(hand)
	return hand, nil
}

// finish marks the estimate done. An estimate outliving Close releases the
// camera itself.
func (s *CameraSource) finish(running chan struct{}) {
	s.mu.Lock()
	s.running = nil
	closed := s.closed
	s.mu.Unlock()
	close(running)

	if closed {
		if err := s.release(); err != nil {
			s.logger.Warn("releasing camera", zap.Error(err))
		}
	}
}

func (s *CameraSource) recent() (*detector.HandLandmarks, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reuse <= 0 || s.lastAt.IsZero() || time.Since(s.lastAt) > s.reuse {
		return nil, false
	}
	return s.last, true
}

func (s *CameraSource) remember(hand *detector.HandLandmarks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = hand
	s.lastAt = time.Now()
}

func (s *CameraSource) setPreview(frame *gocv.Mat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		frame.CopyTo(&s.preview)
	}
}

// Snapshot returns a copy of the most recent frame. The caller closes it.
func (s *CameraSource) Snapshot() (gocv.Mat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.preview.Empty() {
		return gocv.Mat{}, false
	}
	return s.preview.Clone(), true
}

// Close releases the camera, motion state and estimator exactly once. The
// estimator is closed first so that a stuck estimate can fail. Close never
// waits longer than closeWait for a running estimate.
func (s *CameraSource) Close() error {
	s.closeOnce.Do(func() {
		s.loaded.Store(false)

		s.mu.Lock()
		s.closed = true
		running := s.running
		s.mu.Unlock()

		if err := s.detector.Close(); err != nil {
			s.closeErr = err
		}

		if running != nil {
			select {
			case <-running:
			case <-time.After(closeWait):
				s.logger.Warn("estimate still running, camera is released when it returns")
				return
			}
		}
		if err := s.release(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
		s.logger.Info("landmark source closed")
	})
	return s.closeErr
}

// release frees the camera, motion state and preview. It runs once, after
// the last estimate.
func (s *CameraSource) release() error {
	s.releaseOnce.Do(func() {
		s.releaseErr = s.camera.Close()
		s.motion.Close()

		s.mu.Lock()
		s.preview.Close()
		s.mu.Unlock()
	})
	return s.releaseErr
}
