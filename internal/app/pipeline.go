package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/roshambo/internal/detector"
	"github.com/ayusman/roshambo/internal/gesture"
	"github.com/ayusman/roshambo/internal/logging"
)

// Loop timing defaults.
const (
	// DefaultInterval is the minimum spacing between two estimates.
	DefaultInterval = 100 * time.Millisecond
	// DefaultFrameTimeout bounds a single estimate.
	DefaultFrameTimeout = 500 * time.Millisecond
)

// Frame is what the loop reports after every poll.
type Frame struct {
	Raw    gesture.Label
	Stable gesture.StableState
	// Hand is nil when no hand was visible or the frame was dropped.
	Hand *detector.HandLandmarks
	At   time.Time
}

// LoopConfig configures a detection loop.
type LoopConfig struct {
	Interval     time.Duration
	FrameTimeout time.Duration
	Classifier   gesture.Classifier
	Stabilizer   *gesture.Stabilizer
	Logger       *zap.Logger
	// OnPoll observes every poll outcome; used for metrics.
	OnPoll func(err error)
}

// Loop polls a Source, classifies the first hand and feeds the stabilizer.
// At most one estimate is ever in flight: polls run on the loop goroutine, so
// ticks that fire while an estimate is running are skipped, not queued.
type Loop struct {
	source Source
	cfg    LoopConfig
	onMove func(Frame)
	logger *zap.Logger

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// StartLoop loads source and starts polling it. onMove runs on the loop
// goroutine after every poll, including polls that produced no hand. A Load
// failure closes the source and returns an error wrapping
// ErrSourceUnavailable. Cancel stops the loop and closes the source.
func StartLoop(ctx context.Context, source Source, cfg LoopConfig, onMove func(Frame)) (*Loop, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.FrameTimeout <= 0 {
		cfg.FrameTimeout = DefaultFrameTimeout
	}
	if cfg.Classifier == nil {
		cfg.Classifier = gesture.PredicateClassifier{ThumbMargin: gesture.DefaultCalibration().ThumbMargin}
	}
	if cfg.Stabilizer == nil {
		cfg.Stabilizer = gesture.NewStabilizer(gesture.DefaultStabilizerConfig())
	}

	l := &Loop{
		source: source,
		cfg:    cfg,
		onMove: onMove,
		logger: logging.OrNop(cfg.Logger).Named("loop"),
		done:   make(chan struct{}),
	}

	if err := source.Load(ctx); err != nil {
		l.closeSource()
		close(l.done)
		if !errors.Is(err, ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}
		return nil, err
	}

	ctx, l.cancel = context.WithCancel(ctx)
	go l.run(ctx)

	return l, nil
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		if !l.poll(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll runs one estimate and reports whether the loop should continue.
func (l *Loop) poll(ctx context.Context) bool {
	fctx, cancel := context.WithTimeout(ctx, l.cfg.FrameTimeout)
	hand, err := l.source.Estimate(fctx)
	cancel()

	if ctx.Err() != nil {
		return false
	}
	if l.cfg.OnPoll != nil {
		l.cfg.OnPoll(err)
	}

	raw := gesture.None
	switch {
	case err == nil:
		if hand != nil {
			raw = l.cfg.Classifier.Classify(hand)
		}
	case errors.Is(err, ErrNotReady):
		hand = nil
		l.logger.Debug("source not ready")
	default:
		hand = nil
		l.logger.Debug("frame dropped", zap.Error(err))
	}

	l.cfg.Stabilizer.Step(raw)

	if l.onMove != nil {
		l.onMove(Frame{
			Raw:    raw,
			Stable: l.cfg.Stabilizer.State(),
			Hand:   hand,
			At:     time.Now(),
		})
	}
	return true
}

// Cancel stops polling, waits for the loop goroutine to exit and closes the
// source. It is safe to call more than once.
func (l *Loop) Cancel() {
	l.cancel()
	<-l.done
	l.closeSource()
}

// Done is closed when the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) closeSource() {
	l.closeOnce.Do(func() {
		if err := l.source.Close(); err != nil {
			l.logger.Warn("closing source", zap.Error(err))
		}
	})
}
