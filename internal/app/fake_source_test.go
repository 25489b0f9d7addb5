package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/roshambo/internal/detector"
)

// fakeSource is a scriptable Source that records how it was used.
type fakeSource struct {
	mu      sync.Mutex
	hand    *detector.HandLandmarks
	err     error
	loadErr error
	delay   time.Duration

	loads     int
	estimates int
	closes    int

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func newFakeSource(h *detector.HandLandmarks) *fakeSource {
	return &fakeSource{hand: h}
}

func handOf(h detector.HandLandmarks) *detector.HandLandmarks {
	return &h
}

func (f *fakeSource) setHand(h *detector.HandLandmarks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hand = h
}

func (f *fakeSource) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSource) Load(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return f.loadErr
}

func (f *fakeSource) Estimate(ctx context.Context) (*detector.HandLandmarks, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		m := f.maxInflight.Load()
		if n <= m || f.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.estimates++
	hand, err, delay := f.hand, f.err, f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ErrFrameDropped
		}
	}
	return hand, err
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeSource) counts() (loads, estimates, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads, f.estimates, f.closes
}
