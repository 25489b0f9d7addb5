package app

import "errors"

var (
	// ErrSourceUnavailable means the camera or estimator failed to load. It is
	// terminal for the detection session; manual input keeps working.
	ErrSourceUnavailable = errors.New("hand detection unavailable")
	// ErrNotReady is returned by a source polled before Load succeeded.
	ErrNotReady = errors.New("landmark source not ready")
	// ErrFrameDropped marks a single failed or timed-out estimate. The loop
	// treats it as a frame without a hand.
	ErrFrameDropped = errors.New("frame dropped")
	// ErrInitAttemptsExhausted is returned once detection failed to start
	// more often than detection.maxInitAttempts allows.
	ErrInitAttemptsExhausted = errors.New("detection re-init attempts exhausted")
)
