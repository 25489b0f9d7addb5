// Package app ties hand detection to the round engine: it owns the detection
// session, the round countdown task, manual input and event fan-out.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/roshambo/internal/detector"
	"github.com/ayusman/roshambo/internal/gesture"
	"github.com/ayusman/roshambo/internal/logging"
	"github.com/ayusman/roshambo/internal/round"
)

// Defaults for the game controller.
const (
	DefaultTickInterval    = time.Second
	DefaultMaxInitAttempts = 3
)

// SourceFactory builds a fresh Source for every detection session.
type SourceFactory func() (Source, error)

// Config holds configuration options for the application.
type Config struct {
	NewSource  SourceFactory
	Classifier gesture.Classifier
	Stabilizer gesture.StabilizerConfig

	Interval        time.Duration
	FrameTimeout    time.Duration
	MaxInitAttempts int

	Countdown    int
	TickInterval time.Duration
	Opponent     round.Opponent

	Logger *zap.Logger
}

// session is one run of the detection loop with its own stabilizer.
type session struct {
	id     string
	source Source
	stab   *gesture.Stabilizer
	loop   *Loop
}

// MoveView is the player's current move as seen by the game.
type MoveView struct {
	Raw    gesture.Label       `json:"raw"`
	Stable gesture.StableState `json:"stable"`
	Manual gesture.Label       `json:"manual"`
	// Effective is the move a round resolving now would use.
	Effective gesture.Label `json:"effective"`
}

// GameState is a snapshot for clients.
type GameState struct {
	Round     round.State     `json:"round"`
	Move      MoveView        `json:"move"`
	Detection DetectionStatus `json:"detection"`
}

// App is the game controller for one game instance.
type App struct {
	cfg    Config
	logger *zap.Logger
	inst   *instruments
	engine *round.Engine

	// lifecycle serializes starting and stopping detection sessions.
	lifecycle sync.Mutex

	mu          sync.Mutex
	session     *session
	attempts    int
	lastErr     error
	lastRaw     gesture.Label
	lastHand    *detector.HandLandmarks
	roundCancel context.CancelFunc
	roundDone   chan struct{}

	subsMu  sync.RWMutex
	subs    map[int]Subscriber
	nextSub int
}

// New creates an App with an Idle engine and no detection session.
func New(cfg Config) (*App, error) {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.MaxInitAttempts <= 0 {
		cfg.MaxInitAttempts = DefaultMaxInitAttempts
	}
	if cfg.Opponent == nil {
		cfg.Opponent = round.NewRandomOpponent()
	}
	if cfg.Classifier == nil {
		cfg.Classifier = gesture.PredicateClassifier{ThumbMargin: gesture.DefaultCalibration().ThumbMargin}
	}

	inst, err := newInstruments()
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:    cfg,
		logger: logging.OrNop(cfg.Logger).Named("app"),
		inst:   inst,
		subs:   make(map[int]Subscriber),
	}
	a.engine = round.NewEngine(round.Config{
		Countdown: cfg.Countdown,
		OnState:   a.onRoundState,
		OnResult:  a.onRoundResult,
	}, a, cfg.Opponent)

	return a, nil
}

// Current implements round.MoveReader with the session's stabilized move.
func (a *App) Current() gesture.Label {
	a.mu.Lock()
	sess := a.session
	a.mu.Unlock()

	if sess == nil {
		return gesture.None
	}
	return sess.stab.Current()
}

// StartDetection starts a detection session. It is a no-op while a session
// runs. Consecutive failed starts count against MaxInitAttempts; once they
// are used up every call returns ErrInitAttemptsExhausted. A successful start
// resets the count. The session outlives ctx and ends with StopDetection or
// Stop.
func (a *App) StartDetection(ctx context.Context) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	a.mu.Lock()
	if a.session != nil {
		a.mu.Unlock()
		return nil
	}
	if a.attempts >= a.cfg.MaxInitAttempts {
		a.mu.Unlock()
		return ErrInitAttemptsExhausted
	}
	a.mu.Unlock()

	if a.cfg.NewSource == nil {
		return a.detectionFailed(errors.Join(ErrSourceUnavailable, errors.New("no landmark source configured")))
	}
	src, err := a.cfg.NewSource()
	if err != nil {
		return a.detectionFailed(errors.Join(ErrSourceUnavailable, err))
	}

	sess := &session{
		id:     uuid.NewString(),
		source: src,
		stab:   gesture.NewStabilizer(a.cfg.Stabilizer),
	}
	loop, err := StartLoop(context.WithoutCancel(ctx), src, LoopConfig{
		Interval:     a.cfg.Interval,
		FrameTimeout: a.cfg.FrameTimeout,
		Classifier:   a.cfg.Classifier,
		Stabilizer:   sess.stab,
		Logger:       a.logger,
		OnPoll:       a.inst.poll,
	}, func(f Frame) { a.onFrame(sess, f) })
	if err != nil {
		return a.detectionFailed(err)
	}
	sess.loop = loop

	a.mu.Lock()
	a.session = sess
	a.attempts = 0
	a.lastErr = nil
	a.lastHand = nil
	a.lastRaw = gesture.None
	a.mu.Unlock()

	a.inst.session(true)
	a.logger.Info("detection started", zap.String("session", sess.id))
	return nil
}

func (a *App) detectionFailed(err error) error {
	a.mu.Lock()
	a.attempts++
	a.lastErr = err
	attempts := a.attempts
	a.mu.Unlock()

	a.inst.session(false)
	a.logger.Warn("detection unavailable, use manual input",
		zap.Error(err), zap.Int("attempt", attempts), zap.Int("max_attempts", a.cfg.MaxInitAttempts))
	a.emit(EventDetectionUnavailable, DetectionStatus{Attempts: attempts, Error: err.Error()})
	return err
}

// StopDetection ends the detection session and releases the source. It is
// safe to call when no session runs.
func (a *App) StopDetection() {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	a.mu.Lock()
	sess := a.session
	a.session = nil
	a.mu.Unlock()

	if sess == nil {
		return
	}
	sess.loop.Cancel()
	a.logger.Info("detection stopped", zap.String("session", sess.id))
}

// RestartDetection replaces the detection session with a fresh one. The new
// session starts with an empty stabilizer history.
func (a *App) RestartDetection(ctx context.Context) error {
	a.StopDetection()
	return a.StartDetection(ctx)
}

func (a *App) onFrame(sess *session, f Frame) {
	a.mu.Lock()
	if a.session != sess {
		a.mu.Unlock()
		return
	}
	a.lastRaw = f.Raw
	if f.Hand != nil {
		a.lastHand = f.Hand
	}
	a.mu.Unlock()

	a.emit(EventMove, MoveUpdate{
		Session:     sess.id,
		Raw:         f.Raw,
		Stable:      f.Stable,
		HandVisible: f.Hand != nil,
	})
}

// StartRound begins a countdown. One tick fires every TickInterval until the
// round resolves.
func (a *App) StartRound() error {
	if err := a.engine.StartRound(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	a.mu.Lock()
	prev := a.roundCancel
	a.roundCancel, a.roundDone = cancel, done
	a.mu.Unlock()

	if prev != nil {
		prev()
	}
	go a.runCountdown(ctx, done)
	return nil
}

func (a *App) runCountdown(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}
		if _, resolved := a.engine.Tick(); resolved {
			return
		}
		if a.engine.State().Phase != round.Countdown {
			return
		}
	}
}

// cancelCountdown stops the countdown task and waits for it to exit.
func (a *App) cancelCountdown() {
	a.mu.Lock()
	cancel, done := a.roundCancel, a.roundDone
	a.roundCancel, a.roundDone = nil, nil
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Restart cancels any countdown, zeroes the scores and clears the manual move.
func (a *App) Restart() {
	a.cancelCountdown()
	a.engine.Restart()
	a.logger.Info("game restarted")
}

// SetManualMove overrides the detected move. It is refused during a countdown.
func (a *App) SetManualMove(l gesture.Label) error {
	return a.engine.SetManualMove(l)
}

// Stop aborts any countdown without scoring and ends detection.
func (a *App) Stop() {
	a.cancelCountdown()
	if a.engine.Abort() {
		a.logger.Info("countdown aborted")
	}
	a.StopDetection()
}

func (a *App) onRoundState(st round.State) {
	a.emit(EventRoundState, st)
}

func (a *App) onRoundResult(res round.Result) {
	a.inst.resolved(res.Outcome)

	if res.Outcome == round.NoMove {
		a.logger.Info("round ended without a move", zap.Int("round", res.Round))
		a.emit(EventRoundNoMove, res)
		return
	}

	a.logger.Info("round resolved",
		zap.Int("round", res.Round),
		zap.Stringer("outcome", res.Outcome),
		zap.Stringer("player", res.PlayerMove),
		zap.Stringer("opponent", res.OpponentMove),
		zap.Int("player_score", res.Score.Player),
		zap.Int("opponent_score", res.Score.Opponent),
	)
	a.emit(EventRoundResolved, res)
}

// Move returns the player's current move.
func (a *App) Move() MoveView {
	a.mu.Lock()
	sess := a.session
	raw := a.lastRaw
	a.mu.Unlock()

	v := MoveView{Raw: raw, Manual: a.engine.State().Manual}
	if sess != nil {
		v.Stable = sess.stab.State()
	}
	v.Effective = v.Manual
	if v.Effective == gesture.None {
		v.Effective = v.Stable.Label
	}
	return v
}

// Detection reports the detection session status.
func (a *App) Detection() DetectionStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := DetectionStatus{Attempts: a.attempts}
	if a.session != nil {
		st.Running = true
		st.Session = a.session.id
	}
	if a.lastErr != nil {
		st.Error = a.lastErr.Error()
	}
	return st
}

// State returns a snapshot of the whole game.
func (a *App) State() GameState {
	return GameState{
		Round:     a.engine.State(),
		Move:      a.Move(),
		Detection: a.Detection(),
	}
}

// LastHand returns the most recent hand seen in this session.
func (a *App) LastHand() (detector.HandLandmarks, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastHand == nil {
		return detector.HandLandmarks{}, false
	}
	return *a.lastHand, true
}

// Classify runs the configured classifier on a single hand.
func (a *App) Classify(h *detector.HandLandmarks) gesture.Label {
	return a.cfg.Classifier.Classify(h)
}

// Snapshot returns the latest camera frame of the session, if the source
// keeps one. The caller closes the returned Mat.
func (a *App) Snapshot() (gocv.Mat, bool) {
	a.mu.Lock()
	sess := a.session
	a.mu.Unlock()

	if sess == nil {
		return gocv.Mat{}, false
	}
	snap, ok := sess.source.(interface{ Snapshot() (gocv.Mat, bool) })
	if !ok {
		return gocv.Mat{}, false
	}
	return snap.Snapshot()
}
