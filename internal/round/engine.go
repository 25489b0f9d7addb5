// Package round runs the countdown-and-resolve state machine of a
// rock/paper/scissors game against a randomized opponent.
package round

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/roshambo/internal/gesture"
)

var (
	// ErrRoundInProgress is returned by StartRound while a countdown runs.
	ErrRoundInProgress = errors.New("round already in progress")
	// ErrCountdownActive is returned when a manual move arrives during a countdown.
	ErrCountdownActive = errors.New("moves are locked during the countdown")
)

// DefaultCountdown is the number of ticks from StartRound to resolution.
const DefaultCountdown = 3

// Phase is the coarse state of the engine.
type Phase int

const (
	Idle Phase = iota
	Countdown
	Resolved
)

func (p Phase) String() string {
	switch p {
	case Countdown:
		return "countdown"
	case Resolved:
		return "resolved"
	default:
		return "idle"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Outcome is the result of one round.
type Outcome int

const (
	NoMove Outcome = iota
	Tie
	PlayerWin
	OpponentWin
)

func (o Outcome) String() string {
	switch o {
	case Tie:
		return "tie"
	case PlayerWin:
		return "player_win"
	case OpponentWin:
		return "opponent_win"
	default:
		return "no_move"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Score counts rounds won by each side.
type Score struct {
	Player   int `json:"player"`
	Opponent int `json:"opponent"`
}

// Result describes one resolved round.
type Result struct {
	ID           string        `json:"id"`
	Round        int           `json:"round"`
	Outcome      Outcome       `json:"outcome"`
	PlayerMove   gesture.Label `json:"player_move"`
	OpponentMove gesture.Label `json:"opponent_move"`
	Score        Score         `json:"score"`
	ResolvedAt   time.Time     `json:"resolved_at"`
}

// State is a snapshot of the engine.
type State struct {
	Phase Phase `json:"phase"`
	// Remaining is the number of ticks left while Phase is Countdown.
	Remaining int           `json:"remaining"`
	Score     Score         `json:"score"`
	Manual    gesture.Label `json:"manual_move"`
	Round     int           `json:"round"`
	Last      *Result       `json:"last,omitempty"`
}

// MoveReader supplies the player's current stabilized move.
type MoveReader interface {
	Current() gesture.Label
}

// Opponent picks the opponent's move for a round.
type Opponent interface {
	Move() gesture.Label
}

// Config configures an Engine.
type Config struct {
	// Countdown is the number of ticks between StartRound and resolution.
	Countdown int
	// OnState is called after every state change.
	OnState func(State)
	// OnResult is called once per round that reaches countdown zero,
	// including rounds that end in NoMove.
	OnResult func(Result)
}

// Engine is the round state machine. It samples the player's move only when
// the countdown reaches zero and never waits on detection.
type Engine struct {
	cfg      Config
	moves    MoveReader
	opponent Opponent

	mu        sync.Mutex
	phase     Phase
	remaining int
	score     Score
	manual    gesture.Label
	round     int
	epoch     uint64
	last      *Result
}

// NewEngine creates an Engine in the Idle phase.
func NewEngine(cfg Config, moves MoveReader, opponent Opponent) *Engine {
	if cfg.Countdown <= 0 {
		cfg.Countdown = DefaultCountdown
	}
	return &Engine{
		cfg:      cfg,
		moves:    moves,
		opponent: opponent,
	}
}

// StartRound begins a countdown from Idle or Resolved.
func (e *Engine) StartRound() error {
	e.mu.Lock()
	if e.phase == Countdown {
		e.mu.Unlock()
		return ErrRoundInProgress
	}
	e.phase = Countdown
	e.remaining = e.cfg.Countdown
	e.round++
	e.epoch++
	st := e.snapshotLocked()
	e.mu.Unlock()

	e.emitState(st)
	return nil
}

// Tick advances the countdown by one step. When the countdown reaches zero the
// round resolves and the result is returned with ok set. Outside a countdown
// Tick does nothing.
func (e *Engine) Tick() (res Result, ok bool) {
	e.mu.Lock()
	if e.phase != Countdown {
		e.mu.Unlock()
		return Result{}, false
	}
	if e.remaining > 1 {
		e.remaining--
		st := e.snapshotLocked()
		e.mu.Unlock()
		e.emitState(st)
		return Result{}, false
	}
	epoch := e.epoch
	e.mu.Unlock()

	// The opponent and the detected move are read without holding the engine
	// lock; the stabilizer has its own.
	opp := e.opponent.Move()
	detected := gesture.None
	if e.moves != nil {
		detected = e.moves.Current()
	}

	e.mu.Lock()
	if e.phase != Countdown || e.epoch != epoch {
		// Aborted or restarted in between.
		e.mu.Unlock()
		return Result{}, false
	}
	res = e.resolveLocked(detected, opp)
	st := e.snapshotLocked()
	e.mu.Unlock()

	e.emitState(st)
	if e.cfg.OnResult != nil {
		e.cfg.OnResult(res)
	}
	return res, true
}

// resolveLocked settles the round. A manual move takes precedence over the
// detected one.
func (e *Engine) resolveLocked(detected, opp gesture.Label) Result {
	player := e.manual
	if player == gesture.None {
		player = detected
	}

	res := Result{
		ID:           uuid.NewString(),
		Round:        e.round,
		PlayerMove:   player,
		OpponentMove: opp,
		ResolvedAt:   time.Now(),
	}

	switch {
	case player == gesture.None:
		res.Outcome = NoMove
	case player == opp:
		res.Outcome = Tie
	case player.Beats(opp):
		res.Outcome = PlayerWin
		e.score.Player++
	default:
		res.Outcome = OpponentWin
		e.score.Opponent++
	}
	res.Score = e.score

	if res.Outcome == NoMove {
		e.phase = Idle
	} else {
		e.phase = Resolved
	}
	e.remaining = 0
	e.last = &res

	return res
}

// Abort stops a running countdown without touching the score.
// It reports whether a countdown was cancelled.
func (e *Engine) Abort() bool {
	e.mu.Lock()
	if e.phase != Countdown {
		e.mu.Unlock()
		return false
	}
	e.phase = Idle
	e.remaining = 0
	st := e.snapshotLocked()
	e.mu.Unlock()

	e.emitState(st)
	return true
}

// Restart zeroes the scores, clears the manual move and returns to Idle from any phase.
func (e *Engine) Restart() {
	e.mu.Lock()
	e.phase = Idle
	e.remaining = 0
	e.score = Score{}
	e.manual = gesture.None
	e.round = 0
	e.last = nil
	st := e.snapshotLocked()
	e.mu.Unlock()

	e.emitState(st)
}

// SetManualMove overrides the detected move for subsequent rounds. Passing
// None hands control back to detection. Manual moves are refused while a
// countdown runs.
func (e *Engine) SetManualMove(l gesture.Label) error {
	e.mu.Lock()
	if e.phase == Countdown {
		e.mu.Unlock()
		return ErrCountdownActive
	}
	e.manual = l
	st := e.snapshotLocked()
	e.mu.Unlock()

	e.emitState(st)
	return nil
}

// State returns a snapshot of the engine.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() State {
	st := State{
		Phase:     e.phase,
		Remaining: e.remaining,
		Score:     e.score,
		Manual:    e.manual,
		Round:     e.round,
	}
	if e.last != nil {
		last := *e.last
		st.Last = &last
	}
	return st
}

// emitState runs outside the lock so callbacks may query the engine.
func (e *Engine) emitState(st State) {
	if e.cfg.OnState != nil {
		e.cfg.OnState(st)
	}
}
