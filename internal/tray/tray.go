// Package tray provides the desktop tray menu for the roshambo game.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"
	"go.uber.org/zap"

	"github.com/ayusman/roshambo/internal/app"
	"github.com/ayusman/roshambo/internal/gesture"
	"github.com/ayusman/roshambo/internal/logging"
	"github.com/ayusman/roshambo/internal/round"
)

// Controller is the part of the game the menu drives.
type Controller interface {
	StartRound() error
	Restart()
	SetManualMove(l gesture.Label) error
}

// Tray represents the system tray application.
type Tray struct {
	game   Controller
	logger *zap.Logger
	onQuit func()

	mu     sync.RWMutex
	move   string
	status string
	score  string

	// Menu items stored for later updates
	menuMove   *systray.MenuItem
	menuStatus *systray.MenuItem
	menuScore  *systray.MenuItem
}

// New creates a Tray that drives game.
func New(game Controller, logger *zap.Logger) *Tray {
	return &Tray{
		game:   game,
		logger: logging.OrNop(logger).Named("tray"),
		move:   moveLine(gesture.None, false),
		status: statusLine(round.State{}),
		score:  scoreLine(round.Score{}),
	}
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application. It must run on the main thread and
// blocks until Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit closes the tray and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Roshambo")
	systray.SetTooltip("Rock, paper, scissors")

	t.mu.Lock()
	t.menuMove = systray.AddMenuItem(t.move, "Detected move")
	t.menuMove.Disable()
	t.menuStatus = systray.AddMenuItem(t.status, "Round")
	t.menuStatus.Disable()
	t.menuScore = systray.AddMenuItem(t.score, "Score")
	t.menuScore.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuPlay := systray.AddMenuItem("Play", "Start a round")
	menuRock := systray.AddMenuItem("Rock", "Play rock")
	menuPaper := systray.AddMenuItem("Paper", "Play paper")
	menuScissors := systray.AddMenuItem("Scissors", "Play scissors")
	menuAuto := systray.AddMenuItem("Use Camera", "Play the detected move")
	systray.AddSeparator()

	menuRestart := systray.AddMenuItem("Restart", "Reset the score")
	menuQuit := systray.AddMenuItem("Quit", "Quit Roshambo")

	go func() {
		for {
			select {
			case <-menuPlay.ClickedCh:
				t.report("start round", t.game.StartRound())
			case <-menuRock.ClickedCh:
				t.report("manual move", t.game.SetManualMove(gesture.Rock))
			case <-menuPaper.ClickedCh:
				t.report("manual move", t.game.SetManualMove(gesture.Paper))
			case <-menuScissors.ClickedCh:
				t.report("manual move", t.game.SetManualMove(gesture.Scissors))
			case <-menuAuto.ClickedCh:
				t.report("manual move", t.game.SetManualMove(gesture.None))
			case <-menuRestart.ClickedCh:
				t.game.Restart()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) report(action string, err error) {
	if err != nil {
		t.logger.Info(action+" refused", zap.Error(err))
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// Handle updates the menu lines from game events. It is an app.Subscriber.
func (t *Tray) Handle(e app.Event) {
	switch data := e.Data.(type) {
	case app.MoveUpdate:
		t.set(&t.move, &t.menuMove, moveLine(data.Stable.Label, data.HandVisible))
	case round.State:
		t.set(&t.status, &t.menuStatus, statusLine(data))
		t.set(&t.score, &t.menuScore, scoreLine(data.Score))
	case round.Result:
		t.set(&t.status, &t.menuStatus, resultLine(data))
		t.set(&t.score, &t.menuScore, scoreLine(data.Score))
	case app.DetectionStatus:
		t.set(&t.move, &t.menuMove, "Camera unavailable")
	}
}

// set stores title in field and, once the menu exists, shows it on item.
func (t *Tray) set(field *string, item **systray.MenuItem, title string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if *field == title {
		return
	}
	*field = title
	if *item != nil {
		(*item).SetTitle(title)
	}
}

// Lines returns the current move, status and score lines.
func (t *Tray) Lines() (move, status, score string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.move, t.status, t.score
}

func moveLine(l gesture.Label, handVisible bool) string {
	if !handVisible {
		return "Move: no hand"
	}
	return "Move: " + l.String()
}

func statusLine(st round.State) string {
	switch st.Phase {
	case round.Countdown:
		return fmt.Sprintf("Countdown: %d", st.Remaining)
	case round.Resolved:
		if st.Last != nil {
			return resultLine(*st.Last)
		}
	}
	if st.Manual != gesture.None {
		return "Ready: " + st.Manual.String()
	}
	return "Ready"
}

func resultLine(res round.Result) string {
	switch res.Outcome {
	case round.PlayerWin:
		return fmt.Sprintf("You win: %s beats %s", res.PlayerMove, res.OpponentMove)
	case round.OpponentWin:
		return fmt.Sprintf("You lose: %s beats %s", res.OpponentMove, res.PlayerMove)
	case round.Tie:
		return fmt.Sprintf("Tie: both %s", res.PlayerMove)
	default:
		return "No move detected"
	}
}

func scoreLine(s round.Score) string {
	return fmt.Sprintf("Score: %d - %d", s.Player, s.Opponent)
}
