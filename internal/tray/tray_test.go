package tray

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ayusman/roshambo/internal/app"
	"github.com/ayusman/roshambo/internal/gesture"
	"github.com/ayusman/roshambo/internal/round"
)

func TestTray_HandleUpdatesLines(t *testing.T) {
	tr := New(nil, nil)

	move, status, score := tr.Lines()
	assert.Equal(t, "Move: no hand", move)
	assert.Equal(t, "Ready", status)
	assert.Equal(t, "Score: 0 - 0", score)

	tr.Handle(app.Event{Type: app.EventMove, At: time.Now(), Data: app.MoveUpdate{
		Raw:         gesture.Paper,
		Stable:      gesture.StableState{Label: gesture.Rock, Confidence: 0.7, Samples: 10},
		HandVisible: true,
	}})
	move, _, _ = tr.Lines()
	assert.Equal(t, "Move: rock", move, "the stable move is shown, not the raw one")

	tr.Handle(app.Event{Type: app.EventRoundState, Data: round.State{Phase: round.Countdown, Remaining: 2}})
	_, status, _ = tr.Lines()
	assert.Equal(t, "Countdown: 2", status)

	tr.Handle(app.Event{Type: app.EventRoundResolved, Data: round.Result{
		Outcome:      round.OpponentWin,
		PlayerMove:   gesture.Rock,
		OpponentMove: gesture.Paper,
		Score:        round.Score{Player: 1, Opponent: 2},
	}})
	_, status, score = tr.Lines()
	assert.Equal(t, "You lose: paper beats rock", status)
	assert.Equal(t, "Score: 1 - 2", score)

	tr.Handle(app.Event{Type: app.EventDetectionUnavailable, Data: app.DetectionStatus{Attempts: 1}})
	move, _, _ = tr.Lines()
	assert.Equal(t, "Camera unavailable", move)
}

func TestStatusLine(t *testing.T) {
	tie := round.Result{Outcome: round.Tie, PlayerMove: gesture.Scissors, OpponentMove: gesture.Scissors}

	tests := []struct {
		name string
		st   round.State
		want string
	}{
		{name: "idle", st: round.State{}, want: "Ready"},
		{name: "manual", st: round.State{Manual: gesture.Paper}, want: "Ready: paper"},
		{name: "countdown", st: round.State{Phase: round.Countdown, Remaining: 3}, want: "Countdown: 3"},
		{name: "resolved", st: round.State{Phase: round.Resolved, Last: &tie}, want: "Tie: both scissors"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusLine(tt.st))
		})
	}
}

func TestResultLine(t *testing.T) {
	assert.Equal(t, "You win: rock beats scissors", resultLine(round.Result{
		Outcome: round.PlayerWin, PlayerMove: gesture.Rock, OpponentMove: gesture.Scissors,
	}))
	assert.Equal(t, "No move detected", resultLine(round.Result{Outcome: round.NoMove}))
}
