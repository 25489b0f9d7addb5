package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ayusman/roshambo/internal/app"
	"github.com/ayusman/roshambo/internal/gesture"
	"github.com/ayusman/roshambo/internal/round"
)

// Game is the game controller as seen by the HTTP layer.
type Game interface {
	State() app.GameState
	Move() app.MoveView
	StartRound() error
	Restart()
	SetManualMove(l gesture.Label) error
	RestartDetection(ctx context.Context) error
}

// GameHandler serves round control and the current move.
type GameHandler struct {
	game Game
}

// NewGameHandler creates a GameHandler for g.
func NewGameHandler(g Game) *GameHandler {
	return &GameHandler{game: g}
}

// Register adds the game routes to mux.
func (h *GameHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/game", h.state)
	mux.HandleFunc("POST /api/game/start", h.start)
	mux.HandleFunc("POST /api/game/restart", h.restart)
	mux.HandleFunc("POST /api/game/move", h.move)
	mux.HandleFunc("GET /api/move", h.currentMove)
	mux.HandleFunc("POST /api/detection/restart", h.restartDetection)
}

type moveRequest struct {
	Move string `json:"move"`
}

// state handles GET /api/game.
func (h *GameHandler) state(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.game.State())
}

// start handles POST /api/game/start.
func (h *GameHandler) start(w http.ResponseWriter, r *http.Request) {
	if err := h.game.StartRound(); err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.game.State())
}

// restart handles POST /api/game/restart.
func (h *GameHandler) restart(w http.ResponseWriter, r *http.Request) {
	h.game.Restart()
	writeJSON(w, http.StatusOK, h.game.State())
}

// move handles POST /api/game/move. An empty or "none" move hands control
// back to detection.
func (h *GameHandler) move(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	l, err := gesture.ParseLabel(req.Move)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.game.SetManualMove(l); err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.game.Move())
}

// currentMove handles GET /api/move.
func (h *GameHandler) currentMove(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.game.Move())
}

// restartDetection handles POST /api/detection/restart, a caller-triggered
// re-init bounded by the app's attempt budget.
func (h *GameHandler) restartDetection(w http.ResponseWriter, r *http.Request) {
	if err := h.game.RestartDetection(r.Context()); err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.game.State().Detection)
}

func writeGameError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, round.ErrRoundInProgress), errors.Is(err, round.ErrCountdownActive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrInitAttemptsExhausted):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, app.ErrSourceUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
