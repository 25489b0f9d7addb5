// Command announce is an outcome hook that speaks each round result. It uses
// the macOS say command or spd-say on Linux; without either it only reports
// the phrase back.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Request represents the input from the plugin executor.
type Request struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type result struct {
	Outcome      string `json:"outcome"`
	PlayerMove   string `json:"player_move"`
	OpponentMove string `json:"opponent_move"`
	Score        struct {
		Player   int `json:"player"`
		Opponent int `json:"opponent"`
	} `json:"score"`
}

// speakers are tried in order.
var speakers = []string{"say", "spd-say"}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}
	if req.Event != "round.resolved" {
		writeErrorResponse(fmt.Sprintf("unsupported event: %s", req.Event))
		return
	}

	var res result
	if err := json.Unmarshal(req.Data, &res); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode result: %v", err))
		return
	}

	text, err := phrase(res)
	if err != nil {
		writeErrorResponse(err.Error())
		return
	}

	spoken := false
	if os.Getenv("ANNOUNCE_SILENT") == "" {
		if err := speak(text); err != nil && !errors.Is(err, exec.ErrNotFound) {
			writeErrorResponse(fmt.Sprintf("speak failed: %v", err))
			return
		} else if err == nil {
			spoken = true
		}
	}

	data, _ := json.Marshal(map[string]any{"phrase": text, "spoken": spoken})
	json.NewEncoder(os.Stdout).Encode(Response{Success: true, Data: data})
}

// phrase turns a round result into one spoken sentence.
func phrase(res result) (string, error) {
	var lead string
	switch res.Outcome {
	case "player_win":
		lead = fmt.Sprintf("You win. %s beats %s.", title(res.PlayerMove), res.OpponentMove)
	case "opponent_win":
		lead = fmt.Sprintf("You lose. %s beats %s.", title(res.OpponentMove), res.PlayerMove)
	case "tie":
		lead = fmt.Sprintf("Draw. You both played %s.", res.PlayerMove)
	default:
		return "", fmt.Errorf("unknown outcome: %q", res.Outcome)
	}
	return fmt.Sprintf("%s Score %d to %d.", lead, res.Score.Player, res.Score.Opponent), nil
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func speak(text string) error {
	for _, name := range speakers {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		output, err := exec.Command(path, text).CombinedOutput()
		if err != nil {
			return fmt.Errorf("%w: %s", err, string(output))
		}
		return nil
	}
	return exec.ErrNotFound
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}
