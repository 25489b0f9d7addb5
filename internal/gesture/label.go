// Package gesture turns hand landmarks into rock/paper/scissors labels and
// debounces the per-frame labels into a stable move.
package gesture

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownLabel is returned when parsing a string that names no label.
var ErrUnknownLabel = errors.New("unknown gesture label")

// Label is a discrete hand gesture. None means no confident gesture,
// including no hand in view.
type Label int

const (
	None Label = iota
	Rock
	Paper
	Scissors
)

// Moves lists the playable labels in a fixed order.
var Moves = [3]Label{Rock, Paper, Scissors}

func (l Label) String() string {
	switch l {
	case Rock:
		return "rock"
	case Paper:
		return "paper"
	case Scissors:
		return "scissors"
	default:
		return "none"
	}
}

// Beats reports whether l wins against other.
// Rock beats Scissors, Scissors beats Paper, Paper beats Rock.
func (l Label) Beats(other Label) bool {
	switch l {
	case Rock:
		return other == Scissors
	case Scissors:
		return other == Paper
	case Paper:
		return other == Rock
	}
	return false
}

// ParseLabel parses a label name, case-insensitively. "scissor" is accepted
// as an alias since older clients send it.
func ParseLabel(s string) (Label, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return None, nil
	case "rock", "r":
		return Rock, nil
	case "paper", "p":
		return Paper, nil
	case "scissors", "scissor", "s":
		return Scissors, nil
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownLabel, s)
}

// MarshalText implements encoding.TextMarshaler.
func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Label) UnmarshalText(text []byte) error {
	v, err := ParseLabel(string(text))
	if err != nil {
		return err
	}
	*l = v
	return nil
}
