package app

import (
	"time"

	"github.com/ayusman/roshambo/internal/gesture"
)

// EventType names an event published to subscribers.
type EventType string

const (
	EventMove                 EventType = "move"
	EventRoundState           EventType = "round.state"
	EventRoundResolved        EventType = "round.resolved"
	EventRoundNoMove          EventType = "round.no_move"
	EventDetectionUnavailable EventType = "detection.unavailable"
)

// Event is delivered to every subscriber. Data holds a MoveUpdate,
// round.State, round.Result or DetectionStatus depending on Type.
type Event struct {
	Type EventType `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// MoveUpdate is published after every detection poll.
type MoveUpdate struct {
	Session     string              `json:"session"`
	Raw         gesture.Label       `json:"raw"`
	Stable      gesture.StableState `json:"stable"`
	HandVisible bool                `json:"hand_visible"`
}

// DetectionStatus describes the detection session.
type DetectionStatus struct {
	Running  bool   `json:"running"`
	Session  string `json:"session,omitempty"`
	Attempts int    `json:"failed_attempts"`
	Error    string `json:"error,omitempty"`
}

// Subscriber receives events on the goroutine that produced them. It must not
// block and must not call back into the App synchronously.
type Subscriber func(Event)

func (a *App) emit(t EventType, data any) {
	ev := Event{Type: t, At: time.Now(), Data: data}

	a.subsMu.RLock()
	subs := make([]Subscriber, 0, len(a.subs))
	for _, s := range a.subs {
		subs = append(subs, s)
	}
	a.subsMu.RUnlock()

	for _, s := range subs {
		s(ev)
	}
}

// Subscribe registers fn and returns a function that removes it.
func (a *App) Subscribe(fn Subscriber) (unsubscribe func()) {
	a.subsMu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = fn
	a.subsMu.Unlock()

	return func() {
		a.subsMu.Lock()
		delete(a.subs, id)
		a.subsMu.Unlock()
	}
}
