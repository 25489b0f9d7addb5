package app

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ayusman/roshambo/internal/round"
)

const instrumentationName = "github.com/ayusman/roshambo/internal/app"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// instruments are no-ops unless a global MeterProvider is installed.
type instruments struct {
	polls    metric.Int64Counter
	dropped  metric.Int64Counter
	rounds   metric.Int64Counter
	sessions metric.Int64Counter
}

func newInstruments() (*instruments, error) {
	m := meter()
	inst := &instruments{}

	var err error
	inst.polls, err = m.Int64Counter(
		"detection.polls",
		metric.WithDescription("Landmark estimates attempted by the detection loop"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating polls counter: %w", err)
	}

	inst.dropped, err = m.Int64Counter(
		"detection.frames.dropped",
		metric.WithDescription("Estimates that failed or timed out"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	inst.rounds, err = m.Int64Counter(
		"game.rounds",
		metric.WithDescription("Rounds that reached countdown zero, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rounds counter: %w", err)
	}

	inst.sessions, err = m.Int64Counter(
		"detection.sessions",
		metric.WithDescription("Detection session starts, by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sessions counter: %w", err)
	}

	return inst, nil
}

func (i *instruments) poll(err error) {
	ctx := context.Background()
	i.polls.Add(ctx, 1)
	if err != nil && !errors.Is(err, ErrNotReady) {
		i.dropped.Add(ctx, 1)
	}
}

func (i *instruments) resolved(o round.Outcome) {
	i.rounds.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", o.String())))
}

func (i *instruments) session(ok bool) {
	result := "started"
	if !ok {
		result = "unavailable"
	}
	i.sessions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
}
