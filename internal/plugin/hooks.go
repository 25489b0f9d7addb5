package plugin

import (
	"context"
	"encoding/json"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/roshambo/internal/app"
	"github.com/ayusman/roshambo/internal/logging"
)

const (
	hookQueueSize = 16
	// maxParallel bounds how many plugins run at once for one event.
	maxParallel = 4
)

// Hooks runs plugins for game events. Handle only queues, so a slow or
// failing plugin never affects the game.
type Hooks struct {
	manager  *Manager
	executor *Executor
	logger   *zap.Logger
	events   []string
	queue    chan app.Event
}

// NewHooks creates Hooks for the given event types. Without events only
// round.resolved is forwarded.
func NewHooks(m *Manager, e *Executor, logger *zap.Logger, events ...app.EventType) *Hooks {
	if len(events) == 0 {
		events = []app.EventType{app.EventRoundResolved}
	}
	h := &Hooks{
		manager:  m,
		executor: e,
		logger:   logging.OrNop(logger).Named("hooks"),
		queue:    make(chan app.Event, hookQueueSize),
	}
	for _, ev := range events {
		h.events = append(h.events, string(ev))
	}
	return h
}

// Handle queues e when some plugin wants it. It is an app.Subscriber.
func (h *Hooks) Handle(e app.Event) {
	if !slices.Contains(h.events, string(e.Type)) {
		return
	}
	if len(h.manager.ForEvent(string(e.Type))) == 0 {
		return
	}
	select {
	case h.queue <- e:
	default:
		h.logger.Warn("hook queue full, event dropped", zap.String("event", string(e.Type)))
	}
}

// Run dispatches queued events until ctx is done.
func (h *Hooks) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-h.queue:
			h.dispatch(ctx, e)
		}
	}
}

func (h *Hooks) dispatch(ctx context.Context, e app.Event) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		h.logger.Error("encode event", zap.String("event", string(e.Type)), zap.Error(err))
		return
	}
	req := &Request{Event: string(e.Type), Data: data}

	var g errgroup.Group
	g.SetLimit(maxParallel)
	for _, p := range h.manager.ForEvent(req.Event) {
		g.Go(func() error {
			h.run(ctx, p, req)
			return nil
		})
	}
	_ = g.Wait()
}

func (h *Hooks) run(ctx context.Context, p *Plugin, req *Request) {
	log := h.logger.With(zap.String("plugin", p.Manifest.Name), zap.String("event", req.Event))

	resp, err := h.executor.Execute(ctx, p, req)
	if err != nil {
		log.Warn("plugin failed", zap.Error(err))
		return
	}
	if !resp.Success {
		log.Warn("plugin reported an error", zap.String("error", resp.Error))
		return
	}
	log.Debug("plugin ran")
}
