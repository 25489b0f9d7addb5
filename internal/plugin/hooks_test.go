package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ayusman/roshambo/internal/app"
	"github.com/ayusman/roshambo/internal/gesture"
	"github.com/ayusman/roshambo/internal/round"
)

func resolvedEvent() app.Event {
	return app.Event{
		Type: app.EventRoundResolved,
		At:   time.Now(),
		Data: round.Result{
			Round:        1,
			Outcome:      round.PlayerWin,
			PlayerMove:   gesture.Rock,
			OpponentMove: gesture.Scissors,
			Score:        round.Score{Player: 1},
		},
	}
}

func startHooks(t *testing.T, root string, logger *zap.Logger) *Hooks {
	t.Helper()
	m := NewManager(root, logger)
	require.NoError(t, m.Discover())

	h := NewHooks(m, NewExecutor(2*time.Second), logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func TestHooks_RunsSubscribedPlugins(t *testing.T) {
	skipOnWindows(t)

	root := t.TempDir()
	// Each plugin records its request next to itself.
	record := "cat > request.json\necho '{\"success\":true}'\n"
	writePlugin(t, root, "resolved", record, "round.resolved")
	writePlugin(t, root, "nomove", record, "round.no_move")

	h := startHooks(t, root, nil)
	h.Handle(app.Event{Type: app.EventMove})
	h.Handle(resolvedEvent())

	reqPath := filepath.Join(root, "resolved", "request.json")
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(reqPath)
		return err == nil && len(data) > 0
	}, 3*time.Second, 10*time.Millisecond)

	data, err := os.ReadFile(reqPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"event":"round.resolved"`)
	assert.Contains(t, string(data), `"outcome":"player_win"`)
	assert.Contains(t, string(data), `"player_move":"rock"`)

	_, err = os.Stat(filepath.Join(root, "nomove", "request.json"))
	assert.True(t, os.IsNotExist(err), "plugin for another event must not run")
}

func TestHooks_FailuresAreLogged(t *testing.T) {
	skipOnWindows(t)

	root := t.TempDir()
	writePlugin(t, root, "crash", "exit 3\n", "round.resolved")
	writePlugin(t, root, "refuse", `echo '{"success":false,"error":"nope"}'`, "round.resolved")

	core, logs := observer.New(zapcore.DebugLevel)
	h := startHooks(t, root, zap.New(core))
	h.Handle(resolvedEvent())

	require.Eventually(t, func() bool {
		return logs.FilterMessage("plugin failed").Len() == 1 &&
			logs.FilterMessage("plugin reported an error").Len() == 1
	}, 3*time.Second, 10*time.Millisecond)

	failed := logs.FilterMessage("plugin failed").All()[0]
	assert.Equal(t, zapcore.WarnLevel, failed.Level)
	assert.Equal(t, "crash", failed.ContextMap()["plugin"])
}

func TestHooks_HandleNeverBlocks(t *testing.T) {
	skipOnWindows(t)

	root := t.TempDir()
	writePlugin(t, root, "slow", "sleep 1\n", "round.resolved")

	m := NewManager(root, nil)
	require.NoError(t, m.Discover())
	// Nothing drains the queue: it fills and further events are dropped.
	h := NewHooks(m, NewExecutor(time.Second), nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < hookQueueSize*4; i++ {
			h.Handle(resolvedEvent())
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Handle blocked")
	}
	assert.Len(t, h.queue, hookQueueSize)
}

func TestHooks_NoPluginsNoQueue(t *testing.T) {
	h := NewHooks(NewManager(t.TempDir(), nil), NewExecutor(0), nil)
	h.Handle(resolvedEvent())
	assert.Empty(t, h.queue)
}

func TestHooks_CustomEvents(t *testing.T) {
	skipOnWindows(t)

	root := t.TempDir()
	writePlugin(t, root, "any", "true\n", "round.no_move")
	m := NewManager(root, nil)
	require.NoError(t, m.Discover())

	h := NewHooks(m, NewExecutor(0), nil, app.EventRoundNoMove)
	h.Handle(resolvedEvent())
	assert.Empty(t, h.queue)

	h.Handle(app.Event{Type: app.EventRoundNoMove, Data: round.Result{}})
	assert.Len(t, h.queue, 1)
}
