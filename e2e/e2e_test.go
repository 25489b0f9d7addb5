package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/roshambo/internal/app"
	"github.com/ayusman/roshambo/internal/capture"
	"github.com/ayusman/roshambo/internal/detector"
	"github.com/ayusman/roshambo/internal/gesture"
	"github.com/ayusman/roshambo/internal/plugin"
	"github.com/ayusman/roshambo/internal/round"
	"github.com/ayusman/roshambo/internal/server"
	"github.com/ayusman/roshambo/internal/store"
)

type harness struct {
	ts       *httptest.Server
	app      *app.App
	detector *detector.MockDetector
	plugins  *plugin.Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tmpDir := t.TempDir()

	s, err := store.New(filepath.Join(tmpDir, "data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })
	det := detector.NewMockDetector()

	a, err := app.New(app.Config{
		NewSource: func() (app.Source, error) {
			return app.NewCameraSource(app.CameraSourceConfig{
				Camera:   capture.NewMockCamera([]*gocv.Mat{&frame}, true),
				Detector: det,
			}), nil
		},
		Stabilizer:   gesture.StabilizerConfig{HistorySize: 3, Threshold: 0.6},
		Interval:     2 * time.Millisecond,
		TickInterval: 5 * time.Millisecond,
		Opponent:     round.FixedOpponent(gesture.Paper),
	})
	require.NoError(t, err)
	t.Cleanup(a.Stop)

	pluginDir := filepath.Join(tmpDir, "plugins")
	manager := plugin.NewManager(pluginDir, nil)
	hooks := plugin.NewHooks(manager, plugin.NewExecutor(2*time.Second), nil)
	a.Subscribe(hooks.Handle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hooks.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	hub := server.NewHub(nil)
	a.Subscribe(hub.Publish)

	ts := httptest.NewServer(server.New(server.Config{Store: s, Game: a, Hands: a, Frames: a, Hub: hub}))
	t.Cleanup(ts.Close)

	return &harness{ts: ts, app: a, detector: det, plugins: manager}
}

// installRecorder drops a plugin that writes every request it gets to
// request.json and returns that path. Discovery must run afterwards.
func (h *harness) installRecorder(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(h.plugins.PluginDir(), "recorder")
	require.NoError(t, os.MkdirAll(dir, 0755))
	manifest := `{"name":"recorder","version":"1.0.0","executable":"run.sh","events":["round.resolved"]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, plugin.ManifestFile), []byte(manifest), 0644))
	script := "#!/bin/sh\ncat > request.json\necho '{\"success\":true}'\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"), []byte(script), 0755))
	return filepath.Join(dir, "request.json")
}

func (h *harness) post(t *testing.T, path, body string, out any) int {
	t.Helper()
	resp, err := h.ts.Client().Post(h.ts.URL+path, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (h *harness) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := h.ts.Client().Get(h.ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type moveView struct {
	Raw       string `json:"raw"`
	Effective string `json:"effective"`
}

type gameState struct {
	Round struct {
		Phase string      `json:"phase"`
		Round int         `json:"round"`
		Score round.Score `json:"score"`
	} `json:"round"`
	Detection struct {
		Running bool `json:"running"`
	} `json:"detection"`
}

func TestE2E_CameraRound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}
	h := newHarness(t)
	h.detector.SetHands([]detector.HandLandmarks{detector.ScissorsLandmarks()})

	var status struct {
		Running bool `json:"running"`
	}
	require.Equal(t, http.StatusOK, h.post(t, "/api/detection/restart", "", &status))
	require.True(t, status.Running)

	t.Run("DetectMove", func(t *testing.T) {
		require.Eventually(t, func() bool {
			var mv moveView
			return h.get(t, "/api/move", &mv) == http.StatusOK && mv.Effective == "scissors"
		}, 3*time.Second, 10*time.Millisecond)
	})

	t.Run("PlayRound", func(t *testing.T) {
		require.Equal(t, http.StatusAccepted, h.post(t, "/api/game/start", "", nil))
		require.Eventually(t, func() bool {
			var st gameState
			h.get(t, "/api/game", &st)
			return st.Round.Score == round.Score{Player: 1}
		}, 3*time.Second, 10*time.Millisecond)
	})

	t.Run("CaptureSample", func(t *testing.T) {
		var sample store.Sample
		require.Equal(t, http.StatusCreated, h.post(t, "/api/samples", `{"label":"scissors"}`, &sample))
		assert.Equal(t, gesture.Scissors, sample.Label)
		assert.Equal(t, gesture.Scissors, sample.Predicted)

		var report struct {
			Labels []store.LabelReport `json:"labels"`
		}
		require.Equal(t, http.StatusOK, h.get(t, "/api/samples/report", &report))
		require.Len(t, report.Labels, 1)
		assert.Equal(t, 1, report.Labels[0].Agreed)
	})

	t.Run("HandLeaves", func(t *testing.T) {
		h.detector.SetHands(nil)
		require.Eventually(t, func() bool {
			var mv moveView
			h.get(t, "/api/move", &mv)
			return mv.Raw == "none"
		}, 3*time.Second, 10*time.Millisecond)
	})

	t.Run("Restart", func(t *testing.T) {
		var st gameState
		require.Equal(t, http.StatusOK, h.post(t, "/api/game/restart", "", &st))
		assert.Equal(t, round.Score{}, st.Round.Score)
		assert.True(t, st.Detection.Running)
	})
}

func TestE2E_PluginHearsResult(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	h := newHarness(t)
	reqPath := h.installRecorder(t)
	// Hooks consult the manager on every event, so discovering now is enough.
	require.NoError(t, h.plugins.Discover())

	require.Equal(t, http.StatusOK, h.post(t, "/api/game/move", `{"move":"rock"}`, nil))
	require.Equal(t, http.StatusAccepted, h.post(t, "/api/game/start", "", nil))

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(reqPath)
		return err == nil && len(data) > 0
	}, 3*time.Second, 10*time.Millisecond)

	data, err := os.ReadFile(reqPath)
	require.NoError(t, err)
	var req plugin.Request
	require.NoError(t, json.Unmarshal(data, &req))
	assert.Equal(t, "round.resolved", req.Event)

	var res struct {
		Outcome      string `json:"outcome"`
		PlayerMove   string `json:"player_move"`
		OpponentMove string `json:"opponent_move"`
	}
	require.NoError(t, json.Unmarshal(req.Data, &res))
	assert.Equal(t, "opponent_win", res.Outcome)
	assert.Equal(t, "rock", res.PlayerMove)
	assert.Equal(t, "paper", res.OpponentMove)
}
