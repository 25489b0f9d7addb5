// Command roshambo plays rock, paper, scissors against the computer using
// hand gestures seen by the camera, with a web UI and an optional tray menu.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/roshambo/internal/app"
	"github.com/ayusman/roshambo/internal/capture"
	"github.com/ayusman/roshambo/internal/config"
	"github.com/ayusman/roshambo/internal/detector"
	"github.com/ayusman/roshambo/internal/gesture"
	"github.com/ayusman/roshambo/internal/logging"
	"github.com/ayusman/roshambo/internal/plugin"
	"github.com/ayusman/roshambo/internal/server"
	"github.com/ayusman/roshambo/internal/store"
	"github.com/ayusman/roshambo/internal/tray"
)

func main() {
	configDir := flag.String("config", ".", "directory holding roshambo.yaml")
	flag.Parse()

	if err := run(*configDir); err != nil {
		fmt.Fprintf(os.Stderr, "roshambo: %v\n", err)
		os.Exit(1)
	}
}

func run(configDir string) error {
	// A first pass without overrides locates the store holding them.
	base, err := config.Load(configDir, nil)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{Level: base.Log.Level, Format: base.Log.Format})
	if err != nil {
		return err
	}
	defer logger.Sync()

	st, err := store.New(base.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	cfg, err := loadWithSettings(configDir, st, logger)
	if err != nil {
		return err
	}

	classifier, err := gesture.NewClassifier(cfg.Classifier.Mode, gesture.Calibration{
		ThumbMargin:    cfg.Classifier.ThumbMargin,
		LateralMargin:  cfg.Classifier.LateralMargin,
		VerticalMargin: cfg.Classifier.VerticalMargin,
	})
	if err != nil {
		return err
	}

	game, err := app.New(app.Config{
		NewSource:  cameraSourceFactory(cfg, logger),
		Classifier: classifier,
		Stabilizer: gesture.StabilizerConfig{
			HistorySize: cfg.Stabilizer.HistorySize,
			Threshold:   cfg.Stabilizer.Threshold,
		},
		Interval:        cfg.Detection.Interval,
		FrameTimeout:    cfg.Detection.FrameTimeout,
		MaxInitAttempts: cfg.Detection.MaxInitAttempts,
		Countdown:       cfg.Round.Countdown,
		TickInterval:    cfg.Round.TickInterval,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	defer game.Stop()

	plugins := plugin.NewManager(cfg.Plugins.Dir, logger)
	if err := plugins.Discover(); err != nil {
		logger.Warn("plugin discovery failed", zap.String("dir", cfg.Plugins.Dir), zap.Error(err))
	}
	hooks := plugin.NewHooks(plugins, plugin.NewExecutor(cfg.Plugins.Timeout), logger)
	game.Subscribe(hooks.Handle)

	hub := server.NewHub(logger)
	game.Subscribe(hub.Publish)

	srv := server.New(server.Config{
		StaticDir: staticDir(cfg.Server.StaticDir),
		Store:     st,
		Game:      game,
		Hands:     game,
		Frames:    game,
		Hub:       hub,
		Logger:    logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Manual input keeps the game playable when the camera is missing.
	if err := game.StartDetection(ctx); err != nil {
		logger.Warn("starting without detection", zap.Error(err))
	}

	var t *tray.Tray
	if cfg.Tray.Enabled {
		t = tray.New(game, logger)
		t.OnQuit(stop)
		game.Subscribe(t.Handle)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx, cfg.Server.Addr) })
	g.Go(func() error { return hooks.Run(gctx) })

	if t != nil {
		// The tray owns the main thread until quit or shutdown.
		go func() {
			<-gctx.Done()
			t.Quit()
		}()
		t.Run()
		stop()
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// loadWithSettings reloads the configuration with the persisted settings
// applied. Broken settings are logged and skipped so that they cannot keep
// the game from starting.
func loadWithSettings(configDir string, st *store.Store, logger *zap.Logger) (*config.Config, error) {
	overrides, err := st.Settings().All()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if len(overrides) == 0 {
		return config.Load(configDir, nil)
	}

	cfg, err := config.Load(configDir, overrides)
	if err == nil {
		logger.Info("applied stored settings", zap.Int("count", len(overrides)))
		return cfg, nil
	}
	logger.Warn("ignoring stored settings", zap.Error(err))
	return config.Load(configDir, nil)
}

// cameraSourceFactory builds a fresh camera and estimator for each detection
// session.
func cameraSourceFactory(cfg *config.Config, logger *zap.Logger) app.SourceFactory {
	return func() (app.Source, error) {
		det, err := detector.NewMediaPipeDetector(detector.Config{
			MaxHands:        cfg.Detector.MaxHands,
			MinConfidence:   cfg.Detector.MinConfidence,
			MinTrackingConf: cfg.Detector.MinTrackingConfidence,
			IdleTimeout:     cfg.Detector.IdleTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}

		cam := capture.NewCamera(capture.Options{
			Device: cfg.Camera.Device,
			Width:  cfg.Camera.Width,
			Height: cfg.Camera.Height,
			Mirror: cfg.Camera.Mirror,
		})

		return app.NewCameraSource(app.CameraSourceConfig{
			Camera:          cam,
			Detector:        det,
			MotionThreshold: cfg.Motion.Threshold,
			ReuseWindow:     cfg.Motion.ReuseWindow,
			Logger:          logger,
		}), nil
	}
}

// staticDir returns the configured web directory or the first "web"
// directory found near the working directory or in ~/.roshambo.
func staticDir(configured string) string {
	if configured != "" {
		return configured
	}

	candidates := []string{"web", filepath.Join("..", "web"), filepath.Join("..", "..", "web")}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".roshambo", "web"))
	}

	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
