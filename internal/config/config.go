// Package config loads runtime settings from defaults, an optional
// roshambo.yaml file, ROSHAMBO_ environment variables and persisted overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "roshambo"

// EnvPrefix prefixes environment overrides, e.g. ROSHAMBO_SERVER_ADDR.
const EnvPrefix = "ROSHAMBO"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// OverridableKeys may be persisted as settings and applied on the next start.
var OverridableKeys = []string{
	"classifier.mode",
	"classifier.thumbMargin",
	"classifier.lateralMargin",
	"classifier.verticalMargin",
	"stabilizer.historySize",
	"stabilizer.threshold",
	"round.countdown",
}

// IsOverridable reports whether key may be stored as a setting.
func IsOverridable(key string) bool {
	for _, k := range OverridableKeys {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	StaticDir string `mapstructure:"staticDir"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type CameraConfig struct {
	Device int  `mapstructure:"device"`
	Width  int  `mapstructure:"width"`
	Height int  `mapstructure:"height"`
	Mirror bool `mapstructure:"mirror"`
}

type DetectorConfig struct {
	MaxHands              int           `mapstructure:"maxHands"`
	MinConfidence         float64       `mapstructure:"minConfidence"`
	MinTrackingConfidence float64       `mapstructure:"minTrackingConfidence"`
	IdleTimeout           time.Duration `mapstructure:"idleTimeout"`
}

type MotionConfig struct {
	Threshold   float64       `mapstructure:"threshold"`
	ReuseWindow time.Duration `mapstructure:"reuseWindow"`
}

type ClassifierConfig struct {
	Mode           string  `mapstructure:"mode"`
	ThumbMargin    float64 `mapstructure:"thumbMargin"`
	LateralMargin  float64 `mapstructure:"lateralMargin"`
	VerticalMargin float64 `mapstructure:"verticalMargin"`
}

type StabilizerConfig struct {
	HistorySize int     `mapstructure:"historySize"`
	Threshold   float64 `mapstructure:"threshold"`
}

type DetectionConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	FrameTimeout    time.Duration `mapstructure:"frameTimeout"`
	MaxInitAttempts int           `mapstructure:"maxInitAttempts"`
}

type RoundConfig struct {
	Countdown    int           `mapstructure:"countdown"`
	TickInterval time.Duration `mapstructure:"tickInterval"`
}

type PluginsConfig struct {
	Dir     string        `mapstructure:"dir"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type TrayConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Config is the fully resolved configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Server     ServerConfig     `mapstructure:"server"`
	Store      StoreConfig      `mapstructure:"store"`
	Camera     CameraConfig     `mapstructure:"camera"`
	Detector   DetectorConfig   `mapstructure:"detector"`
	Motion     MotionConfig     `mapstructure:"motion"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Stabilizer StabilizerConfig `mapstructure:"stabilizer"`
	Detection  DetectionConfig  `mapstructure:"detection"`
	Round      RoundConfig      `mapstructure:"round"`
	Plugins    PluginsConfig    `mapstructure:"plugins"`
	Tray       TrayConfig       `mapstructure:"tray"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.staticDir", "")

	v.SetDefault("store.path", "~/.roshambo/roshambo.db")

	v.SetDefault("camera.device", 0)
	v.SetDefault("camera.width", 640)
	v.SetDefault("camera.height", 480)
	v.SetDefault("camera.mirror", true)

	v.SetDefault("detector.maxHands", 1)
	v.SetDefault("detector.minConfidence", 0.5)
	v.SetDefault("detector.minTrackingConfidence", 0.5)
	v.SetDefault("detector.idleTimeout", "30s")

	v.SetDefault("motion.threshold", 1.0)
	v.SetDefault("motion.reuseWindow", "1s")

	v.SetDefault("classifier.mode", "predicate")
	v.SetDefault("classifier.thumbMargin", 0.03)
	v.SetDefault("classifier.lateralMargin", 0.075)
	v.SetDefault("classifier.verticalMargin", 0.1)

	v.SetDefault("stabilizer.historySize", 10)
	v.SetDefault("stabilizer.threshold", 0.6)

	v.SetDefault("detection.interval", "100ms")
	v.SetDefault("detection.frameTimeout", "500ms")
	v.SetDefault("detection.maxInitAttempts", 3)

	v.SetDefault("round.countdown", 3)
	v.SetDefault("round.tickInterval", "1s")

	v.SetDefault("plugins.dir", "~/.roshambo/plugins")
	v.SetDefault("plugins.timeout", "5s")

	v.SetDefault("tray.enabled", false)
}

// Load resolves the configuration. dir is searched for roshambo.yaml; a
// missing file leaves the defaults in place. overrides are applied last and
// must only name OverridableKeys.
func Load(dir string, overrides map[string]string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if dir != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	for key, value := range overrides {
		if !IsOverridable(key) {
			return nil, fmt.Errorf("%w: %q cannot be overridden", ErrInvalid, key)
		}
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	var err error
	if cfg.Store.Path, err = expandHome(cfg.Store.Path); err != nil {
		return nil, err
	}
	if cfg.Plugins.Dir, err = expandHome(cfg.Plugins.Dir); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(c.Classifier.Mode == "predicate" || c.Classifier.Mode == "margin",
		"classifier.mode %q", c.Classifier.Mode)
	check(c.Classifier.ThumbMargin >= 0, "classifier.thumbMargin must not be negative")
	check(c.Classifier.LateralMargin > 0, "classifier.lateralMargin must be positive")
	check(c.Classifier.VerticalMargin > 0, "classifier.verticalMargin must be positive")
	check(c.Stabilizer.HistorySize > 0, "stabilizer.historySize must be positive")
	check(c.Stabilizer.Threshold > 0 && c.Stabilizer.Threshold <= 1,
		"stabilizer.threshold %v outside (0, 1]", c.Stabilizer.Threshold)
	check(c.Detection.Interval > 0, "detection.interval must be positive")
	check(c.Detection.FrameTimeout > 0, "detection.frameTimeout must be positive")
	check(c.Detection.MaxInitAttempts > 0, "detection.maxInitAttempts must be positive")
	check(c.Round.Countdown > 0, "round.countdown must be positive")
	check(c.Round.TickInterval > 0, "round.tickInterval must be positive")
	check(c.Camera.Width > 0 && c.Camera.Height > 0, "camera size %dx%d", c.Camera.Width, c.Camera.Height)
	check(c.Detector.MaxHands > 0, "detector.maxHands must be positive")

	return errors.Join(errs...)
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
