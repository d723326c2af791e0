// Package config loads EyeGuard configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/eyeguard/internal/alarm"
	"github.com/ayusman/eyeguard/internal/detector"
	"github.com/ayusman/eyeguard/internal/eyestate"
	"github.com/ayusman/eyeguard/internal/logging"
	"github.com/ayusman/eyeguard/internal/mqtt"
)

// Delay bounds exposed to the settings UI.
const (
	DelayMinMs  = 250
	DelayMaxMs  = 3000
	DelayStepMs = 250
	// DelayLimitMs is the largest delay the HTTP API accepts.
	DelayLimitMs = 60000
)

// Config is the full application configuration.
type Config struct {
	DataDir  string          `yaml:"data_dir"`
	Server   ServerConfig    `yaml:"server"`
	Camera   CameraConfig    `yaml:"camera"`
	Detector detector.Config `yaml:"detector"`
	Alarm    AlarmConfig     `yaml:"alarm"`
	Overlay  OverlayConfig   `yaml:"overlay"`
	MQTT     MQTTConfig      `yaml:"mqtt"`
	Plugins  PluginConfig    `yaml:"plugins"`
	Log      logging.Config  `yaml:"log"`
	Tray     bool            `yaml:"tray"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr   string `yaml:"addr"`
	WebDir string `yaml:"web_dir"`
}

// CameraConfig configures frame capture.
type CameraConfig struct {
	Device int `yaml:"device"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	FPS    int `yaml:"fps"`
}

// AlarmConfig configures the debounce delay, the classifier and the tone.
type AlarmConfig struct {
	DelayMs    int                 `yaml:"delay_ms"`
	Thresholds eyestate.Thresholds `yaml:"thresholds"`
	Sound      bool                `yaml:"sound"`
	Tone       alarm.ToneConfig    `yaml:"tone"`
}

// Delay returns DelayMs as a duration.
func (a AlarmConfig) Delay() time.Duration {
	return time.Duration(a.DelayMs) * time.Millisecond
}

// OverlayConfig configures the eye crosshair.
type OverlayConfig struct {
	ShowCrosshair bool `yaml:"show_crosshair"`
}

// MQTTConfig enables alarm publishing to a broker.
type MQTTConfig struct {
	Enabled     bool `yaml:"enabled"`
	mqtt.Config `yaml:",inline"`
}

// PluginConfig configures alarm hook plugins.
type PluginConfig struct {
	Dir       string `yaml:"dir"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// Default returns the stock configuration rooted at ~/.eyeguard.
func Default() Config {
	dataDir := ".eyeguard"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".eyeguard")
	}

	return Config{
		DataDir: dataDir,
		Server: ServerConfig{
			Addr: ":8080",
		},
		Camera: CameraConfig{
			Device: 0,
			Width:  640,
			Height: 480,
			FPS:    15,
		},
		Detector: detector.DefaultConfig(),
		Alarm: AlarmConfig{
			DelayMs:    300,
			Thresholds: eyestate.DefaultThresholds(),
			Sound:      true,
			Tone:       alarm.DefaultToneConfig(),
		},
		Overlay: OverlayConfig{ShowCrosshair: true},
		MQTT: MQTTConfig{
			Config: mqtt.Config{ClientID: "eyeguard", Topic: mqtt.Topic},
		},
		Plugins: PluginConfig{
			Dir:       filepath.Join(dataDir, "plugins"),
			TimeoutMs: 5000,
		},
		Log:  logging.DefaultConfig(),
		Tray: true,
	}
}

// Load reads the YAML file at path over the defaults, applies EYEGUARD_*
// environment overrides and validates the result. An empty path skips
// the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// DBPath is the SQLite database location.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "eyeguard.db")
}

// Validate checks the configuration for values the app cannot run with.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		errs = append(errs, fmt.Errorf("camera resolution %dx%d is invalid", c.Camera.Width, c.Camera.Height))
	}
	if c.Camera.FPS < 1 || c.Camera.FPS > 60 {
		errs = append(errs, fmt.Errorf("camera.fps %d out of range 1-60", c.Camera.FPS))
	}
	if c.Alarm.DelayMs < 0 {
		errs = append(errs, fmt.Errorf("alarm.delay_ms %d must not be negative", c.Alarm.DelayMs))
	}
	if c.Alarm.Thresholds.Ratio < 0 || c.Alarm.Thresholds.LidPixels < 0 {
		errs = append(errs, errors.New("alarm.thresholds must not be negative"))
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
	}
	if c.Plugins.TimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("plugins.timeout_ms %d must be positive", c.Plugins.TimeoutMs))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("EYEGUARD_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("EYEGUARD_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("EYEGUARD_WEB_DIR"); v != "" {
		c.Server.WebDir = v
	}
	if v := os.Getenv("EYEGUARD_PLUGIN_DIR"); v != "" {
		c.Plugins.Dir = v
	}
	if v := os.Getenv("EYEGUARD_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("EYEGUARD_MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
		c.MQTT.Enabled = true
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"EYEGUARD_CAMERA", &c.Camera.Device},
		{"EYEGUARD_FPS", &c.Camera.FPS},
		{"EYEGUARD_DELAY_MS", &c.Alarm.DelayMs},
	}
	for _, e := range ints {
		v := os.Getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", e.key, err)
		}
		*e.dst = n
	}
	return nil
}
