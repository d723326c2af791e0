// Command eyeguard watches the webcam for closed eyes and sounds an alarm
// when they stay closed.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/eyeguard/internal/app"
	"github.com/ayusman/eyeguard/internal/capture"
	"github.com/ayusman/eyeguard/internal/config"
	"github.com/ayusman/eyeguard/internal/logging"
	"github.com/ayusman/eyeguard/internal/metrics"
	"github.com/ayusman/eyeguard/internal/monitor"
	"github.com/ayusman/eyeguard/internal/mqtt"
	"github.com/ayusman/eyeguard/internal/server"
	"github.com/ayusman/eyeguard/internal/store"
	"github.com/ayusman/eyeguard/internal/tray"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	camera := flag.Int("camera", 0, "Camera device index (overrides config)")
	noTray := flag.Bool("no-tray", false, "Run without the system tray")
	delay := flag.Duration("delay", 0, "Alarm delay after eyes close (overrides config)")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Server.Addr = *addr
		case "camera":
			cfg.Camera.Device = *camera
		case "no-tray":
			cfg.Tray = !*noTray
		case "delay":
			cfg.Alarm.DelayMs = int(delay.Milliseconds())
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg config.Config) error {
	logCloser, err := logging.Setup(cfg.Log)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logCloser.Close()

	metrics.Init()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.New(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer st.Close()

	appCfg := app.Config{
		Store: st,
		CameraConfig: capture.Config{
			DeviceID: cfg.Camera.Device,
			Width:    cfg.Camera.Width,
			Height:   cfg.Camera.Height,
			FPS:      cfg.Camera.FPS,
		},
		DetectorConfig: cfg.Detector,
		Settings: app.Settings{
			DelayMs:       cfg.Alarm.DelayMs,
			ShowCrosshair: cfg.Overlay.ShowCrosshair,
			Sound:         cfg.Alarm.Sound,
			Thresholds:    cfg.Alarm.Thresholds,
		},
		Tone:            cfg.Alarm.Tone,
		PluginDir:       cfg.Plugins.Dir,
		PluginTimeoutMs: cfg.Plugins.TimeoutMs,
	}

	if cfg.MQTT.Enabled {
		pub, err := mqtt.NewRealPublisher(cfg.MQTT.Config)
		if err != nil {
			log.WithError(err).Warn("mqtt disabled")
		} else {
			defer pub.Close()
			appCfg.MQTT = pub
		}
	}

	a, err := app.New(appCfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	if err := a.DiscoverPlugins(); err != nil {
		log.WithError(err).Warn("plugin discovery failed")
	}

	if err := a.Start(); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	webDir := findWebDir(cfg)
	if webDir != "" {
		log.Printf("Serving static files from: %s", webDir)
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		Store:     st,
		App:       a,
		Metrics:   true,
	})

	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.ListenAndServe(cfg.Server.Addr) }()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("http shutdown")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if !cfg.Tray {
		select {
		case s := <-sigCh:
			log.Printf("received %v, shutting down", s)
			return nil
		case err := <-srvErr:
			return err
		}
	}

	t := tray.New()
	t.OnToggle(a.SetTracking)
	t.OnSettings(func() { openBrowser(settingsURL(cfg.Server.Addr)) })
	unsubscribe := a.Subscribe(func(r monitor.Reading) {
		t.SetTracking(r.Tracking)
		t.SetEyesOpen(r.EyesOpen)
	})
	defer unsubscribe()

	quitErr := make(chan error, 1)
	go func() {
		var err error
		select {
		case s := <-sigCh:
			log.Printf("received %v, shutting down", s)
		case err = <-srvErr:
		}
		quitErr <- err
		t.Quit()
	}()

	// The tray owns the main goroutine until Quit.
	t.Run()
	select {
	case err := <-quitErr:
		return err
	default:
		return nil
	}
}

// settingsURL turns a listen address into a browsable URL.
func settingsURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.WithError(err).Warn("failed to open browser")
		return
	}
	go cmd.Wait()
}

// findWebDir searches for the web directory: the configured path, then
// "web", "../web", "../../web" and finally <data dir>/web. It returns the
// first existing directory or an empty string.
func findWebDir(cfg config.Config) string {
	candidates := []string{cfg.Server.WebDir, "web", "../web", "../../web", filepath.Join(cfg.DataDir, "web")}
	for _, p := range candidates {
		if p == "" {
			continue
		}
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
