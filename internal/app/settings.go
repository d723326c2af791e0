package app

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/eyeguard/internal/config"
	"github.com/ayusman/eyeguard/internal/eyestate"
	"github.com/ayusman/eyeguard/internal/store"
)

// ErrInvalidSettings wraps every settings validation failure.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings are the user-adjustable values persisted in the store.
type Settings struct {
	DelayMs       int                 `json:"delay_ms"`
	ShowCrosshair bool                `json:"show_crosshair"`
	Sound         bool                `json:"sound"`
	Thresholds    eyestate.Thresholds `json:"thresholds"`
}

// Delay returns DelayMs as a duration.
func (s Settings) Delay() time.Duration {
	return time.Duration(s.DelayMs) * time.Millisecond
}

// Validate rejects values outside what the API accepts.
func (s Settings) Validate() error {
	if s.DelayMs < 0 || s.DelayMs > config.DelayLimitMs {
		return fmt.Errorf("%w: delay_ms must be between 0 and %d", ErrInvalidSettings, config.DelayLimitMs)
	}
	if s.Thresholds.Ratio <= 0 || s.Thresholds.LidPixels <= 0 {
		return fmt.Errorf("%w: thresholds must be positive", ErrInvalidSettings)
	}
	return nil
}

// withDefaults fills unset thresholds with the classifier defaults.
func (s Settings) withDefaults() Settings {
	def := eyestate.DefaultThresholds()
	if s.Thresholds.Ratio == 0 {
		s.Thresholds.Ratio = def.Ratio
	}
	if s.Thresholds.LidPixels == 0 {
		s.Thresholds.LidPixels = def.LidPixels
	}
	return s
}

// Setting keys in the store.
const (
	keyDelayMs       = "delay_ms"
	keyShowCrosshair = "show_crosshair"
	keySound         = "sound"
	keyRatio         = "ratio_threshold"
	keyLidPixels     = "lid_threshold"
)

func (s Settings) values() map[string]string {
	return map[string]string{
		keyDelayMs:       strconv.Itoa(s.DelayMs),
		keyShowCrosshair: strconv.FormatBool(s.ShowCrosshair),
		keySound:         strconv.FormatBool(s.Sound),
		keyRatio:         strconv.FormatFloat(s.Thresholds.Ratio, 'g', -1, 64),
		keyLidPixels:     strconv.FormatFloat(s.Thresholds.LidPixels, 'g', -1, 64),
	}
}

// loadSettings overlays persisted values on base. Unparseable values are
// logged and skipped.
func loadSettings(repo *store.SettingsRepository, base Settings) (Settings, error) {
	stored, err := repo.All()
	if err != nil {
		return base, err
	}

	s := base
	for k, v := range stored {
		var perr error
		switch k {
		case keyDelayMs:
			s.DelayMs, perr = parseInt(v, s.DelayMs)
		case keyShowCrosshair:
			s.ShowCrosshair, perr = parseBool(v, s.ShowCrosshair)
		case keySound:
			s.Sound, perr = parseBool(v, s.Sound)
		case keyRatio:
			s.Thresholds.Ratio, perr = parseFloat(v, s.Thresholds.Ratio)
		case keyLidPixels:
			s.Thresholds.LidPixels, perr = parseFloat(v, s.Thresholds.LidPixels)
		}
		if perr != nil {
			log.WithError(perr).WithField("key", k).Warn("app: ignoring stored setting")
		}
	}

	if err := s.Validate(); err != nil {
		log.WithError(err).Warn("app: stored settings invalid, using defaults")
		return base, nil
	}
	return s, nil
}

func parseInt(v string, def int) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, err
	}
	return n, nil
}

func parseBool(v string, def bool) (bool, error) {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, err
	}
	return b, nil
}

func parseFloat(v string, def float64) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, err
	}
	return f, nil
}
