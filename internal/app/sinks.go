package app

import (
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/eyeguard/internal/alarm"
)

// soundSink gates the audible alarm behind the Sound setting. A Stop is
// forwarded only when the matching Start reached the inner sink, so
// toggling Sound mid-alarm never leaves the tone playing.
type soundSink struct {
	inner alarm.Sink

	mu      sync.Mutex
	enabled bool
	started bool
}

func newSoundSink(inner alarm.Sink, enabled bool) *soundSink {
	return &soundSink{inner: inner, enabled: enabled}
}

func (s *soundSink) SetEnabled(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = on
}

func (s *soundSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return nil
	}
	s.started = true
	return s.inner.Start()
}

func (s *soundSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	return s.inner.Stop()
}

// newToneSink acquires the audio player. A missing player is not fatal:
// the alarm keeps its state machine and other sinks, just without sound.
func newToneSink(cfg alarm.ToneConfig) alarm.Sink {
	tone, err := alarm.NewToneSink(cfg)
	if err != nil {
		if errors.Is(err, alarm.ErrPlayerUnavailable) {
			log.WithError(err).Warn("app: no audio player, alarm will be silent")
		} else {
			log.WithError(err).Error("app: failed to set up alarm tone")
		}
		return alarm.NopSink{}
	}
	return tone
}
