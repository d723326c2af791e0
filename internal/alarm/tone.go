package alarm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ErrPlayerUnavailable is returned when no audio player binary is installed.
var ErrPlayerUnavailable = errors.New("audio player unavailable")

// Tone defaults.
const (
	DefaultFrequency  = 800.0
	DefaultGain       = 0.3
	DefaultSampleRate = 44100
	DefaultPlayer     = "aplay"
)

// ToneConfig describes the alarm tone and the player it is piped into.
type ToneConfig struct {
	Frequency  float64  `yaml:"frequency"`
	Gain       float64  `yaml:"gain"`
	SampleRate int      `yaml:"sample_rate"`
	Player     string   `yaml:"player"`
	PlayerArgs []string `yaml:"player_args"`
}

// DefaultToneConfig returns an 800 Hz sine at gain 0.3 played through aplay.
func DefaultToneConfig() ToneConfig {
	return ToneConfig{
		Frequency:  DefaultFrequency,
		Gain:       DefaultGain,
		SampleRate: DefaultSampleRate,
		Player:     DefaultPlayer,
	}
}

func (c ToneConfig) withDefaults() ToneConfig {
	d := DefaultToneConfig()
	if c.Frequency <= 0 {
		c.Frequency = d.Frequency
	}
	if c.Gain <= 0 || c.Gain > 1 {
		c.Gain = d.Gain
	}
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.Player == "" {
		c.Player = d.Player
	}
	if len(c.PlayerArgs) == 0 {
		c.PlayerArgs = []string{"-q", "-t", "raw", "-f", "S16_LE", "-c", "1", "-r", strconv.Itoa(c.SampleRate)}
	}
	return c
}

// ToneSink plays a continuous sine tone by piping raw PCM into an
// external player process. At most one player runs at a time.
type ToneSink struct {
	cfg    ToneConfig
	player string
	buf    []byte

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan struct{}
}

// NewToneSink resolves the player binary and renders one second of tone.
// It returns ErrPlayerUnavailable when the player is not on PATH.
func NewToneSink(cfg ToneConfig) (*ToneSink, error) {
	cfg = cfg.withDefaults()

	path, err := exec.LookPath(cfg.Player)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPlayerUnavailable, cfg.Player)
	}

	return &ToneSink{
		cfg:    cfg,
		player: path,
		buf:    GenerateTone(cfg.Frequency, cfg.Gain, cfg.SampleRate, cfg.SampleRate),
	}, nil
}

// Start launches the player and streams the tone into it until Stop.
// Calling Start while already playing is a no-op.
func (s *ToneSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return nil
	}

	cmd := exec.Command(s.player, s.cfg.PlayerArgs...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start player: %w", err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.done = make(chan struct{})
	go s.stream(stdin, s.done)

	log.WithField("frequency", s.cfg.Frequency).Debug("alarm: tone started")
	return nil
}

// stream loops the rendered tone into the player until the pipe breaks.
func (s *ToneSink) stream(w io.Writer, done chan struct{}) {
	defer close(done)
	for {
		if _, err := w.Write(s.buf); err != nil {
			return
		}
	}
}

// Stop kills the player. Stopping a silent sink is a no-op.
func (s *ToneSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil {
		return nil
	}

	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.stdin.Close()
	<-s.done
	// The player was killed, so its exit status carries no information.
	s.cmd.Wait()

	s.cmd = nil
	s.stdin = nil
	s.done = nil

	log.Debug("alarm: tone stopped")
	return nil
}

// Playing reports whether a player process is running.
func (s *ToneSink) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil
}

// GenerateTone renders n samples of a sine wave as signed 16-bit
// little-endian mono PCM.
func GenerateTone(frequency, gain float64, sampleRate, n int) []byte {
	buf := make([]byte, n*2)
	amp := gain * math.MaxInt16
	for i := 0; i < n; i++ {
		v := amp * math.Sin(2*math.Pi*frequency*float64(i)/float64(sampleRate))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(math.Round(v))))
	}
	return buf
}
