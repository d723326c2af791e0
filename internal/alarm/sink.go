package alarm

import (
	"errors"
	"sync"
)

// Sink produces the alarm. Start and Stop are only ever called by the
// Controller, which guarantees a Start is always followed by a Stop
// before the next Start. Implementations must not block for long: they
// run inside a state transition.
type Sink interface {
	Start() error
	Stop() error
}

// NopSink is used when no alarm output could be acquired.
type NopSink struct{}

// Start does nothing.
func (NopSink) Start() error { return nil }

// Stop does nothing.
func (NopSink) Stop() error { return nil }

// MultiSink fans Start and Stop out to several sinks. Every sink is
// called even when an earlier one fails.
type MultiSink []Sink

// Start starts every sink.
func (m MultiSink) Start() error {
	var errs []error
	for _, s := range m {
		if err := s.Start(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stop stops every sink.
func (m MultiSink) Stop() error {
	var errs []error
	for _, s := range m {
		if err := s.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FakeSink records Start and Stop calls for test assertions.
type FakeSink struct {
	mu sync.Mutex

	// StartError, if set, is returned by Start.
	StartError error
	// StopError, if set, is returned by Stop.
	StopError error

	starts  int
	stops   int
	playing bool
	overlap bool
}

// NewFakeSink creates a FakeSink.
func NewFakeSink() *FakeSink {
	return &FakeSink{}
}

// Start records a start. A start while already playing is flagged as overlap.
func (f *FakeSink) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.playing {
		f.overlap = true
	}
	if f.StartError != nil {
		return f.StartError
	}
	f.playing = true
	return nil
}

// Stop records a stop.
func (f *FakeSink) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.playing = false
	return f.StopError
}

// Starts returns the number of Start calls.
func (f *FakeSink) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

// Stops returns the number of Stop calls.
func (f *FakeSink) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

// Playing reports whether the sink is currently sounding.
func (f *FakeSink) Playing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

// Overlapped reports whether Start was ever called while already sounding.
func (f *FakeSink) Overlapped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlap
}
