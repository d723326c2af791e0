package plugin

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/eyeguard/internal/metrics"
	"github.com/ayusman/eyeguard/internal/store"
)

// HookLister returns the enabled hooks bound to an alarm edge.
type HookLister interface {
	ListEnabled(event store.EventKind) ([]*store.Hook, error)
}

// Runner executes a single plugin request.
type Runner interface {
	Execute(ctx context.Context, plugin *Plugin, req *Request) (*Response, error)
}

// HookSink runs the plugin actions bound to alarm_start on Start and to
// alarm_stop on Stop. The hook lookup and every hook run happen on their
// own goroutines, so Start and Stop never wait on the store or a plugin.
type HookSink struct {
	hooks   HookLister
	plugins *Manager
	runner  Runner
	session func() string
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// HookOption configures a HookSink.
type HookOption func(*HookSink)

// WithHookSession tags every request with the current session id.
func WithHookSession(f func() string) HookOption {
	return func(s *HookSink) { s.session = f }
}

// WithHookNow replaces the request timestamp source.
func WithHookNow(f func() time.Time) HookOption {
	return func(s *HookSink) { s.now = f }
}

// NewHookSink creates a HookSink that resolves hooks against plugins.
func NewHookSink(hooks HookLister, plugins *Manager, runner Runner, opts ...HookOption) *HookSink {
	ctx, cancel := context.WithCancel(context.Background())
	s := &HookSink{
		hooks:   hooks,
		plugins: plugins,
		runner:  runner,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start fires the alarm_start hooks.
func (s *HookSink) Start() error {
	s.dispatch(store.EventAlarmStart)
	return nil
}

// Stop fires the alarm_stop hooks.
func (s *HookSink) Stop() error {
	s.dispatch(store.EventAlarmStop)
	return nil
}

// dispatch stamps the request and hands the hook lookup to a goroutine;
// Start and Stop run under the alarm controller lock.
func (s *HookSink) dispatch(event store.EventKind) {
	var session string
	if s.session != nil {
		session = s.session()
	}
	at := s.now()

	s.wg.Add(1)
	go s.fire(event, session, at)
}

func (s *HookSink) fire(event store.EventKind, session string, at time.Time) {
	defer s.wg.Done()

	if s.ctx.Err() != nil {
		return
	}
	hooks, err := s.hooks.ListEnabled(event)
	if err != nil {
		log.WithError(err).WithField("event", event).Warn("hook: cannot list hooks")
		return
	}

	for _, h := range hooks {
		req := &Request{
			Action:    h.ActionName,
			Event:     string(event),
			SessionID: session,
			At:        at,
			Config:    h.Config,
		}
		s.wg.Add(1)
		go s.run(h, req)
	}
}

func (s *HookSink) run(h *store.Hook, req *Request) {
	defer s.wg.Done()

	entry := log.WithFields(log.Fields{
		"hook":   h.ID,
		"plugin": h.PluginName,
		"action": h.ActionName,
		"event":  req.Event,
	})

	p, err := s.plugins.Resolve(h.PluginName, h.ActionName)
	if err != nil {
		entry.WithError(err).Warn("hook: cannot resolve plugin")
		metrics.IncHookRun(false)
		return
	}

	resp, err := s.runner.Execute(s.ctx, p, req)
	switch {
	case err != nil:
		entry.WithError(err).Warn("hook: execution failed")
		metrics.IncHookRun(false)
	case !resp.Success:
		entry.WithField("error", resp.Error).Warn("hook: plugin reported failure")
		metrics.IncHookRun(false)
	default:
		entry.Debug("hook: done")
		metrics.IncHookRun(true)
	}
}

// Wait blocks until every dispatched hook has finished.
func (s *HookSink) Wait() {
	s.wg.Wait()
}

// Close cancels running hooks and waits for them to exit.
func (s *HookSink) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}
