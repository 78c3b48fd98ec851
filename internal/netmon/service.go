package netmon

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmdmdm-nz/ifmond/internal/runner"
	"github.com/dmdmdm-nz/ifmond/internal/runtime"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultPollInterval = time.Second
	MinPollInterval     = 100 * time.Millisecond
	MaxPollInterval     = time.Second

	// Pending events kept per subscriber before the oldest are dropped.
	subscriberQueueLimit = 64
)

// Executor runs the configured command for a newly active interface.
type Executor interface {
	Command() string
	Execute(ctx context.Context, iface string) runner.Outcome
}

type Config struct {
	Verbose      bool
	VeryVerbose  bool
	Throttle     time.Duration
	Mode         ThrottleMode
	PollInterval time.Duration
}

// Status is a point-in-time copy of the monitor state.
type Status struct {
	Interface    string          `json:"interface"`
	Previous     string          `json:"previous,omitempty"`
	LastPoll     time.Time       `json:"lastPoll"`
	LastAction   time.Time       `json:"lastAction"`
	Changes      int             `json:"changes"`
	Executions   int             `json:"executions"`
	Throttled    int             `json:"throttled"`
	Command      string          `json:"command,omitempty"`
	ThrottleMode ThrottleMode    `json:"throttleMode"`
	Throttle     string          `json:"throttle"`
	LastOutcome  *runner.Outcome `json:"lastOutcome,omitempty"`
}

// Service is the monitor loop: it polls the Source, runs the change
// detector and, subject to the throttle, the Executor.
type Service struct {
	source   Source
	executor Executor
	watcher  Watcher
	cfg      Config
	out      io.Writer
	now      func() time.Time

	// Only touched by the loop goroutine.
	state State

	mu          sync.RWMutex
	status      Status
	initialized bool

	events *runtime.Fanout[InterfaceEvent]
	nudge  chan struct{}
}

type Option func(*Service)

// WithWatcher lets OS notifications trigger a poll ahead of the next tick.
func WithWatcher(w Watcher) Option {
	return func(s *Service) { s.watcher = w }
}

// WithOutput sets where status lines are printed. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(s *Service) { s.out = w }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the monitor. executor may be nil, in which case
// changes are only detected and reported.
func NewService(source Source, executor Executor, cfg Config, opts ...Option) *Service {
	if cfg.Mode == "" {
		cfg.Mode = ThrottleAction
	}
	switch {
	case cfg.PollInterval <= 0:
		cfg.PollInterval = DefaultPollInterval
	case cfg.PollInterval < MinPollInterval:
		cfg.PollInterval = MinPollInterval
	case cfg.PollInterval > MaxPollInterval:
		cfg.PollInterval = MaxPollInterval
	}
	if cfg.VeryVerbose {
		cfg.Verbose = true
	}

	s := &Service{
		source:   source,
		executor: executor,
		cfg:      cfg,
		out:      os.Stdout,
		now:      time.Now,
		events:   runtime.NewFanout[InterfaceEvent](subscriberQueueLimit),
		nudge:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.status.ThrottleMode = cfg.Mode
	s.status.Throttle = cfg.Throttle.String()
	if executor != nil {
		s.status.Command = executor.Command()
	}
	return s
}

// Init takes the startup snapshot and seeds the tracked interface. A failed
// or empty snapshot is reported as ErrNoInterfaces.
func (s *Service) Init() error {
	snapshot, err := s.source.Snapshot()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoInterfaces, err)
	}
	if len(snapshot) == 0 {
		return ErrNoInterfaces
	}

	s.state = State{Current: seedName(snapshot)}

	s.mu.Lock()
	s.status.Interface = s.state.Current
	s.initialized = true
	s.mu.Unlock()

	log.WithFields(log.Fields{
		"interface": s.state.Current,
	}).Info("Tracking network interface")
	return nil
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.RLock()
	initialized := s.initialized
	s.mu.RUnlock()
	if !initialized {
		if err := s.Init(); err != nil {
			return err
		}
	}

	log.WithFields(log.Fields{
		"throttle":     s.cfg.Throttle,
		"throttleMode": s.cfg.Mode,
		"pollInterval": s.cfg.PollInterval,
	}).Info("Starting network interface monitoring service")

	if s.watcher != nil {
		go func() {
			if err := s.watcher.Start(ctx, s.Nudge); err != nil {
				log.WithError(err).Warn("Interface watcher stopped, relying on polling")
			}
		}()
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping network interface monitoring service")
			return nil
		case <-ticker.C:
			s.poll(ctx, s.now())
		case <-s.nudge:
			s.poll(ctx, s.now())
		}
	}
}

// Nudge requests an early poll. Nudges that arrive while one is pending
// are coalesced.
func (s *Service) Nudge() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}

func (s *Service) Close() error {
	s.events.Close()
	return nil
}

// Subscribe streams monitor events. The first event is the currently
// tracked interface.
func (s *Service) Subscribe() (<-chan InterfaceEvent, func()) {
	st := s.Status()
	snapshot := []InterfaceEvent{{
		Type:          InterfaceCurrent,
		InterfaceName: st.Interface,
		Previous:      st.Previous,
		Time:          s.now(),
		Outcome:       st.LastOutcome,
	}}
	return s.events.Subscribe(snapshot)
}

func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// poll runs one iteration of the loop.
func (s *Service) poll(ctx context.Context, now time.Time) {
	s.state.Changed = false

	if s.cfg.Mode == ThrottlePoll {
		if !Allow(now, s.state.LastAction, s.cfg.Throttle) {
			return
		}
		s.state.LastAction = now
	}

	snapshot, err := s.source.Snapshot()
	if err != nil {
		log.WithError(err).Warn("Error getting network interfaces")
		return
	}

	result := Detect(snapshot, &s.state)
	if !result.Found {
		log.WithFields(log.Fields{
			"interface": s.state.Current,
		}).Trace("No IPv4 interface found, keeping current")
	} else if s.cfg.VeryVerbose {
		fmt.Fprintln(s.out, s.state.Current)
	}

	s.mu.Lock()
	s.status.LastPoll = now
	s.mu.Unlock()

	if !result.Changed {
		return
	}
	s.handleChange(ctx, now)
}

func (s *Service) handleChange(ctx context.Context, now time.Time) {
	log.WithFields(log.Fields{
		"interface": s.state.Current,
		"previous":  s.state.Previous,
	}).Info("Active network interface changed")

	s.mu.Lock()
	s.status.Interface = s.state.Current
	s.status.Previous = s.state.Previous
	s.status.Changes++
	s.mu.Unlock()

	s.events.Broadcast(InterfaceEvent{
		Type:          InterfaceChanged,
		InterfaceName: s.state.Current,
		Previous:      s.state.Previous,
		Time:          now,
	})

	if s.cfg.Mode == ThrottleAction {
		if !Allow(now, s.state.LastAction, s.cfg.Throttle) {
			log.WithFields(log.Fields{
				"interface": s.state.Current,
				"throttle":  s.cfg.Throttle,
			}).Debug("Interface change throttled")

			s.mu.Lock()
			s.status.Throttled++
			s.mu.Unlock()

			s.events.Broadcast(InterfaceEvent{
				Type:          ActionThrottled,
				InterfaceName: s.state.Current,
				Previous:      s.state.Previous,
				Time:          now,
			})
			return
		}
		s.state.LastAction = now
	}

	s.mu.Lock()
	s.status.LastAction = s.state.LastAction
	s.mu.Unlock()

	if s.cfg.Verbose && !s.cfg.VeryVerbose {
		fmt.Fprintln(s.out, s.state.Current)
	}

	if s.executor == nil {
		return
	}

	if s.cfg.VeryVerbose {
		fmt.Fprintf(s.out, "executing: %s\n", s.executor.Command())
	}

	outcome := s.executor.Execute(ctx, s.state.Current)

	s.mu.Lock()
	s.status.Executions++
	s.status.LastOutcome = &outcome
	s.mu.Unlock()

	s.events.Broadcast(InterfaceEvent{
		Type:          ActionExecuted,
		InterfaceName: s.state.Current,
		Previous:      s.state.Previous,
		Time:          s.now(),
		Outcome:       &outcome,
	})
}
