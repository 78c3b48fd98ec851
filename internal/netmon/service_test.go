package netmon

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmdmdm-nz/ifmond/internal/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource returns its results in order, repeating the last one.
type scriptedSource struct {
	mu      sync.Mutex
	results []sourceResult
	calls   int
}

type sourceResult struct {
	snapshot []InterfaceAddr
	err      error
}

func newScriptedSource(results ...sourceResult) *scriptedSource {
	return &scriptedSource{results: results}
}

func ok(entries ...InterfaceAddr) sourceResult { return sourceResult{snapshot: entries} }
func fail(err error) sourceResult             { return sourceResult{err: err} }

func (s *scriptedSource) Snapshot() ([]InterfaceAddr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	r := s.results[i]
	return r.snapshot, r.err
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingExecutor struct {
	mu    sync.Mutex
	calls []string
}

func (e *recordingExecutor) Command() string { return "/usr/bin/hook" }

func (e *recordingExecutor) Execute(ctx context.Context, iface string) runner.Outcome {
	e.mu.Lock()
	e.calls = append(e.calls, iface)
	e.mu.Unlock()
	return runner.Outcome{Command: e.Command(), Interface: iface, Kind: runner.Success}
}

func (e *recordingExecutor) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, src Source, exec Executor, cfg Config, out *bytes.Buffer) *Service {
	t.Helper()
	if cfg.Throttle == 0 {
		cfg.Throttle = 3 * time.Second
	}
	s := NewService(src, exec, cfg, WithOutput(out), WithClock(func() time.Time { return t0 }))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestService_InitEmptySnapshotFails(t *testing.T) {
	s := newTestService(t, newScriptedSource(ok()), nil, Config{}, &bytes.Buffer{})

	err := s.Init()
	assert.ErrorIs(t, err, ErrNoInterfaces)
}

func TestService_InitSnapshotErrorFails(t *testing.T) {
	cause := errors.New("netlink: permission denied")
	s := newTestService(t, newScriptedSource(fail(cause)), nil, Config{}, &bytes.Buffer{})

	err := s.Init()
	assert.ErrorIs(t, err, ErrNoInterfaces)
	assert.ErrorIs(t, err, cause)
}

func TestService_InitSeedsFromFirstCandidate(t *testing.T) {
	src := newScriptedSource(ok(link("lo"), link("wlan0"), v4("lo"), v4("wlan0")))
	s := newTestService(t, src, nil, Config{}, &bytes.Buffer{})

	require.NoError(t, s.Init())
	assert.Equal(t, "wlan0", s.state.Current)
	assert.Equal(t, "wlan0", s.Status().Interface)
}

func TestService_ScriptedChangesExecuteCommand(t *testing.T) {
	src := newScriptedSource(
		ok(v4("A")), // init
		ok(v4("A")),
		ok(v4("A")),
		ok(v4("B")),
		ok(v4("B")),
		ok(v4("A")),
	)
	exec := &recordingExecutor{}
	s := newTestService(t, src, exec, Config{Throttle: time.Second}, &bytes.Buffer{})
	require.NoError(t, s.Init())

	for i := 0; i < 5; i++ {
		s.poll(context.Background(), t0.Add(time.Duration(i*10)*time.Second))
	}

	assert.Equal(t, []string{"B", "A"}, exec.Calls())
	st := s.Status()
	assert.Equal(t, 2, st.Changes)
	assert.Equal(t, 2, st.Executions)
	assert.Equal(t, "A", st.Interface)
	assert.Equal(t, "B", st.Previous)
}

func TestService_ActionThrottle(t *testing.T) {
	src := newScriptedSource(
		ok(v4("wlan0")), // init
		ok(v4("rmnet0")),
		ok(v4("wlan0")),
		ok(v4("rmnet0")),
	)
	exec := &recordingExecutor{}
	s := newTestService(t, src, exec, Config{Throttle: 3 * time.Second, Mode: ThrottleAction}, &bytes.Buffer{})
	require.NoError(t, s.Init())

	s.poll(context.Background(), t0)
	s.poll(context.Background(), t0.Add(1*time.Second))
	s.poll(context.Background(), t0.Add(4*time.Second))

	assert.Equal(t, []string{"rmnet0", "rmnet0"}, exec.Calls())
	st := s.Status()
	assert.Equal(t, 3, st.Changes)
	assert.Equal(t, 1, st.Throttled)
	assert.Equal(t, t0.Add(4*time.Second), st.LastAction)
}

func TestService_ThrottledChangeStillUpdatesState(t *testing.T) {
	src := newScriptedSource(ok(v4("wlan0")), ok(v4("rmnet0")), ok(v4("eth0")), ok(v4("eth0")))
	exec := &recordingExecutor{}
	s := newTestService(t, src, exec, Config{Throttle: 3 * time.Second}, &bytes.Buffer{})
	require.NoError(t, s.Init())

	s.poll(context.Background(), t0)
	s.poll(context.Background(), t0.Add(time.Second))
	// Same interface after the window: no new change, so no action.
	s.poll(context.Background(), t0.Add(10*time.Second))

	assert.Equal(t, []string{"rmnet0"}, exec.Calls())
	assert.Equal(t, "eth0", s.state.Current)
}

func TestService_PollThrottleSkipsDetection(t *testing.T) {
	src := newScriptedSource(ok(v4("wlan0")), ok(v4("rmnet0")), ok(v4("eth0")))
	exec := &recordingExecutor{}
	s := newTestService(t, src, exec, Config{Throttle: 3 * time.Second, Mode: ThrottlePoll}, &bytes.Buffer{})
	require.NoError(t, s.Init())
	require.Equal(t, 1, src.Calls())

	s.poll(context.Background(), t0)
	assert.Equal(t, 2, src.Calls())

	s.poll(context.Background(), t0.Add(1*time.Second))
	s.poll(context.Background(), t0.Add(2*time.Second))
	assert.Equal(t, 2, src.Calls(), "polls inside the window must not read interfaces")

	s.poll(context.Background(), t0.Add(3*time.Second))
	assert.Equal(t, 3, src.Calls())

	assert.Equal(t, []string{"rmnet0", "eth0"}, exec.Calls())
}

func TestService_EmptySnapshotMidLoopRetainsState(t *testing.T) {
	src := newScriptedSource(ok(v4("wlan0")), ok(), ok(link("wlan0")), ok(v4("wlan0")))
	exec := &recordingExecutor{}
	s := newTestService(t, src, exec, Config{}, &bytes.Buffer{})
	require.NoError(t, s.Init())

	for i := 0; i < 3; i++ {
		s.poll(context.Background(), t0.Add(time.Duration(i*10)*time.Second))
	}

	assert.Empty(t, exec.Calls())
	assert.Equal(t, "wlan0", s.state.Current)
	assert.Equal(t, 0, s.Status().Changes)
}

func TestService_SnapshotErrorMidLoopContinues(t *testing.T) {
	src := newScriptedSource(
		ok(v4("wlan0")),
		fail(ErrSnapshotUnavailable),
		ok(v4("rmnet0")),
	)
	exec := &recordingExecutor{}
	s := newTestService(t, src, exec, Config{}, &bytes.Buffer{})
	require.NoError(t, s.Init())

	s.poll(context.Background(), t0)
	s.poll(context.Background(), t0.Add(10*time.Second))

	assert.Equal(t, []string{"rmnet0"}, exec.Calls())
}

func TestService_NoCommandOnlyDetects(t *testing.T) {
	src := newScriptedSource(ok(v4("wlan0")), ok(v4("rmnet0")))
	var out bytes.Buffer
	s := newTestService(t, src, nil, Config{Verbose: true}, &out)
	require.NoError(t, s.Init())

	s.poll(context.Background(), t0)

	assert.Equal(t, "rmnet0\n", out.String())
	assert.Equal(t, 1, s.Status().Changes)
	assert.Equal(t, 0, s.Status().Executions)
}

func TestService_VerboseOutput(t *testing.T) {
	src := newScriptedSource(ok(v4("wlan0")), ok(v4("wlan0")), ok(v4("rmnet0")))
	var out bytes.Buffer
	s := newTestService(t, src, &recordingExecutor{}, Config{Verbose: true}, &out)
	require.NoError(t, s.Init())

	s.poll(context.Background(), t0)
	s.poll(context.Background(), t0.Add(10*time.Second))

	assert.Equal(t, "rmnet0\n", out.String())
}

func TestService_VeryVerboseOutput(t *testing.T) {
	src := newScriptedSource(ok(v4("wlan0")), ok(v4("wlan0")), ok(v4("rmnet0")), ok())
	var out bytes.Buffer
	s := newTestService(t, src, &recordingExecutor{}, Config{VeryVerbose: true}, &out)
	require.NoError(t, s.Init())

	s.poll(context.Background(), t0)
	s.poll(context.Background(), t0.Add(10*time.Second))
	s.poll(context.Background(), t0.Add(20*time.Second))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{"wlan0", "rmnet0", "executing: /usr/bin/hook"}, lines)
}

func TestService_FailingCommandDoesNotStopLoop(t *testing.T) {
	src := newScriptedSource(ok(v4("wlan0")), ok(v4("rmnet0")), ok(v4("wlan0")))
	s := newTestService(t, src, runner.NewExecutor("false", nil), Config{Throttle: time.Second}, &bytes.Buffer{})
	require.NoError(t, s.Init())

	s.poll(context.Background(), t0)
	first := s.Status().LastOutcome
	require.NotNil(t, first)
	assert.Equal(t, runner.ExitError, first.Kind)

	s.poll(context.Background(), t0.Add(10*time.Second))
	st := s.Status()
	assert.Equal(t, 2, st.Changes)
	assert.Equal(t, 2, st.Executions)
	assert.Equal(t, "wlan0", st.LastOutcome.Interface)
}

func TestService_MissingCommandDoesNotStopLoop(t *testing.T) {
	src := newScriptedSource(ok(v4("wlan0")), ok(v4("rmnet0")), ok(v4("wlan0")))
	missing := runner.NewExecutor("/nonexistent/ifmond-hook", nil)
	s := newTestService(t, src, missing, Config{Throttle: time.Second}, &bytes.Buffer{})
	require.NoError(t, s.Init())

	s.poll(context.Background(), t0)
	s.poll(context.Background(), t0.Add(10*time.Second))

	st := s.Status()
	assert.Equal(t, 2, st.Executions)
	require.NotNil(t, st.LastOutcome)
	assert.Equal(t, runner.SpawnFailed, st.LastOutcome.Kind)
}

func TestService_SubscribeReceivesEvents(t *testing.T) {
	src := newScriptedSource(ok(v4("wlan0")), ok(v4("rmnet0")), ok(v4("wlan0")))
	s := newTestService(t, src, &recordingExecutor{}, Config{Throttle: 3 * time.Second}, &bytes.Buffer{})
	require.NoError(t, s.Init())

	ch, unsub := s.Subscribe()
	defer unsub()

	s.poll(context.Background(), t0)
	s.poll(context.Background(), t0.Add(time.Second))

	var got []EventType
	for i := 0; i < 5; i++ {
		select {
		case ev := <-ch:
			got = append(got, ev.Type)
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for event %d", i)
		}
	}
	assert.Equal(t, []EventType{
		InterfaceCurrent,
		InterfaceChanged, ActionExecuted,
		InterfaceChanged, ActionThrottled,
	}, got)
}

func TestService_CloseClosesSubscribers(t *testing.T) {
	s := newTestService(t, newScriptedSource(ok(v4("wlan0"))), nil, Config{}, &bytes.Buffer{})
	require.NoError(t, s.Init())

	ch, _ := s.Subscribe()
	<-ch
	require.NoError(t, s.Close())

	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
}

type nudgingWatcher struct {
	started chan func()
}

func (w *nudgingWatcher) Start(ctx context.Context, nudge func()) error {
	w.started <- nudge
	<-ctx.Done()
	return nil
}

func TestService_StartPollsAndStops(t *testing.T) {
	src := newScriptedSource(ok(v4("wlan0")), ok(v4("rmnet0")))
	exec := &recordingExecutor{}
	watcher := &nudgingWatcher{started: make(chan func(), 1)}
	s := NewService(src, exec, Config{Throttle: time.Second},
		WithOutput(&bytes.Buffer{}), WithWatcher(watcher))
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	var nudge func()
	select {
	case nudge = <-watcher.started:
	case <-time.After(time.Second):
		t.Fatal("watcher was not started")
	}
	nudge()

	assert.Eventually(t, func() bool { return len(exec.Calls()) == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for Start to return")
	}
}

func TestService_StartFailsWithoutInterfaces(t *testing.T) {
	s := NewService(newScriptedSource(ok()), nil, Config{Throttle: time.Second}, WithOutput(&bytes.Buffer{}))
	defer s.Close()

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, ErrNoInterfaces)
}

func TestNewService_Defaults(t *testing.T) {
	s := NewService(newScriptedSource(ok()), nil, Config{VeryVerbose: true, PollInterval: time.Millisecond})
	defer s.Close()

	assert.Equal(t, ThrottleAction, s.cfg.Mode)
	assert.Equal(t, MinPollInterval, s.cfg.PollInterval)
	assert.True(t, s.cfg.Verbose)
	assert.Empty(t, s.Status().Command)

	s = NewService(newScriptedSource(ok()), nil, Config{PollInterval: time.Minute})
	defer s.Close()
	assert.Equal(t, MaxPollInterval, s.cfg.PollInterval)
}
