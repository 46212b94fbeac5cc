package launcher

import (
	"bytes"
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lguibr/harness/actors"
	"github.com/lguibr/harness/api"
	"github.com/lguibr/harness/config"
	"github.com/lguibr/harness/daemon"
	"github.com/lguibr/harness/daemon/daemontest"
	"github.com/lguibr/harness/process"
	"github.com/lguibr/harness/sample"
	"github.com/lguibr/harness/wire"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain turns the test binary into a daemon when the launcher under
// test starts it.
func TestMain(m *testing.M) {
	daemontest.Main(m, sample.Register(daemon.NewCatalog()).
		Add("crash/ExitTest", func(*daemon.T) { os.Exit(3) }))
}

func newTestLauncher(t *testing.T) *Launcher {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.HomeDir = t.TempDir()
	l := New(cfg,
		WithSteward(&process.DirHomeManager{Home: cfg.HomeDir, Executable: exe}),
		WithDaemonArgs("daemon"))
	l.AddRuntimeOptions(daemontest.RuntimeOption)
	t.Cleanup(func() { l.Close(context.Background()) })
	return l
}

func drain(q *actors.Queue[actors.Message]) []actors.Message {
	var msgs []actors.Message
	for {
		msg, ok := q.Poll()
		if !ok {
			return msgs
		}
		msgs = append(msgs, msg)
	}
}

func selectorsOf(msgs []actors.Message) []string {
	out := make([]string, len(msgs))
	for i, msg := range msgs {
		out[i] = msg.Selector()
	}
	return out
}

func count(items []string, item string) int {
	n := 0
	for _, s := range items {
		if s == item {
			n++
		}
	}
	return n
}

func waitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestLauncher_RunsTheSuite(t *testing.T) {
	l := newTestLauncher(t)
	l.AddToClassPath("sample")
	l.SetTestsToInclude("*Test")
	l.SetProperty(sample.SumProperty, "4")
	var out bytes.Buffer
	l.SetOutput(&out)
	var sunk int
	l.AddEventSink(func(actors.Message) { sunk++ })

	require.NoError(t, l.Start(context.Background()))
	require.NoError(t, l.Wait(waitCtx(t)))

	selectors := selectorsOf(drain(l.EventStream()))
	require.NotEmpty(t, selectors)
	assert.Equal(t, api.SelectorSuiteStarted, selectors[0])
	assert.Equal(t, api.SelectorSuiteFinished, selectors[len(selectors)-1])
	assert.Equal(t, 6, count(selectors, api.SelectorRunStarted), "one run per sample class")
	assert.Equal(t, 6, count(selectors, api.SelectorRunFinished))
	assert.Equal(t, 1, count(selectors, api.SelectorFailure), "only FailingTest fails")
	assert.Zero(t, count(selectors, api.SelectorInternalError))
	assert.Equal(t, len(selectors), sunk)

	assert.Contains(t, out.String(), "Suite started")
	assert.Contains(t, out.String(), "FAIL expected failure: 1 != 2")
	assert.Contains(t, out.String(), "Suite finished")

	assert.NoError(t, l.Close(context.Background()))
	assert.False(t, l.manager.Alive(), "the daemon is gone after Close")
}

func TestLauncher_DaemonDeathEndsTheSuite(t *testing.T) {
	l := newTestLauncher(t)
	l.AddToClassPath("crash")

	require.NoError(t, l.Start(context.Background()))
	err := l.Wait(waitCtx(t))
	assert.True(t, errors.Is(err, wire.ErrChannelClosed), "got %v", err)

	selectors := selectorsOf(drain(l.EventStream()))
	require.GreaterOrEqual(t, len(selectors), 2)
	assert.Equal(t, []string{api.SelectorInternalError, api.SelectorSuiteFinished}, selectors[len(selectors)-2:])
	assert.Equal(t, 1, count(selectors, api.SelectorSuiteFinished))
	assert.NoError(t, l.Close(context.Background()))
}

func TestLauncher_DaemonCannotStart(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.HomeDir = t.TempDir()
	l := New(cfg, WithSteward(&process.DirHomeManager{Home: cfg.HomeDir, Executable: "/nonexistent/harness"}))

	require.NoError(t, l.Start(context.Background()))
	assert.True(t, errors.Is(l.Start(context.Background()), ErrAlreadyStarted))

	assert.Error(t, l.Wait(waitCtx(t)))
	assert.Equal(t, []string{api.SelectorInternalError, api.SelectorSuiteFinished}, selectorsOf(drain(l.EventStream())))
	assert.NoError(t, l.Close(context.Background()))
}

func TestLauncher_CloseBeforeStart(t *testing.T) {
	l := New(config.DefaultConfig())
	assert.NoError(t, l.Close(context.Background()))
}

func TestLauncher_CloseWhileSummoningStartsNoDaemon(t *testing.T) {
	starter := &fakeStarter{}
	steward := &slowSteward{
		DirHomeManager: process.DirHomeManager{Home: t.TempDir(), Executable: "/opt/harness"},
		delay:          200 * time.Millisecond,
		entered:        make(chan struct{}),
	}
	l := New(config.DefaultConfig(), WithSteward(steward), WithProcessStarter(starter))

	require.NoError(t, l.Start(context.Background()))
	select {
	case <-steward.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("the daemon was never summoned")
	}
	require.NoError(t, l.Close(context.Background()))

	time.Sleep(300 * time.Millisecond)
	for _, h := range starter.all() {
		assert.True(t, h.stopped(), "daemon pid %d outlived Close", h.pid)
	}
	assert.Empty(t, starter.all(), "no daemon is started once Close began")
	assert.False(t, l.manager.Alive())
}

func TestLauncher_DaemonThatNeverAnnouncesIsStopped(t *testing.T) {
	starter := &fakeStarter{}
	cfg := config.DefaultConfig()
	cfg.HomeDir = t.TempDir()
	cfg.ConnectTimeout = 200 * time.Millisecond
	l := New(cfg,
		WithSteward(&process.DirHomeManager{Home: cfg.HomeDir, Executable: "/opt/harness"}),
		WithProcessStarter(starter))
	t.Cleanup(func() { l.Close(context.Background()) })

	require.NoError(t, l.Start(context.Background()))
	assert.Error(t, l.Wait(waitCtx(t)))

	handles := starter.all()
	require.Len(t, handles, 1)
	assert.True(t, handles[0].stopped(), "a daemon the launcher could not connect to is stopped")
	assert.False(t, l.manager.Alive())
	assert.Equal(t, []string{api.SelectorInternalError, api.SelectorSuiteFinished}, selectorsOf(drain(l.EventStream())))
}

// slowSteward takes its time creating working directories.
type slowSteward struct {
	process.DirHomeManager
	delay   time.Duration
	entered chan struct{}
	once    sync.Once
}

func (s *slowSteward) NewWorkDir() (string, error) {
	s.once.Do(func() { close(s.entered) })
	time.Sleep(s.delay)
	return s.DirHomeManager.NewWorkDir()
}

// fakeStarter starts processes that run until they are terminated or
// killed and never announce themselves.
type fakeStarter struct {
	mu      sync.Mutex
	handles []*fakeHandle
}

func (s *fakeStarter) Start(context.Context, process.StartSpec) (process.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := &fakeHandle{pid: 1000 + len(s.handles), done: make(chan struct{})}
	s.handles = append(s.handles, h)
	return h, nil
}

func (s *fakeStarter) all() []*fakeHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeHandle{}, s.handles...)
}

type fakeHandle struct {
	pid     int
	once    sync.Once
	done    chan struct{}
	signals atomic.Int32
}

func (h *fakeHandle) Pid() int { return h.pid }

func (h *fakeHandle) Terminate() error {
	h.signals.Add(1)
	h.once.Do(func() { close(h.done) })
	return nil
}

func (h *fakeHandle) Kill() error { return h.Terminate() }

func (h *fakeHandle) Wait() error {
	<-h.done
	return nil
}

func (h *fakeHandle) stopped() bool { return h.signals.Load() > 0 }
