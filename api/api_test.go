package api

import (
	"context"
	"sync"
	"testing"

	"github.com/lguibr/harness/actors"
	"github.com/lguibr/harness/runs"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	mu   sync.Mutex
	msgs []actors.Message
}

func (c *capture) Send(_ context.Context, msg actors.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

type commandSpy struct {
	classPath []string
	include   string
	shutdowns int
}

func (c *commandSpy) RunTests(_ context.Context, classPath []string, include string) {
	c.classPath, c.include = classPath, include
}

func (c *commandSpy) Shutdown(context.Context) { c.shutdowns++ }

// suiteSpy renders every call it gets, so sequences can be compared.
type suiteSpy struct {
	calls []string
}

func (s *suiteSpy) add(msg actors.Message) { s.calls = append(s.calls, msg.String()) }

func (s *suiteSpy) OnSuiteStarted(context.Context) {
	s.add(actors.NewMessage("S", "suiteStarted"))
}
func (s *suiteSpy) OnTestFound(_ context.Context, className, testID, name string) {
	s.add(actors.NewMessage("S", "testFound", className, testID, name))
}
func (s *suiteSpy) OnRunStarted(_ context.Context, runID runs.RunID, className string) {
	s.add(actors.NewMessage("S", "runStarted", runID, className))
}
func (s *suiteSpy) OnTestStarted(_ context.Context, runID runs.RunID, testID string) {
	s.add(actors.NewMessage("S", "testStarted", runID, testID))
}
func (s *suiteSpy) OnFailure(_ context.Context, runID runs.RunID, description string) {
	s.add(actors.NewMessage("S", "failure", runID, description))
}
func (s *suiteSpy) OnTestFinished(_ context.Context, runID runs.RunID) {
	s.add(actors.NewMessage("S", "testFinished", runID))
}
func (s *suiteSpy) OnRunFinished(_ context.Context, runID runs.RunID) {
	s.add(actors.NewMessage("S", "runFinished", runID))
}
func (s *suiteSpy) OnInternalError(_ context.Context, message string) {
	s.add(actors.NewMessage("S", "internalError", message))
}
func (s *suiteSpy) OnSuiteFinished(context.Context) {
	s.add(actors.NewMessage("S", "suiteFinished"))
}

func TestRegistry_HasEveryCapability(t *testing.T) {
	assert.Equal(t, []string{
		"CommandListener",
		"Runnable",
		"SuiteListener",
		"TestClassFinderListener",
	}, NewRegistry().Capabilities())
}

func TestCommandListener_RoundTrip(t *testing.T) {
	registry := NewRegistry()
	c := &capture{}
	frontend, err := actors.Frontend[CommandListener](registry, c)
	require.NoError(t, err)

	classPath := []string{"a", "b"}
	frontend.RunTests(context.Background(), classPath, "*Test")
	classPath[0] = "mutated"
	frontend.Shutdown(context.Background())

	spy := &commandSpy{}
	backend, err := registry.Backend("CommandListener", spy)
	require.NoError(t, err)
	for _, msg := range c.msgs {
		require.NoError(t, backend(context.Background(), msg))
	}
	assert.Equal(t, []string{"a", "b"}, spy.classPath)
	assert.Equal(t, "*Test", spy.include)
	assert.Equal(t, 1, spy.shutdowns)
}

func TestCommandListener_AcceptsWireValues(t *testing.T) {
	spy := &commandSpy{}
	backend, err := actors.BackendFor[CommandListener](NewRegistry(), spy)
	require.NoError(t, err)

	msg := actors.NewMessage("CommandListener", "runTests", []any{"x"}, "*")
	require.NoError(t, backend(context.Background(), msg))
	assert.Equal(t, []string{"x"}, spy.classPath)

	err = backend(context.Background(), actors.NewMessage("CommandListener", "runTests", []any{1}, "*"))
	assert.True(t, errors.Is(err, actors.ErrBadArgument))
}

func TestSuiteListener_RoundTrip(t *testing.T) {
	registry := NewRegistry()
	c := &capture{}
	frontend, err := actors.Frontend[SuiteListener](registry, c)
	require.NoError(t, err)

	ctx := context.Background()
	frontend.OnSuiteStarted(ctx)
	frontend.OnTestFound(ctx, "FooTest", "/", "FooTest")
	frontend.OnRunStarted(ctx, 1, "FooTest")
	frontend.OnTestStarted(ctx, 1, "/")
	frontend.OnFailure(ctx, 1, "boom")
	frontend.OnTestFinished(ctx, 1)
	frontend.OnRunFinished(ctx, 1)
	frontend.OnInternalError(ctx, "lost")
	frontend.OnSuiteFinished(ctx)

	spy := &suiteSpy{}
	for _, msg := range c.msgs {
		require.NoError(t, Replay(ctx, msg, spy))
	}
	assert.Equal(t, []string{
		`S.suiteStarted()`,
		`S.testFound("FooTest", "/", "FooTest")`,
		`S.runStarted(RunId(1), "FooTest")`,
		`S.testStarted(RunId(1), "/")`,
		`S.failure(RunId(1), "boom")`,
		`S.testFinished(RunId(1))`,
		`S.runFinished(RunId(1))`,
		`S.internalError("lost")`,
		`S.suiteFinished()`,
	}, spy.calls)
}

func TestSuiteListener_RunIDFromWire(t *testing.T) {
	spy := &suiteSpy{}
	require.NoError(t, Replay(context.Background(), actors.NewMessage("SuiteListener", SelectorRunFinished, float64(3)), spy))
	assert.Equal(t, []string{`S.runFinished(RunId(3))`}, spy.calls)
}

func TestTestClassFinderListener_RoundTrip(t *testing.T) {
	registry := NewRegistry()
	c := &capture{}
	frontend, err := actors.Frontend[TestClassFinderListener](registry, c)
	require.NoError(t, err)

	frontend.OnTestClassFound(context.Background(), "FooTest")
	frontend.OnAllTestClassesFound(context.Background())
	require.Len(t, c.msgs, 2)
	assert.Equal(t, `TestClassFinderListener.onTestClassFound("FooTest")`, c.msgs[0].String())
	assert.Equal(t, `TestClassFinderListener.onAllTestClassesFound()`, c.msgs[1].String())
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "RunId(2) started in FooTest",
		Describe(actors.NewMessage("SuiteListener", SelectorRunStarted, 2, "FooTest")))
	assert.Equal(t, "Internal error: lost",
		Describe(actors.NewMessage("SuiteListener", SelectorInternalError, "lost")))
	assert.Equal(t, `CommandListener.shutdown()`,
		Describe(actors.NewMessage("CommandListener", "shutdown")))
	assert.Equal(t, `SuiteListener.onRunStarted("bad")`,
		Describe(actors.NewMessage("SuiteListener", SelectorRunStarted, "bad")),
		"undecodable messages fall back to the call form")
}
