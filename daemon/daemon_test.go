package daemon

import (
	"context"
	"sync"
	"testing"

	"github.com/lguibr/harness/actors"
	"github.com/lguibr/harness/api"
	"github.com/lguibr/harness/runs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a SuiteListener that records the calls it gets as messages.
type recorder struct {
	mu   sync.Mutex
	msgs []actors.Message
}

func (r *recorder) Send(_ context.Context, msg actors.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) listener(t *testing.T) api.SuiteListener {
	l, err := actors.Frontend[api.SuiteListener](api.NewRegistry(), r)
	require.NoError(t, err)
	return l
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, msg := range r.msgs {
		out[i] = msg.String()
	}
	return out
}

func (r *recorder) selectors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, msg := range r.msgs {
		out[i] = msg.Selector()
	}
	return out
}

func newTestEnv(t *testing.T, rec *recorder) *testEnv {
	return &testEnv{
		listener:   rec.listener(t),
		current:    runs.NewCurrentRun(runs.NewRunIDSequence()),
		properties: map[string]string{"seed": "42"},
	}
}

func TestExecute_NestedTestsShareTheRun(t *testing.T) {
	rec := &recorder{}
	env := newTestEnv(t, rec)

	root := execute(context.Background(), env, "pkg/ClassTest", RootTestID, "pkg/ClassTest", func(t *T) {
		t.Run("child", func(t *T) {
			t.Errorf("bad %d", 1)
		})
	})

	assert.True(t, root.Failed(), "a failing child fails its parent")
	assert.Equal(t, []string{
		`SuiteListener.onTestFound("pkg/ClassTest", "/", "pkg/ClassTest")`,
		`SuiteListener.onRunStarted(1, "pkg/ClassTest")`,
		`SuiteListener.onTestStarted(1, "/")`,
		`SuiteListener.onTestFound("pkg/ClassTest", "/0", "child")`,
		`SuiteListener.onTestStarted(1, "/0")`,
		`SuiteListener.onFailure(1, "bad 1")`,
		`SuiteListener.onTestFinished(1)`,
		`SuiteListener.onTestFinished(1)`,
		`SuiteListener.onRunFinished(1)`,
	}, rec.calls())
}

func TestExecute_EveryClassIsANewRun(t *testing.T) {
	rec := &recorder{}
	env := newTestEnv(t, rec)

	first := execute(context.Background(), env, "a", RootTestID, "a", func(*T) {})
	second := execute(context.Background(), env, "b", RootTestID, "b", func(*T) {})

	assert.Equal(t, runs.RunID(1), first.RunID())
	assert.Equal(t, runs.RunID(2), second.RunID())
	assert.False(t, first.Failed())
}

func TestExecute_GoroutinesBelongToTheRun(t *testing.T) {
	rec := &recorder{}
	env := newTestEnv(t, rec)

	var fromGoroutine runs.RunID
	var nestedPassed bool
	root := execute(context.Background(), env, "a", RootTestID, "a", func(t *T) {
		t.Go(func(ctx context.Context) {
			fromGoroutine, _ = env.current.RunID(ctx)
			nestedPassed = t.Run("async", func(*T) {})
		})
	})

	assert.Equal(t, root.RunID(), fromGoroutine)
	assert.True(t, nestedPassed)
	assert.Equal(t, []string{
		"onTestFound", "onRunStarted", "onTestStarted",
		"onTestFound", "onTestStarted", "onTestFinished",
		"onTestFinished", "onRunFinished",
	}, rec.selectors(), "the run finishes after the goroutine")
}

func TestExecute_PanicAndFatalAreFailures(t *testing.T) {
	rec := &recorder{}
	env := newTestEnv(t, rec)

	var afterFatal bool
	root := execute(context.Background(), env, "a", RootTestID, "a", func(t *T) {
		t.Run("panics", func(*T) { panic("boom") })
		t.Run("fatal", func(t *T) {
			t.Fatalf("stop")
			afterFatal = true
		})
	})

	assert.True(t, root.Failed())
	assert.False(t, afterFatal)
	var failures []string
	for _, msg := range rec.msgs {
		if msg.Selector() == api.SelectorFailure {
			description, err := msg.StringArg(1)
			require.NoError(t, err)
			failures = append(failures, description)
		}
	}
	require.Len(t, failures, 2)
	assert.Contains(t, failures[0], "panic: boom")
	assert.Equal(t, "stop", failures[1])
	assert.Equal(t, "onRunFinished", rec.selectors()[len(rec.msgs)-1])
}

func TestT_Property(t *testing.T) {
	rec := &recorder{}
	env := newTestEnv(t, rec)

	execute(context.Background(), env, "a", RootTestID, "a", func(t *T) {
		seed, ok := t.Property("seed")
		if !ok || seed != "42" {
			t.Errorf("seed = %q", seed)
		}
		if _, ok := t.Property("missing"); ok {
			t.Errorf("unexpected property")
		}
	})
	assert.NotContains(t, rec.selectors(), api.SelectorFailure)
}

type foundClasses struct {
	names []string
	done  bool
}

func (f *foundClasses) OnTestClassFound(_ context.Context, className string) {
	f.names = append(f.names, className)
}

func (f *foundClasses) OnAllTestClassesFound(context.Context) { f.done = true }

func TestCatalogFinder(t *testing.T) {
	catalog := NewCatalog().
		Add("sample/OnePassingTest", func(*T) {}).
		Add("sample/OneFailingTest", func(*T) {}).
		Add("sample/nested/DeepTest", func(*T) {}).
		Add("other/Helper", func(*T) {})

	for _, tc := range []struct {
		name      string
		classPath []string
		include   string
		want      []string
	}{
		{"everything", nil, "", []string{"other/Helper", "sample/OneFailingTest", "sample/OnePassingTest", "sample/nested/DeepTest"}},
		{"class path", []string{"sample"}, "", []string{"sample/OneFailingTest", "sample/OnePassingTest", "sample/nested/DeepTest"}},
		{"base name pattern", nil, "*Test", []string{"sample/OneFailingTest", "sample/OnePassingTest", "sample/nested/DeepTest"}},
		{"full name pattern", []string{"sample/"}, "sample/One*", []string{"sample/OneFailingTest", "sample/OnePassingTest"}},
		{"nothing", []string{"missing"}, "", nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			found := &foundClasses{}
			finder := CatalogFinder{Catalog: catalog, ClassPath: tc.classPath, Include: tc.include}
			require.NoError(t, finder.FindTestClasses(context.Background(), found))
			assert.Equal(t, tc.want, found.names)
			assert.True(t, found.done)
		})
	}

	err := CatalogFinder{Catalog: catalog, Include: "["}.FindTestClasses(context.Background(), &foundClasses{})
	assert.Error(t, err)
}

func TestCoordinator_RunsTheSuite(t *testing.T) {
	catalog := NewCatalog().
		Add("sample/PassingTest", func(*T) {}).
		Add("sample/FailingTest", func(t *T) { t.Errorf("expected failure") })

	rec := &recorder{}
	system := actors.NewSingleThreaded(api.NewRegistry(), actors.WithFailureHandler(actors.CrashEarlyFailureHandler{}))
	var shutdowns int
	coord := newCoordinator(system.System, catalog, func(classPath []string, include string) api.TestClassFinder {
		return CatalogFinder{Catalog: catalog, ClassPath: classPath, Include: include}
	}, rec.listener(t), nil, func() { shutdowns++ }, zapNop())

	commands, err := actors.CreatePrimaryActor[api.CommandListener](context.Background(), system.System, coord, "daemon")
	require.NoError(t, err)
	commands.Tell().RunTests(context.Background(), []string{"sample"}, "*Test")
	require.NoError(t, system.ProcessEventsUntilIdle(context.Background()))

	selectors := rec.selectors()
	require.NotEmpty(t, selectors)
	assert.Equal(t, api.SelectorSuiteStarted, selectors[0])
	assert.Equal(t, api.SelectorSuiteFinished, selectors[len(selectors)-1])
	assert.Equal(t, 2, count(selectors, api.SelectorRunStarted))
	assert.Equal(t, 2, count(selectors, api.SelectorRunFinished))
	assert.Equal(t, 1, count(selectors, api.SelectorFailure))

	commands.Tell().Shutdown(context.Background())
	require.NoError(t, system.ProcessEventsUntilIdle(context.Background()))
	assert.Equal(t, 1, shutdowns)
}

func TestCoordinator_EmptySuiteStillFinishes(t *testing.T) {
	rec := &recorder{}
	system := actors.NewSingleThreaded(api.NewRegistry())
	catalog := NewCatalog()
	coord := newCoordinator(system.System, catalog, func([]string, string) api.TestClassFinder {
		return CatalogFinder{Catalog: catalog}
	}, rec.listener(t), nil, func() {}, zapNop())

	commands, err := actors.CreatePrimaryActor[api.CommandListener](context.Background(), system.System, coord, "daemon")
	require.NoError(t, err)
	commands.Tell().RunTests(context.Background(), nil, "")
	require.NoError(t, system.ProcessEventsUntilIdle(context.Background()))

	assert.Equal(t, []string{api.SelectorSuiteStarted, api.SelectorSuiteFinished}, rec.selectors())
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
