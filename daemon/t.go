// File: daemon/t.go
package daemon

import (
	"context"
	"fmt"
	"path"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"

	"github.com/lguibr/harness/api"
	"github.com/lguibr/harness/runs"
)

// RootTestID identifies the test class itself; nested tests get child IDs
// such as "/0" and "/0/1".
const RootTestID = "/"

// T is handed to test functions. Its methods may be called from any
// goroutine that belongs to the test.
type T struct {
	ctx       context.Context
	env       *testEnv
	className string
	testID    string
	name      string
	runID     runs.RunID

	mu       sync.Mutex
	failed   bool
	children int
	workers  sync.WaitGroup
}

// testEnv is what every test of one suite shares.
type testEnv struct {
	listener   api.SuiteListener
	current    *runs.CurrentRun
	properties map[string]string
}

// Name returns the test's name.
func (t *T) Name() string { return t.name }

// ID returns the test's ID within its class.
func (t *T) ID() string { return t.testID }

// RunID returns the run the test belongs to.
func (t *T) RunID() runs.RunID { return t.runID }

// Context returns the test's context. Goroutines started with it, or with
// a context derived from it, belong to the same run.
func (t *T) Context() context.Context { return t.ctx }

// Property returns a --property given to the daemon.
func (t *T) Property(key string) (string, bool) {
	v, ok := t.env.properties[key]
	return v, ok
}

// Errorf reports a failure and lets the test continue.
func (t *T) Errorf(format string, args ...any) {
	t.Fail()
	t.env.listener.OnFailure(t.ctx, t.runID, fmt.Sprintf(format, args...))
}

// Fatalf reports a failure and stops the test. It must be called from the
// test function's own goroutine.
func (t *T) Fatalf(format string, args ...any) {
	t.Errorf(format, args...)
	runtime.Goexit()
}

// Fail marks the test as failed.
func (t *T) Fail() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed = true
}

// Failed reports whether the test has failed.
func (t *T) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

// Run runs fn as a nested test of t, in the same run, and waits for it.
// It reports whether the nested test passed.
func (t *T) Run(name string, fn TestFunc) bool {
	t.mu.Lock()
	id := path.Join(t.testID, strconv.Itoa(t.children))
	t.children++
	t.mu.Unlock()

	child := execute(t.ctx, t.env, t.className, id, name, fn)
	if child.Failed() {
		t.Fail()
	}
	return !child.Failed()
}

// Go runs fn on a new goroutine that belongs to the same run. The test
// does not finish before fn returns.
func (t *T) Go(fn func(ctx context.Context)) {
	t.workers.Add(1)
	go func() {
		defer t.workers.Done()
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("panic in goroutine: %v\n%s", r, debug.Stack())
			}
		}()
		fn(t.ctx)
	}()
}

// execute runs one test, nested or not, and reports it to the listener. A
// test entered without an active run in ctx starts a new run.
func execute(ctx context.Context, env *testEnv, className, testID, name string, fn TestFunc) *T {
	ctx, newRun := env.current.EnterTest(ctx)
	runID, err := env.current.RunID(ctx)
	if err != nil {
		env.listener.OnInternalError(ctx, err.Error())
	}
	t := &T{ctx: ctx, env: env, className: className, testID: testID, name: name, runID: runID}

	env.listener.OnTestFound(ctx, className, testID, name)
	if newRun {
		env.listener.OnRunStarted(ctx, runID, className)
	}
	env.listener.OnTestStarted(ctx, runID, testID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("panic: %v\n%s", r, debug.Stack())
			}
		}()
		fn(t)
	}()
	<-done
	t.workers.Wait()

	env.listener.OnTestFinished(ctx, runID)
	ended, err := env.current.ExitTest(ctx)
	if err != nil {
		env.listener.OnInternalError(ctx, err.Error())
	}
	if ended {
		env.listener.OnRunFinished(ctx, runID)
	}
	return t
}
