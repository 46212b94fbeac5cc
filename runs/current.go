// File: runs/current.go
package runs

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

var (
	// ErrNoActiveRun is returned when a run ID is asked for outside of a test.
	ErrNoActiveRun = errors.New("no active run")
	// ErrUnbalancedExit is returned by an ExitTest without a matching EnterTest.
	ErrUnbalancedExit = errors.New("exit test without matching enter test")
)

type runKey struct{}

// runContext is shared by every context derived from the one that started
// the run, so goroutines handed such a context count towards the same run.
type runContext struct {
	id RunID

	mu      sync.Mutex
	nesting int
}

// CurrentRun tracks which run the code holding a context belongs to. A run
// starts at the outermost EnterTest and ends when the matching ExitTest
// brings the nesting back to zero.
type CurrentRun struct {
	ids *RunIDSequence
}

// NewCurrentRun creates a tracker taking its IDs from ids.
func NewCurrentRun(ids *RunIDSequence) *CurrentRun {
	return &CurrentRun{ids: ids}
}

// EnterTest marks the start of a test. When ctx has no active run a new run
// is started; the returned context carries it and must be used for
// everything belonging to the test, including goroutines the test starts.
// The bool reports whether a new run was started.
func (c *CurrentRun) EnterTest(ctx context.Context) (context.Context, bool) {
	if rc := activeRun(ctx); rc != nil {
		rc.mu.Lock()
		if rc.nesting > 0 {
			rc.nesting++
			rc.mu.Unlock()
			return ctx, false
		}
		rc.mu.Unlock()
	}
	rc := &runContext{id: c.ids.Next(), nesting: 1}
	return context.WithValue(ctx, runKey{}, rc), true
}

// RunID returns the ID of the run ctx belongs to.
func (c *CurrentRun) RunID(ctx context.Context) (RunID, error) {
	rc := activeRun(ctx)
	if rc == nil {
		return 0, ErrNoActiveRun
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.nesting == 0 {
		return 0, errors.Wrapf(ErrNoActiveRun, "%s already finished", rc.id)
	}
	return rc.id, nil
}

// ExitTest marks the end of a test and reports whether it was the outermost
// one, i.e. whether the run ended.
func (c *CurrentRun) ExitTest(ctx context.Context) (bool, error) {
	rc := activeRun(ctx)
	if rc == nil {
		return false, ErrUnbalancedExit
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.nesting == 0 {
		return false, errors.Wrapf(ErrUnbalancedExit, "%s already finished", rc.id)
	}
	rc.nesting--
	return rc.nesting == 0, nil
}

func activeRun(ctx context.Context) *runContext {
	if ctx == nil {
		return nil
	}
	rc, _ := ctx.Value(runKey{}).(*runContext)
	return rc
}
