// File: daemon/coordinator.go
package daemon

import (
	"context"
	"fmt"

	"github.com/lguibr/harness/actors"
	"github.com/lguibr/harness/api"
	"github.com/lguibr/harness/runs"
	"go.uber.org/zap"
)

// FinderFactory creates the test class finder for one RunTests command.
type FinderFactory func(classPath []string, include string) api.TestClassFinder

// coordinator is the daemon's CommandListener actor. Everything it and its
// secondary actors touch is confined to one actor thread.
type coordinator struct {
	system     *actors.System
	catalog    *Catalog
	newFinder  FinderFactory
	env        *testEnv
	onShutdown func()
	log        *zap.Logger

	suiteRunning bool
	outstanding  int
}

func newCoordinator(system *actors.System, catalog *Catalog, newFinder FinderFactory, listener api.SuiteListener,
	properties map[string]string, onShutdown func(), log *zap.Logger) *coordinator {
	return &coordinator{
		system:    system,
		catalog:   catalog,
		newFinder: newFinder,
		env: &testEnv{
			listener:   listener,
			current:    runs.NewCurrentRun(runs.NewRunIDSequence()),
			properties: properties,
		},
		onShutdown: onShutdown,
		log:        log,
	}
}

func (c *coordinator) RunTests(ctx context.Context, classPath []string, include string) {
	listener := c.env.listener
	if c.suiteRunning {
		listener.OnInternalError(ctx, "a suite is already running")
		return
	}
	c.suiteRunning = true
	c.log.Info("running tests", zap.Strings("classPath", classPath), zap.String("include", include))
	listener.OnSuiteStarted(ctx)

	found, err := actors.CreateSecondaryActor[api.TestClassFinderListener](ctx, &classFoundHandler{c: c})
	if err != nil {
		c.internalError(ctx, err)
		return
	}
	finder := c.newFinder(classPath, include)
	c.startWorker(ctx, func(ctx context.Context) error {
		if err := finder.FindTestClasses(ctx, found.Tell()); err != nil {
			listener.OnInternalError(ctx, fmt.Sprintf("test class discovery failed: %v", err))
		}
		return nil
	})
}

func (c *coordinator) Shutdown(ctx context.Context) {
	c.log.Info("shutdown requested")
	c.onShutdown()
}

// startWorker runs work off the actor thread and counts it until its
// completion message arrives back here.
func (c *coordinator) startWorker(ctx context.Context, work actors.Task) {
	c.outstanding++
	if err := c.system.StartUnattendedWorker(ctx, work, c.workerFinished); err != nil {
		c.outstanding--
		c.internalError(ctx, err)
	}
}

func (c *coordinator) workerFinished(ctx context.Context) {
	c.outstanding--
	if c.outstanding == 0 && c.suiteRunning {
		c.suiteRunning = false
		c.log.Info("suite finished")
		c.env.listener.OnSuiteFinished(ctx)
	}
}

func (c *coordinator) internalError(ctx context.Context, err error) {
	c.log.Error("internal error", zap.Error(err))
	c.env.listener.OnInternalError(ctx, err.Error())
}

// classFoundHandler is a secondary actor of the coordinator: it starts a
// driver for every class the finder reports.
type classFoundHandler struct {
	c *coordinator
}

func (h *classFoundHandler) OnTestClassFound(ctx context.Context, className string) {
	fn, ok := h.c.catalog.Lookup(className)
	if !ok {
		h.c.env.listener.OnInternalError(ctx, fmt.Sprintf("test class %s not found", className))
		return
	}
	env := h.c.env
	h.c.startWorker(ctx, func(ctx context.Context) error {
		execute(ctx, env, className, RootTestID, className, fn)
		return nil
	})
}

func (h *classFoundHandler) OnAllTestClassesFound(context.Context) {
	h.c.log.Debug("all test classes found")
}
