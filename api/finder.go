// File: api/finder.go
package api

import (
	"context"

	"github.com/lguibr/harness/actors"
)

// TestClassFinder discovers test classes. It may block; it is run on an
// unattended worker and reports through listener. Returning ends the
// discovery.
type TestClassFinder interface {
	FindTestClasses(ctx context.Context, listener TestClassFinderListener) error
}

// TestClassFinderListener receives discovered test classes.
type TestClassFinderListener interface {
	OnTestClassFound(ctx context.Context, className string)
	OnAllTestClassesFound(ctx context.Context)
}

const testClassFinderListener = "TestClassFinderListener"

// TestClassFinderListenerEventizer is the capability proxy pair of
// TestClassFinderListener.
var TestClassFinderListenerEventizer = actors.Eventizer[TestClassFinderListener]{
	Capability: testClassFinderListener,
	NewFrontend: func(sender actors.MessageSender) TestClassFinderListener {
		return testClassFinderListenerToMessage{sender: sender}
	},
	NewBackend: func(target TestClassFinderListener) actors.Backend {
		return actors.Selectors{
			"onTestClassFound": func(ctx context.Context, msg actors.Message) error {
				className, err := msg.StringArg(0)
				if err != nil {
					return err
				}
				target.OnTestClassFound(ctx, className)
				return nil
			},
			"onAllTestClassesFound": func(ctx context.Context, _ actors.Message) error {
				target.OnAllTestClassesFound(ctx)
				return nil
			},
		}.Backend(testClassFinderListener)
	},
}

type testClassFinderListenerToMessage struct {
	sender actors.MessageSender
}

func (t testClassFinderListenerToMessage) OnTestClassFound(ctx context.Context, className string) {
	t.sender.Send(ctx, actors.NewMessage(testClassFinderListener, "onTestClassFound", className))
}

func (t testClassFinderListenerToMessage) OnAllTestClassesFound(ctx context.Context) {
	t.sender.Send(ctx, actors.NewMessage(testClassFinderListener, "onAllTestClassesFound"))
}
