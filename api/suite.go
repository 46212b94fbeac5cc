// File: api/suite.go
package api

import (
	"context"

	"github.com/lguibr/harness/actors"
	"github.com/lguibr/harness/runs"
)

// SuiteListener receives the progress of a test suite, from the daemon to
// the launcher and on to the UI.
type SuiteListener interface {
	OnSuiteStarted(ctx context.Context)
	OnTestFound(ctx context.Context, className, testID, name string)
	OnRunStarted(ctx context.Context, runID runs.RunID, className string)
	OnTestStarted(ctx context.Context, runID runs.RunID, testID string)
	OnFailure(ctx context.Context, runID runs.RunID, description string)
	OnTestFinished(ctx context.Context, runID runs.RunID)
	OnRunFinished(ctx context.Context, runID runs.RunID)
	// OnInternalError reports a failure of the engine itself rather than of
	// a test, e.g. a lost daemon.
	OnInternalError(ctx context.Context, message string)
	OnSuiteFinished(ctx context.Context)
}

const suiteListener = "SuiteListener"

// Selectors of SuiteListener, for consumers of the event stream.
const (
	SelectorSuiteStarted  = "onSuiteStarted"
	SelectorTestFound     = "onTestFound"
	SelectorRunStarted    = "onRunStarted"
	SelectorTestStarted   = "onTestStarted"
	SelectorFailure       = "onFailure"
	SelectorTestFinished  = "onTestFinished"
	SelectorRunFinished   = "onRunFinished"
	SelectorInternalError = "onInternalError"
	SelectorSuiteFinished = "onSuiteFinished"
)

// SuiteListenerEventizer is the capability proxy pair of SuiteListener.
var SuiteListenerEventizer = actors.Eventizer[SuiteListener]{
	Capability: suiteListener,
	NewFrontend: func(sender actors.MessageSender) SuiteListener {
		return suiteListenerToMessage{sender: sender}
	},
	NewBackend: newSuiteListenerBackend,
}

func newSuiteListenerBackend(target SuiteListener) actors.Backend {
	return actors.Selectors{
		SelectorSuiteStarted: func(ctx context.Context, _ actors.Message) error {
			target.OnSuiteStarted(ctx)
			return nil
		},
		SelectorTestFound: func(ctx context.Context, msg actors.Message) error {
			className, err := msg.StringArg(0)
			if err != nil {
				return err
			}
			testID, err := msg.StringArg(1)
			if err != nil {
				return err
			}
			name, err := msg.StringArg(2)
			if err != nil {
				return err
			}
			target.OnTestFound(ctx, className, testID, name)
			return nil
		},
		SelectorRunStarted: func(ctx context.Context, msg actors.Message) error {
			runID, err := runIDArg(msg, 0)
			if err != nil {
				return err
			}
			className, err := msg.StringArg(1)
			if err != nil {
				return err
			}
			target.OnRunStarted(ctx, runID, className)
			return nil
		},
		SelectorTestStarted: func(ctx context.Context, msg actors.Message) error {
			runID, err := runIDArg(msg, 0)
			if err != nil {
				return err
			}
			testID, err := msg.StringArg(1)
			if err != nil {
				return err
			}
			target.OnTestStarted(ctx, runID, testID)
			return nil
		},
		SelectorFailure: func(ctx context.Context, msg actors.Message) error {
			runID, err := runIDArg(msg, 0)
			if err != nil {
				return err
			}
			description, err := msg.StringArg(1)
			if err != nil {
				return err
			}
			target.OnFailure(ctx, runID, description)
			return nil
		},
		SelectorTestFinished: func(ctx context.Context, msg actors.Message) error {
			runID, err := runIDArg(msg, 0)
			if err != nil {
				return err
			}
			target.OnTestFinished(ctx, runID)
			return nil
		},
		SelectorRunFinished: func(ctx context.Context, msg actors.Message) error {
			runID, err := runIDArg(msg, 0)
			if err != nil {
				return err
			}
			target.OnRunFinished(ctx, runID)
			return nil
		},
		SelectorInternalError: func(ctx context.Context, msg actors.Message) error {
			message, err := msg.StringArg(0)
			if err != nil {
				return err
			}
			target.OnInternalError(ctx, message)
			return nil
		},
		SelectorSuiteFinished: func(ctx context.Context, _ actors.Message) error {
			target.OnSuiteFinished(ctx)
			return nil
		},
	}.Backend(suiteListener)
}

// runIDArg reads a run ID; on the wire it travels as a plain number.
func runIDArg(msg actors.Message, i int) (runs.RunID, error) {
	n, err := msg.IntArg(i)
	return runs.RunID(n), err
}

type suiteListenerToMessage struct {
	sender actors.MessageSender
}

func (s suiteListenerToMessage) send(ctx context.Context, selector string, args ...any) {
	s.sender.Send(ctx, actors.NewMessage(suiteListener, selector, args...))
}

func (s suiteListenerToMessage) OnSuiteStarted(ctx context.Context) {
	s.send(ctx, SelectorSuiteStarted)
}

func (s suiteListenerToMessage) OnTestFound(ctx context.Context, className, testID, name string) {
	s.send(ctx, SelectorTestFound, className, testID, name)
}

func (s suiteListenerToMessage) OnRunStarted(ctx context.Context, runID runs.RunID, className string) {
	s.send(ctx, SelectorRunStarted, int(runID), className)
}

func (s suiteListenerToMessage) OnTestStarted(ctx context.Context, runID runs.RunID, testID string) {
	s.send(ctx, SelectorTestStarted, int(runID), testID)
}

func (s suiteListenerToMessage) OnFailure(ctx context.Context, runID runs.RunID, description string) {
	s.send(ctx, SelectorFailure, int(runID), description)
}

func (s suiteListenerToMessage) OnTestFinished(ctx context.Context, runID runs.RunID) {
	s.send(ctx, SelectorTestFinished, int(runID))
}

func (s suiteListenerToMessage) OnRunFinished(ctx context.Context, runID runs.RunID) {
	s.send(ctx, SelectorRunFinished, int(runID))
}

func (s suiteListenerToMessage) OnInternalError(ctx context.Context, message string) {
	s.send(ctx, SelectorInternalError, message)
}

func (s suiteListenerToMessage) OnSuiteFinished(ctx context.Context) {
	s.send(ctx, SelectorSuiteFinished)
}
