// File: api/replay.go
package api

import (
	"context"
	"fmt"

	"github.com/lguibr/harness/actors"
	"github.com/lguibr/harness/runs"
)

// Replay invokes the SuiteListener call recorded in msg on target.
func Replay(ctx context.Context, msg actors.Message, target SuiteListener) error {
	return newSuiteListenerBackend(target)(ctx, msg)
}

// Describe renders a SuiteListener message as one line of console text.
// Messages of other capabilities are rendered as calls.
func Describe(msg actors.Message) string {
	if msg.Capability() != suiteListener {
		return msg.String()
	}
	d := &describer{}
	if err := Replay(context.Background(), msg, d); err != nil {
		return msg.String()
	}
	return d.line
}

type describer struct {
	line string
}

func (d *describer) OnSuiteStarted(context.Context) {
	d.line = "Suite started"
}

func (d *describer) OnTestFound(_ context.Context, className, testID, name string) {
	d.line = fmt.Sprintf("Found %s %s %s", className, testID, name)
}

func (d *describer) OnRunStarted(_ context.Context, runID runs.RunID, className string) {
	d.line = fmt.Sprintf("%s started in %s", runID, className)
}

func (d *describer) OnTestStarted(_ context.Context, runID runs.RunID, testID string) {
	d.line = fmt.Sprintf("%s  + %s", runID, testID)
}

func (d *describer) OnFailure(_ context.Context, runID runs.RunID, description string) {
	d.line = fmt.Sprintf("%s  FAIL %s", runID, description)
}

func (d *describer) OnTestFinished(_ context.Context, runID runs.RunID) {
	d.line = fmt.Sprintf("%s  -", runID)
}

func (d *describer) OnRunFinished(_ context.Context, runID runs.RunID) {
	d.line = fmt.Sprintf("%s finished", runID)
}

func (d *describer) OnInternalError(_ context.Context, message string) {
	d.line = "Internal error: " + message
}

func (d *describer) OnSuiteFinished(context.Context) {
	d.line = "Suite finished"
}
