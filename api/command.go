// File: api/command.go
package api

import (
	"context"

	"github.com/lguibr/harness/actors"
)

// CommandListener is what the launcher tells the daemon to do.
type CommandListener interface {
	// RunTests runs every test class on classPath whose name matches include.
	RunTests(ctx context.Context, classPath []string, include string)
	// Shutdown asks the daemon to finish and exit.
	Shutdown(ctx context.Context)
}

const commandListener = "CommandListener"

// CommandListenerEventizer is the capability proxy pair of CommandListener.
var CommandListenerEventizer = actors.Eventizer[CommandListener]{
	Capability: commandListener,
	NewFrontend: func(sender actors.MessageSender) CommandListener {
		return commandListenerToMessage{sender: sender}
	},
	NewBackend: func(target CommandListener) actors.Backend {
		return actors.Selectors{
			"runTests": func(ctx context.Context, msg actors.Message) error {
				classPath, err := msg.StringsArg(0)
				if err != nil {
					return err
				}
				include, err := msg.StringArg(1)
				if err != nil {
					return err
				}
				target.RunTests(ctx, classPath, include)
				return nil
			},
			"shutdown": func(ctx context.Context, _ actors.Message) error {
				target.Shutdown(ctx)
				return nil
			},
		}.Backend(commandListener)
	},
}

type commandListenerToMessage struct {
	sender actors.MessageSender
}

func (c commandListenerToMessage) RunTests(ctx context.Context, classPath []string, include string) {
	c.sender.Send(ctx, actors.NewMessage(commandListener, "runTests", append([]string(nil), classPath...), include))
}

func (c commandListenerToMessage) Shutdown(ctx context.Context) {
	c.sender.Send(ctx, actors.NewMessage(commandListener, "shutdown"))
}
