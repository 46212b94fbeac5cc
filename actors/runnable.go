package actors

import "context"

// Runnable is the capability of a plain unit of work. The system uses it to
// deliver the completion of unattended workers back into an actor.
type Runnable interface {
	Run(ctx context.Context)
}

// RunnableFunc adapts a function to Runnable.
type RunnableFunc func(ctx context.Context)

// Run calls f(ctx).
func (f RunnableFunc) Run(ctx context.Context) { f(ctx) }

// RunnableEventizer is always part of every Registry.
var RunnableEventizer = Eventizer[Runnable]{
	Capability: "Runnable",
	NewFrontend: func(sender MessageSender) Runnable {
		return runnableToMessage{sender: sender}
	},
	NewBackend: func(target Runnable) Backend {
		return Selectors{
			"run": func(ctx context.Context, _ Message) error {
				target.Run(ctx)
				return nil
			},
		}.Backend("Runnable")
	},
}

type runnableToMessage struct {
	sender MessageSender
}

func (r runnableToMessage) Run(ctx context.Context) {
	r.sender.Send(ctx, NewMessage("Runnable", "run"))
}
