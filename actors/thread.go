// File: actors/thread.go
package actors

import (
	"context"

	"github.com/pkg/errors"
)

// Task is a raw unit of work run on an actor thread.
type Task func(ctx context.Context) error

// envelope is one queued item: a dispatched message or a raw task.
type envelope struct {
	actor   string
	message *Message
	run     func(ctx context.Context) error
}

// ActorThread is a sequential execution domain. It owns one queue; the
// actors created on it only ever run from that queue, one item at a time.
// Nothing pumps the queue implicitly: ProcessNextMessage and
// ProcessNextMessageIfAny are driven by the system's deployment policy.
type ActorThread struct {
	system *System
	name   string
	queue  *Queue[envelope]
	owner  chan struct{} // one slot: held by the goroutine currently pumping
}

func newActorThread(system *System, name string) *ActorThread {
	return &ActorThread{
		system: system,
		name:   name,
		queue:  NewQueue[envelope](),
		owner:  make(chan struct{}, 1),
	}
}

// Name returns the name the thread was started with.
func (t *ActorThread) Name() string {
	return t.name
}

// CreateActor creates an actor on t for target, which implements capability
// T. The eventizer of T is looked up now, so an unregistered capability
// fails here rather than at the first send.
func CreateActor[T any](t *ActorThread, target T) (ActorRef[T], error) {
	e, err := lookup[T](t.system.registry)
	if err != nil {
		return ActorRef[T]{}, err
	}
	actor := t.name + "/" + e.Capability
	backend := e.NewBackend(target)
	proxy := e.NewFrontend(MessageSenderFunc(func(ctx context.Context, msg Message) {
		t.system.listener.OnMessageSent(ctx, msg)
		m := msg
		t.queue.Send(envelope{
			actor:   actor,
			message: &m,
			run: func(ctx context.Context) error {
				return backend(ctx, m)
			},
		})
	}))
	return Wrap(proxy), nil
}

// Execute enqueues task. It never blocks.
func (t *ActorThread) Execute(task Task) {
	t.queue.Send(envelope{actor: t.name, run: task})
}

// ProcessNextMessage waits for the next queued item and runs it. It returns
// ErrInterrupted when ctx is done before an item was taken; in that case
// nothing was consumed.
func (t *ActorThread) ProcessNextMessage(ctx context.Context) error {
	select {
	case t.owner <- struct{}{}:
	case <-ctx.Done():
		return errors.Wrap(ErrInterrupted, ctx.Err().Error())
	}
	defer func() { <-t.owner }()

	env, err := t.queue.Take(ctx)
	if err != nil {
		return err
	}
	t.process(ctx, env)
	return nil
}

// ProcessNextMessageIfAny runs the next queued item if there is one and
// reports whether it did. It never blocks; if another goroutine is pumping
// the thread right now it returns false.
func (t *ActorThread) ProcessNextMessageIfAny(ctx context.Context) bool {
	select {
	case t.owner <- struct{}{}:
	default:
		return false
	}
	defer func() { <-t.owner }()

	env, ok := t.queue.Poll()
	if !ok {
		return false
	}
	t.process(ctx, env)
	return true
}

// Pending returns the number of queued items.
func (t *ActorThread) Pending() int {
	return t.queue.Len()
}

// process runs one item with the current-actor marker set. The marker lives
// only in the context handed to the item, so it cannot outlive it.
func (t *ActorThread) process(ctx context.Context, env envelope) {
	taskCtx := withCurrent(ctx, t, env.actor)
	if env.message != nil {
		t.system.listener.OnProcessingStarted(taskCtx, env.actor, *env.message)
		defer t.system.listener.OnProcessingFinished(taskCtx)
	}

	err := run(func() error { return env.run(taskCtx) })
	if err != nil {
		var message any
		if env.message != nil {
			message = *env.message
		}
		t.system.failures.UncaughtException(env.actor, message, err)
	}
}
