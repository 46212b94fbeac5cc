package actors

import "context"

type currentKey struct{}

// current records which actor thread, and which actor on it, a task is
// running as.
type current struct {
	thread *ActorThread
	actor  string
}

func withCurrent(ctx context.Context, t *ActorThread, actor string) context.Context {
	return context.WithValue(ctx, currentKey{}, current{thread: t, actor: actor})
}

func currentOf(ctx context.Context) current {
	if ctx == nil {
		return current{}
	}
	c, _ := ctx.Value(currentKey{}).(current)
	return c
}

// CurrentThread returns the actor thread whose task is running with ctx, or
// nil when ctx does not belong to an actor.
func CurrentThread(ctx context.Context) *ActorThread {
	return currentOf(ctx).thread
}

// CurrentActor returns the name of the actor processing a message with ctx,
// or "" outside the actor world.
func CurrentActor(ctx context.Context) string {
	return currentOf(ctx).actor
}

// InsideActor reports whether ctx belongs to a task running on an actor thread.
func InsideActor(ctx context.Context) bool {
	return CurrentThread(ctx) != nil
}

// Detach returns a context with the same values and cancellation as ctx
// but outside of any actor. Work handed to other goroutines must use it.
func Detach(ctx context.Context) context.Context {
	if !InsideActor(ctx) {
		return ctx
	}
	return withCurrent(ctx, nil, "")
}
