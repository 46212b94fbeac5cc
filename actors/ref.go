package actors

import "fmt"

// ActorRef is the handle through which an actor is reached. It exposes
// only the frontend of the actor's capability, never the target itself.
type ActorRef[T any] struct {
	proxy T
}

// Wrap turns a frontend into an ActorRef.
func Wrap[T any](proxy T) ActorRef[T] {
	return ActorRef[T]{proxy: proxy}
}

// Tell returns the frontend. Every call on it becomes a message.
func (r ActorRef[T]) Tell() T {
	return r.proxy
}

func (r ActorRef[T]) String() string {
	return fmt.Sprintf("ActorRef(%v)", r.proxy)
}
