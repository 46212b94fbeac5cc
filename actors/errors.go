package actors

import "github.com/pkg/errors"

var (
	// ErrUnregisteredCapability is returned when an actor is created for a
	// capability type that has no eventizer in the registry.
	ErrUnregisteredCapability = errors.New("unregistered capability")

	// ErrUnknownSelector is returned by a backend that is handed a message
	// with a selector its capability does not have.
	ErrUnknownSelector = errors.New("unknown selector")

	// ErrBadArgument is returned when a message argument is missing or has
	// the wrong type.
	ErrBadArgument = errors.New("bad message argument")

	// ErrAlreadyInsideActor is returned when a primary actor or a new actor
	// thread is requested from code already running inside an actor.
	ErrAlreadyInsideActor = errors.New("already inside an actor")

	// ErrNotInsideActor is returned when a secondary actor is requested from
	// code not running inside an actor.
	ErrNotInsideActor = errors.New("not inside an actor")

	// ErrInterrupted is returned when a blocking wait on a queue is cancelled.
	// It is never returned for an empty queue.
	ErrInterrupted = errors.New("interrupted while waiting")

	// ErrSystemShutdown is returned when an actor thread or an unattended
	// worker is requested after the system was shut down.
	ErrSystemShutdown = errors.New("actor system is shut down")
)
