// File: actors/system.go
package actors

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// policy decides where actor threads and unattended workers run.
type policy interface {
	startThread(t *ActorThread) error
	startWorker(ctx context.Context, work func(ctx context.Context)) error
}

// System creates actor threads and actors and runs unattended workers. It
// is embedded by the deployment policies MultiThreaded and SingleThreaded.
type System struct {
	registry *Registry
	failures FailureHandler
	listener MessageListener
	log      *zap.Logger
	policy   policy
	closed   atomic.Bool
}

// Option configures a System.
type Option func(*System)

// WithFailureHandler sets the handler told about failures in actors and
// unattended workers. The default logs them.
func WithFailureHandler(h FailureHandler) Option {
	return func(s *System) { s.failures = h }
}

// WithMessageListener sets the listener observing message traffic.
func WithMessageListener(l MessageListener) Option {
	return func(s *System) { s.listener = l }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *System) { s.log = log }
}

func newSystem(registry *Registry, p policy, opts []Option) *System {
	s := &System{
		registry: registry,
		listener: NullMessageListener{},
		log:      zap.NewNop(),
		policy:   p,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.failures == nil {
		s.failures = LoggingFailureHandler{Log: s.log}
	}
	return s
}

// Registry returns the capability registry the system was built with.
func (s *System) Registry() *Registry {
	return s.registry
}

// StartActorThread starts a new actor thread. It fails with
// ErrAlreadyInsideActor when ctx belongs to an actor: new threads are only
// started from outside the actor world.
func (s *System) StartActorThread(ctx context.Context, name string) (*ActorThread, error) {
	if InsideActor(ctx) {
		return nil, errors.Wrapf(ErrAlreadyInsideActor, "starting actor thread %q from %s", name, CurrentActor(ctx))
	}
	if s.closed.Load() {
		return nil, errors.Wrapf(ErrSystemShutdown, "starting actor thread %q", name)
	}
	t := newActorThread(s, name)
	if err := s.policy.startThread(t); err != nil {
		return nil, errors.Wrapf(err, "starting actor thread %q", name)
	}
	s.log.Debug("actor thread started", zap.String("thread", name))
	return t, nil
}

// StartUnattendedWorker runs work on a goroutine outside the actor world.
// When work returns, or panics, onFinished runs exactly once as a message
// on the calling actor's thread. Must be called from inside an actor.
//
// work gets ctx detached from the actor, so values such as the current run
// carry over. It is cancelled when the system shuts down.
func (s *System) StartUnattendedWorker(ctx context.Context, work Task, onFinished func(ctx context.Context)) error {
	done, err := CreateSecondaryActor[Runnable](ctx, RunnableFunc(onFinished))
	if err != nil {
		return errors.WithMessage(err, "unattended worker")
	}
	name := fmt.Sprintf("%s/worker", CurrentActor(ctx))
	err = s.policy.startWorker(Detach(ctx), func(workCtx context.Context) {
		defer done.Tell().Run(workCtx)
		if err := run(func() error { return work(workCtx) }); err != nil {
			s.failures.UncaughtException(name, nil, err)
		}
	})
	if err != nil {
		return errors.Wrapf(err, "starting %s", name)
	}
	return nil
}

// CreatePrimaryActor starts a new actor thread called name and creates an
// actor for target on it. It fails with ErrAlreadyInsideActor when ctx
// belongs to an actor.
func CreatePrimaryActor[T any](ctx context.Context, s *System, target T, name string) (ActorRef[T], error) {
	if _, err := lookup[T](s.registry); err != nil {
		return ActorRef[T]{}, err
	}
	t, err := s.StartActorThread(ctx, name)
	if err != nil {
		return ActorRef[T]{}, err
	}
	return CreateActor(t, target)
}

// CreateSecondaryActor creates an actor for target on the actor thread ctx
// belongs to, so it never runs concurrently with its creator. It fails with
// ErrNotInsideActor outside the actor world.
func CreateSecondaryActor[T any](ctx context.Context, target T) (ActorRef[T], error) {
	t := CurrentThread(ctx)
	if t == nil {
		return ActorRef[T]{}, errors.Wrapf(ErrNotInsideActor, "creating secondary %T", target)
	}
	return CreateActor(t, target)
}
