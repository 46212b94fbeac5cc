package actors

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// SingleThreaded runs everything on the goroutine that calls
// ProcessEventsUntilIdle: actor threads and unattended workers alike.
// Deterministic; meant for tests.
type SingleThreaded struct {
	*System
	mu      sync.Mutex
	threads []*ActorThread
	workers *Queue[func()]
}

// NewSingleThreaded creates a single-threaded system.
func NewSingleThreaded(registry *Registry, opts ...Option) *SingleThreaded {
	s := &SingleThreaded{workers: NewQueue[func()]()}
	s.System = newSystem(registry, s, opts)
	return s
}

func (s *SingleThreaded) startThread(t *ActorThread) error {
	s.mu.Lock()
	s.threads = append(s.threads, t)
	s.mu.Unlock()
	return nil
}

func (s *SingleThreaded) startWorker(ctx context.Context, work func(ctx context.Context)) error {
	s.workers.Send(func() { work(ctx) })
	return nil
}

// ProcessEventsUntilIdle pumps every actor thread and runs every pending
// unattended worker until there is nothing left to do. ctx must not belong
// to an actor.
func (s *SingleThreaded) ProcessEventsUntilIdle(ctx context.Context) error {
	if InsideActor(ctx) {
		return errors.Wrap(ErrAlreadyInsideActor, "processing events")
	}
	for {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(ErrInterrupted, err.Error())
		}
		idle := true

		s.mu.Lock()
		threads := append([]*ActorThread(nil), s.threads...)
		s.mu.Unlock()
		for _, t := range threads {
			for t.ProcessNextMessageIfAny(ctx) {
				idle = false
			}
		}

		for {
			work, ok := s.workers.Poll()
			if !ok {
				break
			}
			work()
			idle = false
		}

		if idle {
			return nil
		}
	}
}
