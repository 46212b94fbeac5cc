// File: actors/multithreaded.go
package actors

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// MultiThreaded runs every actor thread on its own goroutine, which pumps
// the thread's queue until the system shuts down. Unattended workers get a
// goroutine each.
type MultiThreaded struct {
	*System
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex // orders wg.Add before Shutdown's wg.Wait
	wg     sync.WaitGroup
}

// NewMultiThreaded creates a multi-threaded system.
func NewMultiThreaded(registry *Registry, opts ...Option) *MultiThreaded {
	m := &MultiThreaded{}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.System = newSystem(registry, m, opts)
	return m
}

func (m *MultiThreaded) startThread(t *ActorThread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil {
		return ErrSystemShutdown
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			if err := t.ProcessNextMessage(m.ctx); err != nil {
				m.log.Debug("actor thread exiting", zap.String("thread", t.Name()), zap.Error(err))
				return
			}
		}
	}()
	return nil
}

func (m *MultiThreaded) startWorker(ctx context.Context, work func(ctx context.Context)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil {
		return ErrSystemShutdown
	}
	workCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(m.ctx, cancel)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		defer stop()
		work(workCtx)
	}()
	return nil
}

// Shutdown interrupts every actor thread and unattended worker and waits
// for their goroutines to exit, at most timeout. Messages still queued are
// dropped.
func (m *MultiThreaded) Shutdown(timeout time.Duration) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.log.Debug("actor system shutdown initiated")
	m.mu.Lock()
	m.cancel()
	m.mu.Unlock()

	exited := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(exited)
	}()
	select {
	case <-exited:
		m.log.Debug("actor system shutdown complete")
		return nil
	case <-time.After(timeout):
		return errors.Errorf("actor system shutdown timed out after %s", timeout)
	}
}
