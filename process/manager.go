// File: process/manager.go
package process

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	// ErrAlreadyRunning is returned by Start while the previous process lives.
	ErrAlreadyRunning = errors.New("process already running")
	// ErrNotStarted is returned when there is no process to ask about.
	ErrNotStarted = errors.New("process not started")
	// ErrManagerClosed is returned by Start once the manager is closed.
	ErrManagerClosed = errors.New("process manager closed")
)

// Manager owns at most one live process at a time, e.g. the daemon of a
// launcher session, and its working directory.
type Manager struct {
	starter     ProcessStarter
	stopTimeout time.Duration
	log         *zap.Logger

	mu      sync.Mutex
	handle  Handle
	workDir string
	exited  chan struct{}
	exitErr error
	closed  bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithStopTimeout sets how long Stop waits after asking the process to
// terminate before it kills it.
func WithStopTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.stopTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// NewManager creates a manager starting processes with starter.
func NewManager(starter ProcessStarter, opts ...ManagerOption) *Manager {
	m := &Manager{
		starter:     starter,
		stopTimeout: 5 * time.Second,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start starts the process described by spec. It fails with
// ErrAlreadyRunning while a previously started process is still alive and
// with ErrManagerClosed after Close.
func (m *Manager) Start(ctx context.Context, spec StartSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	if m.handle != nil && !isClosed(m.exited) {
		return errors.Wrapf(ErrAlreadyRunning, "pid %d", m.handle.Pid())
	}

	handle, err := m.starter.Start(ctx, spec)
	if err != nil {
		return err
	}
	exited := make(chan struct{})
	m.handle, m.workDir, m.exited, m.exitErr = handle, spec.WorkDir, exited, nil
	m.log.Info("process started", zap.Int("pid", handle.Pid()), zap.String("dir", spec.WorkDir))

	go func() {
		err := handle.Wait()
		m.mu.Lock()
		if m.exited == exited {
			m.exitErr = err
		}
		m.mu.Unlock()
		m.log.Info("process exited", zap.Int("pid", handle.Pid()), zap.Error(err))
		close(exited)
	}()
	return nil
}

// Stop asks the process to terminate and waits for it, at most the stop
// timeout, then kills it. Stopping a process that has already exited, or
// was never started, does nothing.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	handle, exited := m.handle, m.exited
	m.mu.Unlock()
	if handle == nil || isClosed(exited) {
		return nil
	}

	if err := handle.Terminate(); err != nil {
		m.log.Warn("could not terminate process", zap.Int("pid", handle.Pid()), zap.Error(err))
	}
	timer := time.NewTimer(m.stopTimeout)
	defer timer.Stop()
	select {
	case <-exited:
		return nil
	case <-timer.C:
		m.log.Warn("process did not terminate in time; killing it",
			zap.Int("pid", handle.Pid()), zap.Duration("timeout", m.stopTimeout))
	case <-ctx.Done():
	}

	if err := handle.Kill(); err != nil {
		return errors.Wrapf(err, "failed to kill pid %d", handle.Pid())
	}
	select {
	case <-exited:
		return nil
	case <-ctx.Done():
		return errors.WithMessage(ctx.Err(), "waiting for killed process")
	}
}

// Close stops the current process, like Stop, and makes every later Start
// fail. A Start racing with Close either fails or has its process stopped.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return m.Stop(ctx)
}

// Alive reports whether a started process has not exited yet.
func (m *Manager) Alive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle != nil && !isClosed(m.exited)
}

// Exited returns a channel closed when the current process exits, or
// ErrNotStarted.
func (m *Manager) Exited() (<-chan struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == nil {
		return nil, ErrNotStarted
	}
	return m.exited, nil
}

// ExitErr returns how the last process exited: nil for a clean exit. It is
// only meaningful after Exited is closed.
func (m *Manager) ExitErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == nil {
		return ErrNotStarted
	}
	return m.exitErr
}

// Pid returns the process ID of the current process.
func (m *Manager) Pid() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == nil {
		return 0, ErrNotStarted
	}
	return m.handle.Pid(), nil
}

// WorkDir returns the working directory of the current process.
func (m *Manager) WorkDir() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.workDir
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
