// File: launcher/launcher.go
package launcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lguibr/harness/actors"
	"github.com/lguibr/harness/api"
	"github.com/lguibr/harness/config"
	"github.com/lguibr/harness/network"
	"github.com/lguibr/harness/process"
	"github.com/lguibr/harness/wire"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DaemonLogFile receives the daemon's stdout and stderr, inside its
// working directory.
const DaemonLogFile = "daemon.log"

// ErrAlreadyStarted is returned by Start when called more than once.
var ErrAlreadyStarted = errors.New("launcher already started")

// Launcher runs one test suite in a freshly started daemon. Its methods are
// safe for concurrent use and must be called from outside the actor world.
type Launcher struct {
	cfg        config.Config
	steward    process.Steward
	starter    process.ProcessStarter
	daemonArgs []string
	log        *zap.Logger

	mu             sync.Mutex
	classPath      []string
	include        string
	runtimeOptions []string
	properties     map[string]string
	out            io.Writer
	sinks          []func(actors.Message)
	messageLogging bool
	started        bool

	events   *actors.Queue[actors.Message]
	finished chan struct{}
	finish   sync.Once

	system  *actors.MultiThreaded
	manager *process.Manager

	chMu    sync.Mutex
	ch      *wire.Channel
	logFile *os.File

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithSteward sets where work directories are created and which executable
// is started. Defaults to a DirHomeManager over cfg.HomeDir.
func WithSteward(s process.Steward) Option {
	return func(l *Launcher) { l.steward = s }
}

// WithProcessStarter replaces the operating system process starter.
func WithProcessStarter(s process.ProcessStarter) Option {
	return func(l *Launcher) { l.starter = s }
}

// WithDaemonArgs sets the arguments the daemon executable is started with.
// Defaults to the "daemon" subcommand of the harness binary.
func WithDaemonArgs(args ...string) Option {
	return func(l *Launcher) { l.daemonArgs = args }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(l *Launcher) { l.log = log }
}

// New creates a launcher configured by cfg.
func New(cfg config.Config, opts ...Option) *Launcher {
	l := &Launcher{
		cfg:            cfg,
		starter:        process.SystemProcessStarter{},
		log:            zap.NewNop(),
		runtimeOptions: append([]string(nil), cfg.RuntimeOptions...),
		properties:     map[string]string{},
		messageLogging: cfg.MessageLogging,
		events:         actors.NewQueue[actors.Message](),
		finished:       make(chan struct{}),
	}
	for k, v := range cfg.Properties {
		l.properties[k] = v
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.steward == nil {
		l.steward = process.NewDirHomeManager(cfg.HomeDir)
	}
	if l.daemonArgs == nil {
		l.daemonArgs = []string{"daemon", "--log-level=" + cfg.LogLevel}
	}
	return l
}

// AddToClassPath adds packages to search for test classes.
func (l *Launcher) AddToClassPath(entries ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.classPath = append(l.classPath, entries...)
}

// SetTestsToInclude sets the pattern test class names must match.
func (l *Launcher) SetTestsToInclude(pattern string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.include = pattern
}

// AddRuntimeOptions adds KEY=VALUE environment entries for the daemon.
func (l *Launcher) AddRuntimeOptions(options ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runtimeOptions = append(l.runtimeOptions, options...)
}

// SetProperty passes a property to the daemon.
func (l *Launcher) SetProperty(key, value string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.properties[key] = value
}

// SetOutput makes the launcher write every event to w as console text.
func (l *Launcher) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

// AddEventSink calls sink with every event, on the launcher's actor
// thread. sink must not block.
func (l *Launcher) AddEventSink(sink func(actors.Message)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, sink)
}

// EnableMessageLogging logs every actor message of the launcher and of the
// daemon.
func (l *Launcher) EnableMessageLogging() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messageLogging = true
}

// EventStream returns the SuiteListener messages of the suite, in order.
// The last one is always onSuiteFinished.
func (l *Launcher) EventStream() *actors.Queue[actors.Message] {
	return l.events
}

// Finished is closed after onSuiteFinished was put on the event stream.
func (l *Launcher) Finished() <-chan struct{} {
	return l.finished
}

// Wait blocks until the suite has finished and returns Err.
func (l *Launcher) Wait(ctx context.Context) error {
	select {
	case <-l.finished:
		return l.Err()
	case <-ctx.Done():
		return errors.WithMessage(ctx.Err(), "waiting for the suite")
	}
}

// Err reports why the suite could not run to completion, or nil. Losing
// the daemon is reported as wire.ErrChannelClosed.
func (l *Launcher) Err() error {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	return l.err
}

func (l *Launcher) setErr(err error) {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	if l.err == nil {
		l.err = err
	}
}

// Start summons the daemon and runs the suite. It returns once the work is
// under way; follow it on the EventStream.
func (l *Launcher) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	l.started = true
	s := &session{
		l:          l,
		classPath:  append([]string(nil), l.classPath...),
		include:    l.include,
		out:        l.out,
		sinks:      append([]func(actors.Message){}, l.sinks...),
		logging:    l.messageLogging,
		properties: make(map[string]string, len(l.properties)),
		runtime:    append([]string(nil), l.runtimeOptions...),
	}
	for k, v := range l.properties {
		s.properties[k] = v
	}
	opts := []actors.Option{actors.WithLogger(l.log)}
	if s.logging {
		opts = append(opts, actors.WithMessageListener(actors.NewLoggingMessageListener(l.log)))
	}
	l.system = actors.NewMultiThreaded(api.NewRegistry(), opts...)
	l.manager = process.NewManager(l.starter, process.WithStopTimeout(l.cfg.StopTimeout), process.WithLogger(l.log))
	l.mu.Unlock()

	ref, err := actors.CreatePrimaryActor[actors.Runnable](ctx, l.system.System, actors.Runnable(s), "launcher")
	if err != nil {
		return err
	}
	ref.Tell().Run(ctx)
	return nil
}

// Close asks the daemon to shut down, stops it if it does not, and stops
// the launcher's actors. The daemon's working directory is removed when
// the suite ran cleanly.
func (l *Launcher) Close(ctx context.Context) error {
	l.mu.Lock()
	started := l.started
	l.mu.Unlock()
	if !started {
		return nil
	}
	l.closeOnce.Do(func() { l.closeErr = l.close(ctx) })
	return l.closeErr
}

func (l *Launcher) close(ctx context.Context) error {
	if ch := l.channel(); ch != nil {
		commands, err := actors.Frontend[api.CommandListener](api.NewRegistry(), ch.Sender(nil))
		if err == nil {
			commands.Shutdown(ctx)
		}
		if exited, err := l.manager.Exited(); err == nil {
			select {
			case <-exited:
			case <-time.After(l.cfg.StopTimeout):
			case <-ctx.Done():
			}
		}
		ch.Close()
	}

	var stopErr error
	if err := l.manager.Close(ctx); err != nil {
		stopErr = errors.WithMessage(err, "stopping daemon")
	}
	l.chMu.Lock()
	if l.logFile != nil {
		l.logFile.Close()
	}
	l.chMu.Unlock()
	if err := l.system.Shutdown(l.cfg.ShutdownTimeout); err != nil {
		l.log.Warn("launcher actors did not stop in time", zap.Error(err))
	}

	if dir := l.manager.WorkDir(); dir != "" && stopErr == nil && l.Err() == nil && l.manager.ExitErr() == nil {
		if err := os.RemoveAll(dir); err != nil {
			l.log.Warn("could not remove daemon working directory", zap.String("dir", dir), zap.Error(err))
		}
	}
	return stopErr
}

func (l *Launcher) channel() *wire.Channel {
	l.chMu.Lock()
	defer l.chMu.Unlock()
	return l.ch
}

func (l *Launcher) setChannel(ch *wire.Channel) {
	l.chMu.Lock()
	defer l.chMu.Unlock()
	l.ch = ch
}

// summon creates a working directory, starts the daemon in it and connects
// to it. It blocks, so it runs on an unattended worker.
func (l *Launcher) summon(ctx context.Context, runtime []string, properties map[string]string, logging bool) (*wire.Channel, error) {
	dir, err := l.steward.NewWorkDir()
	if err != nil {
		return nil, err
	}
	exe, err := l.steward.DaemonExecutable()
	if err != nil {
		return nil, err
	}
	logFile, err := os.Create(filepath.Join(dir, DaemonLogFile))
	if err != nil {
		return nil, errors.Wrap(err, "could not create daemon log")
	}
	l.chMu.Lock()
	l.logFile = logFile
	l.chMu.Unlock()

	args := append([]string(nil), l.daemonArgs...)
	if logging {
		args = append(args, "--message-logging")
	}
	startCtx, cancelStart := context.WithTimeout(ctx, l.cfg.DaemonStartTimeout)
	err = l.manager.Start(startCtx, process.StartSpec{
		Executable:     exe,
		WorkDir:        dir,
		RuntimeOptions: runtime,
		Properties:     properties,
		Args:           args,
		Stdout:         logFile,
		Stderr:         logFile,
	})
	cancelStart()
	if err != nil {
		logFile.Close()
		return nil, err
	}

	ch, err := l.connect(ctx, dir)
	if err != nil {
		if stopErr := l.manager.Stop(context.Background()); stopErr != nil {
			l.log.Warn("could not stop the daemon", zap.Error(stopErr))
		}
		return nil, err
	}
	return ch, nil
}

// connect waits for the daemon started in dir to announce itself.
func (l *Launcher) connect(ctx context.Context, dir string) (*wire.Channel, error) {
	connector, err := network.NewConnector(l.cfg.DaemonVersionConstraint,
		network.WithConnectTimeout(l.cfg.ConnectTimeout),
		network.WithPollInterval(l.cfg.AnnouncePollInterval),
		network.WithChannelOptions(wire.WithSendTimeout(l.cfg.SendTimeout), wire.WithLogger(l.log)),
		network.WithConnectorLogger(l.log))
	if err != nil {
		return nil, err
	}

	// A daemon dying before it announces itself must not cost the whole
	// connect timeout.
	exited, err := l.manager.Exited()
	if err != nil {
		return nil, err
	}
	connectCtx, cancelConnect := context.WithCancel(ctx)
	defer cancelConnect()
	go func() {
		select {
		case <-exited:
			cancelConnect()
		case <-connectCtx.Done():
		}
	}()
	ch, err := connector.Connect(connectCtx, dir)
	if err != nil {
		select {
		case <-exited:
			return nil, errors.Errorf("daemon exited before it was ready (%v); see %s",
				l.manager.ExitErr(), filepath.Join(dir, DaemonLogFile))
		default:
		}
		return nil, err
	}
	return ch, nil
}

// session is the launcher's primary actor. All of its fields are only
// touched on the launcher's actor thread.
type session struct {
	l          *Launcher
	classPath  []string
	include    string
	out        io.Writer
	sinks      []func(actors.Message)
	logging    bool
	properties map[string]string
	runtime    []string

	// recorder is a secondary actor publishing the events it is told.
	recorder      api.SuiteListener
	suiteFinished bool
}

// Run starts the session: the daemon is summoned on an unattended worker
// and the session resumes in connected once that is done.
func (s *session) Run(ctx context.Context) {
	publisher, err := actors.Frontend[api.SuiteListener](s.l.system.Registry(), actors.MessageSenderFunc(s.publish))
	if err != nil {
		s.fail(ctx, err)
		return
	}
	s.recorder = publisher
	ref, err := actors.CreateSecondaryActor[api.SuiteListener](ctx, publisher)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	s.recorder = ref.Tell()

	l := s.l
	runtime, properties, logging := s.runtime, s.properties, s.logging
	var ch *wire.Channel
	var summonErr error
	err = l.system.StartUnattendedWorker(ctx, func(ctx context.Context) error {
		ch, summonErr = l.summon(ctx, runtime, properties, logging)
		return nil
	}, func(ctx context.Context) { s.connected(ctx, ch, summonErr) })
	if err != nil {
		s.fail(ctx, err)
	}
}

func (s *session) connected(ctx context.Context, ch *wire.Channel, err error) {
	if err != nil {
		s.fail(ctx, errors.WithMessage(err, "could not start the daemon"))
		return
	}
	s.l.setChannel(ch)

	registry := s.l.system.Registry()
	commands, err := actors.Frontend[api.CommandListener](registry, ch.Sender(func(msg actors.Message, err error) {
		s.l.log.Warn("could not send to daemon", zap.Stringer("message", msg), zap.Error(err))
	}))
	if err != nil {
		s.fail(ctx, err)
		return
	}
	toRecorder, err := actors.BackendFor[api.SuiteListener](registry, s.recorder)
	if err != nil {
		s.fail(ctx, err)
		return
	}

	log := s.l.log
	err = s.l.system.StartUnattendedWorker(ctx, func(ctx context.Context) error {
		err := wire.Pump(ctx, ch, func(msg actors.Message) {
			if err := toRecorder(ctx, msg); err != nil {
				log.Warn("dropping message from daemon", zap.Stringer("message", msg), zap.Error(err))
			}
		})
		log.Debug("daemon channel pump stopped", zap.Error(err))
		return nil
	}, func(ctx context.Context) { s.disconnected(ctx, ch) })
	if err != nil {
		s.fail(ctx, err)
		return
	}
	commands.RunTests(ctx, s.classPath, s.include)
}

// disconnected runs once the daemon channel is gone. Every message the
// pump delivered is already processed, so a suite that did not finish by
// now never will.
func (s *session) disconnected(ctx context.Context, ch *wire.Channel) {
	if s.suiteFinished {
		return
	}
	err := ch.Err()
	if err == nil {
		err = wire.ErrChannelClosed
	}
	s.fail(ctx, err)
}

// fail ends the suite with an internal error.
func (s *session) fail(ctx context.Context, err error) {
	s.l.setErr(err)
	s.l.log.Error("suite aborted", zap.Error(err))
	if s.suiteFinished || s.recorder == nil {
		return
	}
	s.recorder.OnInternalError(ctx, err.Error())
	s.recorder.OnSuiteFinished(ctx)
}

func (s *session) publish(_ context.Context, msg actors.Message) {
	if s.suiteFinished {
		s.l.log.Debug("event after the suite finished", zap.Stringer("message", msg))
		return
	}
	s.l.events.Send(msg)
	if s.out != nil {
		fmt.Fprintln(s.out, api.Describe(msg))
	}
	for _, sink := range s.sinks {
		sink(msg)
	}
	if msg.Selector() == api.SelectorSuiteFinished {
		s.suiteFinished = true
		s.l.finish.Do(func() { close(s.l.finished) })
	}
}
