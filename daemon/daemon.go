// File: daemon/daemon.go
package daemon

import (
	"context"
	"time"

	"github.com/lguibr/harness/actors"
	"github.com/lguibr/harness/api"
	"github.com/lguibr/harness/network"
	"github.com/lguibr/harness/wire"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Options configures Run.
type Options struct {
	// WorkDir is where the announcement is written.
	WorkDir    string
	Catalog    *Catalog
	Properties map[string]string
	// NewFinder defaults to a CatalogFinder over Catalog.
	NewFinder       FinderFactory
	AcceptTimeout   time.Duration
	SendTimeout     time.Duration
	ShutdownTimeout time.Duration
	MessageLogging  bool
	Log             *zap.Logger
}

func (o *Options) setDefaults() {
	if o.Catalog == nil {
		o.Catalog = NewCatalog()
	}
	if o.NewFinder == nil {
		catalog := o.Catalog
		o.NewFinder = func(classPath []string, include string) api.TestClassFinder {
			return CatalogFinder{Catalog: catalog, ClassPath: classPath, Include: include}
		}
	}
	if o.AcceptTimeout <= 0 {
		o.AcceptTimeout = 30 * time.Second
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 5 * time.Second
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
}

// Run is the daemon: it listens, announces itself in opts.WorkDir, waits
// for the launcher and serves its commands. It returns when the launcher
// asks it to shut down, when the launcher goes away or when ctx is done.
func Run(ctx context.Context, opts Options) error {
	opts.setDefaults()
	log := opts.Log

	listener, err := network.Listen(opts.WorkDir, log)
	if err != nil {
		return err
	}
	defer listener.Close()

	acceptCtx, cancelAccept := context.WithTimeout(ctx, opts.AcceptTimeout)
	ch, err := listener.Accept(acceptCtx, wire.WithSendTimeout(opts.SendTimeout), wire.WithLogger(log))
	cancelAccept()
	if err != nil {
		return err
	}
	defer ch.Close()

	systemOpts := []actors.Option{actors.WithLogger(log)}
	if opts.MessageLogging {
		systemOpts = append(systemOpts, actors.WithMessageListener(actors.NewLoggingMessageListener(log)))
	}
	registry := api.NewRegistry()
	system := actors.NewMultiThreaded(registry, systemOpts...)
	defer func() {
		if err := system.Shutdown(opts.ShutdownTimeout); err != nil {
			log.Warn("actor system shutdown", zap.Error(err))
		}
	}()

	suite, err := actors.Frontend[api.SuiteListener](registry, ch.Sender(func(msg actors.Message, err error) {
		log.Warn("could not send to launcher", zap.Stringer("message", msg), zap.Error(err))
	}))
	if err != nil {
		return err
	}

	serveCtx, stop := context.WithCancel(ctx)
	defer stop()
	coord := newCoordinator(system.System, opts.Catalog, opts.NewFinder, suite, opts.Properties, stop, log)
	commands, err := actors.CreatePrimaryActor[api.CommandListener](ctx, system.System, coord, "daemon")
	if err != nil {
		return err
	}
	toCommands, err := actors.BackendFor[api.CommandListener](registry, commands.Tell())
	if err != nil {
		return err
	}

	go func() {
		err := wire.Pump(serveCtx, ch, func(msg actors.Message) {
			if err := toCommands(serveCtx, msg); err != nil {
				log.Warn("dropping message from launcher", zap.Stringer("message", msg), zap.Error(err))
			}
		})
		log.Debug("launcher channel pump stopped", zap.Error(err))
	}()

	select {
	case <-serveCtx.Done():
		if ctx.Err() != nil {
			return errors.WithMessage(ctx.Err(), "daemon interrupted")
		}
		log.Info("daemon shutting down")
		return nil
	case <-ch.Done():
		log.Info("launcher disconnected", zap.Error(ch.Err()))
		return nil
	}
}
