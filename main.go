package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lguibr/harness/api"
	"github.com/lguibr/harness/config"
	"github.com/lguibr/harness/daemon"
	"github.com/lguibr/harness/launcher"
	"github.com/lguibr/harness/logging"
	"github.com/lguibr/harness/sample"
	"github.com/lguibr/harness/server"
	"github.com/mattn/go-colorable"
	"go.uber.org/zap"
	"gopkg.in/alecthomas/kingpin.v2"
)

type runParams struct {
	configPath     string
	classPath      []string
	include        string
	feedAddr       string
	logLevel       string
	messageLogging bool
	properties     map[string]string
}

type daemonParams struct {
	home           string
	logLevel       string
	messageLogging bool
	acceptTimeout  time.Duration
	properties     map[string]string
}

func main() {
	app := kingpin.New("harness", "Runs test suites in a separate daemon process.")

	runCmd := app.Command("run", "Run a test suite and print its events.").Default()
	var run runParams
	runCmd.Flag("config", "YAML configuration file.").StringVar(&run.configPath)
	runCmd.Flag("classpath", "Package to search for test classes (repeatable).").StringsVar(&run.classPath)
	runCmd.Flag("include", "Pattern test class names must match.").StringVar(&run.include)
	runCmd.Flag("feed-addr", "Serve the events as a websocket feed on this address.").StringVar(&run.feedAddr)
	runCmd.Flag("log-level", "Log level; overrides the configuration.").EnumVar(&run.logLevel, "debug", "info", "warn", "error")
	runCmd.Flag("message-logging", "Log every actor message.").BoolVar(&run.messageLogging)
	runProperties := runCmd.Flag("property", "Property passed to the tests, key=value (repeatable).").StringMap()

	daemonCmd := app.Command("daemon", "Serve a launcher; started by 'run'.").Hidden()
	var d daemonParams
	daemonCmd.Flag("home", "Working directory to announce the daemon in.").Default(".").StringVar(&d.home)
	daemonCmd.Flag("log-level", "Log level.").Default("info").EnumVar(&d.logLevel, "debug", "info", "warn", "error")
	daemonCmd.Flag("message-logging", "Log every actor message.").BoolVar(&d.messageLogging)
	daemonCmd.Flag("accept-timeout", "How long to wait for the launcher.").Default("30s").DurationVar(&d.acceptTimeout)
	daemonProperties := daemonCmd.Flag("property", "Property passed to the tests, key=value (repeatable).").StringMap()

	command, err := app.Parse(os.Args[1:])
	if err != nil {
		kingpin.Fatalf("failed to parse arguments, %s, try --help", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case runCmd.FullCommand():
		run.properties = *runProperties
		os.Exit(runSuite(ctx, run))
	case daemonCmd.FullCommand():
		d.properties = *daemonProperties
		if err := runDaemon(ctx, d); err != nil {
			fmt.Fprintf(os.Stderr, "daemon: %v\n", err)
			os.Exit(1)
		}
	}
}

// runSuite is the launcher side. It returns the exit code: 1 when a test
// failed or the suite could not run.
func runSuite(ctx context.Context, p runParams) int {
	cfg := config.DefaultConfig()
	if p.configPath != "" {
		loaded, err := config.Load(p.configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		cfg = loaded
	}
	if p.logLevel != "" {
		cfg.LogLevel = p.logLevel
	}
	if p.feedAddr != "" {
		cfg.EventFeedAddr = p.feedAddr
	}
	cfg.MessageLogging = cfg.MessageLogging || p.messageLogging

	log, err := logging.NewTerminal(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer log.Sync()

	l := launcher.New(cfg, launcher.WithLogger(log))
	l.AddToClassPath(p.classPath...)
	l.SetTestsToInclude(p.include)
	for k, v := range p.properties {
		l.SetProperty(k, v)
	}
	l.SetOutput(colorable.NewColorableStdout())

	if cfg.EventFeedAddr != "" {
		feed := server.New(server.WithLogger(log))
		defer feed.Close()
		l.AddEventSink(feed.Broadcast)
		httpServer := &http.Server{Addr: cfg.EventFeedAddr, Handler: feed.Handler()}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("event feed stopped", zap.Error(err))
			}
		}()
		defer httpServer.Close()
		log.Info("serving event feed", zap.String("addr", cfg.EventFeedAddr))
	}

	if err := l.Start(ctx); err != nil {
		log.Error("could not start the suite", zap.Error(err))
		return 1
	}
	waitErr := l.Wait(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.StopTimeout+cfg.ShutdownTimeout)
	defer cancel()
	if err := l.Close(closeCtx); err != nil {
		log.Warn("closing the launcher", zap.Error(err))
	}

	if waitErr != nil {
		log.Error("suite did not complete", zap.Error(waitErr))
		return 1
	}
	failures := 0
	for {
		msg, ok := l.EventStream().Poll()
		if !ok {
			break
		}
		if msg.Selector() == api.SelectorFailure || msg.Selector() == api.SelectorInternalError {
			failures++
		}
	}
	if failures > 0 {
		return 1
	}
	return 0
}

// runDaemon is the daemon side; the launcher starts it in a fresh working
// directory and the tests compiled into this binary are what it runs.
func runDaemon(ctx context.Context, p daemonParams) error {
	log, err := logging.New(p.logLevel, os.Stderr)
	if err != nil {
		return err
	}
	defer log.Sync()

	return daemon.Run(ctx, daemon.Options{
		WorkDir:        p.home,
		Catalog:        sample.Register(daemon.NewCatalog()),
		Properties:     p.properties,
		AcceptTimeout:  p.acceptTimeout,
		MessageLogging: p.messageLogging,
		Log:            log,
	})
}
