// Package daemontest lets a test binary double as the daemon a launcher
// under test starts.
package daemontest

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/lguibr/harness/daemon"
	"github.com/lguibr/harness/logging"
	"gopkg.in/alecthomas/kingpin.v2"
)

// Env is set in the environment of a test binary started as a daemon.
const Env = "HARNESS_TEST_DAEMON"

// RuntimeOption is the launcher runtime option that makes the started
// test binary serve as a daemon. Pair it with the daemon argument "daemon".
const RuntimeOption = Env + "=1"

// Main is meant to be called from TestMain. It runs the tests, or serves
// catalog when the binary was started with RuntimeOption, and exits.
func Main(m *testing.M, catalog *daemon.Catalog) {
	if os.Getenv(Env) == "1" {
		os.Exit(Serve(catalog, os.Args[1:]))
	}
	os.Exit(m.Run())
}

// Serve parses the daemon command line the launcher passes and runs the
// daemon in the current directory. It returns the process exit code.
func Serve(catalog *daemon.Catalog, args []string) int {
	app := kingpin.New("daemontest", "Test daemon.")
	cmd := app.Command("daemon", "Serve a launcher.").Default()
	logLevel := cmd.Flag("log-level", "Log level.").Default("debug").String()
	messageLogging := cmd.Flag("message-logging", "Log every actor message.").Bool()
	properties := cmd.Flag("property", "Property passed to the tests.").StringMap()
	if _, err := app.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "daemontest: %v\n", err)
		return 2
	}

	dir, err := os.Getwd()
	if err != nil {
		return 2
	}
	log, err := logging.New(*logLevel, os.Stderr)
	if err != nil {
		return 2
	}
	defer log.Sync()

	err = daemon.Run(context.Background(), daemon.Options{
		WorkDir:        dir,
		Catalog:        catalog,
		Properties:     *properties,
		AcceptTimeout:  10 * time.Second,
		MessageLogging: *messageLogging,
		Log:            log,
	})
	if err != nil {
		log.Sugar().Errorf("daemon failed: %v", err)
		return 1
	}
	return 0
}
