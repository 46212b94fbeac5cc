// File: network/connector.go
package network

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/fsnotify/fsnotify"
	"github.com/lguibr/harness/wire"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	// ErrConnectTimeout is returned when the daemon did not announce itself
	// in time.
	ErrConnectTimeout = errors.New("daemon did not become ready in time")
	// ErrIncompatibleDaemon is returned when the daemon speaks a protocol
	// version outside of the accepted range.
	ErrIncompatibleDaemon = errors.New("incompatible daemon version")
)

// DaemonConnector opens the channel to a daemon started in dir.
type DaemonConnector interface {
	Connect(ctx context.Context, dir string) (*wire.Channel, error)
}

// Connector waits for the announcement of a daemon and dials it.
type Connector struct {
	timeout      time.Duration
	pollInterval time.Duration
	constraint   *semver.Constraints
	channelOpts  []wire.Option
	log          *zap.Logger
}

// ConnectorOption configures a Connector.
type ConnectorOption func(*Connector)

// WithConnectTimeout bounds how long Connect waits for the daemon.
func WithConnectTimeout(d time.Duration) ConnectorOption {
	return func(c *Connector) { c.timeout = d }
}

// WithPollInterval sets how often the announcement is looked for when no
// file system event arrives.
func WithPollInterval(d time.Duration) ConnectorOption {
	return func(c *Connector) { c.pollInterval = d }
}

// WithChannelOptions configures the channels Connect returns.
func WithChannelOptions(opts ...wire.Option) ConnectorOption {
	return func(c *Connector) { c.channelOpts = append(c.channelOpts, opts...) }
}

// WithConnectorLogger sets the logger.
func WithConnectorLogger(log *zap.Logger) ConnectorOption {
	return func(c *Connector) { c.log = log }
}

// NewConnector creates a connector accepting daemons whose protocol
// version satisfies constraint, e.g. "^1.0".
func NewConnector(constraint string, opts ...ConnectorOption) (*Connector, error) {
	cons, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid daemon version constraint %q", constraint)
	}
	c := &Connector{
		timeout:      10 * time.Second,
		pollInterval: 100 * time.Millisecond,
		constraint:   cons,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connect waits for the daemon working in dir to announce itself, checks
// its version and connects to it.
func (c *Connector) Connect(ctx context.Context, dir string) (*wire.Channel, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	a, err := c.awaitAnnouncement(ctx, dir)
	if err != nil {
		return nil, err
	}
	v, err := semver.NewVersion(a.Version)
	if err != nil {
		return nil, errors.Wrapf(ErrIncompatibleDaemon, "unparsable version %q", a.Version)
	}
	if !c.constraint.Check(v) {
		return nil, errors.Wrapf(ErrIncompatibleDaemon, "daemon %s, want %s", v, c.constraint)
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(a.Port)))
	if err != nil {
		return nil, errors.Wrapf(err, "could not connect to daemon %d on port %d", a.Pid, a.Port)
	}
	c.log.Info("connected to daemon", zap.Int("pid", a.Pid), zap.Int("port", a.Port), zap.String("version", a.Version))
	return wire.NewChannel(conn, c.channelOpts...), nil
}

func (c *Connector) awaitAnnouncement(ctx context.Context, dir string) (Announcement, error) {
	var events <-chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if err := watcher.Add(dir); err == nil {
			events = watcher.Events
		} else {
			c.log.Debug("watching daemon dir failed; polling", zap.Error(err))
		}
	}
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		a, err := ReadAnnouncement(dir)
		if err == nil {
			return a, nil
		}
		if !os.IsNotExist(err) {
			c.log.Debug("announcement not readable yet", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Announcement{}, errors.Wrapf(ErrConnectTimeout, "waited %s for %s", c.timeout, filepath.Join(dir, AnnouncementFile))
			}
			return Announcement{}, errors.WithMessage(ctx.Err(), "waiting for daemon")
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Base(ev.Name) != AnnouncementFile {
				continue
			}
		case <-ticker.C:
		}
	}
}
