// File: network/listener.go
package network

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/lguibr/harness/wire"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Listener is the daemon's end: it listens on loopback and announces the
// port in its working directory.
type Listener struct {
	ln  *net.TCPListener
	dir string
	log *zap.Logger
}

// Listen binds an ephemeral loopback port and announces it in dir.
func Listen(dir string, log *zap.Logger) (*Listener, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		return nil, errors.Wrap(err, "could not listen")
	}
	l := &Listener{ln: ln, dir: dir, log: log}
	a := Announcement{Port: l.Port(), Pid: os.Getpid(), Version: ProtocolVersion}
	if err := Announce(dir, a); err != nil {
		ln.Close()
		return nil, err
	}
	log.Info("daemon listening", zap.Int("port", a.Port), zap.String("dir", dir))
	return l, nil
}

// Port returns the bound port.
func (l *Listener) Port() int {
	return l.ln.Addr().(*net.TCPAddr).Port
}

// Accept waits for the launcher to connect. ctx bounds the wait.
func (l *Listener) Accept(ctx context.Context, opts ...wire.Option) (*wire.Channel, error) {
	stop := context.AfterFunc(ctx, func() {
		l.ln.SetDeadline(time.Now())
	})
	defer stop()

	conn, err := l.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.WithMessage(ctx.Err(), "no launcher connected")
		}
		return nil, errors.Wrap(err, "accept failed")
	}
	l.log.Info("launcher connected", zap.Stringer("remote", conn.RemoteAddr()))
	return wire.NewChannel(conn, opts...), nil
}

// Close stops listening.
func (l *Listener) Close() error {
	return l.ln.Close()
}
