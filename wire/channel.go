// File: wire/channel.go
package wire

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/lguibr/harness/actors"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrChannelClosed is returned by every operation on a channel whose
// connection failed or was closed. The cause is wrapped.
var ErrChannelClosed = errors.New("channel closed")

// Channel carries messages over one connection in both directions. Send
// may be called from any goroutine; Receive from one goroutine at a time.
// The first I/O failure closes the channel for good.
type Channel struct {
	conn        net.Conn
	reader      *bufio.Reader
	sendTimeout time.Duration
	log         *zap.Logger

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
	mu        sync.Mutex
	err       error
}

// Option configures a Channel.
type Option func(*Channel)

// WithSendTimeout bounds each Send. Zero means no bound.
func WithSendTimeout(d time.Duration) Option {
	return func(c *Channel) { c.sendTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Channel) { c.log = log }
}

// NewChannel takes ownership of conn.
func NewChannel(conn net.Conn, opts ...Option) *Channel {
	c := &Channel{
		conn:   conn,
		reader: bufio.NewReader(conn),
		log:    zap.NewNop(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send writes msg as one frame.
func (c *Channel) Send(msg actors.Message) error {
	if err := c.Err(); err != nil {
		return err
	}
	frame, err := AppendFrame(nil, msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.sendTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.sendTimeout)); err != nil {
			return c.fail(err)
		}
	}
	if _, err := c.conn.Write(frame); err != nil {
		return c.fail(err)
	}
	return nil
}

// Receive waits for the next message. When ctx is done first the channel
// is closed, since a half-read frame cannot be resumed.
func (c *Channel) Receive(ctx context.Context) (actors.Message, error) {
	if err := c.Err(); err != nil {
		return actors.Message{}, err
	}
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	msg, err := ReadFrame(c.reader)
	if err != nil {
		if ctx.Err() != nil {
			return actors.Message{}, c.fail(errors.WithMessage(ctx.Err(), "receive cancelled"))
		}
		return actors.Message{}, c.fail(err)
	}
	return msg, nil
}

// Close closes the connection. Closing twice is harmless.
func (c *Channel) Close() error {
	c.fail(errors.New("closed locally"))
	return nil
}

// Done is closed once the channel is closed.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err returns nil while the channel is open, afterwards an error wrapping
// ErrChannelClosed.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// RemoteAddr returns the address of the other end.
func (c *Channel) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// fail closes the channel with cause, unless it is already closed, and
// returns the channel's error.
func (c *Channel) fail(cause error) error {
	c.closeOnce.Do(func() {
		if cause == io.EOF {
			cause = errors.New("connection closed by peer")
		}
		c.mu.Lock()
		c.err = errors.Wrap(ErrChannelClosed, cause.Error())
		c.mu.Unlock()
		c.conn.Close()
		close(c.done)
		c.log.Debug("channel closed", zap.Error(cause))
	})
	return c.Err()
}

// Sender adapts c to actors.MessageSender, so that a capability frontend
// writes straight onto the wire. Failed sends are reported to onError.
func (c *Channel) Sender(onError func(msg actors.Message, err error)) actors.MessageSender {
	return actors.MessageSenderFunc(func(_ context.Context, msg actors.Message) {
		if err := c.Send(msg); err != nil && onError != nil {
			onError(msg, err)
		}
	})
}

// Pump receives messages and hands them to dispatch until the channel
// closes or ctx is done. It returns the reason it stopped.
func Pump(ctx context.Context, ch *Channel, dispatch func(msg actors.Message)) error {
	for {
		msg, err := ch.Receive(ctx)
		if err != nil {
			return err
		}
		dispatch(msg)
	}
}
