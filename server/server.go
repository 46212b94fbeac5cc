// File: server/server.go
package server

import (
	"context"
	"sync"
	"time"

	"github.com/lguibr/harness/actors"
	"github.com/lguibr/harness/api"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"
)

// Event is the JSON form of a SuiteListener message on the feed.
type Event struct {
	Capability string `json:"capability"`
	Selector   string `json:"selector"`
	Args       []any  `json:"args"`
	Text       string `json:"text"` // console rendering of the event
}

// NewEvent converts msg for the feed.
func NewEvent(msg actors.Message) Event {
	args := msg.Args()
	if args == nil {
		args = []any{}
	}
	return Event{
		Capability: msg.Capability(),
		Selector:   msg.Selector(),
		Args:       args,
		Text:       api.Describe(msg),
	}
}

// Server is the websocket event feed. Every subscriber first gets the
// events broadcast before it joined, then every new one.
type Server struct {
	log          *zap.Logger
	writeTimeout time.Duration

	mu          sync.Mutex
	history     []Event
	subscribers map[*subscriber]bool
	closed      bool
}

type subscriber struct {
	conn   *websocket.Conn
	events *actors.Queue[Event]
	cancel context.CancelFunc
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithWriteTimeout bounds writing one event to a subscriber.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) { s.writeTimeout = d }
}

// New creates a feed without subscribers.
func New(opts ...Option) *Server {
	s := &Server{
		log:          zap.NewNop(),
		writeTimeout: 5 * time.Second,
		subscribers:  make(map[*subscriber]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Broadcast queues msg for every subscriber. It never blocks.
func (s *Server) Broadcast(msg actors.Message) {
	event := NewEvent(msg)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.history = append(s.history, event)
	for sub := range s.subscribers {
		sub.events.Send(event)
	}
}

// History returns every event broadcast so far.
func (s *Server) History() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.history...)
}

// Subscribers returns the number of connected subscribers.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// Close disconnects every subscriber. Later broadcasts are dropped.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for sub := range s.subscribers {
		sub.cancel()
		_ = sub.conn.Close()
	}
}

func (s *Server) subscribe(ctx context.Context, conn *websocket.Conn) (*subscriber, bool) {
	ctx, cancel := context.WithCancel(ctx)
	sub := &subscriber{conn: conn, events: actors.NewQueue[Event](), cancel: cancel}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		cancel()
		return nil, false
	}
	for _, event := range s.history {
		sub.events.Send(event)
	}
	s.subscribers[sub] = true
	go s.writeLoop(ctx, sub)
	return sub, true
}

func (s *Server) unsubscribe(sub *subscriber) {
	s.mu.Lock()
	delete(s.subscribers, sub)
	s.mu.Unlock()
	sub.cancel()
}

// writeLoop sends the subscriber's events until it goes away.
func (s *Server) writeLoop(ctx context.Context, sub *subscriber) {
	addr := sub.conn.Request().RemoteAddr
	for {
		event, err := sub.events.Take(ctx)
		if err != nil {
			return
		}
		_ = sub.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		if err := websocket.JSON.Send(sub.conn, event); err != nil {
			s.log.Debug("dropping feed subscriber", zap.String("remote", addr), zap.Error(err))
			_ = sub.conn.Close()
			return
		}
	}
}
