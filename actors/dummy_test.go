package actors

import (
	"context"
	"sync"
)

// dummyListener is the capability used throughout the tests.
type dummyListener interface {
	OnSomething(ctx context.Context, parameter int)
	OnName(ctx context.Context, name string)
}

var dummyListenerEventizer = Eventizer[dummyListener]{
	Capability: "DummyListener",
	NewFrontend: func(sender MessageSender) dummyListener {
		return dummyListenerToMessage{sender: sender}
	},
	NewBackend: func(target dummyListener) Backend {
		return Selectors{
			"onSomething": func(ctx context.Context, msg Message) error {
				parameter, err := msg.IntArg(0)
				if err != nil {
					return err
				}
				target.OnSomething(ctx, parameter)
				return nil
			},
			"onName": func(ctx context.Context, msg Message) error {
				name, err := msg.StringArg(0)
				if err != nil {
					return err
				}
				target.OnName(ctx, name)
				return nil
			},
		}.Backend("DummyListener")
	},
}

type dummyListenerToMessage struct {
	sender MessageSender
}

func (d dummyListenerToMessage) OnSomething(ctx context.Context, parameter int) {
	d.sender.Send(ctx, NewMessage("DummyListener", "onSomething", parameter))
}

func (d dummyListenerToMessage) OnName(ctx context.Context, name string) {
	d.sender.Send(ctx, NewMessage("DummyListener", "onName", name))
}

// spyListener records calls and the context each call ran with.
type spyListener struct {
	mu       sync.Mutex
	values   []int
	names    []string
	contexts []context.Context
	onCall   func(ctx context.Context, parameter int)
}

func (s *spyListener) OnSomething(ctx context.Context, parameter int) {
	s.mu.Lock()
	s.values = append(s.values, parameter)
	s.contexts = append(s.contexts, ctx)
	hook := s.onCall
	s.mu.Unlock()
	if hook != nil {
		hook(ctx, parameter)
	}
}

func (s *spyListener) OnName(ctx context.Context, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	s.contexts = append(s.contexts, ctx)
}

func (s *spyListener) Values() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.values...)
}

func (s *spyListener) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}

// recordingFailureHandler collects failures instead of logging them.
type recordingFailureHandler struct {
	mu       sync.Mutex
	actors   []string
	messages []any
	errs     []error
}

func (h *recordingFailureHandler) UncaughtException(actor string, message any, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.actors = append(h.actors, actor)
	h.messages = append(h.messages, message)
	h.errs = append(h.errs, err)
}

func (h *recordingFailureHandler) Errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errs...)
}

func newTestRegistry() *Registry {
	return MustRegistry(dummyListenerEventizer)
}
