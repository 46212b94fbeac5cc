// File: actors/eventizer.go
package actors

import (
	"context"
	"reflect"
	"sort"

	"github.com/pkg/errors"
)

// MessageSender accepts the messages a frontend produces. In-process it
// enqueues on an actor thread; across the process boundary it writes a
// frame to the wire. ctx is the caller's context; it is never part of the
// message.
type MessageSender interface {
	Send(ctx context.Context, msg Message)
}

// MessageSenderFunc adapts a function to MessageSender.
type MessageSenderFunc func(ctx context.Context, msg Message)

// Send calls f(ctx, msg).
func (f MessageSenderFunc) Send(ctx context.Context, msg Message) { f(ctx, msg) }

// Backend invokes the method named by msg on the target it was built for.
// ctx is the context of the task running the call.
type Backend func(ctx context.Context, msg Message) error

// Eventizer is the frontend/backend adapter pair of one capability
// interface T. NewFrontend returns a T whose methods package themselves as
// messages; NewBackend returns the inverse.
type Eventizer[T any] struct {
	Capability  string
	NewFrontend func(sender MessageSender) T
	NewBackend  func(target T) Backend
}

// Registration is an Eventizer with its type parameter erased, so that
// eventizers of different capabilities can live in one Registry.
type Registration interface {
	capabilityName() string
	capabilityType() reflect.Type
	backendFor(target any) (Backend, error)
}

func (e Eventizer[T]) capabilityName() string { return e.Capability }

func (e Eventizer[T]) capabilityType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func (e Eventizer[T]) backendFor(target any) (Backend, error) {
	typed, ok := target.(T)
	if !ok {
		return nil, errors.Errorf("%T does not implement %s", target, e.Capability)
	}
	return e.NewBackend(typed), nil
}

// Selectors maps selector names to handlers. It is the building block for
// hand-written backends.
type Selectors map[string]func(ctx context.Context, msg Message) error

// Backend returns a Backend that dispatches messages of capability by selector.
func (s Selectors) Backend(capability string) Backend {
	return func(ctx context.Context, msg Message) error {
		if msg.Capability() != capability {
			return errors.Wrapf(ErrUnknownSelector, "%s delivered to a %s backend", msg, capability)
		}
		handler, ok := s[msg.Selector()]
		if !ok {
			return errors.Wrapf(ErrUnknownSelector, "%s", msg)
		}
		return handler(ctx, msg)
	}
}

// Registry maps capability types, and capability names, to their
// eventizers. It is built once and only read afterwards, so it is shared
// between actor threads without locking.
type Registry struct {
	byType map[reflect.Type]Registration
	byName map[string]Registration
}

// NewRegistry builds a registry. Registering the same capability type or
// name twice is an error. The Runnable capability is always present.
func NewRegistry(registrations ...Registration) (*Registry, error) {
	r := &Registry{
		byType: make(map[reflect.Type]Registration),
		byName: make(map[string]Registration),
	}
	for _, reg := range registrations {
		if err := r.add(reg); err != nil {
			return nil, err
		}
	}
	if _, ok := r.byType[RunnableEventizer.capabilityType()]; !ok {
		if err := r.add(RunnableEventizer); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustRegistry is NewRegistry for package-level setup; it panics on error.
func MustRegistry(registrations ...Registration) *Registry {
	r, err := NewRegistry(registrations...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) add(reg Registration) error {
	typ := reg.capabilityType()
	if typ.Kind() != reflect.Interface {
		return errors.Errorf("capability %s: %s is not an interface type", reg.capabilityName(), typ)
	}
	if reg.capabilityName() == "" {
		return errors.Errorf("capability %s has no name", typ)
	}
	if _, dup := r.byType[typ]; dup {
		return errors.Errorf("capability type %s registered twice", typ)
	}
	if _, dup := r.byName[reg.capabilityName()]; dup {
		return errors.Errorf("capability name %q registered twice", reg.capabilityName())
	}
	r.byType[typ] = reg
	r.byName[reg.capabilityName()] = reg
	return nil
}

// Capabilities lists the registered capability names in sorted order.
func (r *Registry) Capabilities() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Backend builds the backend of the named capability around target. It is
// used where only the capability name is known, e.g. for frames read from
// the wire.
func (r *Registry) Backend(capability string, target any) (Backend, error) {
	reg, ok := r.byName[capability]
	if !ok {
		return nil, errors.Wrapf(ErrUnregisteredCapability, "%q", capability)
	}
	return reg.backendFor(target)
}

func lookup[T any](r *Registry) (Eventizer[T], error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	reg, ok := r.byType[typ]
	if !ok {
		return Eventizer[T]{}, errors.Wrapf(ErrUnregisteredCapability, "%s", typ)
	}
	switch e := reg.(type) {
	case Eventizer[T]:
		return e, nil
	case *Eventizer[T]:
		return *e, nil
	}
	return Eventizer[T]{}, errors.Errorf("capability %s registered with an unexpected eventizer %T", typ, reg)
}

// CapabilityOf returns the registered name of capability T.
func CapabilityOf[T any](r *Registry) (string, error) {
	e, err := lookup[T](r)
	if err != nil {
		return "", err
	}
	return e.Capability, nil
}

// Frontend returns a T whose method calls are handed to sender as messages.
func Frontend[T any](r *Registry, sender MessageSender) (T, error) {
	e, err := lookup[T](r)
	if err != nil {
		var zero T
		return zero, err
	}
	return e.NewFrontend(sender), nil
}

// BackendFor returns a Backend invoking messages of capability T on target.
func BackendFor[T any](r *Registry, target T) (Backend, error) {
	e, err := lookup[T](r)
	if err != nil {
		return nil, err
	}
	return e.NewBackend(target), nil
}
