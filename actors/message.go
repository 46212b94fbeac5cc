// File: actors/message.go
package actors

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
)

// Message is a method call turned into a value: which capability, which
// method (the selector) and the arguments. Messages are never mutated after
// creation and are safe to hand to another goroutine or process as long as
// the arguments are transportable.
type Message struct {
	capability string
	selector   string
	args       []any
}

// NewMessage creates a message. The argument slice is copied.
func NewMessage(capability, selector string, args ...any) Message {
	copied := make([]any, len(args))
	copy(copied, args)
	return Message{
		capability: capability,
		selector:   selector,
		args:       copied,
	}
}

// Capability returns the name of the capability the message targets.
func (m Message) Capability() string { return m.capability }

// Selector returns the method identity.
func (m Message) Selector() string { return m.selector }

// NumArgs returns the number of arguments.
func (m Message) NumArgs() int { return len(m.args) }

// Args returns a copy of the argument list.
func (m Message) Args() []any {
	copied := make([]any, len(m.args))
	copy(copied, m.args)
	return copied
}

// Arg returns the i-th argument as it was given.
func (m Message) Arg(i int) (any, error) {
	if i < 0 || i >= len(m.args) {
		return nil, errors.Wrapf(ErrBadArgument, "%s: argument %d out of range (%d arguments)", m, i, len(m.args))
	}
	return m.args[i], nil
}

// StringArg returns the i-th argument as a string.
func (m Message) StringArg(i int) (string, error) {
	v, err := m.Arg(i)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", m.badArgument(i, "string", v)
	}
	return s, nil
}

// IntArg returns the i-th argument as an int. Numbers decoded from the wire
// arrive as float64 and are accepted when they are integral.
func (m Message) IntArg(i int) (int, error) {
	v, err := m.Arg(i)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, m.badArgument(i, "int", v)
		}
		return int(n), nil
	}
	return 0, m.badArgument(i, "int", v)
}

// BoolArg returns the i-th argument as a bool.
func (m Message) BoolArg(i int) (bool, error) {
	v, err := m.Arg(i)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, m.badArgument(i, "bool", v)
	}
	return b, nil
}

// StringsArg returns the i-th argument as a string slice. Lists decoded from
// the wire arrive as []any.
func (m Message) StringsArg(i int) ([]string, error) {
	v, err := m.Arg(i)
	if err != nil {
		return nil, err
	}
	switch list := v.(type) {
	case nil:
		return nil, nil
	case []string:
		copied := make([]string, len(list))
		copy(copied, list)
		return copied, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, m.badArgument(i, "[]string", v)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, m.badArgument(i, "[]string", v)
}

func (m Message) badArgument(i int, want string, got any) error {
	return errors.Wrapf(ErrBadArgument, "%s: argument %d is %T, want %s", m, i, got, want)
}

// String formats the message like a method call, e.g. SuiteListener.onTestFound("Foo", 1).
func (m Message) String() string {
	var b strings.Builder
	b.WriteString(m.capability)
	b.WriteByte('.')
	b.WriteString(m.selector)
	b.WriteByte('(')
	for i, arg := range m.args {
		if i > 0 {
			b.WriteString(", ")
		}
		if s, ok := arg.(string); ok {
			fmt.Fprintf(&b, "%q", s)
		} else {
			fmt.Fprintf(&b, "%v", arg)
		}
	}
	b.WriteByte(')')
	return b.String()
}
