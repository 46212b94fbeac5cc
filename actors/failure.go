// File: actors/failure.go
package actors

import (
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
)

// FailureHandler is told about every error or panic that escapes a task.
// The actor thread keeps processing its queue afterwards.
type FailureHandler interface {
	UncaughtException(actor string, message any, err error)
}

// PanicError is a recovered panic together with the stack where it happened.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// LoggingFailureHandler logs failures and carries on. Meant for production use.
type LoggingFailureHandler struct {
	Log *zap.Logger
}

// UncaughtException logs err, including the stack of recovered panics.
func (h LoggingFailureHandler) UncaughtException(actor string, message any, err error) {
	log := h.Log
	if log == nil {
		log = zap.NewNop()
	}
	fields := []zap.Field{
		zap.String("actor", actor),
		zap.Error(err),
	}
	if message != nil {
		fields = append(fields, zap.String("message", fmt.Sprint(message)))
	}
	if p, ok := err.(*PanicError); ok {
		fields = append(fields, zap.ByteString("stack", p.Stack))
	}
	log.Error("uncaught failure in actor", fields...)
}

// CrashEarlyFailureHandler panics on the first failure. Meant for tests,
// where a failure anywhere should stop everything.
type CrashEarlyFailureHandler struct{}

// UncaughtException panics with err.
func (CrashEarlyFailureHandler) UncaughtException(actor string, message any, err error) {
	panic(fmt.Sprintf("uncaught failure in %s processing %v: %v", actor, message, err))
}

// run calls fn and turns a panic into a *PanicError.
func run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}
