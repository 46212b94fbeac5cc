package actors

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// MessageListener observes message traffic, e.g. for debug logging.
type MessageListener interface {
	// OnMessageSent is called on the sending side; ctx tells whether the
	// sender is an actor.
	OnMessageSent(ctx context.Context, msg Message)
	// OnProcessingStarted is called on the actor thread before the message
	// is dispatched to actor.
	OnProcessingStarted(ctx context.Context, actor string, msg Message)
	// OnProcessingFinished is called after the dispatch returned.
	OnProcessingFinished(ctx context.Context)
}

// NullMessageListener does nothing. Meant for production use.
type NullMessageListener struct{}

func (NullMessageListener) OnMessageSent(context.Context, Message) {}

func (NullMessageListener) OnProcessingStarted(context.Context, string, Message) {}

func (NullMessageListener) OnProcessingFinished(context.Context) {}

const externalSender = "<external>"

// LoggingMessageListener logs every message sent and processed.
type LoggingMessageListener struct {
	log *zap.Logger
}

// NewLoggingMessageListener creates a listener writing to log at debug level.
func NewLoggingMessageListener(log *zap.Logger) *LoggingMessageListener {
	return &LoggingMessageListener{log: log}
}

func (l *LoggingMessageListener) OnMessageSent(ctx context.Context, msg Message) {
	sender := CurrentActor(ctx)
	if sender == "" {
		sender = externalSender
	}
	l.log.Debug(fmt.Sprintf("%s -> %s", sender, msg),
		zap.String("thread", threadName(ctx)))
}

func (l *LoggingMessageListener) OnProcessingStarted(ctx context.Context, actor string, msg Message) {
	l.log.Debug(fmt.Sprintf("%s <- %s", actor, msg),
		zap.String("thread", threadName(ctx)))
}

func (l *LoggingMessageListener) OnProcessingFinished(ctx context.Context) {
	l.log.Debug("processing finished", zap.String("thread", threadName(ctx)))
}

func threadName(ctx context.Context) string {
	if t := CurrentThread(ctx); t != nil {
		return t.Name()
	}
	return externalSender
}
