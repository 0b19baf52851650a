package context

import (
	"context"
	"strings"
)

type eventKey struct{}
type consumerKey struct{}
type requestIDKey struct{}

// EventFields identifies the event currently flowing through the pipeline.
type EventFields struct {
	EventKey  string
	EntryID   string
	EntityID  string
	UserID    string
	TriggerID string
	ModuleID  string
}

// WithEvent annotates the context with the event being processed.
func WithEvent(ctx context.Context, fields EventFields) context.Context {
	return context.WithValue(ctx, eventKey{}, fields)
}

// EventFromContext returns the annotated event fields, if any.
func EventFromContext(ctx context.Context) (EventFields, bool) {
	if ctx == nil {
		return EventFields{}, false
	}
	fields, ok := ctx.Value(eventKey{}).(EventFields)
	return fields, ok
}

// WithConsumerID annotates the context with the stream consumer identity.
func WithConsumerID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, consumerKey{}, id)
}

func ConsumerIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(consumerKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRequestID annotates the context with the inbound request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}
