package logger

import (
	"context"
	"time"
)

// Entry carries measurement fields (duration, counts, status) that are logged
// together with whatever fields the context logger already has.
type Entry struct {
	fields Fields
}

// With starts an Entry with the given fields.
// Example: logger.With(logger.Fields{"worker": "queue"}).WithNewCount(2).Info(ctx, "Collection completed")
func With(fields Fields) *Entry {
	return (&Entry{}).With(fields)
}

// With returns a copy of e with fields merged in. Later keys win.
func (e *Entry) With(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{fields: merged}
}

// WithField adds a single field.
func (e *Entry) WithField(key string, value interface{}) *Entry {
	return e.With(Fields{key: value})
}

// WithDuration records d in milliseconds.
func (e *Entry) WithDuration(d time.Duration) *Entry {
	return e.WithField(FieldDurationMs, d.Milliseconds())
}

// WithCount records how many items were seen.
func (e *Entry) WithCount(n int) *Entry {
	return e.WithField(FieldCount, n)
}

// WithNewCount records how many items were recorded for the first time.
func (e *Entry) WithNewCount(n int) *Entry {
	return e.WithField(FieldNewCount, n)
}

// WithCredential records the credential name. Cookie values are never logged.
func (e *Entry) WithCredential(name string) *Entry {
	if name == "" {
		return e
	}
	return e.WithField(FieldCredential, name)
}

// WithHTTPStatus records an HTTP response status code.
func (e *Entry) WithHTTPStatus(code int) *Entry {
	return e.WithField(FieldStatus, code)
}

// WithError records err as a string; nil is ignored.
func (e *Entry) WithError(err error) *Entry {
	if err == nil {
		return e
	}
	return e.WithField(FieldError, err.Error())
}

func (e *Entry) logger(ctx context.Context) *Logger {
	return FromContext(ctx).WithFields(e.fields)
}

// Debug logs at Debug level through the context logger.
func (e *Entry) Debug(ctx context.Context, format string, args ...interface{}) {
	e.logger(ctx).Debugf(format, args...)
}

// Info logs at Info level through the context logger.
func (e *Entry) Info(ctx context.Context, format string, args ...interface{}) {
	e.logger(ctx).Infof(format, args...)
}

// Warn logs at Warn level through the context logger.
func (e *Entry) Warn(ctx context.Context, format string, args ...interface{}) {
	e.logger(ctx).Warnf(format, args...)
}

// Error logs at Error level through the context logger.
func (e *Entry) Error(ctx context.Context, format string, args ...interface{}) {
	e.logger(ctx).Errorf(format, args...)
}
