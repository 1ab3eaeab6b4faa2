package utils

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type ctxKey string

const RequestIDKey ctxKey = "req_id"

// WithRequestID stores the request id used to correlate log lines.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// Logger returns a log entry tagged with the request id, if any.
func Logger(ctx context.Context) *logrus.Entry {
	entry := logrus.NewEntry(logrus.StandardLogger())
	if id := RequestID(ctx); id != "" {
		entry = entry.WithField("req_id", id)
	}
	return entry
}

// TimeOp logs the duration of an operation when the returned func runs:
//
//	defer utils.TimeOp(ctx, "ipapi.lookup")(&err)
func TimeOp(ctx context.Context, op string) func(errp *error) {
	start := time.Now()
	return func(errp *error) {
		entry := Logger(ctx).WithFields(logrus.Fields{
			"op":     op,
			"dur_ms": time.Since(start).Milliseconds(),
		})
		if errp != nil && *errp != nil {
			entry.WithError(*errp).Warn("operation failed")
			return
		}
		entry.Debug("operation done")
	}
}
