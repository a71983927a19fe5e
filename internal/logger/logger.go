package logger

import (
	"context"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

type ctxKey struct{}

// Initialize sets up the global logrus logger with the specified level and format.
func Initialize(level, format string) {
	InitializeTo(os.Stdout, level, format)
}

// InitializeTo is Initialize with an explicit output.
func InitializeTo(out io.Writer, level, format string) {
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetOutput(out)

	if strings.ToLower(format) == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// WithService returns an entry with the service name attached.
func WithService(name string) *log.Entry {
	return log.WithField("service", name)
}

// NewContext returns a context carrying entry, so downstream calls log with
// the same request fields.
func NewContext(ctx context.Context, entry *log.Entry) context.Context {
	return context.WithValue(ctx, ctxKey{}, entry)
}

// FromContext returns the entry stored by NewContext, or a bare entry.
func FromContext(ctx context.Context) *log.Entry {
	if ctx != nil {
		if entry, ok := ctx.Value(ctxKey{}).(*log.Entry); ok {
			return entry
		}
	}
	return log.NewEntry(log.StandardLogger())
}

// ExternalServiceCall logs a call to an external collaborator at debug level.
func ExternalServiceCall(ctx context.Context, service, operation string, fields log.Fields) {
	FromContext(ctx).WithFields(fields).WithFields(log.Fields{
		"external":  service,
		"operation": operation,
	}).Debug("→ external service call")
}

// ExternalServiceResult logs the outcome of a call to an external collaborator.
func ExternalServiceResult(ctx context.Context, service, operation string, err error) {
	entry := FromContext(ctx).WithFields(log.Fields{
		"external":  service,
		"operation": operation,
	})
	if err != nil {
		entry.WithError(err).Error("← external service call failed")
		return
	}
	entry.Debug("← external service call succeeded")
}
