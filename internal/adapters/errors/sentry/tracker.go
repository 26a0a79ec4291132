package sentry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"airquality/pkg/errors"
)

const flushTimeout = 2 * time.Second

// Tracker reports unexpected pipeline failures to Sentry
type Tracker struct {
	hub *sentry.Hub
}

// New initializes the Sentry client and tags every event with release
func New(dsn, environment, release string) (*Tracker, error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	})
	if err != nil {
		return nil, err
	}

	return &Tracker{hub: sentry.CurrentHub()}, nil
}

// CaptureError sends err with tags on a cloned hub so scopes never leak between requests
func (t *Tracker) CaptureError(ctx context.Context, err error, tags map[string]string) error {
	hub := t.hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		scope.SetLevel(levelFor(err))
	})

	hub.CaptureException(err)
	return nil
}

func (t *Tracker) CaptureMessage(ctx context.Context, message string, level errors.Level, tags map[string]string) error {
	hub := t.hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		scope.SetLevel(convertLevel(level))
	})

	hub.CaptureMessage(message)
	return nil
}

func (t *Tracker) AddBreadcrumb(ctx context.Context, message string, category string, level errors.Level, data map[string]interface{}) {
	t.hub.AddBreadcrumb(&sentry.Breadcrumb{
		Message:  message,
		Category: category,
		Level:    convertLevel(level),
		Data:     data,
	}, &sentry.BreadcrumbHint{})
}

func (t *Tracker) Flush(ctx context.Context) error {
	timeout := flushTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !sentry.Flush(timeout) {
		return errors.Wrap(errors.ErrTimeout, "sentry flush")
	}
	return nil
}

// levelFor escalates schema and load failures; they stop the service from serving.
func levelFor(err error) sentry.Level {
	switch {
	case errors.Is(err, errors.ErrConfig):
		return sentry.LevelFatal
	case errors.Is(err, errors.ErrLoad):
		return sentry.LevelError
	case errors.Is(err, errors.ErrInferenceRuntime):
		return sentry.LevelWarning
	default:
		return sentry.LevelError
	}
}

func convertLevel(level errors.Level) sentry.Level {
	switch level {
	case errors.LevelDebug:
		return sentry.LevelDebug
	case errors.LevelInfo:
		return sentry.LevelInfo
	case errors.LevelWarning:
		return sentry.LevelWarning
	case errors.LevelError:
		return sentry.LevelError
	case errors.LevelFatal:
		return sentry.LevelFatal
	default:
		return sentry.LevelInfo
	}
}
