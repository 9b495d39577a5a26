package sentryutil

import (
	"context"
	"fmt"

	"github.com/getsentry/sentry-go"
	"github.com/prydesocial/go-pryde/service/logger"
)

const errorContextName = "error context"

type errorContext struct {
	Mapped   bool
	MappedTo string
}

// ReportRemappedError reports an error to sentry, tagging it with the user-facing
// error type it was converted to (if any).
func ReportRemappedError(ctx context.Context, originalErr error, remappedErr interface{}) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	if hub == nil {
		logger.For(ctx).Warnln("could not report error to Sentry because hub is nil")
		return
	}

	// Use a new scope so our error context and tag don't persist beyond this error
	hub.WithScope(func(scope *sentry.Scope) {
		if remappedErr != nil {
			SetErrorContext(scope, true, fmt.Sprintf("%T", remappedErr))
			scope.SetTag("remappedError", "true")
		} else {
			SetErrorContext(scope, false, "")
		}

		hub.CaptureException(originalErr)
	})
}

func ReportError(ctx context.Context, err error) {
	ReportRemappedError(ctx, err, nil)
}

func SetErrorContext(scope *sentry.Scope, mapped bool, mappedTo string) {
	errCtx := errorContext{
		Mapped:   mapped,
		MappedTo: mappedTo,
	}

	scope.SetContext(errorContextName, map[string]interface{}{
		"Mapped":   errCtx.Mapped,
		"MappedTo": errCtx.MappedTo,
	})
}
