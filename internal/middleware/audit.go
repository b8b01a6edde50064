package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/neogan74/bakery/internal/audit"
	"github.com/neogan74/bakery/internal/logger"
)

// Recorder is the part of the audit manager the middleware needs.
type Recorder interface {
	Enabled() bool
	Record(ctx context.Context, event *audit.Event) (string, error)
}

// AuditMiddleware records an audit event for every mutating request before
// the handler runs. Recording never fails the request.
func AuditMiddleware(recorder Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if recorder == nil || !recorder.Enabled() {
			return c.Next()
		}

		op, ok := audit.OperationForMethod(c.Method())
		if !ok {
			return c.Next()
		}

		event := audit.BuildEvent(c, op)
		if _, err := recorder.Record(c.UserContext(), event); err != nil {
			GetLogger(c).Warn("Audit event not recorded",
				logger.String("operation", string(op)),
				logger.String("path", c.Path()),
				logger.Error(err))
		}

		return c.Next()
	}
}
