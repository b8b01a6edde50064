package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"golang.org/x/crypto/bcrypt"

	"github.com/neogan74/bakery/internal/acl"
	"github.com/neogan74/bakery/internal/audit"
	"github.com/neogan74/bakery/internal/auth"
	"github.com/neogan74/bakery/internal/identity"
	"github.com/neogan74/bakery/internal/logger"
)

// ProblemContentType is the media type of every error body.
const ProblemContentType = "application/problem+json"

// GenericErrorDetail replaces the detail of upstream failures.
const GenericErrorDetail = "An unexpected error occurred. Please try again later."

var problemTypes = map[int]string{
	fiber.StatusBadRequest:          "https://tools.ietf.org/html/rfc7231#section-6.5.1",
	fiber.StatusUnauthorized:        "https://tools.ietf.org/html/rfc7235#section-3.1",
	fiber.StatusForbidden:           "https://tools.ietf.org/html/rfc7231#section-6.5.3",
	fiber.StatusNotFound:            "https://tools.ietf.org/html/rfc7231#section-6.5.4",
	fiber.StatusConflict:            "https://tools.ietf.org/html/rfc7231#section-6.5.8",
	fiber.StatusTooManyRequests:     "https://tools.ietf.org/html/rfc6585#section-4",
	fiber.StatusInternalServerError: "https://tools.ietf.org/html/rfc7231#section-6.6.1",
}

// Problem is an RFC 7807 error body.
type Problem struct {
	Type      string              `json:"type"`
	Title     string              `json:"title"`
	Status    int                 `json:"status"`
	Detail    string              `json:"detail,omitempty"`
	Instance  string              `json:"instance"`
	Errors    map[string][]string `json:"errors,omitempty"`
	RequestID string              `json:"request_id,omitempty"`
}

// BadRequest returns a 400 Bad Request problem
func BadRequest(c *fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, detail, nil)
}

// ValidationProblem returns a 400 problem listing the failures per field.
func ValidationProblem(c *fiber.Ctx, fieldErrors map[string][]string) error {
	return problem(c, fiber.StatusBadRequest, "One or more validation errors occurred.", fieldErrors)
}

// Unauthorized returns a 401 Unauthorized problem
func Unauthorized(c *fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusUnauthorized, detail, nil)
}

// Forbidden returns a 403 Forbidden problem
func Forbidden(c *fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusForbidden, detail, nil)
}

// NotFound returns a 404 Not Found problem
func NotFound(c *fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusNotFound, detail, nil)
}

// Conflict returns a 409 Conflict problem
func Conflict(c *fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusConflict, detail, nil)
}

// TooManyRequests returns a 429 problem
func TooManyRequests(c *fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusTooManyRequests, detail, nil)
}

// InternalServerError returns a 500 problem. The detail never carries the
// underlying error.
func InternalServerError(c *fiber.Ctx) error {
	return problem(c, fiber.StatusInternalServerError, GenericErrorDetail, nil)
}

// StatusFor maps a domain error onto its HTTP status.
func StatusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, auth.ErrTokenMissing),
		errors.Is(err, auth.ErrMalformedToken),
		errors.Is(err, auth.ErrBadSignature),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrIssuerMismatch),
		errors.Is(err, auth.ErrAudienceMismatch):
		return fiber.StatusUnauthorized
	case errors.Is(err, acl.ErrPermissionDenied):
		return fiber.StatusForbidden
	case errors.Is(err, audit.ErrNoMatch),
		errors.Is(err, identity.ErrUserNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, identity.ErrUserExists):
		return fiber.StatusConflict
	case errors.Is(err, audit.ErrInvalidTimestamp),
		errors.Is(err, audit.ErrIncompleteTimeRange),
		errors.Is(err, audit.ErrInvalidTimeRange),
		errors.Is(err, audit.ErrInvalidOperation),
		errors.Is(err, identity.ErrEmptyPassword),
		errors.Is(err, identity.ErrPasswordTooLong),
		errors.Is(err, bcrypt.ErrPasswordTooLong),
		errors.Is(err, identity.ErrUnknownRole):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler renders every error returned by a handler as a problem.
// Server-side failures are logged with their cause and answered with a
// generic detail.
func ErrorHandler(log logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := StatusFor(err)
		if status >= fiber.StatusInternalServerError {
			l := log
			if rl, ok := c.Locals(LoggerKey).(logger.Logger); ok {
				l = rl
			}
			l.Error("Unhandled request error",
				logger.String("method", c.Method()),
				logger.String("path", c.Path()),
				logger.Error(err))
			return problem(c, status, GenericErrorDetail, nil)
		}
		return problem(c, status, err.Error(), nil)
	}
}

// problem writes a structured error response
func problem(c *fiber.Ctx, status int, detail string, fieldErrors map[string][]string) error {
	typ, ok := problemTypes[status]
	if !ok {
		typ = "about:blank"
	}

	body := Problem{
		Type:      typ,
		Title:     utils.StatusMessage(status),
		Status:    status,
		Detail:    detail,
		Instance:  c.Path(),
		Errors:    fieldErrors,
		RequestID: GetRequestID(c),
	}

	log := GetLogger(c)
	fields := []logger.Field{
		logger.String("method", c.Method()),
		logger.String("path", c.Path()),
		logger.Int("status", status),
		logger.String("user_ip", c.IP()),
	}
	if status >= fiber.StatusInternalServerError {
		log.Error("HTTP error response", fields...)
	} else {
		log.Debug("HTTP error response", append(fields, logger.String("detail", detail))...)
	}

	return c.Status(status).JSON(body, ProblemContentType)
}
