package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/neogan74/bakery/internal/logger"
)

func withSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func TestTracingMiddleware_NamesSpanByRoute(t *testing.T) {
	recorder := withSpanRecorder(t)

	var localTraceID string
	app := fiber.New()
	app.Use(TracingMiddleware("bakery-test"))
	app.Get("/batches/:id", func(c *fiber.Ctx) error {
		localTraceID, _ = c.Locals(TraceIDKey).(string)
		c.Locals(UsernameKey, "Baker@localhost")
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/batches/42", nil)
	req.Header.Set("User-Agent", "bakeryctl/0.1.0")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]

	assert.Equal(t, "GET /batches/:id", span.Name())
	assert.Equal(t, codes.Ok, span.Status().Code)
	assert.Equal(t, span.SpanContext().TraceID().String(), localTraceID)
	assert.Equal(t, localTraceID, resp.Header.Get("X-Trace-Id"))
	assert.Contains(t, span.Attributes(), attribute.String("enduser.id", "Baker@localhost"))
	assert.Contains(t, span.Attributes(), attribute.String("user_agent.original", "bakeryctl/0.1.0"))
}

func TestTracingMiddleware_ErrorStatus(t *testing.T) {
	recorder := withSpanRecorder(t)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger.NewNop())})
	app.Use(TracingMiddleware("bakery-test"))
	app.Get("/boom", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusConflict, "taken")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "taken", spans[0].Status().Description)
}
