package middleware

import (
	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TraceIDKey is the context key holding the current trace ID.
const TraceIDKey = "trace_id"

// TracingMiddleware creates a middleware for OpenTelemetry tracing
func TracingMiddleware(serviceName string) fiber.Handler {
	tracer := otel.Tracer(serviceName)

	return func(c *fiber.Ctx) error {
		propagator := otel.GetTextMapPropagator()
		ctx := propagator.Extract(c.UserContext(), &fiberCarrier{c: c})

		ctx, span := tracer.Start(ctx, c.Method()+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethod(c.Method()),
				semconv.HTTPScheme(c.Protocol()),
				semconv.HTTPTarget(c.Path()),
				semconv.NetHostName(c.Hostname()),
				semconv.UserAgentOriginal(c.Get(fiber.HeaderUserAgent)),
				attribute.String("http.client_ip", c.IP()),
			),
		)
		defer span.End()

		c.SetUserContext(ctx)

		if span.SpanContext().HasTraceID() {
			traceID := span.SpanContext().TraceID().String()
			c.Locals(TraceIDKey, traceID)
			c.Set("X-Trace-Id", traceID)
		}

		err := c.Next()

		// The route is only known once routing has run
		if route := c.Route().Path; route != "" {
			span.SetName(c.Method() + " " + route)
			span.SetAttributes(semconv.HTTPRoute(route))
		}
		if name := GetUsername(c); name != "" {
			span.SetAttributes(attribute.String("enduser.id", name))
		}

		statusCode := c.Response().StatusCode()
		if err != nil {
			statusCode = StatusFor(err)
			span.RecordError(err)
		}
		span.SetAttributes(semconv.HTTPStatusCode(statusCode))

		switch {
		case statusCode >= 500:
			span.SetStatus(codes.Error, "Internal server error")
		case err != nil:
			span.SetStatus(codes.Error, err.Error())
		default:
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}

// fiberCarrier adapts fiber.Ctx to propagation.TextMapCarrier
type fiberCarrier struct {
	c *fiber.Ctx
}

func (fc *fiberCarrier) Get(key string) string {
	return fc.c.Get(key)
}

func (fc *fiberCarrier) Set(key, value string) {
	fc.c.Set(key, value)
}

func (fc *fiberCarrier) Keys() []string {
	keys := make([]string, 0)
	fc.c.Request().Header.VisitAll(func(key, _ []byte) {
		keys = append(keys, string(key))
	})
	return keys
}
