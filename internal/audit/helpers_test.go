package audit

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

func TestExtractActor(t *testing.T) {
	app := fiber.New()

	tests := []struct {
		name     string
		setup    func(*fiber.Ctx)
		expected string
	}{
		{
			name:     "anonymous",
			setup:    func(*fiber.Ctx) {},
			expected: AnonymousActor,
		},
		{
			name: "authenticated",
			setup: func(c *fiber.Ctx) {
				c.Locals(ActorLocal, "baker1@bakery.local")
			},
			expected: "baker1@bakery.local",
		},
		{
			name: "empty name",
			setup: func(c *fiber.Ctx) {
				c.Locals(ActorLocal, "")
			},
			expected: AnonymousActor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := app.AcquireCtx(&fasthttp.RequestCtx{})
			defer app.ReleaseCtx(c)

			tt.setup(c)
			if got := ExtractActor(c); got != tt.expected {
				t.Errorf("expected actor %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestHashRequestBody(t *testing.T) {
	if HashRequestBody(nil) != "" {
		t.Error("expected empty hash for empty body")
	}

	first := HashRequestBody([]byte(`{"name":"flour"}`))
	second := HashRequestBody([]byte(`{"name":"flour"}`))
	other := HashRequestBody([]byte(`{"name":"sugar"}`))

	if len(first) != 64 {
		t.Errorf("expected 64 hex characters, got %d", len(first))
	}
	if first != second {
		t.Error("hash must be deterministic")
	}
	if first == other {
		t.Error("different bodies must hash differently")
	}
}

func TestBuildEvent(t *testing.T) {
	app := fiber.New()

	app.Use(func(c *fiber.Ctx) error {
		c.Locals(ActorLocal, "Manager@localhost")
		return c.Next()
	})

	app.Put("/ingredients/:name", func(c *fiber.Ctx) error {
		event := BuildEvent(c, OperationPut)

		if event.Operation != OperationPut {
			t.Errorf("expected operation Put, got %q", event.Operation)
		}
		if event.Actor != "Manager@localhost" {
			t.Errorf("expected actor Manager@localhost, got %q", event.Actor)
		}
		if event.Path != "/ingredients/flour" {
			t.Errorf("expected path /ingredients/flour, got %q", event.Path)
		}
		if event.Level != LevelInformation {
			t.Errorf("expected level Information, got %q", event.Level)
		}
		if event.Timestamp.IsZero() || event.Timestamp.Location().String() != "UTC" {
			t.Errorf("expected a UTC timestamp, got %v", event.Timestamp)
		}
		if event.Payload["method"] != "PUT" {
			t.Errorf("expected method PUT in payload, got %v", event.Payload["method"])
		}
		if event.Payload["route"] != "/ingredients/:name" {
			t.Errorf("expected route in payload, got %v", event.Payload["route"])
		}
		if event.Payload["query"] != "unit=kg" {
			t.Errorf("expected query in payload, got %v", event.Payload["query"])
		}
		if _, ok := event.Payload["request_hash"]; !ok {
			t.Error("expected request hash in payload")
		}

		return c.SendStatus(200)
	})

	req := httptest.NewRequest("PUT", "/ingredients/flour?unit=kg", strings.NewReader(`{"quantity":5}`))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != 200 {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestOperationForMethod(t *testing.T) {
	tests := map[string]Operation{
		"POST":   OperationPost,
		"put":    OperationPut,
		"PATCH":  OperationPut,
		"DELETE": OperationDelete,
	}
	for method, expected := range tests {
		op, ok := OperationForMethod(method)
		if !ok || op != expected {
			t.Errorf("OperationForMethod(%s) = %q, %v; expected %q", method, op, ok, expected)
		}
	}

	for _, method := range []string{"GET", "HEAD", "OPTIONS"} {
		if _, ok := OperationForMethod(method); ok {
			t.Errorf("%s must not be audited", method)
		}
	}
}
