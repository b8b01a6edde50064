package audit

import (
	"crypto/sha256"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// ActorLocal is the fiber Locals key holding the authenticated username.
const ActorLocal = "username"

// ExtractActor returns the authenticated username of the request, or
// AnonymousActor when no valid token was presented.
func ExtractActor(c *fiber.Ctx) string {
	if name, ok := c.Locals(ActorLocal).(string); ok && name != "" {
		return name
	}
	return AnonymousActor
}

// HashRequestBody creates a SHA-256 hash of the request body so the payload
// can be verified without storing it.
func HashRequestBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	hash := sha256.Sum256(body)
	return fmt.Sprintf("%x", hash)
}

// BuildEvent captures the audit event of a mutating request. The timestamp
// is the instant the request was received, taken once.
func BuildEvent(c *fiber.Ctx, op Operation) *Event {
	payload := map[string]any{
		"method":    c.Method(),
		"source_ip": c.IP(),
	}
	if route := c.Route(); route != nil && route.Path != "" {
		payload["route"] = route.Path
	}
	if q := string(c.Request().URI().QueryString()); q != "" {
		payload["query"] = q
	}
	if hash := HashRequestBody(c.Body()); hash != "" {
		payload["request_hash"] = hash
	}
	if traceID, ok := c.Locals("trace_id").(string); ok && traceID != "" {
		payload["trace_id"] = traceID
	}

	return &Event{
		Level:     LevelInformation,
		Timestamp: c.Context().Time().UTC(),
		Operation: op,
		Actor:     ExtractActor(c),
		Path:      c.Path(),
		Payload:   payload,
	}
}
