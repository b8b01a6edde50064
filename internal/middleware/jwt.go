package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/neogan74/bakery/internal/audit"
	"github.com/neogan74/bakery/internal/auth"
	"github.com/neogan74/bakery/internal/identity"
)

// Context keys set for authenticated requests.
const (
	UsernameKey = audit.ActorLocal
	SessionKey  = "session"
	ClaimsKey   = "claims"
)

var tokenErrors = []error{
	auth.ErrTokenMissing,
	auth.ErrExpiredToken,
	auth.ErrTokenNotYetValid,
	auth.ErrBadSignature,
	auth.ErrIssuerMismatch,
	auth.ErrAudienceMismatch,
	auth.ErrMalformedToken,
}

func (a *Authorizer) authenticate(c *fiber.Ctx) (*auth.Session, error) {
	token, err := bearerToken(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return nil, err
	}
	return a.codec.Validate(token, a.now())
}

// bearerToken extracts the token of a "Bearer <token>" header value.
func bearerToken(header string) (string, error) {
	if header == "" {
		return "", auth.ErrTokenMissing
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", auth.ErrMalformedToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", auth.ErrTokenMissing
	}
	return token, nil
}

func tokenDetail(err error) string {
	for _, sentinel := range tokenErrors {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return auth.ErrMalformedToken.Error()
}

// GetUsername returns the username from the context
func GetUsername(c *fiber.Ctx) string {
	if username, ok := c.Locals(UsernameKey).(string); ok {
		return username
	}
	return ""
}

// GetSession returns the validated session, or nil on anonymous routes.
func GetSession(c *fiber.Ctx) *auth.Session {
	if session, ok := c.Locals(SessionKey).(*auth.Session); ok {
		return session
	}
	return nil
}

// GetClaims returns the token claims from the context
func GetClaims(c *fiber.Ctx) identity.Claims {
	if claims, ok := c.Locals(ClaimsKey).(identity.Claims); ok {
		return claims
	}
	return nil
}
