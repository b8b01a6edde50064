package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/neogan74/bakery/internal/identity"
)

// TokenTTL is the fixed lifetime of a session token.
const TokenTTL = 300 * time.Second

// MinSigningKeyLength is the shortest accepted HMAC key, in bytes.
const MinSigningKeyLength = 32

var (
	ErrTokenMissing     = errors.New("token is missing")
	ErrMalformedToken   = errors.New("token is malformed")
	ErrBadSignature     = errors.New("token signature is invalid")
	ErrExpiredToken     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token is not valid yet")
	ErrIssuerMismatch   = errors.New("token issuer mismatch")
	ErrAudienceMismatch = errors.New("token audience mismatch")

	ErrSigningKeyMissing  = errors.New("signing key is missing")
	ErrSigningKeyTooShort = fmt.Errorf("signing key must be at least %d bytes", MinSigningKeyLength)
)

// Claims is the JWT payload of a session token.
type Claims struct {
	Name   string           `json:"name"`
	Claims []identity.Claim `json:"claims"`
	jwt.RegisteredClaims
}

// Session is the validated content of a token. Claims are the snapshot taken
// at issuance, not a fresh store lookup.
type Session struct {
	Subject   string          `json:"subject"`
	Name      string          `json:"name"`
	Claims    identity.Claims `json:"claims"`
	Issuer    string          `json:"issuer"`
	Audience  string          `json:"audience"`
	IssuedAt  time.Time       `json:"issued_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Codec issues and validates HS256 session tokens. It is a pure function of
// its inputs and safe for concurrent use.
type Codec struct {
	key      []byte
	issuer   string
	audience string
	parser   *jwt.Parser
}

func NewCodec(signingKey, issuer, audience string) (*Codec, error) {
	if signingKey == "" {
		return nil, ErrSigningKeyMissing
	}
	if len(signingKey) < MinSigningKeyLength {
		return nil, ErrSigningKeyTooShort
	}

	return &Codec{
		key:      []byte(signingKey),
		issuer:   issuer,
		audience: audience,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// Issue mints a token for id carrying claims. Identical inputs yield
// byte-identical tokens.
func (c *Codec) Issue(id *identity.Identity, claims identity.Claims, now time.Time) (string, error) {
	issuedAt := now.UTC().Truncate(time.Second)

	payload := Claims{
		Name:   id.Username,
		Claims: claims.Clone(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Username,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(TokenTTL)),
		},
	}
	if payload.Claims == nil {
		payload.Claims = []identity.Claim{}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	return token.SignedString(c.key)
}

// Validate verifies token at instant now. The token is valid on
// [iat, exp).
func (c *Codec) Validate(tokenString string, now time.Time) (*Session, error) {
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	var payload Claims
	_, err := c.parser.ParseWithClaims(tokenString, &payload, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrBadSignature
		}
		return c.key, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformedToken
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrBadSignature
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
	}

	if payload.Subject == "" || payload.IssuedAt == nil || payload.ExpiresAt == nil {
		return nil, ErrMalformedToken
	}
	if payload.Issuer != c.issuer {
		return nil, ErrIssuerMismatch
	}
	if !containsAudience(payload.Audience, c.audience) {
		return nil, ErrAudienceMismatch
	}

	issuedAt := payload.IssuedAt.Time.UTC()
	expiresAt := payload.ExpiresAt.Time.UTC()
	if !now.Before(expiresAt) {
		return nil, ErrExpiredToken
	}
	if now.Before(issuedAt) {
		return nil, ErrTokenNotYetValid
	}

	return &Session{
		Subject:   payload.Subject,
		Name:      payload.Name,
		Claims:    identity.Claims(payload.Claims),
		Issuer:    payload.Issuer,
		Audience:  c.audience,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Issuer returns the configured issuer.
func (c *Codec) Issuer() string { return c.issuer }

// Audience returns the configured audience.
func (c *Codec) Audience() string { return c.audience }

func containsAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

// ValidationResult labels err for metrics.
func ValidationResult(err error) string {
	switch {
	case err == nil:
		return "valid"
	case errors.Is(err, ErrTokenMissing):
		return "missing"
	case errors.Is(err, ErrExpiredToken):
		return "expired"
	case errors.Is(err, ErrTokenNotYetValid):
		return "not_yet_valid"
	case errors.Is(err, ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, ErrIssuerMismatch):
		return "issuer_mismatch"
	case errors.Is(err, ErrAudienceMismatch):
		return "audience_mismatch"
	default:
		return "malformed"
	}
}
