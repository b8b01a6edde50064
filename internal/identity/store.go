package identity

import "context"

// Store is the credential store consulted by login and registration.
type Store interface {
	// FindByName looks up an identity by username, case-insensitively.
	FindByName(ctx context.Context, username string) (*Identity, error)

	// VerifyPassword returns the identity when password matches its stored
	// hash, ErrInvalidCredentials otherwise.
	VerifyPassword(ctx context.Context, username, password string) (*Identity, error)

	// ListClaims returns the current claims of username.
	ListClaims(ctx context.Context, username string) (Claims, error)

	// Create registers a new identity with the given plaintext password and
	// initial claims.
	Create(ctx context.Context, id Identity, password string, claims ...Claim) error

	AddClaim(ctx context.Context, username string, claim Claim) error
	RemoveClaim(ctx context.Context, username string, claim Claim) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}
