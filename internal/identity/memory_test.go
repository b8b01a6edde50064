package identity

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CreateAndVerify(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	err := store.Create(ctx, Identity{Username: "baker1@bakery.local", FullName: "Baker One"}, "Secret7$", RoleBaker.Claim())
	require.NoError(t, err)

	u, err := store.VerifyPassword(ctx, "BAKER1@bakery.local", "Secret7$")
	require.NoError(t, err)
	assert.Equal(t, "baker1@bakery.local", u.Username)
	assert.Equal(t, Claims{RoleBaker.Claim()}, u.Claims)
	assert.False(t, u.CreatedAt.IsZero())

	_, err = store.VerifyPassword(ctx, "baker1@bakery.local", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = store.VerifyPassword(ctx, "nobody@bakery.local", "Secret7$")
	assert.ErrorIs(t, err, ErrInvalidCredentials, "unknown users are indistinguishable from bad passwords")
}

func TestMemoryStore_DuplicateUsername(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Create(ctx, Identity{Username: "a@bakery.local"}, "Secret7$"))
	err := store.Create(ctx, Identity{Username: "A@BAKERY.LOCAL"}, "Secret7$")
	assert.ErrorIs(t, err, ErrUserExists)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_ClaimReplacement(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, Identity{Username: "d@bakery.local"}, "Secret7$", RoleDriver.Claim()))

	require.NoError(t, store.RemoveClaim(ctx, "d@bakery.local", RoleDriver.Claim()))
	require.NoError(t, store.AddClaim(ctx, "d@bakery.local", RoleManager.Claim()))

	claims, err := store.ListClaims(ctx, "d@bakery.local")
	require.NoError(t, err)
	assert.Equal(t, Claims{RoleManager.Claim()}, claims)

	assert.ErrorIs(t, store.AddClaim(ctx, "ghost@bakery.local", RoleAdmin.Claim()), ErrUserNotFound)
	assert.ErrorIs(t, store.RemoveClaim(ctx, "ghost@bakery.local", RoleAdmin.Claim()), ErrUserNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, Identity{Username: "m@bakery.local"}, "Secret7$", RoleManager.Claim()))

	u, err := store.FindByName(ctx, "m@bakery.local")
	require.NoError(t, err)
	u.Claims[0] = RoleAdmin.Claim()

	again, err := store.FindByName(ctx, "m@bakery.local")
	require.NoError(t, err)
	assert.Equal(t, Claims{RoleManager.Claim()}, again.Claims)
}

func TestSeed_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	created, err := Seed(ctx, store, DefaultSeedAccounts())
	require.NoError(t, err)
	assert.Equal(t, []string{"Admin@localhost", "Manager@localhost", "Baker@localhost", "Driver@localhost"}, created)

	created, err = Seed(ctx, store, DefaultSeedAccounts())
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Equal(t, 4, store.Len())

	u, err := store.VerifyPassword(ctx, "Driver@localhost", SeedPassword)
	require.NoError(t, err)
	assert.True(t, u.Claims.HasRole(RoleDriver))
}

// countUnknownUserRejections replaces the unknown-user path with a counter
// that still reports invalid credentials.
func countUnknownUserRejections(t *testing.T) *int {
	t.Helper()
	calls := 0
	original := rejectUnknownUser
	rejectUnknownUser = func(password string) error {
		calls++
		return original(password)
	}
	t.Cleanup(func() { rejectUnknownUser = original })
	return &calls
}

func TestMemoryStore_VerifyPassword_UnknownUserComparesHash(t *testing.T) {
	calls := countUnknownUserRejections(t)
	store := NewMemoryStore()

	_, err := store.VerifyPassword(context.Background(), "ghost@bakery.local", "Secret7$")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 1, *calls)
}

func TestMemoryStore_Create_PasswordTooLong(t *testing.T) {
	store := NewMemoryStore()
	err := store.Create(context.Background(), Identity{Username: "long@bakery.local"}, strings.Repeat("Aa1$", 20))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
	assert.Equal(t, 0, store.Len())
}
