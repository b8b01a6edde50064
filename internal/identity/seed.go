package identity

import (
	"context"
	"errors"
)

// SeedPassword is the password of every seeded staff account.
const SeedPassword = "Secret7$"

// SeedAccount describes one development account created by Seed.
type SeedAccount struct {
	Username string
	FullName string
	Role     Role
}

// DefaultSeedAccounts returns one <Role>@localhost account per role.
func DefaultSeedAccounts() []SeedAccount {
	accounts := make([]SeedAccount, 0, len(Roles()))
	for _, r := range Roles() {
		accounts = append(accounts, SeedAccount{
			Username: r.String() + "@localhost",
			FullName: r.String() + "@localhost",
			Role:     r,
		})
	}
	return accounts
}

// Seed creates the given accounts, skipping usernames that already exist.
// It returns the usernames actually created.
func Seed(ctx context.Context, store Store, accounts []SeedAccount) ([]string, error) {
	var created []string
	for _, a := range accounts {
		id := Identity{Username: a.Username, FullName: a.FullName}
		err := store.Create(ctx, id, SeedPassword, a.Role.Claim())
		switch {
		case err == nil:
			created = append(created, a.Username)
		case errors.Is(err, ErrUserExists):
		default:
			return created, err
		}
	}
	return created, nil
}
