// Package identity holds the user, claim and role model of the bakery API and
// the credential stores that persist it.
package identity

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Claim is a typed attribute asserted about an identity.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (c Claim) String() string {
	return c.Type + "=" + c.Value
}

// Role is the closed set of bakery staff roles.
type Role int

const (
	RoleAdmin Role = iota + 1
	RoleManager
	RoleBaker
	RoleDriver
)

const (
	roleClaimPrefix = "Is"
	roleClaimValue  = "true"
)

var roleNames = map[Role]string{
	RoleAdmin:   "Admin",
	RoleManager: "Manager",
	RoleBaker:   "Baker",
	RoleDriver:  "Driver",
}

// Roles returns every known role in declaration order.
func Roles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleBaker, RoleDriver}
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// Claim returns the claim that grants r, e.g. IsBaker=true.
func (r Role) Claim() Claim {
	return Claim{Type: roleClaimPrefix + r.String(), Value: roleClaimValue}
}

// ParseRole resolves a role by name, case-insensitively.
func ParseRole(name string) (Role, error) {
	for _, r := range Roles() {
		if strings.EqualFold(r.String(), strings.TrimSpace(name)) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRole, name)
}

// RoleFromClaim is the inverse of Role.Claim. Matching is exact.
func RoleFromClaim(c Claim) (Role, bool) {
	for _, r := range Roles() {
		if r.Claim() == c {
			return r, true
		}
	}
	return 0, false
}

// Claims is an ordered claim set. A claim type may repeat with different
// values.
type Claims []Claim

// Has reports whether the exact (type, value) pair is present.
func (cs Claims) Has(c Claim) bool {
	return slices.Contains(cs, c)
}

// HasRole reports whether the role claim of r is present.
func (cs Claims) HasRole(r Role) bool {
	return cs.Has(r.Claim())
}

// Roles extracts the roles granted by the claim set.
func (cs Claims) Roles() []Role {
	var roles []Role
	for _, c := range cs {
		if r, ok := RoleFromClaim(c); ok && !slices.Contains(roles, r) {
			roles = append(roles, r)
		}
	}
	return roles
}

// Add appends c unless the exact pair is already present.
func (cs Claims) Add(c Claim) Claims {
	if cs.Has(c) {
		return cs
	}
	return append(cs, c)
}

// Remove drops every occurrence of the exact pair.
func (cs Claims) Remove(c Claim) Claims {
	return slices.DeleteFunc(slices.Clone(cs), func(x Claim) bool { return x == c })
}

// Clone returns an independent copy.
func (cs Claims) Clone() Claims {
	if cs == nil {
		return nil
	}
	return slices.Clone(cs)
}

// Identity is a registered user. Username doubles as the email address.
type Identity struct {
	Username     string    `json:"username"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"`
	Claims       Claims    `json:"claims"`
	CreatedAt    time.Time `json:"created_at"`
}

// NormalizeUsername folds a username for uniqueness comparisons.
func NormalizeUsername(username string) string {
	return strings.ToUpper(strings.TrimSpace(username))
}
