package acl

import (
	"fmt"
	"slices"
	"strings"

	"github.com/neogan74/bakery/internal/identity"
)

// Decision is the outcome of a policy evaluation
type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Requirement is the predicate of a policy. It is either SingleRole or AnyOf.
type Requirement interface {
	// Satisfied reports whether claims meet the requirement
	Satisfied(claims identity.Claims) bool
	// Roles lists the roles the requirement refers to
	Roles() []identity.Role
	fmt.Stringer

	requirement()
}

// SingleRole requires the exact Is<Role>=true claim.
type SingleRole struct {
	Role identity.Role
}

func (r SingleRole) Satisfied(claims identity.Claims) bool {
	return claims.Has(r.Role.Claim())
}

func (r SingleRole) Roles() []identity.Role { return []identity.Role{r.Role} }

func (r SingleRole) String() string { return r.Role.Claim().String() }

func (SingleRole) requirement() {}

// AnyOf is satisfied when at least one of its roles is.
type AnyOf struct {
	Of []identity.Role
}

func (r AnyOf) Satisfied(claims identity.Claims) bool {
	for _, role := range r.Of {
		if claims.Has(role.Claim()) {
			return true
		}
	}
	return false
}

func (r AnyOf) Roles() []identity.Role { return slices.Clone(r.Of) }

func (r AnyOf) String() string {
	parts := make([]string, len(r.Of))
	for i, role := range r.Of {
		parts[i] = role.Claim().String()
	}
	return "any(" + strings.Join(parts, " | ") + ")"
}

func (AnyOf) requirement() {}

// RequireRole is shorthand for SingleRole.
func RequireRole(role identity.Role) Requirement { return SingleRole{Role: role} }

// RequireAnyRole is shorthand for AnyOf.
func RequireAnyRole(roles ...identity.Role) Requirement { return AnyOf{Of: roles} }

// Policy is a named requirement registered once at startup
type Policy struct {
	Name        string      `json:"name"`
	Requirement Requirement `json:"-"`
}

// Validate checks the policy is well formed
func (p Policy) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: policy name is required", ErrInvalidPolicy)
	}
	if p.Requirement == nil {
		return fmt.Errorf("%w: policy %q has no requirement", ErrInvalidPolicy, p.Name)
	}
	roles := p.Requirement.Roles()
	if len(roles) == 0 {
		return fmt.Errorf("%w: policy %q requires no role", ErrInvalidPolicy, p.Name)
	}
	for _, r := range roles {
		if !r.Valid() {
			return fmt.Errorf("%w: policy %q refers to %s", ErrInvalidPolicy, p.Name, r)
		}
	}
	return nil
}

// AccessMode says how an endpoint is guarded
type AccessMode int

const (
	// AccessAnonymous skips token validation and presents no claims
	AccessAnonymous AccessMode = iota
	// AccessAuthenticated accepts any valid token
	AccessAuthenticated
	// AccessPolicies requires a valid token satisfying every listed policy
	AccessPolicies
)

func (m AccessMode) String() string {
	switch m {
	case AccessAnonymous:
		return "anonymous"
	case AccessAuthenticated:
		return "authenticated"
	case AccessPolicies:
		return "policies"
	default:
		return fmt.Sprintf("AccessMode(%d)", int(m))
	}
}

// Access is the declared guard of one endpoint
type Access struct {
	Mode     AccessMode
	Policies []string
}

func Anonymous() Access { return Access{Mode: AccessAnonymous} }

func Authenticated() Access { return Access{Mode: AccessAuthenticated} }

// Policies requires all listed policies. Prefer Evaluator.Require, which
// also checks the names against the registry.
func Policies(names ...string) Access {
	return Access{Mode: AccessPolicies, Policies: slices.Clone(names)}
}

// NeedsToken reports whether the mode requires a validated token
func (a Access) NeedsToken() bool {
	return a.Mode != AccessAnonymous
}
