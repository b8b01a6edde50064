package acl

import "github.com/neogan74/bakery/internal/identity"

// Names of the built-in policies.
const (
	RequireAdminRole                = "RequireAdminRole"
	RequireManagerRole              = "RequireManagerRole"
	RequireBakerRole                = "RequireBakerRole"
	RequireDriverRole               = "RequireDriverRole"
	RequireAdminManagerOrBakerRole  = "RequireAdminManagerOrBakerRole"
	RequireAdminManagerOrDriverRole = "RequireAdminManagerOrDriverRole"
	RequireAdminOrManager           = "RequireAdminOrManager"
)

// DefaultPolicies returns the staff policies of the bakery API.
func DefaultPolicies() []Policy {
	return []Policy{
		{Name: RequireAdminRole, Requirement: RequireRole(identity.RoleAdmin)},
		{Name: RequireManagerRole, Requirement: RequireRole(identity.RoleManager)},
		{Name: RequireBakerRole, Requirement: RequireRole(identity.RoleBaker)},
		{Name: RequireDriverRole, Requirement: RequireRole(identity.RoleDriver)},
		{
			Name:        RequireAdminManagerOrBakerRole,
			Requirement: RequireAnyRole(identity.RoleAdmin, identity.RoleManager, identity.RoleBaker),
		},
		{
			Name:        RequireAdminManagerOrDriverRole,
			Requirement: RequireAnyRole(identity.RoleAdmin, identity.RoleManager, identity.RoleDriver),
		},
		{
			Name:        RequireAdminOrManager,
			Requirement: RequireAnyRole(identity.RoleAdmin, identity.RoleManager),
		},
	}
}
