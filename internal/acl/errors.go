package acl

import "errors"

var (
	// ErrPermissionDenied is returned when a policy denies access
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidPolicy is returned when a policy is malformed
	ErrInvalidPolicy = errors.New("invalid policy")

	// ErrPolicyNotFound is returned when evaluating an unregistered policy
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrPolicyExists is returned when two policies share a name
	ErrPolicyExists = errors.New("policy already exists")

	// ErrUnknownPolicy is returned at startup when an endpoint refers to a
	// policy missing from the registry
	ErrUnknownPolicy = errors.New("unknown policy")

	// ErrNoPolicies is returned when a policy guard lists no policy
	ErrNoPolicies = errors.New("no policies listed")
)
