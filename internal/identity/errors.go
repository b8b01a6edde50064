package identity

import "errors"

var (
	// ErrUserNotFound is returned when no identity has the requested username
	ErrUserNotFound = errors.New("identity: user not found")

	// ErrUserExists is returned when registering a username that is taken
	ErrUserExists = errors.New("identity: user already exists")

	// ErrInvalidCredentials covers both unknown users and wrong passwords
	ErrInvalidCredentials = errors.New("identity: invalid credentials")

	// ErrStoreUnavailable wraps backend failures of a credential store
	ErrStoreUnavailable = errors.New("identity: credential store unavailable")

	ErrUnknownRole = errors.New("identity: unknown role")

	ErrEmptyPassword = errors.New("identity: password is empty")

	// ErrPasswordTooLong is returned for passwords bcrypt cannot hash
	ErrPasswordTooLong = errors.New("identity: password is too long")
)
