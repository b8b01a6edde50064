package identity

import (
	"fmt"
	"net/mail"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 8
	// MaxPasswordBytes is the longest input bcrypt accepts.
	MaxPasswordBytes  = 72
	MaxFullNameLength = 100
)

// dummyHash is compared against when a username is unknown, so that a
// failed login costs the same whether or not the account exists.
var dummyHash = sync.OnceValue(func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return hash
})

// rejectUnknownUser burns one bcrypt comparison and reports invalid
// credentials.
var rejectUnknownUser = func(password string) error {
	_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
	return ErrInvalidCredentials
}

// HashPassword hashes a plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", ErrEmptyPassword
	}
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with a stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// ValidatePassword applies the account password rules and returns one message
// per broken rule.
func ValidatePassword(password string) []string {
	var problems []string
	var hasUpper, hasLower, hasDigit, hasSymbol bool

	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsLetter(r):
			hasSymbol = true
		}
	}

	if utf8.RuneCountInString(password) < MinPasswordLength {
		problems = append(problems, fmt.Sprintf("Passwords must be at least %d characters.", MinPasswordLength))
	}
	if len(password) > MaxPasswordBytes {
		problems = append(problems, fmt.Sprintf("Passwords must be at most %d bytes.", MaxPasswordBytes))
	}
	if !hasSymbol {
		problems = append(problems, "Passwords must have at least one non alphanumeric character.")
	}
	if !hasDigit {
		problems = append(problems, "Passwords must have at least one digit ('0'-'9').")
	}
	if !hasLower {
		problems = append(problems, "Passwords must have at least one lowercase ('a'-'z').")
	}
	if !hasUpper {
		problems = append(problems, "Passwords must have at least one uppercase ('A'-'Z').")
	}
	return problems
}

// ValidateEmail checks that username is a bare email address.
func ValidateEmail(username string) error {
	addr, err := mail.ParseAddress(username)
	if err != nil || addr.Address != username {
		return fmt.Errorf("%q is not a valid email address", username)
	}
	return nil
}
