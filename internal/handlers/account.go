package handlers

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"

	"github.com/neogan74/bakery/internal/auth"
	"github.com/neogan74/bakery/internal/identity"
	"github.com/neogan74/bakery/internal/logger"
	"github.com/neogan74/bakery/internal/metrics"
	"github.com/neogan74/bakery/internal/middleware"
)

// InvalidLoginDetail is the only detail a failed login ever returns.
const InvalidLoginDetail = "Invalid login attempt"

// AccountHandler serves login, registration and session introspection.
type AccountHandler struct {
	store identity.Store
	codec *auth.Codec
	now   func() time.Time
	log   logger.Logger
}

// NewAccountHandler creates an account handler. now defaults to time.Now.
func NewAccountHandler(store identity.Store, codec *auth.Codec, now func() time.Time, log logger.Logger) *AccountHandler {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &AccountHandler{store: store, codec: codec, now: now, log: log}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

// LoginResponse represents the login response body
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

// RegisterResponse represents the registration response body
type RegisterResponse struct {
	Message string `json:"message"`
}

// Login verifies credentials and issues a session token carrying the
// identity's claims.
func (h *AccountHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return middleware.BadRequest(c, "invalid request body")
	}

	fieldErrors := map[string][]string{}
	if strings.TrimSpace(req.UserName) == "" {
		fieldErrors["UserName"] = []string{"The UserName field is required."}
	}
	if req.Password == "" {
		fieldErrors["Password"] = []string{"The Password field is required."}
	}
	if len(fieldErrors) > 0 {
		return middleware.ValidationProblem(c, fieldErrors)
	}

	id, err := h.store.VerifyPassword(c.UserContext(), req.UserName, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
			middleware.GetLogger(c).Info("Login rejected", logger.String("user", req.UserName))
			return middleware.Unauthorized(c, InvalidLoginDetail)
		}
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		middleware.GetLogger(c).Error("Credential store failure during login", logger.Error(err))
		return middleware.InternalServerError(c)
	}

	token, err := h.codec.Issue(id, id.Claims, h.now())
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		middleware.GetLogger(c).Error("Failed to issue token", logger.Error(err))
		return middleware.InternalServerError(c)
	}

	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	metrics.TokensIssuedTotal.Inc()
	middleware.GetLogger(c).Info("User logged in",
		logger.String("user", id.Username),
		logger.Int("claims", len(id.Claims)))

	return c.JSON(LoginResponse{
		Token:     token,
		ExpiresIn: int64(auth.TokenTTL / time.Second),
	})
}

// Register creates a new identity without claims.
func (h *AccountHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return middleware.BadRequest(c, "invalid request body")
	}

	if fieldErrors := validateRegistration(req); len(fieldErrors) > 0 {
		metrics.AccountsRegisteredTotal.WithLabelValues("invalid").Inc()
		return middleware.ValidationProblem(c, fieldErrors)
	}

	id := identity.Identity{
		Username:  req.Email,
		FullName:  req.FullName,
		CreatedAt: h.now().UTC(),
	}
	if err := h.store.Create(c.UserContext(), id, req.Password); err != nil {
		switch {
		case errors.Is(err, identity.ErrUserExists):
			metrics.AccountsRegisteredTotal.WithLabelValues("duplicate").Inc()
			return middleware.Conflict(c, fmt.Sprintf("Username '%s' is already taken.", req.Email))
		case errors.Is(err, identity.ErrPasswordTooLong):
			metrics.AccountsRegisteredTotal.WithLabelValues("invalid").Inc()
			return middleware.ValidationProblem(c, map[string][]string{
				"Password": {fmt.Sprintf("Passwords must be at most %d bytes.", identity.MaxPasswordBytes)},
			})
		default:
			metrics.AccountsRegisteredTotal.WithLabelValues("error").Inc()
			middleware.GetLogger(c).Error("Failed to create user",
				logger.String("user", req.Email),
				logger.Error(err))
			return middleware.InternalServerError(c)
		}
	}

	metrics.AccountsRegisteredTotal.WithLabelValues("created").Inc()
	middleware.GetLogger(c).Info("User created",
		logger.String("user", req.Email),
		logger.String("by", middleware.GetUsername(c)))

	return c.Status(fiber.StatusCreated).JSON(RegisterResponse{
		Message: fmt.Sprintf("User '%s' has been created.", req.Email),
	})
}

func validateRegistration(req RegisterRequest) map[string][]string {
	fieldErrors := map[string][]string{}

	switch {
	case req.Email == "":
		fieldErrors["Email"] = []string{"The Email field is required."}
	case identity.ValidateEmail(req.Email) != nil:
		fieldErrors["Email"] = []string{"The Email field is not a valid e-mail address."}
	}

	if req.Password == "" {
		fieldErrors["Password"] = []string{"The Password field is required."}
	} else if problems := identity.ValidatePassword(req.Password); len(problems) > 0 {
		fieldErrors["Password"] = problems
	}

	switch {
	case strings.TrimSpace(req.FullName) == "":
		fieldErrors["FullName"] = []string{"The FullName field is required."}
	case utf8.RuneCountInString(req.FullName) > identity.MaxFullNameLength:
		fieldErrors["FullName"] = []string{
			fmt.Sprintf("The field FullName must be a string with a maximum length of %d.", identity.MaxFullNameLength),
		}
	}

	return fieldErrors
}

// Me returns the session of the presented token. The claims are the
// snapshot frozen at issuance.
func (h *AccountHandler) Me(c *fiber.Ctx) error {
	session := middleware.GetSession(c)
	if session == nil {
		return middleware.Unauthorized(c, auth.ErrTokenMissing.Error())
	}

	roles := make([]string, 0, len(session.Claims))
	for _, r := range session.Claims.Roles() {
		roles = append(roles, r.String())
	}

	return c.JSON(fiber.Map{
		"session": session,
		"roles":   roles,
	})
}
