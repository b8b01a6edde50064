package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neogan74/bakery/internal/acl"
	"github.com/neogan74/bakery/internal/auth"
	"github.com/neogan74/bakery/internal/identity"
	"github.com/neogan74/bakery/internal/logger"
	"github.com/neogan74/bakery/internal/middleware"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

var testNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	app   *fiber.App
	store *identity.MemoryStore
	codec *auth.Codec
}

func setupAccountApp(t *testing.T) *fixture {
	t.Helper()

	store := identity.NewMemoryStore()
	_, err := identity.Seed(context.Background(), store, identity.DefaultSeedAccounts())
	require.NoError(t, err)
	require.NoError(t, store.Create(context.Background(),
		identity.Identity{Username: "baker1", FullName: "Baker One"}, "Dough4$ever", identity.RoleBaker.Claim()))

	codec, err := auth.NewCodec(testSigningKey, "bakery-api", "bakery-clients")
	require.NoError(t, err)
	evaluator, err := acl.NewEvaluator(logger.NewNop(), acl.DefaultPolicies()...)
	require.NoError(t, err)

	clock := func() time.Time { return testNow }
	authz := middleware.NewAuthorizer(codec, evaluator, clock)
	handler := NewAccountHandler(store, codec, clock, logger.NewNop())
	seed := NewSeedHandler(store, identity.DefaultSeedAccounts())

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(logger.NewNop())})
	app.Post("/account/login", authz.Guard(acl.Anonymous()), handler.Login)
	app.Post("/account/register", authz.Guard(evaluator.MustRequire(acl.RequireAdminRole)), handler.Register)
	app.Get("/account/me", authz.Guard(acl.Authenticated()), handler.Me)
	app.Put("/seed", seed.Seed)

	return &fixture{app: app, store: store, codec: codec}
}

func (f *fixture) do(t *testing.T, method, path, body, token string) *http.Response {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	return resp
}

func (f *fixture) login(t *testing.T, username, password string) string {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/account/login",
		`{"userName":"`+username+`","password":"`+password+`"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result LoginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result.Token
}

func decodeProblem(t *testing.T, resp *http.Response) middleware.Problem {
	t.Helper()
	var p middleware.Problem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	return p
}

func TestAccountHandler_Login_Success(t *testing.T) {
	f := setupAccountApp(t)

	resp := f.do(t, http.MethodPost, "/account/login", `{"userName":"baker1","password":"Dough4$ever"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result LoginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.NotEmpty(t, result.Token)
	assert.EqualValues(t, 300, result.ExpiresIn)

	session, err := f.codec.Validate(result.Token, testNow)
	require.NoError(t, err)
	assert.Equal(t, "baker1", session.Subject)
	assert.Equal(t, "baker1", session.Name)
	assert.True(t, session.Claims.HasRole(identity.RoleBaker))
	assert.Equal(t, testNow.Add(auth.TokenTTL), session.ExpiresAt)
}

func TestAccountHandler_Login_UsernameIsCaseInsensitive(t *testing.T) {
	f := setupAccountApp(t)
	assert.NotEmpty(t, f.login(t, "BAKER1", "Dough4$ever"))
}

func TestAccountHandler_Login_Failures(t *testing.T) {
	f := setupAccountApp(t)

	tests := []struct {
		name   string
		body   string
		status int
		detail string
	}{
		{"wrong password", `{"userName":"baker1","password":"wrong"}`, http.StatusUnauthorized, InvalidLoginDetail},
		{"unknown user", `{"userName":"ghost","password":"Dough4$ever"}`, http.StatusUnauthorized, InvalidLoginDetail},
		{"missing fields", `{}`, http.StatusBadRequest, "One or more validation errors occurred."},
		{"not json", `{"userName":`, http.StatusBadRequest, "invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, "/account/login", tt.body, "")
			require.Equal(t, tt.status, resp.StatusCode)
			assert.Contains(t, decodeProblem(t, resp).Detail, tt.detail)
		})
	}
}

func TestAccountHandler_Register(t *testing.T) {
	f := setupAccountApp(t)
	admin := f.login(t, "Admin@localhost", identity.SeedPassword)

	resp := f.do(t, http.MethodPost, "/account/register",
		`{"email":"clerk@bakery.local","password":"Flour9#x","fullName":"Front Clerk"}`, admin)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result RegisterResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "User 'clerk@bakery.local' has been created.", result.Message)

	created, err := f.store.FindByName(context.Background(), "clerk@bakery.local")
	require.NoError(t, err)
	assert.Equal(t, "Front Clerk", created.FullName)
	assert.Empty(t, created.Claims, "new accounts start without roles")

	// The new account can log in straight away
	assert.NotEmpty(t, f.login(t, "clerk@bakery.local", "Flour9#x"))

	resp = f.do(t, http.MethodPost, "/account/register",
		`{"email":"clerk@bakery.local","password":"Flour9#x","fullName":"Again"}`, admin)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAccountHandler_Register_Validation(t *testing.T) {
	f := setupAccountApp(t)
	admin := f.login(t, "Admin@localhost", identity.SeedPassword)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"bad email", `{"email":"not-an-email","password":"Flour9#x","fullName":"X"}`, "Email"},
		{"weak password", `{"email":"a@b.c","password":"flour","fullName":"X"}`, "Password"},
		{"missing name", `{"email":"a@b.c","password":"Flour9#x"}`, "FullName"},
		{"password over 72 bytes", `{"email":"a@b.c","password":"Aa1$` + strings.Repeat("x", 76) + `","fullName":"X"}`, "Password"},
		{"long name", `{"email":"a@b.c","password":"Flour9#x","fullName":"` + strings.Repeat("n", 101) + `"}`, "FullName"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, "/account/register", tt.body, admin)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			p := decodeProblem(t, resp)
			assert.Contains(t, p.Errors, tt.field)
		})
	}

	resp := f.do(t, http.MethodPost, "/account/register", `{"email":"a@b.c","password":"flour","fullName":"X"}`, admin)
	p := decodeProblem(t, resp)
	assert.Len(t, p.Errors["Password"], 4, "length, symbol, digit and uppercase rules are reported separately")
}

func TestAccountHandler_Register_RequiresAdmin(t *testing.T) {
	f := setupAccountApp(t)
	baker := f.login(t, "baker1", "Dough4$ever")

	body := `{"email":"x@bakery.local","password":"Flour9#x","fullName":"X"}`

	resp := f.do(t, http.MethodPost, "/account/register", body, baker)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "authenticated but unauthorized")

	resp = f.do(t, http.MethodPost, "/account/register", body, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAccountHandler_Me(t *testing.T) {
	f := setupAccountApp(t)
	token := f.login(t, "Manager@localhost", identity.SeedPassword)

	resp := f.do(t, http.MethodGet, "/account/me", "", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Session auth.Session `json:"session"`
		Roles   []string     `json:"roles"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "Manager@localhost", result.Session.Subject)
	assert.Equal(t, []string{"Manager"}, result.Roles)
}

// Claims are frozen at issuance: a role granted later is invisible to an
// existing token.
func TestAccountHandler_ClaimSnapshot(t *testing.T) {
	f := setupAccountApp(t)
	token := f.login(t, "baker1", "Dough4$ever")

	require.NoError(t, f.store.AddClaim(context.Background(), "baker1", identity.RoleAdmin.Claim()))

	body := `{"email":"y@bakery.local","password":"Flour9#x","fullName":"Y"}`
	resp := f.do(t, http.MethodPost, "/account/register", body, token)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	fresh := f.login(t, "baker1", "Dough4$ever")
	resp = f.do(t, http.MethodPost, "/account/register", body, fresh)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestSeedHandler_Idempotent(t *testing.T) {
	f := setupAccountApp(t)
	before := f.store.Len()

	resp := f.do(t, http.MethodPut, "/seed", "", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, before, f.store.Len())

	token := f.login(t, "Driver@localhost", identity.SeedPassword)
	session, err := f.codec.Validate(token, testNow)
	require.NoError(t, err)
	assert.True(t, session.Claims.HasRole(identity.RoleDriver))
}
