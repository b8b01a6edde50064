package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeToken = "header.payload.signature"

func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /account/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["userName"] != "Admin@localhost" || body["password"] != "Secret7$" {
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", "Invalid login attempt", nil)
			return
		}
		_ = json.NewEncoder(w).Encode(LoginResult{Token: fakeToken, ExpiresIn: 300})
	})

	mux.HandleFunc("POST /account/register", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+fakeToken {
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", "authorization token required", nil)
			return
		}
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] == "weak" {
			writeProblem(w, http.StatusBadRequest, "Bad Request", "One or more validation errors occurred.",
				map[string][]string{"Password": {"Passwords must have at least one digit ('0'-'9')."}})
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "User '" + body["email"] + "' has been created."})
	})

	mux.HandleFunc("GET /searchlog", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("user") == "nobody" {
			writeProblem(w, http.StatusNotFound, "Not Found", "No logs found matching the specified criteria.", nil)
			return
		}
		_ = json.NewEncoder(w).Encode([]Event{{
			ID:        "0190a1b2",
			Operation: "Delete",
			Actor:     r.URL.Query().Get("user"),
			Path:      "/ingredients/7",
		}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeProblem(w http.ResponseWriter, status int, title, detail string, errs map[string][]string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{Title: title, Status: status, Detail: detail, Errors: errs})
}

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", srv.URL}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestLogin(t *testing.T) {
	srv := fakeAPI(t)

	out, err := run(t, srv, "login", "Admin@localhost", "-p", "Secret7$")
	require.NoError(t, err)
	assert.Equal(t, fakeToken+"\n", out)

	_, err = run(t, srv, "login", "Admin@localhost", "-p", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401 Unauthorized: Invalid login attempt")
}

func TestLogin_RequiresPassword(t *testing.T) {
	_, err := run(t, fakeAPI(t), "login", "Admin@localhost")
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	srv := fakeAPI(t)

	out, err := run(t, srv, "--token", fakeToken, "register", "clerk@bakery.local", "-p", "Flour9#x", "--full-name", "Clerk")
	require.NoError(t, err)
	assert.Contains(t, out, "User 'clerk@bakery.local' has been created.")

	_, err = run(t, srv, "--token", fakeToken, "register", "clerk@bakery.local", "-p", "weak", "--full-name", "Clerk")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Password: Passwords must have at least one digit")
}

func TestLogsSearch(t *testing.T) {
	srv := fakeAPI(t)

	out, err := run(t, srv, "--token", fakeToken, "logs", "search", "--user", "Admin@localhost")
	require.NoError(t, err)
	assert.Contains(t, out, "OPERATION")
	assert.Contains(t, out, "/ingredients/7")

	out, err = run(t, srv, "--token", fakeToken, "--json", "logs", "search", "--user", "Admin@localhost")
	require.NoError(t, err)
	var events []Event
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "Admin@localhost", events[0].Actor)

	_, err = run(t, srv, "--token", fakeToken, "logs", "search", "--user", "nobody")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestLogsSearch_RangeFlagsTogether(t *testing.T) {
	_, err := run(t, fakeAPI(t), "logs", "search", "--start", "2024-01-01T00:00:00Z")
	assert.Error(t, err)
}
