package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/neogan74/bakery/internal/identity"
	"github.com/neogan74/bakery/internal/persistence"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthHandler_Check(t *testing.T) {
	app := fiber.New()

	healthHandler := NewHealthHandler("1.0.0-test", map[string]Pinger{
		"credentials": identity.NewMemoryStore(),
		"audit_store": persistence.NewMemoryEngine(),
	})
	app.Get("/health", healthHandler.Check)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil), -1)
	if err != nil {
		t.Fatalf("Failed to perform request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var status HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if status.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", status.Status)
	}
	if status.Version != "1.0.0-test" {
		t.Errorf("Expected version '1.0.0-test', got '%s'", status.Version)
	}
	if status.Components["credentials"] != "ok" || status.Components["audit_store"] != "ok" {
		t.Errorf("Expected all components ok, got %v", status.Components)
	}
	if status.System.Goroutines <= 0 {
		t.Error("Expected goroutines count to be positive")
	}
}

func TestHealthHandler_Liveness(t *testing.T) {
	app := fiber.New()
	app.Get("/health/live", NewHealthHandler("test", nil).Liveness)

	resp, err := app.Test(httptest.NewRequest("GET", "/health/live", nil), -1)
	if err != nil {
		t.Fatalf("Failed to perform request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result["status"] != "alive" {
		t.Errorf("Expected status 'alive', got '%v'", result["status"])
	}
}

func TestHealthHandler_Readiness(t *testing.T) {
	engine := persistence.NewMemoryEngine()
	handler := NewHealthHandler("test", map[string]Pinger{
		"audit_store": engine,
		"credentials": pingFunc(func(context.Context) error { return nil }),
	})

	app := fiber.New()
	app.Get("/health/ready", handler.Readiness)
	app.Get("/health", handler.Check)

	resp, err := app.Test(httptest.NewRequest("GET", "/health/ready", nil), -1)
	if err != nil {
		t.Fatalf("Failed to perform request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	// A closed store makes the service unready but still alive
	if err := engine.Close(); err != nil {
		t.Fatalf("Failed to close engine: %v", err)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/health/ready", nil), -1)
	if err != nil {
		t.Fatalf("Failed to perform request: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503, got %d", resp.StatusCode)
	}

	var result struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result.Status != "not_ready" || result.Components["audit_store"] != "unavailable" || result.Components["credentials"] != "ok" {
		t.Errorf("Unexpected readiness body: %+v", result)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/health", nil), -1)
	if err != nil {
		t.Fatalf("Failed to perform request: %v", err)
	}
	var status HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if status.Status != "degraded" {
		t.Errorf("Expected status 'degraded', got '%s'", status.Status)
	}
}
