package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// BakeryClient talks to the bakery API over HTTP.
type BakeryClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// Problem is the error body returned by the API.
type Problem struct {
	Type      string              `json:"type"`
	Title     string              `json:"title"`
	Status    int                 `json:"status"`
	Detail    string              `json:"detail"`
	Errors    map[string][]string `json:"errors,omitempty"`
	RequestID string              `json:"request_id,omitempty"`
}

func (p *Problem) Error() string {
	msg := fmt.Sprintf("%d %s", p.Status, p.Title)
	if p.Detail != "" {
		msg += ": " + p.Detail
	}
	fields := make([]string, 0, len(p.Errors))
	for field := range p.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		msg += fmt.Sprintf("\n  %s: %s", field, strings.Join(p.Errors[field], "; "))
	}
	return msg
}

type LoginResult struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

type Event struct {
	ID        string         `json:"id"`
	Level     string         `json:"level"`
	Timestamp time.Time      `json:"timestamp"`
	Operation string         `json:"operation"`
	Actor     string         `json:"actor"`
	Path      string         `json:"path,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// SearchQuery holds the optional /searchlog filters. Empty fields are not
// sent.
type SearchQuery struct {
	User      string
	StartTime string
	EndTime   string
	Operation string
}

func NewBakeryClient(baseURL, token string) *BakeryClient {
	return &BakeryClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *BakeryClient) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	var result LoginResult
	body := map[string]string{"userName": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/account/login", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *BakeryClient) Register(ctx context.Context, email, password, fullName string) (string, error) {
	var result struct {
		Message string `json:"message"`
	}
	body := map[string]string{"email": email, "password": password, "fullName": fullName}
	if err := c.do(ctx, http.MethodPost, "/account/register", body, &result); err != nil {
		return "", err
	}
	return result.Message, nil
}

func (c *BakeryClient) Me(ctx context.Context) (map[string]any, error) {
	var result map[string]any
	if err := c.do(ctx, http.MethodGet, "/account/me", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *BakeryClient) SearchLogs(ctx context.Context, q SearchQuery) ([]Event, error) {
	params := url.Values{}
	for key, value := range map[string]string{
		"user":      q.User,
		"startTime": q.StartTime,
		"endTime":   q.EndTime,
		"operation": q.Operation,
	} {
		if value != "" {
			params.Set(key, value)
		}
	}

	path := "/searchlog"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var events []Event
	if err := c.do(ctx, http.MethodGet, path, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *BakeryClient) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var p Problem
		if err := json.Unmarshal(body, &p); err == nil && p.Status != 0 {
			return &p
		}
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
