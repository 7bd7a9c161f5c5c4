package permitflowsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal PermitFlow HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Permit represents the API permit model (partial).
type Permit struct {
	ID             string         `json:"id"`
	Status         string         `json:"status"`
	WorkType       string         `json:"work_type"`
	RequesterEmail string         `json:"requester_email"`
	ValidFrom      string         `json:"valid_from,omitempty"`
	ValidTo        string         `json:"valid_to,omitempty"`
	Workers        []string       `json:"workers,omitempty"`
	Renewals       []Renewal      `json:"renewals,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	Version        int64          `json:"version"`
}

// Renewal is one entry of a permit's renewal log.
type Renewal struct {
	Status      string `json:"status"`
	ValidFrom   string `json:"valid_from,omitempty"`
	ValidTo     string `json:"valid_to,omitempty"`
	RequestedBy string `json:"requested_by"`
	RequestedAt string `json:"requested_at"`
}

// Worker represents the API worker model (partial).
type Worker struct {
	ID      string         `json:"id"`
	Status  string         `json:"status"`
	Current map[string]any `json:"current,omitempty"`
	Pending map[string]any `json:"pending,omitempty"`
	Version int64          `json:"version"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login exchanges credentials for a bearer token and stores it on the client.
func (c *Client) Login(ctx context.Context, email, password string) error {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "v1/auth/login", map[string]any{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return err
	}
	c.BearerToken = resp.Token
	return nil
}

// CreatePermit files a new permit request.
func (c *Client) CreatePermit(ctx context.Context, workType string, fields map[string]any) (Permit, error) {
	body := map[string]any{"work_type": workType}
	for k, v := range fields {
		body[k] = v
	}
	var resp Permit
	err := c.do(ctx, http.MethodPost, "v1/permits", body, &resp)
	return resp, err
}

// GetPermit fetches a permit by id.
func (c *Client) GetPermit(ctx context.Context, id string) (Permit, error) {
	var resp Permit
	err := c.do(ctx, http.MethodGet, "v1/permits/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// PermitAction applies a workflow action. ifStatus, when non-empty, is the
// status the caller observed; a stale submission fails instead of firing twice.
func (c *Client) PermitAction(ctx context.Context, id, action, ifStatus string, fields map[string]any) (Permit, error) {
	body := map[string]any{"action": action}
	if ifStatus != "" {
		body["if_status"] = ifStatus
	}
	for k, v := range fields {
		body[k] = v
	}
	var resp Permit
	endpoint := fmt.Sprintf("v1/permits/%s/actions", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// RequestRenewal appends a renewal request to an active permit.
func (c *Client) RequestRenewal(ctx context.Context, id, validFrom, validTo string, fields map[string]any) (Permit, error) {
	body := map[string]any{"valid_from": validFrom, "valid_to": validTo}
	for k, v := range fields {
		body[k] = v
	}
	var resp Permit
	endpoint := fmt.Sprintf("v1/permits/%s/renewals", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// RenewalAction decides the open renewal entry.
func (c *Client) RenewalAction(ctx context.Context, id, action, reason string) (Permit, error) {
	body := map[string]any{"action": action}
	if reason != "" {
		body["reason"] = reason
	}
	var resp Permit
	endpoint := fmt.Sprintf("v1/permits/%s/renewals/actions", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// CreateWorker registers a worker credential.
func (c *Client) CreateWorker(ctx context.Context, name string, age int, fields map[string]any) (Worker, error) {
	body := map[string]any{"name": name, "age": age}
	for k, v := range fields {
		body[k] = v
	}
	var resp Worker
	err := c.do(ctx, http.MethodPost, "v1/workers", body, &resp)
	return resp, err
}

// WorkerAction decides a worker approval stage.
func (c *Client) WorkerAction(ctx context.Context, id, action, reason string) (Worker, error) {
	body := map[string]any{"action": action}
	if reason != "" {
		body["reason"] = reason
	}
	var resp Worker
	endpoint := fmt.Sprintf("v1/workers/%s/actions", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Events returns recent audit events, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v1/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
