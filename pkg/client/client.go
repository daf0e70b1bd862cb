// Package client provides the Go SDK for the CertFSM certificate
// lifecycle service: domain registration, state machine introspection,
// raw transitions, and the orchestrated certificate operations.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DomainSummary is one entry of the domain listing.
type DomainSummary struct {
	Domain string `json:"domain"`
	State  string `json:"state"`
}

// TransitionRow is one row of the declared transition table. A Source of
// "*" marks a wildcard transition.
type TransitionRow struct {
	Trigger string `json:"trigger"`
	Source  string `json:"source"`
	Dest    string `json:"dest"`
}

// AvailableTransition is a transition that can fire from a given state.
type AvailableTransition struct {
	Trigger     string `json:"trigger"`
	Dest        string `json:"dest"`
	Description string `json:"description"`
}

// TransitionResult is the outcome of a raw transition.
type TransitionResult struct {
	Domain   string `json:"domain"`
	NewState string `json:"new_state"`
}

// OperationAck acknowledges a scheduled certificate operation. The
// operation itself completes later; its outcome is visible via Status.
type OperationAck struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	PreviousState string `json:"previous_state"`
}

// CertificateStatus is the synchronous status-check payload.
type CertificateStatus struct {
	Domain    string     `json:"domain"`
	IsValid   bool       `json:"is_valid"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at"`
	State     string     `json:"state"`
}

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("certfsm: %s (HTTP %d)", e.Message, e.StatusCode)
}

// Client is the CertFSM SDK entry point.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the request timeout on the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New creates a Client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL must not be empty")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateDomain registers a new domain; it starts in the unissued state.
func (c *Client) CreateDomain(ctx context.Context, domain string) (*DomainSummary, error) {
	var out DomainSummary
	if err := c.do(ctx, http.MethodPost, "/domains/"+domain, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListDomains returns every registered domain with its current state.
func (c *Client) ListDomains(ctx context.Context) ([]DomainSummary, error) {
	var out []DomainSummary
	if err := c.do(ctx, http.MethodGet, "/domains/", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// States returns the full lifecycle state set.
func (c *Client) States(ctx context.Context) ([]string, error) {
	var out struct {
		States []string `json:"states"`
	}
	if err := c.do(ctx, http.MethodGet, "/fsm/states", &out); err != nil {
		return nil, err
	}
	return out.States, nil
}

// Transitions returns the full declared transition table.
func (c *Client) Transitions(ctx context.Context) ([]TransitionRow, error) {
	var out struct {
		Transitions []TransitionRow `json:"transitions"`
	}
	if err := c.do(ctx, http.MethodGet, "/fsm/transitions", &out); err != nil {
		return nil, err
	}
	return out.Transitions, nil
}

// TransitionsFrom returns the transitions available from the given state.
func (c *Client) TransitionsFrom(ctx context.Context, state string) ([]AvailableTransition, error) {
	var out struct {
		State                string                `json:"state"`
		AvailableTransitions []AvailableTransition `json:"available_transitions"`
	}
	if err := c.do(ctx, http.MethodGet, "/fsm/transitions/"+state, &out); err != nil {
		return nil, err
	}
	return out.AvailableTransitions, nil
}

// ApplyTransition fires a raw state machine trigger against a domain.
func (c *Client) ApplyTransition(ctx context.Context, domain, event string) (*TransitionResult, error) {
	var out TransitionResult
	if err := c.do(ctx, http.MethodPost, "/domains/"+domain+"/transition/"+event, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Issue schedules certificate issuance for a domain.
func (c *Client) Issue(ctx context.Context, domain string) (*OperationAck, error) {
	return c.startOperation(ctx, "issue", domain)
}

// Renew schedules certificate renewal for a domain.
func (c *Client) Renew(ctx context.Context, domain string) (*OperationAck, error) {
	return c.startOperation(ctx, "renew", domain)
}

// Revoke schedules certificate revocation for a domain.
func (c *Client) Revoke(ctx context.Context, domain string) (*OperationAck, error) {
	return c.startOperation(ctx, "revoke", domain)
}

func (c *Client) startOperation(ctx context.Context, op, domain string) (*OperationAck, error) {
	var out OperationAck
	if err := c.do(ctx, http.MethodPost, "/certbot/"+op+"/"+domain, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status performs a synchronous certificate status check.
func (c *Client) Status(ctx context.Context, domain string) (*CertificateStatus, error) {
	var out CertificateStatus
	if err := c.do(ctx, http.MethodGet, "/certbot/status/"+domain, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do sends a request and decodes the JSON response into out. Non-2xx
// responses are returned as *APIError with the service's error message.
func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(body))
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
