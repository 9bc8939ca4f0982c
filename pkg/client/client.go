// Package client is the Go SDK for the Sentra API. It drives the credential
// ceremonies, keeps the session token and sign counter, and submits
// behavioral event batches.
package client

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sentra: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Event is one behavioral event in a batch.
type Event struct {
	Type      string                 `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp float64                `json:"timestamp"`
}

// BatchResult is the server's verdict on a submitted batch.
type BatchResult struct {
	EventsAccepted int     `json:"eventsAccepted"`
	Evaluated      bool    `json:"evaluated"`
	TrustScore     float64 `json:"trustScore"`
	Status         string  `json:"status"`
	Action         string  `json:"action"`
	Message        string  `json:"message"`
	RequireStepUp  bool    `json:"requireStepUp"`
}

// TrustStatus is the current standing of the session.
type TrustStatus struct {
	SessionID     string  `json:"sessionId"`
	TrustScore    float64 `json:"trustScore"`
	Status        string  `json:"status"`
	Action        string  `json:"action"`
	Message       string  `json:"message"`
	RequireStepUp bool    `json:"requireStepUp"`
}

// Client talks to one Sentra deployment on behalf of one user.
type Client struct {
	baseURL    string
	httpClient *http.Client

	key     []byte
	token   string
	counter uint32
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithKey resumes an existing credential. counter must be the last sign
// count the server accepted.
func WithKey(key []byte, counter uint32) Option {
	return func(c *Client) {
		c.key = key
		c.counter = counter
	}
}

// New creates a client for the given base URL (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key returns the authenticator key material. Persist it to log in again
// later; it is generated during Register.
func (c *Client) Key() []byte {
	return c.key
}

// Counter returns the current sign counter. Persist alongside the key.
func (c *Client) Counter() uint32 {
	return c.counter
}

// Token returns the session token after a successful Login.
func (c *Client) Token() string {
	return c.token
}

// sign computes the challenge response the server expects.
func (c *Client) sign(challenge []byte) []byte {
	mac := hmac.New(sha256.New, c.key)
	mac.Write(challenge)
	return mac.Sum(nil)
}

// Register creates a new account. A fresh authenticator key is generated
// unless one was provided with WithKey.
func (c *Client) Register(ctx context.Context, username, displayName string) error {
	if c.key == nil {
		c.key = make([]byte, 32)
		if _, err := rand.Read(c.key); err != nil {
			return fmt.Errorf("generate key: %w", err)
		}
	}

	var begin struct {
		Challenge string `json:"challenge"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/register/begin", map[string]string{
		"username": username,
	}, &begin, false)
	if err != nil {
		return err
	}

	nonce, err := base64.StdEncoding.DecodeString(begin.Challenge)
	if err != nil {
		return fmt.Errorf("decode challenge: %w", err)
	}

	err = c.do(ctx, http.MethodPost, "/api/v1/auth/register/complete", map[string]string{
		"username":    username,
		"displayName": displayName,
		"key":         base64.StdEncoding.EncodeToString(c.key),
		"signature":   base64.StdEncoding.EncodeToString(c.sign(nonce)),
	}, nil, false)
	if err != nil {
		return err
	}
	c.counter = 1
	return nil
}

// Login starts a session. The client must hold the account's key, either
// from Register or WithKey.
func (c *Client) Login(ctx context.Context, username string) error {
	if c.key == nil {
		return fmt.Errorf("sentra: no authenticator key (call Register or use WithKey)")
	}

	var begin struct {
		Challenge string `json:"challenge"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login/begin", map[string]string{
		"username": username,
	}, &begin, false)
	if err != nil {
		return err
	}

	nonce, err := base64.StdEncoding.DecodeString(begin.Challenge)
	if err != nil {
		return fmt.Errorf("decode challenge: %w", err)
	}

	next := c.counter + 1
	var out struct {
		Token string `json:"token"`
	}
	err = c.do(ctx, http.MethodPost, "/api/v1/auth/login/complete", map[string]interface{}{
		"username":  username,
		"signature": base64.StdEncoding.EncodeToString(c.sign(nonce)),
		"counter":   next,
	}, &out, false)
	if err != nil {
		return err
	}
	c.counter = next
	c.token = out.Token
	return nil
}

// SubmitEvents sends a behavioral event batch for evaluation.
func (c *Client) SubmitEvents(ctx context.Context, events []Event) (*BatchResult, error) {
	var result BatchResult
	err := c.do(ctx, http.MethodPost, "/api/v1/events", map[string]interface{}{
		"events": events,
	}, &result, true)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Trust returns the session's current trust standing.
func (c *Client) Trust(ctx context.Context) (*TrustStatus, error) {
	var status TrustStatus
	if err := c.do(ctx, http.MethodGet, "/api/v1/trust", nil, &status, true); err != nil {
		return nil, err
	}
	return &status, nil
}

// Evaluate forces a trust evaluation of the current window.
func (c *Client) Evaluate(ctx context.Context) (*BatchResult, error) {
	var result BatchResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/trust/evaluate", nil, &result, true); err != nil {
		return nil, err
	}
	return &result, nil
}

// StepUp runs the re-authentication ceremony, restoring full trust on
// success.
func (c *Client) StepUp(ctx context.Context) error {
	var begin struct {
		Challenge string `json:"challenge"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/stepup/begin", nil, &begin, true); err != nil {
		return err
	}

	nonce, err := base64.StdEncoding.DecodeString(begin.Challenge)
	if err != nil {
		return fmt.Errorf("decode challenge: %w", err)
	}

	next := c.counter + 1
	err = c.do(ctx, http.MethodPost, "/api/v1/stepup/complete", map[string]interface{}{
		"signature": base64.StdEncoding.EncodeToString(c.sign(nonce)),
		"counter":   next,
	}, nil, true)
	if err != nil {
		return err
	}
	c.counter = next
	return nil
}

// Logout terminates the session.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil, true); err != nil {
		return err
	}
	c.token = ""
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, authed bool) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if authed {
		if c.token == "" {
			return fmt.Errorf("sentra: not logged in")
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = "unexpected_status"
			apiErr.Message = string(data)
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
