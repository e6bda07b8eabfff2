package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/onsync/onsync/internal/observability"
	"github.com/onsync/onsync/internal/platform/httpx"
	"github.com/onsync/onsync/internal/shared"
)

// RequestIDHeader carries the correlation id on every outgoing call. Calls made
// while serving a request forward its chi request id.
const RequestIDHeader = "X-Request-ID"

// Repository defines the authentication API operations.
type Repository interface {
	Login(ctx context.Context, creds Credentials) (*LoginResult, error)
	Signup(ctx context.Context, req SignupRequest) (*SignupResult, error)
	Logout(ctx context.Context, token string) error
	Me(ctx context.Context, token string) (*Profile, error)
}

// APIError is a non-2xx answer from the authentication API.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth: %s: %s (status %d)", e.Op, e.Message, e.Status)
}

// Unwrap maps the status onto the shared sentinel errors.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized && e.Op == "login":
		return shared.ErrInvalidCredentials
	case e.Status == http.StatusUnauthorized:
		return shared.ErrUnauthenticated
	case e.Status == http.StatusForbidden:
		return httpx.ErrForbidden
	case e.Status == http.StatusNotFound:
		return shared.ErrNotFound
	case e.Status == http.StatusConflict:
		return httpx.ErrDuplicate
	case e.Status == http.StatusBadRequest:
		return httpx.ErrValidation
	case e.Status >= http.StatusInternalServerError:
		return shared.ErrUpstream
	}
	return nil
}

// Client wraps interactions with the authentication API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *observability.Metrics
}

// NewClient constructs a new client. A zero timeout defaults to ten seconds.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
	}
}

// Login exchanges credentials for a token and user.
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	var out LoginResult
	if err := c.do(ctx, "login", http.MethodPost, "/auth/login/", "", creds, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Signup creates an account with its first user.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (*SignupResult, error) {
	var out SignupResult
	if err := c.do(ctx, "signup", http.MethodPost, "/auth/signup/", "", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes token.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, "logout", http.MethodPost, "/auth/logout/", token, nil, nil)
}

// Me fetches the current user with its capability flags.
func (c *Client) Me(ctx context.Context, token string) (*Profile, error) {
	var out Profile
	if err := c.do(ctx, "me", http.MethodGet, "/auth/me/", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, op, method, path, token string, in, out any) (err error) {
	defer func() { c.metrics.ObserveUpstream(op, err) }()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("auth: %s: encode: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("auth: %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID(ctx))
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth: %s: %w: %w", op, shared.ErrUpstream, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return &APIError{Op: op, Status: resp.StatusCode, Message: errorMessage(op, resp)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("auth: %s: decode response: %w", op, err)
	}
	return nil
}

// errorMessage prefers the body's error, detail or message field.
func errorMessage(op string, resp *http.Response) string {
	var body struct {
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, msg := range []string{body.Error, body.Detail, body.Message} {
			if msg != "" {
				return msg
			}
		}
	}
	return fmt.Sprintf("%s failed", op)
}

var _ Repository = (*Client)(nil)

// requestID reuses the inbound request id so upstream logs correlate with ours.
func requestID(ctx context.Context) string {
	if id := middleware.GetReqID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}
