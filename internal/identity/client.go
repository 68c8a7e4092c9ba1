// Package identity talks to the remote residential-management identity API.
// This service never checks credentials itself; it only forwards them.
package identity

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

	"QLDCwebserver/internal/domain"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

type Client struct {
	baseURL *url.URL
	client  *http.Client
}

func NewClient(baseURL *url.URL, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: baseURL, client: httpClient}
}

type loginRequest struct {
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	User      struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Email    string `json:"email"`
		FullName string `json:"fullName"`
		Role     string `json:"role"`
	} `json:"user"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// IsEmail reports whether a login identifier names an email address rather
// than a username.
func IsEmail(identifier string) bool {
	return strings.Contains(identifier, "@")
}

// Login forwards the credentials to POST /auth/login. A rejection by the
// remote API is reported as domain.ErrInvalidCredentials; anything else that
// goes wrong wraps domain.ErrUpstream.
func (c *Client) Login(ctx context.Context, identifier, password string) (domain.LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	req := loginRequest{Password: password}
	if IsEmail(identifier) {
		req.Email = strings.ToLower(identifier)
	} else {
		req.Username = identifier
	}

	body, err := json.Marshal(req)
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("encode login request: %w", err)
	}

	endpoint := c.baseURL.JoinPath("auth", "login")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("build login request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("%w: login request: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("%w: read login response: %v", domain.ErrUpstream, err)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return domain.LoginResult{}, rejection(raw)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return domain.LoginResult{}, fmt.Errorf("%w: login: status %d", domain.ErrUpstream, resp.StatusCode)
	}

	var out loginResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.LoginResult{}, fmt.Errorf("%w: decode login response: %v", domain.ErrUpstream, err)
	}
	if out.Token == "" {
		return domain.LoginResult{}, fmt.Errorf("%w: login response without token", domain.ErrUpstream)
	}

	return domain.LoginResult{
		Token:     out.Token,
		ExpiresAt: out.ExpiresAt,
		User: domain.User{
			ID:          out.User.ID,
			Username:    out.User.Username,
			Email:       out.User.Email,
			DisplayName: out.User.FullName,
			Role:        ParseRole(out.User.Role),
		},
	}, nil
}

func rejection(raw []byte) error {
	var e errorResponse
	if err := json.Unmarshal(raw, &e); err == nil && e.Message != "" {
		return fmt.Errorf("%w: %s", domain.ErrInvalidCredentials, e.Message)
	}
	return domain.ErrInvalidCredentials
}

// ParseRole maps the role names used by the remote API onto domain roles.
// Unknown roles map to the empty role.
func ParseRole(s string) domain.Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "leader", "to_truong", "totruong":
		return domain.RoleLeader
	case "resident", "cu_dan", "cudan":
		return domain.RoleResident
	default:
		return ""
	}
}
