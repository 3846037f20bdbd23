// Package identity wraps the external identity provider. The dashboard
// consumes exactly one claim from it: role == "admin".
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const RoleAdmin = "admin"

// ErrInvalidCredentials lets the login surface distinguish a wrong
// email/password from a generic provider failure.
var ErrInvalidCredentials = errors.New("invalid credentials")

type Claims struct {
	Role string `json:"role"`
}

func (c Claims) IsAdmin() bool { return c.Role == RoleAdmin }

type Session struct {
	Token  string `json:"token"`
	Email  string `json:"email"`
	Claims Claims `json:"claims"`
}

// Client is the identity-provider boundary. Verify refreshes the token's
// claims so a freshly granted admin role is observed.
type Client interface {
	SignInPassword(ctx context.Context, email, password string) (Session, error)
	SignInProviderToken(ctx context.Context, provider, token string) (Session, error)
	Verify(ctx context.Context, token string) (Session, error)
	SignOut(ctx context.Context, token string) error
}

// HTTPClient talks to the provider's REST endpoint.
type HTTPClient struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

func NewHTTPClient(endpoint, apiKey string) *HTTPClient {
	return &HTTPClient{Endpoint: endpoint, APIKey: apiKey, Client: &http.Client{Timeout: 5 * time.Second}}
}

func (c *HTTPClient) SignInPassword(ctx context.Context, email, password string) (Session, error) {
	return c.post(ctx, "/v1/sessions:password", map[string]string{"email": email, "password": password})
}

func (c *HTTPClient) SignInProviderToken(ctx context.Context, provider, token string) (Session, error) {
	return c.post(ctx, "/v1/sessions:federated", map[string]string{"provider": provider, "token": token})
}

func (c *HTTPClient) Verify(ctx context.Context, token string) (Session, error) {
	return c.post(ctx, "/v1/sessions:verify", map[string]string{"token": token, "refreshClaims": "true"})
}

func (c *HTTPClient) SignOut(ctx context.Context, token string) error {
	_, err := c.post(ctx, "/v1/sessions:revoke", map[string]string{"token": token})
	if errors.Is(err, ErrInvalidCredentials) {
		// Revoking an already-dead token is a no-op, not a failure.
		return nil
	}
	return err
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any) (Session, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Session{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+path, bytes.NewReader(body))
	if err != nil {
		return Session{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return Session{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var sess Session
		if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
			return Session{}, err
		}
		return sess, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest:
		var e struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Code == "INVALID_CREDENTIALS" || resp.StatusCode == http.StatusUnauthorized {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("identity provider rejected request: %s", e.Message)
	default:
		return Session{}, fmt.Errorf("identity provider returned status %d", resp.StatusCode)
	}
}
