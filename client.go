package gatekeeper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/layer-3/gatekeeper/core"
	"go.uber.org/zap"
)

const (
	defaultTimeout  = 15 * time.Second
	maxResponseSize = 1 << 20
)

// User is the account view returned by the server
type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone,omitempty"`
	Role            core.Role `json:"role"`
	IsActive        bool      `json:"isActive"`
	IsEmailVerified bool      `json:"isEmailVerified"`
	CreatedAt       time.Time `json:"createdAt"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
}

type sessionResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	User         *User  `json:"user"`
}

// HTTPClient talks to the gatekeeper HTTP API and keeps the token pair
// fresh. An access token rejected as expired triggers exactly one refresh
// and one retry.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	store      TokenStore
	session    *Session
	logger     *zap.Logger

	refreshMu sync.Mutex
}

var _ Client = (*HTTPClient)(nil)

type Option func(*HTTPClient)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.httpClient = hc }
}

func WithTokenStore(store TokenStore) Option {
	return func(c *HTTPClient) { c.store = store }
}

func WithLogger(lg *zap.Logger) Option {
	return func(c *HTTPClient) { c.logger = lg }
}

// NewHTTPClient creates a client for the server at baseURL. Tokens live in
// memory unless WithTokenStore says otherwise.
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		store:      NewMemoryTokenStore(),
		session:    NewSession(StateAnonymous),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Resume picks up tokens a previous process left in the store.
func (c *HTTPClient) Resume(ctx context.Context) error {
	if _, err := c.store.Load(ctx); err != nil {
		if errors.Is(err, ErrNoTokens) {
			return ErrNotAuthenticated
		}
		return err
	}
	_, err := c.session.apply(eventSignedIn)
	return err
}

func (c *HTTPClient) State() SessionState {
	return c.session.State()
}

func (c *HTTPClient) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	return c.signIn(ctx, "/api/auth/register", req)
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (*User, error) {
	return c.signIn(ctx, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

func (c *HTTPClient) signIn(ctx context.Context, path string, body any) (*User, error) {
	var resp sessionResponse
	if err := c.send(ctx, http.MethodPost, path, body, &resp, ""); err != nil {
		return nil, err
	}
	if err := c.store.Save(ctx, Tokens{Access: resp.Token, Refresh: resp.RefreshToken}); err != nil {
		return nil, err
	}
	if _, err := c.session.apply(eventSignedIn); err != nil {
		return nil, err
	}
	return resp.User, nil
}

// Refresh rotates the stored token pair.
func (c *HTTPClient) Refresh(ctx context.Context) error {
	return c.refresh(ctx, "")
}

// refresh exchanges the stored refresh token for a new pair. When stale is
// set and the store already holds a different refresh token, a concurrent
// call has rotated the pair and nothing is sent.
func (c *HTTPClient) refresh(ctx context.Context, stale string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	tokens, err := c.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoTokens) {
			return ErrNotAuthenticated
		}
		return err
	}
	if stale != "" && tokens.Refresh != stale {
		return nil
	}
	_, _ = c.session.apply(eventAccessExpired)

	var resp sessionResponse
	err = c.send(ctx, http.MethodPost, "/api/auth/refresh-token", map[string]string{"refreshToken": tokens.Refresh}, &resp, "")
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
			return err
		}
		c.logger.Info("refresh rejected, signing out", zap.String("code", apiErr.Code))
		if clearErr := c.store.Clear(ctx); clearErr != nil {
			c.logger.Warn("failed to clear tokens", zap.Error(clearErr))
		}
		_, _ = c.session.apply(eventRefreshFailed)
		return fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}

	if err := c.store.Save(ctx, Tokens{Access: resp.Token, Refresh: resp.RefreshToken}); err != nil {
		return err
	}
	_, err = c.session.apply(eventRefreshed)
	return err
}

// Logout asks the server to revoke the pair and forgets it locally even
// when the server cannot be reached.
func (c *HTTPClient) Logout(ctx context.Context) error {
	tokens, err := c.store.Load(ctx)
	switch {
	case errors.Is(err, ErrNoTokens):
	case err != nil:
		return err
	default:
		body := map[string]string{"refreshToken": tokens.Refresh}
		if err := c.send(ctx, http.MethodPost, "/api/auth/logout", body, nil, tokens.Access); err != nil {
			c.logger.Warn("server logout failed", zap.Error(err))
		}
	}

	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	_, err = c.session.apply(eventSignedOut)
	return err
}

// Do sends an authenticated JSON request and decodes the response into out.
func (c *HTTPClient) Do(ctx context.Context, method, path string, body, out any) error {
	tokens, err := c.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoTokens) {
			return ErrNotAuthenticated
		}
		return err
	}

	err = c.send(ctx, method, path, body, out, tokens.Access)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.TokenExpired() {
		return err
	}

	if err := c.refresh(ctx, tokens.Refresh); err != nil {
		return err
	}
	tokens, err = c.store.Load(ctx)
	if err != nil {
		return err
	}
	return c.send(ctx, method, path, body, out, tokens.Access)
}

func (c *HTTPClient) send(ctx context.Context, method, path string, body, out any, access string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
