// internal/common/auth/keycloak.go
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"ctp-notifications/internal/common/errors"
)

// KeycloakClient validates caller tokens and manages company employee accounts.
type KeycloakClient struct {
	baseURL      string
	realm        string
	clientID     string
	clientSecret string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// User represents a user in Keycloak.
type User struct {
	ID            string              `json:"id,omitempty"`
	Email         string              `json:"email"`
	FirstName     string              `json:"firstName"`
	LastName      string              `json:"lastName"`
	Username      string              `json:"username"`
	Enabled       bool                `json:"enabled"`
	EmailVerified bool                `json:"emailVerified"`
	Attributes    map[string][]string `json:"attributes,omitempty"`
}

// TokenResponse holds the response from Keycloak's token endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// TokenInfo holds the fields of the introspection response the API relies on.
type TokenInfo struct {
	Active   bool   `json:"active"`
	Sub      string `json:"sub,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	Exp      int64  `json:"exp,omitempty"`
}

func NewKeycloakClient(baseURL, realm, clientID, clientSecret string, timeout time.Duration) *KeycloakClient {
	return NewKeycloakClientWithHTTP(baseURL, realm, clientID, clientSecret, &http.Client{Timeout: timeout})
}

func NewKeycloakClientWithHTTP(baseURL, realm, clientID, clientSecret string, httpClient *http.Client) *KeycloakClient {
	return &KeycloakClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
	}
}

// getAccessToken returns a service account token, fetching a new one when the cached one
// expires within 30 seconds.
func (k *KeycloakClient) getAccessToken(ctx context.Context) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.accessToken != "" && time.Until(k.tokenExpiry) > 30*time.Second {
		return k.accessToken, nil
	}

	tokenURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", k.baseURL, k.realm)

	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", k.clientID)
	data.Set("client_secret", k.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("keycloak token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	k.accessToken = tokenResp.AccessToken
	k.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)

	return k.accessToken, nil
}

func (k *KeycloakClient) adminRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	token, err := k.getAccessToken(ctx)
	if err != nil {
		return nil, errors.NewExternalServiceError("keycloak", err)
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, errors.NewInputParsingError(err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, fmt.Sprintf("%s/admin/realms/%s%s", k.baseURL, k.realm, path), reader)
	if err != nil {
		return nil, errors.NewExternalServiceError("keycloak", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewExternalServiceError("keycloak", err)
	}
	return resp, nil
}

func (k *KeycloakClient) apiError(resp *http.Response, operation string) *errors.StandardError {
	body, _ := io.ReadAll(resp.Body)
	stdErr := errors.NewExternalServiceError("keycloak",
		fmt.Errorf("%s: status %d: %s", operation, resp.StatusCode, string(body)))
	stdErr.Retryable = isTransientHTTPError(resp.StatusCode)
	return stdErr.WithMetadata("status", resp.StatusCode)
}

// CreateUser creates a new user and returns it with the id from the Location header.
func (k *KeycloakClient) CreateUser(ctx context.Context, user *User) (*User, error) {
	if user.Username == "" {
		user.Username = user.Email
	}

	resp, err := k.adminRequest(ctx, http.MethodPost, "/users", user)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, k.apiError(resp, "create user")
	}

	if location := resp.Header.Get("Location"); location != "" {
		parts := strings.Split(location, "/")
		user.ID = parts[len(parts)-1]
	}

	return user, nil
}

// GetUserByEmail returns nil, nil when no user has that email.
func (k *KeycloakClient) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	resp, err := k.adminRequest(ctx, http.MethodGet, "/users?exact=true&email="+url.QueryEscape(email), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, k.apiError(resp, "search user")
	}

	var users []User
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil, errors.NewExternalServiceError("keycloak", fmt.Errorf("decode user search: %w", err))
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

// DeleteUser deletes a user by their unique ID.
func (k *KeycloakClient) DeleteUser(ctx context.Context, userID string) error {
	resp, err := k.adminRequest(ctx, http.MethodDelete, "/users/"+url.PathEscape(userID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return k.apiError(resp, "delete user")
	}
	return nil
}

// ValidateToken introspects a caller's bearer token.
func (k *KeycloakClient) ValidateToken(ctx context.Context, token string) (*TokenInfo, error) {
	introspectURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token/introspect", k.baseURL, k.realm)

	data := url.Values{}
	data.Set("token", token)
	data.Set("token_type_hint", "access_token")
	data.Set("client_id", k.clientID)
	data.Set("client_secret", k.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, introspectURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, errors.NewExternalServiceError("keycloak", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewExternalServiceError("keycloak", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, k.apiError(resp, "introspect token")
	}

	var tokenInfo TokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&tokenInfo); err != nil {
		return nil, errors.NewExternalServiceError("keycloak", fmt.Errorf("decode introspection: %w", err))
	}

	if !tokenInfo.Active || tokenInfo.Sub == "" {
		return nil, errors.NewAuthenticationError("token is expired, revoked or malformed")
	}

	return &tokenInfo, nil
}

func isTransientHTTPError(statusCode int) bool {
	switch statusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
