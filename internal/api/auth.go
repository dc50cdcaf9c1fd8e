package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"order-saga-client/internal/config"
)

// expiryBuffer is subtracted from token lifetimes so tokens are renewed early
const expiryBuffer = 5 * time.Minute

// TokenResponse represents the OAuth token response
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// AuthManager fetches and caches bearer tokens for the order backend
type AuthManager struct {
	config      *config.OAuthConfig
	httpClient  *http.Client
	token       string
	tokenExpiry time.Time
	mu          sync.RWMutex
	now         func() time.Time
}

// NewAuthManager creates a new authentication manager
func NewAuthManager(cfg *config.OAuthConfig, timeout time.Duration) *AuthManager {
	return &AuthManager{
		config: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

// GetToken returns a cached token while it is valid, otherwise requests a new one
func (am *AuthManager) GetToken(ctx context.Context) (string, error) {
	am.mu.RLock()
	if am.token != "" && am.now().Before(am.tokenExpiry) {
		token := am.token
		am.mu.RUnlock()
		return token, nil
	}
	am.mu.RUnlock()

	return am.generateToken(ctx)
}

func (am *AuthManager) generateToken(ctx context.Context) (string, error) {
	am.mu.Lock()
	defer am.mu.Unlock()

	// another caller may have refreshed while we waited for the lock
	if am.token != "" && am.now().Before(am.tokenExpiry) {
		return am.token, nil
	}

	formData := url.Values{}
	formData.Set("grant_type", am.config.GrantType)
	formData.Set("client_id", am.config.ClientID)
	if am.config.Username != "" {
		formData.Set("username", am.config.Username)
		formData.Set("password", am.config.Password)
	}
	if am.config.ClientSecret != "" {
		formData.Set("client_secret", am.config.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, am.config.TokenURL, strings.NewReader(formData.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := am.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp TokenResponse
	if err := parseJSONResponse(resp.Body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("no access token in response")
	}

	am.token = tokenResp.AccessToken
	am.tokenExpiry = am.expiryFor(tokenResp)

	return am.token, nil
}

// expiryFor uses expires_in when present, else the JWT exp claim. A token
// with neither is used for this request only.
func (am *AuthManager) expiryFor(tr TokenResponse) time.Time {
	now := am.now()
	if tr.ExpiresIn > 0 {
		lifetime := time.Duration(tr.ExpiresIn) * time.Second
		if lifetime > expiryBuffer {
			lifetime -= expiryBuffer
		}
		return now.Add(lifetime)
	}

	if exp, ok := jwtExpiry(tr.AccessToken); ok {
		if exp.Sub(now) > expiryBuffer {
			return exp.Add(-expiryBuffer)
		}
		return exp
	}
	return now
}

// jwtExpiry reads the exp claim without verifying the signature
func jwtExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// ClearToken clears the cached token
func (am *AuthManager) ClearToken() {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.token = ""
	am.tokenExpiry = time.Time{}
}

func parseJSONResponse(r io.Reader, target interface{}) error {
	return json.NewDecoder(r).Decode(target)
}
