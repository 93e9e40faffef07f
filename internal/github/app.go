package github

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// Installation tokens last an hour; refresh before they expire.
const tokenRefreshMargin = 5 * time.Minute

// AppAuth authenticates as a GitHub App installation. It signs a short-lived
// JWT with the app's private key, exchanges it for an installation token, and
// caches the token until shortly before expiry.
type AppAuth struct {
	appID          int64
	installationID int64
	privateKey     *rsa.PrivateKey
	apiBase        string
	httpClient     *http.Client
	logger         zerolog.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewAppAuth creates app authentication from a PEM private key file.
func NewAppAuth(appID, installationID int64, privateKeyPath string, logger zerolog.Logger) (*AppAuth, error) {
	keyData, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	return NewAppAuthFromKeyBytes(appID, installationID, keyData, logger)
}

// NewAppAuthFromKeyBytes creates app authentication from PEM key bytes
// (useful for testing).
func NewAppAuthFromKeyBytes(appID, installationID int64, keyData []byte, logger zerolog.Logger) (*AppAuth, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(keyData)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return &AppAuth{
		appID:          appID,
		installationID: installationID,
		privateKey:     key,
		apiBase:        "https://api.github.com",
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		logger:         logger.With().Str("component", "github-app").Logger(),
	}, nil
}

// generateJWT creates a JWT for GitHub App authentication.
func (a *AppAuth) generateJWT() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		Issuer:    fmt.Sprintf("%d", a.appID),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(a.privateKey)
	if err != nil {
		return "", fmt.Errorf("signing JWT: %w", err)
	}
	return signed, nil
}

// InstallationToken returns a cached or freshly generated installation token.
func (a *AppAuth) InstallationToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && time.Now().Before(a.expiresAt.Add(-tokenRefreshMargin)) {
		a.logger.Debug().Msg("using cached installation token")
		return a.token, nil
	}

	a.logger.Info().Msg("generating new installation token")
	jwtToken, err := a.generateJWT()
	if err != nil {
		return "", fmt.Errorf("generating JWT: %w", err)
	}

	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", a.apiBase, a.installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+jwtToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting installation token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("installation token request failed (status %d): %s", resp.StatusCode, body)
	}

	var tokenResp struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}

	a.token = tokenResp.Token
	a.expiresAt = tokenResp.ExpiresAt
	return a.token, nil
}

// Transport returns a RoundTripper that injects the installation token into
// every request, refreshing it as needed.
func (a *AppAuth) Transport() http.RoundTripper {
	return &appTransport{auth: a, base: http.DefaultTransport}
}

type appTransport struct {
	auth *AppAuth
	base http.RoundTripper
}

func (t *appTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.auth.InstallationToken(req.Context())
	if err != nil {
		return nil, err
	}
	req2 := req.Clone(req.Context())
	req2.Header.Set("Authorization", "token "+token)
	return t.base.RoundTrip(req2)
}
