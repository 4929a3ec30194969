package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/go-authgate/qbgate/internal/models"
)

const (
	grantAuthorizationCode = "authorization_code"
	grantRefreshToken      = "refresh_token"

	maxResponseBytes = 1 << 20
)

// OAuthProviderConfig contains configuration for the Intuit OAuth provider
type OAuthProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	AuthURL   string
	TokenURL  string
	RevokeURL string
	UserAgent string

	// Lifetimes assumed when a refresh response omits them.
	DefaultAccessTokenTTL  time.Duration
	DefaultRefreshTokenTTL time.Duration
}

// OAuthProvider talks to the Intuit authorization server. It never retries:
// a replayed refresh grant can invalidate the refresh token it carries.
type OAuthProvider struct {
	config     *oauth2.Config
	cfg        OAuthProviderConfig
	httpClient *http.Client
}

// NewIntuitProvider creates the provider. httpClient carries the transport
// and timeout policy; a nil client falls back to http.DefaultClient.
func NewIntuitProvider(cfg OAuthProviderConfig, httpClient *http.Client) *OAuthProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.DefaultAccessTokenTTL <= 0 {
		cfg.DefaultAccessTokenTTL = time.Hour
	}
	if cfg.DefaultRefreshTokenTTL <= 0 {
		cfg.DefaultRefreshTokenTTL = 24 * time.Hour
	}
	return &OAuthProvider{
		cfg:        cfg,
		httpClient: httpClient,
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
	}
}

// GetAuthURL returns the authorization URL an operator visits to grant
// consent: response_type=code, client_id, redirect_uri, scope and state.
func (p *OAuthProvider) GetAuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for the initial token set.
// The response must carry both tokens and both lifetimes.
func (p *OAuthProvider) ExchangeCode(ctx context.Context, code string) (*models.TokenResponse, error) {
	const op = "exchange"
	body, err := p.postForm(ctx, op, url.Values{
		"grant_type":   {grantAuthorizationCode},
		"code":         {code},
		"redirect_uri": {p.cfg.RedirectURL},
	})
	if err != nil {
		return nil, err
	}
	return parseTokenResponse(op, body, nil)
}

// RefreshToken runs the refresh grant. Missing lifetimes fall back to the
// configured defaults; a missing refresh_token leaves it empty so a merge
// keeps the stored one.
func (p *OAuthProvider) RefreshToken(ctx context.Context, refreshToken string) (*models.TokenResponse, error) {
	const op = "refresh"
	body, err := p.postForm(ctx, op, url.Values{
		"grant_type":    {grantRefreshToken},
		"refresh_token": {refreshToken},
	})
	if err != nil {
		return nil, err
	}
	return parseTokenResponse(op, body, &lifetimeDefaults{
		access:  int64(p.cfg.DefaultAccessTokenTTL / time.Second),
		refresh: int64(p.cfg.DefaultRefreshTokenTTL / time.Second),
	})
}

// Revoke invalidates a refresh or access token at Intuit.
func (p *OAuthProvider) Revoke(ctx context.Context, token string) error {
	const op = "revoke"
	payload, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.RevokeURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = p.do(req, op)
	return err
}

func (p *OAuthProvider) postForm(ctx context.Context, op string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return p.do(req, op)
}

func (p *OAuthProvider) do(req *http.Request, op string) ([]byte, error) {
	req.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)
	req.Header.Set("Accept", "application/json")
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &TransientNetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransientNetworkError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, &TransientNetworkError{
			Op:  op,
			Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, preview(body)),
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		perr := &ProviderError{Op: op, StatusCode: resp.StatusCode}
		var oe struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		if json.Unmarshal(body, &oe) == nil && oe.Error != "" {
			perr.Code, perr.Description = oe.Error, oe.Description
		} else {
			perr.Description = preview(body)
		}
		return nil, perr
	}
	return body, nil
}

// IsTimeout reports whether err was caused by a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// RealmFromIDToken reads the realmid claim from an Intuit id_token without
// verifying it. Only use the result as a display hint.
func RealmFromIDToken(idToken string) string {
	if idToken == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return ""
	}
	realm, _ := claims["realmid"].(string)
	return realm
}

// preview truncates error bodies for messages. Success bodies carry tokens
// and must never be passed here.
func preview(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
