package bootstrap

import (
	"fmt"

	"github.com/go-authgate/qbgate/internal/auth"
	"github.com/go-authgate/qbgate/internal/client"
	"github.com/go-authgate/qbgate/internal/config"
	"github.com/go-authgate/qbgate/internal/metrics"
	"github.com/go-authgate/qbgate/internal/quickbooks"
)

// initializeOAuthProvider builds the Intuit OAuth client. Its HTTP client
// never retries; each token endpoint call is a single attempt bounded by
// REFRESH_TIMEOUT.
func initializeOAuthProvider(cfg *config.Config) (*auth.OAuthProvider, error) {
	httpClient, err := client.CreateTokenClient(cfg.RefreshTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create token endpoint client: %w", err)
	}

	return auth.NewIntuitProvider(auth.OAuthProviderConfig{
		ClientID:               cfg.ClientID,
		ClientSecret:           cfg.ClientSecret,
		RedirectURL:            cfg.RedirectURI,
		Scopes:                 cfg.Scopes,
		AuthURL:                cfg.AuthURL,
		TokenURL:               cfg.TokenURL,
		RevokeURL:              cfg.RevokeURL,
		UserAgent:              cfg.UserAgent,
		DefaultAccessTokenTTL:  cfg.DefaultAccessTokenTTL,
		DefaultRefreshTokenTTL: cfg.DefaultRefreshTokenTTL,
	}, httpClient), nil
}

// initializeQuickBooksClient builds the data API client with retries.
func initializeQuickBooksClient(cfg *config.Config, m metrics.Recorder) (*quickbooks.Client, error) {
	retryClient, err := client.CreateRetryClient(
		cfg.APITimeout,
		cfg.APIMaxRetries,
		cfg.APIRetryDelay,
		cfg.APIMaxRetryDelay,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create QuickBooks API client: %w", err)
	}
	return quickbooks.NewClient(retryClient, cfg.APIBaseURL, cfg.APIMinorVersion, m), nil
}
