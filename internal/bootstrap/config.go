package bootstrap

import (
	"fmt"
	"net/url"

	"github.com/go-authgate/qbgate/internal/config"
)

// validateAllConfiguration validates all configuration settings
func validateAllConfiguration(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := validateRedirectURI(cfg.RedirectURI); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// validateRedirectURI requires an absolute http(s) URL. Intuit compares it
// byte for byte against the redirect registered for the app.
func validateRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("QB_REDIRECT_URI: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("QB_REDIRECT_URI must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("QB_REDIRECT_URI must be absolute, got %q", raw)
	}
	return nil
}
