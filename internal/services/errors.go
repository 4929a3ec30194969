package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-authgate/qbgate/internal/auth"
	"github.com/go-authgate/qbgate/internal/quickbooks"
	"github.com/go-authgate/qbgate/internal/report"
)

// Error kinds exposed to HTTP callers.
const (
	KindNoToken           = "no_token"
	KindReauthRequired    = "reauth_required"
	KindRefreshFailed     = "refresh_failed"
	KindMalformedResponse = "malformed_response"
	KindAccessDenied      = "access_denied"
	KindInvalidCallback   = "invalid_callback"
	KindExchangeFailed    = "exchange_failed"
	KindRevokeFailed      = "revoke_failed"
	KindInvalidRequest    = "invalid_request"
	KindUpstream          = "quickbooks_error"
	KindInternal          = "internal"
)

// ErrEmailRequired is returned by customer lookups without an address.
var ErrEmailRequired = errors.New("email is required")

// NoTokenError means no credential has ever been issued. An operator has to
// run the authorization flow; AuthURL is set when one could be prepared.
type NoTokenError struct {
	AuthURL string
}

func (e *NoTokenError) Error() string {
	return "no QuickBooks token has been issued; authorization required"
}

func (e *NoTokenError) Kind() string    { return KindNoToken }
func (e *NoTokenError) StatusCode() int { return http.StatusUnauthorized }

// ReauthRequiredError means the refresh token is expired, missing or was
// rejected. Step names where the lifecycle gave up.
type ReauthRequiredError struct {
	AuthURL string
	Step    string
	Cause   error
}

func (e *ReauthRequiredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("re-authorization required (%s): %v", e.Step, e.Cause)
	}
	return fmt.Sprintf("re-authorization required (%s)", e.Step)
}

func (e *ReauthRequiredError) Unwrap() error   { return e.Cause }
func (e *ReauthRequiredError) Kind() string    { return KindReauthRequired }
func (e *ReauthRequiredError) StatusCode() int { return http.StatusUnauthorized }

// RefreshFailedError is a fault outside the token endpoint, such as the
// store failing to load or persist the record.
type RefreshFailedError struct {
	Step  string
	Cause error
}

func (e *RefreshFailedError) Error() string {
	return fmt.Sprintf("token refresh failed at %s: %v", e.Step, e.Cause)
}

func (e *RefreshFailedError) Unwrap() error   { return e.Cause }
func (e *RefreshFailedError) Kind() string    { return KindRefreshFailed }
func (e *RefreshFailedError) StatusCode() int { return http.StatusInternalServerError }

// AuthorizationDeniedError is an error= redirect from the consent screen.
type AuthorizationDeniedError struct {
	Code        string
	Description string
}

func (e *AuthorizationDeniedError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization denied: %s: %s", e.Code, e.Description)
	}
	return "authorization denied: " + e.Code
}

func (e *AuthorizationDeniedError) Kind() string    { return KindAccessDenied }
func (e *AuthorizationDeniedError) StatusCode() int { return http.StatusBadRequest }

// InvalidCallbackError rejects a callback with a missing code or a state
// that is unknown, expired or already used.
type InvalidCallbackError struct {
	Reason string
	Cause  error
}

func (e *InvalidCallbackError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid authorization callback: %s: %v", e.Reason, e.Cause)
	}
	return "invalid authorization callback: " + e.Reason
}

func (e *InvalidCallbackError) Unwrap() error   { return e.Cause }
func (e *InvalidCallbackError) Kind() string    { return KindInvalidCallback }
func (e *InvalidCallbackError) StatusCode() int { return http.StatusBadRequest }

// ExchangeFailedError wraps a failed authorization-code exchange or the
// failure to persist its result.
type ExchangeFailedError struct {
	Step  string
	Cause error
}

func (e *ExchangeFailedError) Error() string {
	return fmt.Sprintf("authorization code exchange failed at %s: %v", e.Step, e.Cause)
}

func (e *ExchangeFailedError) Unwrap() error   { return e.Cause }
func (e *ExchangeFailedError) Kind() string    { return KindExchangeFailed }
func (e *ExchangeFailedError) StatusCode() int { return http.StatusInternalServerError }

type RevokeFailedError struct {
	Cause error
}

func (e *RevokeFailedError) Error() string   { return fmt.Sprintf("token revocation failed: %v", e.Cause) }
func (e *RevokeFailedError) Unwrap() error   { return e.Cause }
func (e *RevokeFailedError) Kind() string    { return KindRevokeFailed }
func (e *RevokeFailedError) StatusCode() int { return http.StatusBadGateway }

type statusCoder interface {
	StatusCode() int
}

// HTTPStatus maps an error to the status an HTTP caller should see.
func HTTPStatus(err error) int {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	if errors.Is(err, ErrEmailRequired) || errors.Is(err, quickbooks.ErrMissingRealm) {
		return http.StatusBadRequest
	}
	var apiErr *quickbooks.APIError
	if errors.As(err, &apiErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Kind returns the machine-readable kind of err.
func Kind(err error) string {
	// Taxonomy errors first: they may wrap a provider error with its own kind.
	var sc statusCoder
	if errors.As(err, &sc) {
		if k, ok := sc.(report.Kinded); ok {
			return k.Kind()
		}
	}
	var malformed *auth.MalformedResponseError
	if errors.As(err, &malformed) {
		return KindMalformedResponse
	}
	if errors.Is(err, ErrEmailRequired) || errors.Is(err, quickbooks.ErrMissingRealm) {
		return KindInvalidRequest
	}
	var apiErr *quickbooks.APIError
	if errors.As(err, &apiErr) {
		return KindUpstream
	}
	return KindInternal
}

// AuthURL extracts the re-authorization URL carried by err, if any.
func AuthURL(err error) string {
	var reauth *ReauthRequiredError
	if errors.As(err, &reauth) {
		return reauth.AuthURL
	}
	var noToken *NoTokenError
	if errors.As(err, &noToken) {
		return noToken.AuthURL
	}
	return ""
}
