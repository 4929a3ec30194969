package auth

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks across the token endpoint errors.
var (
	ErrTokenEndpoint     = errors.New("token endpoint request failed")
	ErrMalformedResponse = errors.New("malformed token response")
)

// TransientNetworkError is a timeout, connection failure or 5xx from the
// token endpoint. The caller cannot tell it apart from a revoked grant.
type TransientNetworkError struct {
	Op  string
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("%s: network failure: %v", e.Op, e.Err)
}

func (e *TransientNetworkError) Unwrap() []error { return []error{ErrTokenEndpoint, e.Err} }

func (e *TransientNetworkError) Kind() string { return "transient_network" }

// ProviderError is an OAuth error response (4xx), e.g. invalid_grant.
type ProviderError struct {
	Op          string
	StatusCode  int
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: provider returned HTTP %d", e.Op, e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return ErrTokenEndpoint }

func (e *ProviderError) Kind() string { return "provider_error" }

// MalformedResponseError reports a 2xx token payload that is missing a
// required field or carries it with the wrong type.
type MalformedResponseError struct {
	Op     string
	Field  string
	Reason string
}

func (e *MalformedResponseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: malformed token response: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s: malformed token response: %s %s", e.Op, e.Field, e.Reason)
}

func (e *MalformedResponseError) Unwrap() error { return ErrMalformedResponse }

func (e *MalformedResponseError) Kind() string { return "malformed_response" }
