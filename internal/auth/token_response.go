package auth

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/go-authgate/qbgate/internal/models"
)

type lifetimeDefaults struct {
	access, refresh int64
}

// parseTokenResponse validates the payload shape before anything is trusted.
// With defaults nil every required field must be present (code exchange);
// otherwise absent lifetimes take the defaults and refresh_token may be absent.
func parseTokenResponse(op string, body []byte, defaults *lifetimeDefaults) (*models.TokenResponse, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return nil, &MalformedResponseError{Op: op, Reason: "body is not a JSON object"}
	}

	strict := defaults == nil
	resp := &models.TokenResponse{}
	var err error

	if resp.AccessToken, err = requireString(op, raw, "access_token", true); err != nil {
		return nil, err
	}
	if resp.RefreshToken, err = requireString(op, raw, "refresh_token", strict); err != nil {
		return nil, err
	}

	var accessDefault, refreshDefault int64
	if defaults != nil {
		accessDefault, refreshDefault = defaults.access, defaults.refresh
	}
	if resp.ExpiresIn, err = requireSeconds(op, raw, "expires_in", strict, accessDefault); err != nil {
		return nil, err
	}
	if resp.RefreshTokenExpiresIn, err = requireSeconds(op, raw, "x_refresh_token_expires_in", strict, refreshDefault); err != nil {
		return nil, err
	}

	resp.TokenType = optionalString(raw, "token_type")
	resp.IDToken = optionalString(raw, "id_token")
	resp.RealmID = optionalString(raw, "realmId")
	return resp, nil
}

func requireString(op string, raw map[string]any, field string, required bool) (string, error) {
	v, ok := raw[field]
	if !ok || v == nil {
		if required {
			return "", &MalformedResponseError{Op: op, Field: field, Reason: "is missing"}
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &MalformedResponseError{Op: op, Field: field, Reason: "is not a string"}
	}
	if required && strings.TrimSpace(s) == "" {
		return "", &MalformedResponseError{Op: op, Field: field, Reason: "is empty"}
	}
	return s, nil
}

func requireSeconds(op string, raw map[string]any, field string, required bool, fallback int64) (int64, error) {
	v, ok := raw[field]
	if !ok || v == nil {
		if required {
			return 0, &MalformedResponseError{Op: op, Field: field, Reason: "is missing"}
		}
		return fallback, nil
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, &MalformedResponseError{Op: op, Field: field, Reason: "is not a number"}
	}
	secs, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil {
			return 0, &MalformedResponseError{Op: op, Field: field, Reason: "is not a number"}
		}
		secs = int64(f)
	}
	if secs <= 0 {
		return 0, &MalformedResponseError{Op: op, Field: field, Reason: "must be positive"}
	}
	return secs, nil
}

// optionalString ignores absent and non-string values.
func optionalString(raw map[string]any, field string) string {
	s, _ := raw[field].(string)
	return s
}
