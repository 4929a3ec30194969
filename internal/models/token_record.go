package models

import "time"

// Field keys used by every persistence backend. They match the document
// layout already stored in Firestore, so existing records keep loading.
const (
	FieldAccessToken        = "access_token"
	FieldRefreshToken       = "refresh_token"
	FieldTokenType          = "token_type"
	FieldIDToken            = "id_token"
	FieldRealmID            = "realmId"
	FieldServerTime         = "server_time"
	FieldExpiresTime        = "expires_time"
	FieldRefreshExpiresTime = "refresh_expires_time"
	FieldLastCustomerUpdate = "lastCustomerUpdate"
)

// TokenRecord is the single shared QuickBooks credential set.
//
// All timestamps are epoch milliseconds. ExpiresTime and RefreshExpiresTime
// are absolute instants derived from ServerTime when the record was written;
// they are never recomputed against a later clock reading.
type TokenRecord struct {
	AccessToken        string `json:"access_token,omitempty"         firestore:"access_token,omitempty"`
	RefreshToken       string `json:"refresh_token,omitempty"        firestore:"refresh_token,omitempty"`
	TokenType          string `json:"token_type,omitempty"           firestore:"token_type,omitempty"`
	IDToken            string `json:"id_token,omitempty"             firestore:"id_token,omitempty"`
	RealmID            string `json:"realmId,omitempty"              firestore:"realmId,omitempty"`
	ServerTime         int64  `json:"server_time,omitempty"          firestore:"server_time,omitempty"`
	ExpiresTime        int64  `json:"expires_time,omitempty"         firestore:"expires_time,omitempty"`
	RefreshExpiresTime int64  `json:"refresh_expires_time,omitempty" firestore:"refresh_expires_time,omitempty"`
	LastCustomerUpdate int64  `json:"lastCustomerUpdate,omitempty"   firestore:"lastCustomerUpdate,omitempty"`
}

// TokenResponse is a validated token endpoint payload. Lifetimes are seconds.
type TokenResponse struct {
	AccessToken           string
	RefreshToken          string
	TokenType             string
	IDToken               string
	RealmID               string
	ExpiresIn             int64
	RefreshTokenExpiresIn int64
}

// NewTokenRecord stamps a response with serverTime. Both expiry fields derive
// from the same sample.
func NewTokenRecord(resp TokenResponse, serverTime time.Time) *TokenRecord {
	now := serverTime.UnixMilli()
	return &TokenRecord{
		AccessToken:        resp.AccessToken,
		RefreshToken:       resp.RefreshToken,
		TokenType:          resp.TokenType,
		IDToken:            resp.IDToken,
		RealmID:            resp.RealmID,
		ServerTime:         now,
		ExpiresTime:        now + resp.ExpiresIn*1000,
		RefreshExpiresTime: now + resp.RefreshTokenExpiresIn*1000,
	}
}

// IsAccessTokenValid reports whether the access token is still usable at nowMs.
// A nil record or a missing expiry is never valid.
func (t *TokenRecord) IsAccessTokenValid(nowMs int64) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return t.ExpiresTime > 0 && t.ExpiresTime > nowMs
}

// IsRefreshTokenValid reports whether the refresh token can still mint a new
// access token at nowMs.
func (t *TokenRecord) IsRefreshTokenValid(nowMs int64) bool {
	if t == nil || t.RefreshToken == "" {
		return false
	}
	return t.RefreshExpiresTime > 0 && t.RefreshExpiresTime > nowMs
}

// Fields returns the non-empty fields keyed by their storage names.
// Merge-updates must go through this so absent values never clobber stored ones.
func (t *TokenRecord) Fields() map[string]any {
	fields := make(map[string]any, 9)
	if t == nil {
		return fields
	}
	putString := func(key, v string) {
		if v != "" {
			fields[key] = v
		}
	}
	putInt := func(key string, v int64) {
		if v != 0 {
			fields[key] = v
		}
	}

	putString(FieldAccessToken, t.AccessToken)
	putString(FieldRefreshToken, t.RefreshToken)
	putString(FieldTokenType, t.TokenType)
	putString(FieldIDToken, t.IDToken)
	putString(FieldRealmID, t.RealmID)
	putInt(FieldServerTime, t.ServerTime)
	putInt(FieldExpiresTime, t.ExpiresTime)
	putInt(FieldRefreshExpiresTime, t.RefreshExpiresTime)
	putInt(FieldLastCustomerUpdate, t.LastCustomerUpdate)
	return fields
}

// Merge overlays the non-empty fields of other onto a copy of t.
func (t *TokenRecord) Merge(other *TokenRecord) *TokenRecord {
	out := &TokenRecord{}
	if t != nil {
		*out = *t
	}
	if other == nil {
		return out
	}
	if other.AccessToken != "" {
		out.AccessToken = other.AccessToken
	}
	if other.RefreshToken != "" {
		out.RefreshToken = other.RefreshToken
	}
	if other.TokenType != "" {
		out.TokenType = other.TokenType
	}
	if other.IDToken != "" {
		out.IDToken = other.IDToken
	}
	if other.RealmID != "" {
		out.RealmID = other.RealmID
	}
	if other.ServerTime != 0 {
		out.ServerTime = other.ServerTime
	}
	if other.ExpiresTime != 0 {
		out.ExpiresTime = other.ExpiresTime
	}
	if other.RefreshExpiresTime != 0 {
		out.RefreshExpiresTime = other.RefreshExpiresTime
	}
	if other.LastCustomerUpdate != 0 {
		out.LastCustomerUpdate = other.LastCustomerUpdate
	}
	return out
}

// ApplyFields overlays a Fields-style map onto a copy of t. Unknown keys and
// values of the wrong type are ignored.
func (t *TokenRecord) ApplyFields(fields map[string]any) *TokenRecord {
	patch := &TokenRecord{}
	for key, v := range fields {
		switch key {
		case FieldAccessToken:
			patch.AccessToken, _ = v.(string)
		case FieldRefreshToken:
			patch.RefreshToken, _ = v.(string)
		case FieldTokenType:
			patch.TokenType, _ = v.(string)
		case FieldIDToken:
			patch.IDToken, _ = v.(string)
		case FieldRealmID:
			patch.RealmID, _ = v.(string)
		case FieldServerTime:
			patch.ServerTime = asInt64(v)
		case FieldExpiresTime:
			patch.ExpiresTime = asInt64(v)
		case FieldRefreshExpiresTime:
			patch.RefreshExpiresTime = asInt64(v)
		case FieldLastCustomerUpdate:
			patch.LastCustomerUpdate = asInt64(v)
		}
	}
	return t.Merge(patch)
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// TokenState summarises a record's validity at one instant.
type TokenState struct {
	ValidAccessToken  bool   `json:"validAccessToken"`
	ValidRefreshToken bool   `json:"validRefreshToken"`
	Message           string `json:"message"`
}

// State evaluates both predicates against the same nowMs.
func (t *TokenRecord) State(nowMs int64) TokenState {
	state := TokenState{
		ValidAccessToken:  t.IsAccessTokenValid(nowMs),
		ValidRefreshToken: t.IsRefreshTokenValid(nowMs),
	}
	switch {
	case state.ValidAccessToken:
		state.Message = "Access token is valid"
	case state.ValidRefreshToken:
		state.Message = "Access token expired, but refresh token is valid"
	default:
		state.Message = "Both access and refresh tokens are expired"
	}
	return state
}
