package templates

// TokenIssuedProps contains properties for the callback success page
type TokenIssuedProps struct {
	RealmID   string
	ExpiresAt string // access token expiry, RFC 3339
}

// ErrorPageProps contains properties for the callback error page
type ErrorPageProps struct {
	Error   string
	Message string
}
