package models

import "time"

// OAuthState is the anti-forgery value round-tripped through the Intuit
// authorize redirect. States are short-lived (default 10 minutes) and single-use.
type OAuthState struct {
	State     string `gorm:"primaryKey;size:128"`
	Used      bool   `gorm:"not null;default:false;index"`
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (s *OAuthState) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

func (OAuthState) TableName() string {
	return "oauth_states"
}
