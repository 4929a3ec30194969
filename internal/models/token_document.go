package models

import "time"

// TokenDocument is the SQL rendering of the token document. Path holds the
// same well-known location the Firestore backend uses, so exactly one row
// exists per integration.
type TokenDocument struct {
	Path               string `gorm:"primaryKey;size:255"`
	AccessToken        string `gorm:"type:text"`
	RefreshToken       string `gorm:"type:text"`
	TokenType          string `gorm:"size:32"`
	IDToken            string `gorm:"type:text"`
	RealmID            string `gorm:"size:64"`
	ServerTime         int64
	ExpiresTime        int64
	RefreshExpiresTime int64
	LastCustomerUpdate int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (TokenDocument) TableName() string {
	return "token_documents"
}

// Record converts the row into a TokenRecord.
func (d *TokenDocument) Record() *TokenRecord {
	return &TokenRecord{
		AccessToken:        d.AccessToken,
		RefreshToken:       d.RefreshToken,
		TokenType:          d.TokenType,
		IDToken:            d.IDToken,
		RealmID:            d.RealmID,
		ServerTime:         d.ServerTime,
		ExpiresTime:        d.ExpiresTime,
		RefreshExpiresTime: d.RefreshExpiresTime,
		LastCustomerUpdate: d.LastCustomerUpdate,
	}
}

// TokenDocumentColumns maps record field keys to column names.
var TokenDocumentColumns = map[string]string{
	FieldAccessToken:        "access_token",
	FieldRefreshToken:       "refresh_token",
	FieldTokenType:          "token_type",
	FieldIDToken:            "id_token",
	FieldRealmID:            "realm_id",
	FieldServerTime:         "server_time",
	FieldExpiresTime:        "expires_time",
	FieldRefreshExpiresTime: "refresh_expires_time",
	FieldLastCustomerUpdate: "last_customer_update",
}
