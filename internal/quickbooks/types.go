package quickbooks

// QueryResponse is the QueryResponse object of a query result. Only the
// Customer entity is decoded.
type QueryResponse struct {
	Customer      []Customer `json:"Customer,omitempty"`
	StartPosition int        `json:"startPosition,omitempty"`
	MaxResults    int        `json:"maxResults,omitempty"`
	TotalCount    int        `json:"totalCount,omitempty"`
}

// Customers returns the decoded customers, never nil.
func (r *QueryResponse) Customers() []Customer {
	if r == nil || r.Customer == nil {
		return []Customer{}
	}
	return r.Customer
}

type Customer struct {
	ID               string        `json:"Id"`
	SyncToken        string        `json:"SyncToken,omitempty"`
	DisplayName      string        `json:"DisplayName,omitempty"`
	GivenName        string        `json:"GivenName,omitempty"`
	FamilyName       string        `json:"FamilyName,omitempty"`
	CompanyName      string        `json:"CompanyName,omitempty"`
	Active           bool          `json:"Active"`
	Balance          float64       `json:"Balance"`
	PrimaryEmailAddr *EmailAddress `json:"PrimaryEmailAddr,omitempty"`
	PrimaryPhone     *PhoneNumber  `json:"PrimaryPhone,omitempty"`
	Mobile           *PhoneNumber  `json:"Mobile,omitempty"`
	BillAddr         *Address      `json:"BillAddr,omitempty"`
	MetaData         *MetaData     `json:"MetaData,omitempty"`
}

type EmailAddress struct {
	Address string `json:"Address"`
}

type PhoneNumber struct {
	FreeFormNumber string `json:"FreeFormNumber"`
}

type Address struct {
	Line1                  string `json:"Line1,omitempty"`
	City                   string `json:"City,omitempty"`
	CountrySubDivisionCode string `json:"CountrySubDivisionCode,omitempty"`
	PostalCode             string `json:"PostalCode,omitempty"`
}

type MetaData struct {
	CreateTime      string `json:"CreateTime,omitempty"`
	LastUpdatedTime string `json:"LastUpdatedTime,omitempty"`
}
