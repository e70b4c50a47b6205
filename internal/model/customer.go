package model

import "time"

// Customer is the flattened processed row, keyed by the vendor customer id.
// Later syncs replace the row wholesale (last-write-wins).
type Customer struct {
	CustomerID       string `gorm:"primaryKey;size:64"`
	ObjectType       string `gorm:"size:32"`
	Email            *string
	Name             *string
	Description      *string
	Phone            *string
	Created          time.Time
	CreatedTimestamp int64 `gorm:"index"`

	AddressLine1      *string
	AddressLine2      *string
	AddressCity       *string
	AddressState      *string
	AddressPostalCode *string
	AddressCountry    *string

	Currency   *string `gorm:"size:8"`
	Balance    int64
	Delinquent bool

	DefaultSource *string
	InvoicePrefix *string

	UpdatedAt  time.Time
	IngestedAt time.Time
}

func (Customer) TableName() string { return "customers" }
