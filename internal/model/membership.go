package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MembershipTier mirrors one tier from the membership vendor. The table is
// replaced wholesale on every sync; the vendor has no incremental filter.
type MembershipTier struct {
	TierID      string `gorm:"primaryKey;column:id;size:64"`
	Name        string `gorm:"size:128"`
	Description *string
	Price       *decimal.Decimal `gorm:"type:numeric(12,2)"`
	Payload     string           `gorm:"type:text"`
	IngestedAt  time.Time
}

func (MembershipTier) TableName() string { return "membership_tiers" }

// Member is one membership/marketing record, upserted by vendor id.
type Member struct {
	MemberID   string `gorm:"primaryKey;column:id;size:64"`
	Email      *string
	Name       *string
	Phone      *string
	TierID     *string `gorm:"size:64;index"`
	Payload    string  `gorm:"type:text"`
	UpdatedAt  time.Time
	IngestedAt time.Time
}

func (Member) TableName() string { return "members" }
