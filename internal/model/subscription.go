package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Subscription is the flattened processed row for a vendor subscription.
// Pricing fields come from the first line item only; multi-item subscriptions
// lose the remaining items' pricing in this view (known limitation).
type Subscription struct {
	SubscriptionID   string `gorm:"primaryKey;size:64"`
	ObjectType       string `gorm:"size:32"`
	Status           string `gorm:"size:32"`
	Created          time.Time
	CreatedTimestamp int64 `gorm:"index"`

	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
	EndedAt            *time.Time

	CustomerID string `gorm:"size:64;index"`

	// Amount is the major-unit price of the first line item; nil means the
	// subscription has no priced item, which is distinct from a zero price.
	Currency             *string          `gorm:"size:8"`
	Amount               *decimal.Decimal `gorm:"type:numeric(12,2)"`
	SubscriptionInterval *string          `gorm:"size:16"`
	IntervalCount        *int64

	PlanName  *string
	PlanID    *string
	ProductID *string

	CollectionMethod *string `gorm:"size:32"`

	UpdatedAt  time.Time
	IngestedAt time.Time
}

func (Subscription) TableName() string { return "subscriptions" }
