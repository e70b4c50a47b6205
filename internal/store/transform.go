package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/marcusvale/billing-sync/internal/billing"
	"github.com/marcusvale/billing-sync/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

// ErrUnknownEntity means no transform exists for the entity type. This is a
// configuration error and fails before any row is written.
var ErrUnknownEntity = errors.New("no transform for entity type")

// UpsertProcessed flattens records into the entity's processed table.
// Customers, subscriptions and members upsert by vendor id (last write wins);
// tiers are replaced wholesale.
func (s *Store) UpsertProcessed(ctx context.Context, entityType string, recs []model.SourceRecord) error {
	if len(recs) == 0 {
		return nil
	}
	switch entityType {
	case "customers":
		return s.upsertCustomers(ctx, recs)
	case "subscriptions":
		return s.upsertSubscriptions(ctx, recs)
	case "members":
		return s.upsertMembers(ctx, recs)
	case "tiers":
		return s.replaceTiers(ctx, recs)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownEntity, entityType)
	}
}

func (s *Store) upsertCustomers(ctx context.Context, recs []model.SourceRecord) error {
	now := time.Now().UTC()
	rows := make([]model.Customer, 0, len(recs))
	for _, rec := range recs {
		var c billing.Customer
		if err := json.Unmarshal(rec.Payload, &c); err != nil {
			return fmt.Errorf("decode customer %s: %w", rec.ID, err)
		}
		row := model.Customer{
			CustomerID:       c.ID,
			ObjectType:       c.Object,
			Email:            c.Email,
			Name:             c.Name,
			Description:      c.Description,
			Phone:            c.Phone,
			Created:          time.Unix(c.Created, 0).UTC(),
			CreatedTimestamp: c.Created,
			Currency:         c.Currency,
			Balance:          c.Balance,
			Delinquent:       c.Delinquent,
			DefaultSource:    c.DefaultSource,
			InvoicePrefix:    c.InvoicePrefix,
			UpdatedAt:        now,
			IngestedAt:       now,
		}
		if addr := c.Address; addr != nil {
			row.AddressLine1 = addr.Line1
			row.AddressLine2 = addr.Line2
			row.AddressCity = addr.City
			row.AddressState = addr.State
			row.AddressPostalCode = addr.PostalCode
			row.AddressCountry = addr.Country
		}
		rows = append(rows, row)
	}
	return batchUpsert(ctx, s, rows)
}

func (s *Store) upsertSubscriptions(ctx context.Context, recs []model.SourceRecord) error {
	now := time.Now().UTC()
	rows := make([]model.Subscription, 0, len(recs))
	for _, rec := range recs {
		var sub billing.Subscription
		if err := json.Unmarshal(rec.Payload, &sub); err != nil {
			return fmt.Errorf("decode subscription %s: %w", rec.ID, err)
		}
		row := model.Subscription{
			SubscriptionID:     sub.ID,
			ObjectType:         sub.Object,
			Status:             sub.Status,
			Created:            time.Unix(sub.Created, 0).UTC(),
			CreatedTimestamp:   sub.Created,
			CurrentPeriodStart: epochPtr(sub.CurrentPeriodStart),
			CurrentPeriodEnd:   epochPtr(sub.CurrentPeriodEnd),
			CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
			CanceledAt:         epochPtr(sub.CanceledAt),
			EndedAt:            epochPtr(sub.EndedAt),
			CustomerID:         sub.Customer,
			Currency:           sub.Currency,
			CollectionMethod:   sub.CollectionMethod,
			UpdatedAt:          now,
			IngestedAt:         now,
		}
		// pricing comes from the first line item only; remaining items are
		// not represented in the flattened view
		if len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
			price := sub.Items.Data[0].Price
			row.Amount = normalizeAmount(price.UnitAmount)
			if price.Currency != nil {
				row.Currency = price.Currency
			}
			if price.Recurring != nil {
				interval := price.Recurring.Interval
				count := price.Recurring.IntervalCount
				row.SubscriptionInterval = &interval
				row.IntervalCount = &count
			}
			planID := price.ID
			row.PlanID = &planID
			if pid := price.ProductID(); pid != "" {
				row.ProductID = &pid
			}
			if price.Nickname != nil {
				row.PlanName = price.Nickname
			} else if row.ProductID != nil {
				row.PlanName = row.ProductID
			}
		}
		rows = append(rows, row)
	}
	return batchUpsert(ctx, s, rows)
}

func (s *Store) upsertMembers(ctx context.Context, recs []model.SourceRecord) error {
	now := time.Now().UTC()
	rows := make([]model.Member, 0, len(recs))
	for _, rec := range recs {
		var m struct {
			ID     string  `json:"id"`
			Email  *string `json:"email"`
			Name   *string `json:"name"`
			Phone  *string `json:"phone"`
			TierID *string `json:"tier_id"`
		}
		if err := json.Unmarshal(rec.Payload, &m); err != nil {
			return fmt.Errorf("decode member %s: %w", rec.ID, err)
		}
		rows = append(rows, model.Member{
			MemberID:   m.ID,
			Email:      m.Email,
			Name:       m.Name,
			Phone:      m.Phone,
			TierID:     m.TierID,
			Payload:    string(rec.Payload),
			UpdatedAt:  now,
			IngestedAt: now,
		})
	}
	return batchUpsert(ctx, s, rows)
}

// replaceTiers clears the tier table and reinserts the full set. A failed
// clear is non-fatal: on a fresh warehouse the table may not exist yet.
func (s *Store) replaceTiers(ctx context.Context, recs []model.SourceRecord) error {
	now := time.Now().UTC()
	rows := make([]model.MembershipTier, 0, len(recs))
	for _, rec := range recs {
		var t struct {
			ID          string   `json:"id"`
			Name        string   `json:"name"`
			Description *string  `json:"description"`
			Price       *float64 `json:"price"`
		}
		if err := json.Unmarshal(rec.Payload, &t); err != nil {
			return fmt.Errorf("decode tier %s: %w", rec.ID, err)
		}
		row := model.MembershipTier{
			TierID:      t.ID,
			Name:        t.Name,
			Description: t.Description,
			Payload:     string(rec.Payload),
			IngestedAt:  now,
		}
		if t.Price != nil {
			price := decimal.NewFromFloat(*t.Price)
			row.Price = &price
		}
		rows = append(rows, row)
	}

	if err := s.db.WithContext(ctx).Exec("DELETE FROM membership_tiers").Error; err != nil {
		s.log.Warnf("clear membership_tiers: %v", err)
	}
	return batchUpsert(ctx, s, rows)
}

// batchUpsert writes rows in batches with insert-or-replace-by-primary-key
// semantics. A failed batch aborts the remainder.
func batchUpsert[T any](ctx context.Context, s *Store, rows []T) error {
	for i := 0; i < len(rows); i += writeBatchSize {
		end := i + writeBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[i:end]
		if err := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{UpdateAll: true}).
			Create(&batch).Error; err != nil {
			return fmt.Errorf("upsert batch %d: %w", i/writeBatchSize+1, err)
		}
	}
	s.log.Infof("upserted %d processed rows", len(rows))
	return nil
}

func epochPtr(v int64) *time.Time {
	if v == 0 {
		return nil
	}
	t := time.Unix(v, 0).UTC()
	return &t
}

// normalizeAmount converts a minor-unit amount to major units. Zero or absent
// maps to nil, distinguishing "no price" from "free".
func normalizeAmount(unitAmount int64) *decimal.Decimal {
	if unitAmount == 0 {
		return nil
	}
	d := decimal.New(unitAmount, -2)
	return &d
}
