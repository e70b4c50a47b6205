package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/marcusvale/billing-sync/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeAmount(t *testing.T) {
	d := normalizeAmount(1999)
	assert.NotNil(t, d)
	assert.Equal(t, "19.99", d.String())

	assert.Nil(t, normalizeAmount(0))
}

func TestUpsertSubscriptions_FirstItemPricing(t *testing.T) {
	s := newTestStore(t, "sub_pricing")
	ctx := context.Background()

	payload := `{
		"id": "sub_1",
		"object": "subscription",
		"status": "active",
		"created": 200,
		"customer": "cus_1",
		"items": {"data": [
			{"price": {"id": "price_1", "unit_amount": 1999, "currency": "usd",
			           "recurring": {"interval": "month", "interval_count": 1},
			           "product": {"id": "prod_expanded"}}},
			{"price": {"id": "price_2", "unit_amount": 5000, "currency": "eur", "product": "prod_second"}}
		]}
	}`
	recs := []model.SourceRecord{{ID: "sub_1", Created: 200, Payload: json.RawMessage(payload)}}
	assert.NoError(t, s.UpsertProcessed(ctx, "subscriptions", recs))

	var row model.Subscription
	assert.NoError(t, s.db.First(&row, "subscription_id = ?", "sub_1").Error)

	// only the first line item's price lands in the flattened view
	assert.NotNil(t, row.Amount)
	assert.Equal(t, "19.99", row.Amount.String())
	assert.Equal(t, "usd", *row.Currency)
	assert.Equal(t, "month", *row.SubscriptionInterval)
	assert.Equal(t, int64(1), *row.IntervalCount)
	assert.Equal(t, "price_1", *row.PlanID)
	assert.Equal(t, "prod_expanded", *row.ProductID)
	assert.Equal(t, "cus_1", row.CustomerID)
	assert.Equal(t, int64(200), row.CreatedTimestamp)
}

func TestUpsertSubscriptions_NoPricedItem(t *testing.T) {
	s := newTestStore(t, "sub_noprice")
	ctx := context.Background()

	payload := `{"id":"sub_2","object":"subscription","status":"active","created":300,"customer":"cus_2","items":{"data":[]}}`
	recs := []model.SourceRecord{{ID: "sub_2", Created: 300, Payload: json.RawMessage(payload)}}
	assert.NoError(t, s.UpsertProcessed(ctx, "subscriptions", recs))

	var row model.Subscription
	assert.NoError(t, s.db.First(&row, "subscription_id = ?", "sub_2").Error)
	// no price is nil, not zero
	assert.Nil(t, row.Amount)
	assert.Nil(t, row.PlanID)
	assert.Nil(t, row.CurrentPeriodStart)
}

func TestUpsertSubscriptions_ZeroUnitAmount(t *testing.T) {
	s := newTestStore(t, "sub_zero")
	ctx := context.Background()

	payload := `{"id":"sub_3","object":"subscription","status":"active","created":400,"customer":"cus_3",
		"items":{"data":[{"price":{"id":"price_3","unit_amount":0,"currency":"usd","product":"prod_free"}}]}}`
	recs := []model.SourceRecord{{ID: "sub_3", Created: 400, Payload: json.RawMessage(payload)}}
	assert.NoError(t, s.UpsertProcessed(ctx, "subscriptions", recs))

	var row model.Subscription
	assert.NoError(t, s.db.First(&row, "subscription_id = ?", "sub_3").Error)
	assert.Nil(t, row.Amount)
	assert.Equal(t, "prod_free", *row.ProductID)
}
