package forward

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marcusvale/billing-sync/internal/billing"
	"github.com/marcusvale/billing-sync/internal/config"
	"github.com/marcusvale/billing-sync/internal/logger"
	"github.com/stretchr/testify/assert"
)

type fakeSubs struct {
	subs map[string][]billing.Subscription
	err  error
}

func (f *fakeSubs) SubscriptionsForCustomer(_ context.Context, customerID string) ([]billing.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.subs[customerID], nil
}

func strptr(s string) *string { return &s }

func subWithProducts(ids ...string) billing.Subscription {
	var sub billing.Subscription
	for _, id := range ids {
		raw, _ := json.Marshal(id)
		sub.Items.Data = append(sub.Items.Data, billing.LineItem{Price: &billing.Price{Product: raw}})
	}
	return sub
}

func TestBuildAudience_OneEntryPerProduct(t *testing.T) {
	log, _ := logger.NewLogger()
	src := &fakeSubs{subs: map[string][]billing.Subscription{
		"cus_1": {subWithProducts("prod_a", "prod_b")},
	}}
	customers := []billing.Customer{{ID: "cus_1", Email: strptr("a@example.com")}}

	audience := BuildAudience(context.Background(), src, customers, log)
	assert.Len(t, audience, 2)
	assert.Equal(t, "prod_a", *audience[0].ProductID)
	assert.Equal(t, "prod_b", *audience[1].ProductID)
	// entries differ only in product
	assert.Equal(t, audience[0].CustomerID, audience[1].CustomerID)
	assert.Equal(t, *audience[0].Email, *audience[1].Email)
}

func TestBuildAudience_DuplicateProductsCollapse(t *testing.T) {
	log, _ := logger.NewLogger()
	src := &fakeSubs{subs: map[string][]billing.Subscription{
		"cus_1": {subWithProducts("prod_a"), subWithProducts("prod_a")},
	}}
	customers := []billing.Customer{{ID: "cus_1", Name: strptr("Ana")}}

	audience := BuildAudience(context.Background(), src, customers, log)
	assert.Len(t, audience, 1)
}

func TestBuildAudience_NoProducts(t *testing.T) {
	log, _ := logger.NewLogger()
	src := &fakeSubs{}
	customers := []billing.Customer{{ID: "cus_1", Phone: strptr("+15550100")}}

	audience := BuildAudience(context.Background(), src, customers, log)
	assert.Len(t, audience, 1)
	assert.Nil(t, audience[0].ProductID)
}

func TestBuildAudience_NoContactDropped(t *testing.T) {
	log, _ := logger.NewLogger()
	src := &fakeSubs{subs: map[string][]billing.Subscription{
		"cus_1": {subWithProducts("prod_a")},
	}}
	customers := []billing.Customer{{ID: "cus_1"}}

	audience := BuildAudience(context.Background(), src, customers, log)
	assert.Empty(t, audience)
}

func TestBuildAudience_EnrichmentFailureDegrades(t *testing.T) {
	log, _ := logger.NewLogger()
	src := &fakeSubs{err: errors.New("api down")}
	customers := []billing.Customer{{ID: "cus_1", Email: strptr("a@example.com")}}

	audience := BuildAudience(context.Background(), src, customers, log)
	assert.Len(t, audience, 1)
	assert.Nil(t, audience[0].ProductID)
}

func TestDeliver_PostsChunkWithSecret(t *testing.T) {
	var gotBody struct {
		Customers []Entry  `json:"customers"`
		Tags      []string `json:"tags"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shh", r.Header.Get("x-webhook-secret"))
		assert.Equal(t, "Bearer shh", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	log, _ := logger.NewLogger()
	f := New(config.WebhookConfig{URL: srv.URL, Secret: "shh"}, log)

	audience := []Entry{{CustomerID: "cus_1", Email: strptr("a@example.com")}}
	assert.NoError(t, f.Deliver(context.Background(), audience, nil))
	assert.Len(t, gotBody.Customers, 1)
	assert.NotNil(t, gotBody.Tags)
	assert.Empty(t, gotBody.Tags)
}

func TestDeliver_Non2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	log, _ := logger.NewLogger()
	f := New(config.WebhookConfig{URL: srv.URL, Secret: "shh"}, log)

	err := f.Deliver(context.Background(), []Entry{{CustomerID: "cus_1", Name: strptr("A")}}, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestDeliver_NotConfigured(t *testing.T) {
	log, _ := logger.NewLogger()
	f := New(config.WebhookConfig{}, log)

	err := f.Deliver(context.Background(), []Entry{{CustomerID: "cus_1", Name: strptr("A")}}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	// an empty audience is fine even without config
	assert.NoError(t, f.Deliver(context.Background(), nil, nil))
}
