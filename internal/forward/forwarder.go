package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/marcusvale/billing-sync/internal/billing"
	"github.com/marcusvale/billing-sync/internal/config"
	"go.uber.org/zap"
)

// maxPerRequest is the receiver's ceiling on entries per POST.
const maxPerRequest = 10000

const secretHeader = "x-webhook-secret"

// ErrNotConfigured means the webhook endpoint or secret is missing. When a
// run has an audience to send this is a hard failure, not a skip.
var ErrNotConfigured = errors.New("webhook not configured")

// Entry is one audience member: a (customer, related product) pair, or a
// customer with no product. Ephemeral; exists only for one dispatch.
type Entry struct {
	CustomerID string  `json:"customer_id"`
	Email      *string `json:"email,omitempty"`
	Name       *string `json:"name,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	ProductID  *string `json:"product_id,omitempty"`
}

// SubscriptionSource looks up a customer's subscriptions for enrichment.
type SubscriptionSource interface {
	SubscriptionsForCustomer(ctx context.Context, customerID string) ([]billing.Subscription, error)
}

// Forwarder delivers audience batches to the marketing webhook.
type Forwarder struct {
	url    string
	secret string
	hc     *http.Client
	log    *zap.SugaredLogger
}

func New(cfg config.WebhookConfig, log *zap.SugaredLogger) *Forwarder {
	return &Forwarder{
		url:    cfg.URL,
		secret: cfg.Secret,
		hc:     &http.Client{Timeout: 120 * time.Second},
		log:    log,
	}
}

// BuildAudience derives one entry per (customer, distinct related product).
// A customer with no products yields one entry without a product; entries
// lacking all of name, email and phone are dropped. Enrichment failure for a
// single customer degrades to "no products" rather than failing the build.
func BuildAudience(ctx context.Context, src SubscriptionSource, customers []billing.Customer, log *zap.SugaredLogger) []Entry {
	var audience []Entry
	for _, c := range customers {
		if c.ID == "" {
			continue
		}
		var productIDs []string
		subs, err := src.SubscriptionsForCustomer(ctx, c.ID)
		if err != nil {
			log.Warnf("enrich customer %s: %v", c.ID, err)
		}
		seen := make(map[string]bool)
		for _, sub := range subs {
			for _, pid := range sub.ProductIDs() {
				if !seen[pid] {
					seen[pid] = true
					productIDs = append(productIDs, pid)
				}
			}
		}

		if len(productIDs) == 0 {
			if e, ok := entryFor(c, nil); ok {
				audience = append(audience, e)
			}
			continue
		}
		for i := range productIDs {
			if e, ok := entryFor(c, &productIDs[i]); ok {
				audience = append(audience, e)
			}
		}
	}
	return audience
}

func entryFor(c billing.Customer, productID *string) (Entry, bool) {
	if isEmpty(c.Email) && isEmpty(c.Name) && isEmpty(c.Phone) {
		return Entry{}, false
	}
	return Entry{
		CustomerID: c.ID,
		Email:      c.Email,
		Name:       c.Name,
		Phone:      c.Phone,
		ProductID:  productID,
	}, true
}

func isEmpty(s *string) bool { return s == nil || *s == "" }

// Deliver POSTs the audience in chunks of maxPerRequest, sequentially. The
// first failed chunk stops the dispatch and fails the delivery; there is no
// skip-and-continue.
func (f *Forwarder) Deliver(ctx context.Context, audience []Entry, tags []string) error {
	if len(audience) == 0 {
		return nil
	}
	if f.url == "" || f.secret == "" {
		return ErrNotConfigured
	}
	if tags == nil {
		tags = []string{}
	}

	sent := 0
	for i := 0; i < len(audience); i += maxPerRequest {
		end := i + maxPerRequest
		if end > len(audience) {
			end = len(audience)
		}
		chunk := audience[i:end]
		if err := f.post(ctx, chunk, tags); err != nil {
			return fmt.Errorf("deliver chunk of %d (after %d sent): %w", len(chunk), sent, err)
		}
		sent += len(chunk)
	}
	f.log.Infof("delivered %d audience entries to webhook", sent)
	return nil
}

func (f *Forwarder) post(ctx context.Context, customers []Entry, tags []string) error {
	body, err := json.Marshal(map[string]interface{}{
		"customers": customers,
		"tags":      tags,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(secretHeader, f.secret)
	req.Header.Set("Authorization", "Bearer "+f.secret)

	resp, err := f.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook %s: %s", resp.Status, text)
	}
	return nil
}
