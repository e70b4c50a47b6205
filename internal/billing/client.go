package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/marcusvale/billing-sync/internal/config"
	"github.com/marcusvale/billing-sync/internal/model"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// pageLimit is the vendor's per-page ceiling.
const pageLimit = 100

// ErrUnknownEntity is returned for entity types with no list endpoint.
var ErrUnknownEntity = errors.New("unknown entity type")

var endpoints = map[string]string{
	"customers":     "/customers",
	"subscriptions": "/subscriptions",
}

// Client talks to the payment-processor REST API. All calls share one
// rate limiter so a sync run stays under the vendor's request budget.
type Client struct {
	baseURL string
	apiKey  string
	hc      *http.Client
	limiter *rate.Limiter
	log     *zap.SugaredLogger
}

// NewClient constructs the client from config.
func NewClient(cfg config.BillingConfig, log *zap.SugaredLogger) *Client {
	rps := cfg.RPS
	if rps <= 0 {
		rps = 25
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		hc:      &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}
}

// FetchIncremental walks the entity's list endpoint to completion and returns
// every record created strictly after since (0 means no lower bound). The
// result is fully materialized; a failed page fails the whole fetch.
func (c *Client) FetchIncremental(ctx context.Context, entityType string, since int64) ([]model.SourceRecord, error) {
	endpoint, ok := endpoints[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entityType)
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(pageLimit))
	if since > 0 {
		params.Set("created[gt]", strconv.FormatInt(since, 10))
	}

	var all []model.SourceRecord
	page := 1
	for {
		env, err := c.list(ctx, endpoint, params)
		if err != nil {
			return nil, fmt.Errorf("fetch %s page %d: %w", entityType, page, err)
		}
		if len(env.Data) == 0 {
			break
		}
		for _, raw := range env.Data {
			var hdr recordHeader
			if err := json.Unmarshal(raw, &hdr); err != nil {
				return nil, fmt.Errorf("decode %s record: %w", entityType, err)
			}
			all = append(all, model.SourceRecord{ID: hdr.ID, Created: hdr.Created, Payload: raw})
		}
		if !env.HasMore {
			break
		}
		params.Set("starting_after", all[len(all)-1].ID)
		page++
	}
	c.log.Infof("fetched %d %s (since=%d, pages=%d)", len(all), entityType, since, page)
	return all, nil
}

// SubscriptionsForCustomer fetches all of a customer's subscriptions with the
// price's product expanded, for audience enrichment.
func (c *Client) SubscriptionsForCustomer(ctx context.Context, customerID string) ([]Subscription, error) {
	params := url.Values{}
	params.Set("customer", customerID)
	params.Set("status", "all")
	params.Set("limit", strconv.Itoa(pageLimit))
	params.Set("expand[]", "data.items.data.price.product")

	var subs []Subscription
	for {
		env, err := c.list(ctx, "/subscriptions", params)
		if err != nil {
			return nil, fmt.Errorf("fetch subscriptions for %s: %w", customerID, err)
		}
		for _, raw := range env.Data {
			var sub Subscription
			if err := json.Unmarshal(raw, &sub); err != nil {
				return nil, fmt.Errorf("decode subscription: %w", err)
			}
			subs = append(subs, sub)
		}
		if !env.HasMore || len(env.Data) == 0 {
			break
		}
		params.Set("starting_after", subs[len(subs)-1].ID)
	}
	return subs, nil
}

func (c *Client) list(ctx context.Context, endpoint string, params url.Values) (*listEnvelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("billing api %s: %s", resp.Status, body)
	}

	var env listEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	return &env, nil
}
