package membership

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/marcusvale/billing-sync/internal/config"
	"github.com/marcusvale/billing-sync/internal/model"
	"go.uber.org/zap"
)

const (
	tokenCacheKey = "membership:jwt"
	tokenCacheTTL = 30 * time.Minute
)

// ErrNoCredentials means the client has no email/password to log in with.
var ErrNoCredentials = errors.New("membership credentials not configured")

// Client talks to the membership vendor API: email/password login yields a
// JWT used as a Bearer token on the marketing endpoints. The token is cached
// in redis so repeated runs skip the login round trip; cache failures fall
// through to a fresh login.
type Client struct {
	baseURL  string
	email    string
	password string
	hc       *http.Client
	rdb      *redis.Client
	log      *zap.SugaredLogger
}

func NewClient(cfg config.MembershipConfig, rdb *redis.Client, log *zap.SugaredLogger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		email:    cfg.Email,
		password: cfg.Password,
		hc:       &http.Client{Timeout: 60 * time.Second},
		rdb:      rdb,
		log:      log,
	}
}

// FetchTiers returns all membership tiers. Full refresh; no incremental filter.
func (c *Client) FetchTiers(ctx context.Context) ([]model.SourceRecord, error) {
	return c.fetchList(ctx, "/v1/marketing/tiers")
}

// FetchMembers returns all membership/marketing records. Full refresh.
func (c *Client) FetchMembers(ctx context.Context) ([]model.SourceRecord, error) {
	return c.fetchList(ctx, "/v1/marketing/data")
}

func (c *Client) fetchList(ctx context.Context, endpoint string) ([]model.SourceRecord, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("membership api %s: %s", resp.Status, body)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	items, err := decodeList(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s response: %w", endpoint, err)
	}

	recs := make([]model.SourceRecord, 0, len(items))
	for _, item := range items {
		var hdr struct {
			ID      string `json:"id"`
			Created int64  `json:"created"`
		}
		if err := json.Unmarshal(item, &hdr); err != nil {
			return nil, fmt.Errorf("decode membership record: %w", err)
		}
		recs = append(recs, model.SourceRecord{ID: hdr.ID, Created: hdr.Created, Payload: item})
	}
	return recs, nil
}

// decodeList accepts both response shapes the vendor emits: a bare JSON array
// or an object wrapping the array under "data".
func decodeList(raw []byte) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}
	var wrapped struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Data, nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c.rdb != nil {
		if tok, err := c.rdb.Get(ctx, tokenCacheKey).Result(); err == nil && tok != "" {
			return tok, nil
		}
	}
	tok, err := c.login(ctx)
	if err != nil {
		return "", err
	}
	if c.rdb != nil {
		if err := c.rdb.Set(ctx, tokenCacheKey, tok, tokenCacheTTL).Err(); err != nil {
			c.log.Warnf("cache membership token: %v", err)
		}
	}
	return tok, nil
}

func (c *Client) login(ctx context.Context) (string, error) {
	if c.email == "" || c.password == "" {
		return "", ErrNoCredentials
	}
	body, _ := json.Marshal(map[string]string{"email": c.email, "password": c.password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("membership login %s: %s", resp.Status, text)
	}

	// the vendor has used several field names for the token over time
	var payload struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
		AccessCamel string `json:"accessToken"`
		JWT         string `json:"jwt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	for _, tok := range []string{payload.Token, payload.AccessToken, payload.AccessCamel, payload.JWT} {
		if tok != "" {
			c.log.Info("membership login successful")
			return tok, nil
		}
	}
	return "", errors.New("membership login response had no token")
}
