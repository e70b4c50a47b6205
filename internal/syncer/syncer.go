package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marcusvale/billing-sync/internal/billing"
	"github.com/marcusvale/billing-sync/internal/forward"
	"github.com/marcusvale/billing-sync/internal/model"
	"github.com/marcusvale/billing-sync/internal/store"
	"go.uber.org/zap"
)

// DefaultEntities is the set synced when the trigger names none.
var DefaultEntities = []string{"customers", "subscriptions"}

// BillingSource is the incremental billing API surface the syncer needs.
type BillingSource interface {
	FetchIncremental(ctx context.Context, entityType string, since int64) ([]model.SourceRecord, error)
	SubscriptionsForCustomer(ctx context.Context, customerID string) ([]billing.Subscription, error)
}

// MembershipSource is the membership API surface. Full refresh only.
type MembershipSource interface {
	FetchTiers(ctx context.Context) ([]model.SourceRecord, error)
	FetchMembers(ctx context.Context) ([]model.SourceRecord, error)
}

// Notifier delivers the derived customer audience downstream.
type Notifier interface {
	Deliver(ctx context.Context, audience []forward.Entry, tags []string) error
}

// Publisher emits sync-result events. Best-effort; may be nil.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Result is one entity type's outcome within a run.
type Result struct {
	Status        string `json:"status"`
	RecordsSynced int    `json:"records_synced"`
	Watermark     int64  `json:"last_sync_value"`
	Error         string `json:"error,omitempty"`
	Message       string `json:"message,omitempty"`
}

// RunReport aggregates a whole invocation. Success is true only when every
// entity type succeeded; one entity's failure never blocks another's attempt.
type RunReport struct {
	Success   bool              `json:"success"`
	Timestamp time.Time         `json:"timestamp"`
	Results   map[string]Result `json:"results"`
}

// Syncer drives the per-entity sync state machine: read watermark, fetch,
// land raw, upsert processed, advance watermark, notify.
type Syncer struct {
	store      store.Interface
	billing    BillingSource
	membership MembershipSource
	notifier   Notifier
	events     Publisher
	log        *zap.SugaredLogger
}

// New constructs a Syncer. events may be nil to disable result publishing.
func New(st store.Interface, b BillingSource, m MembershipSource, n Notifier, events Publisher, log *zap.SugaredLogger) *Syncer {
	return &Syncer{store: st, billing: b, membership: m, notifier: n, events: events, log: log}
}

// Run syncs the given entity types sequentially. Empty input means the
// default set.
func (s *Syncer) Run(ctx context.Context, entities []string) RunReport {
	if len(entities) == 0 {
		entities = DefaultEntities
	}
	report := RunReport{
		Success:   true,
		Timestamp: time.Now().UTC(),
		Results:   make(map[string]Result, len(entities)),
	}
	for _, entityType := range entities {
		s.log.Infof("--- syncing %s ---", entityType)
		res := s.syncEntity(ctx, entityType)
		report.Results[entityType] = res
		if res.Status != model.StatusSuccess {
			report.Success = false
		}
		s.publishResult(ctx, entityType, res)
		s.log.Infof("%s: %d records, status=%s", entityType, res.RecordsSynced, res.Status)
	}
	return report
}

func (s *Syncer) syncEntity(ctx context.Context, entityType string) Result {
	started := time.Now().UTC()

	wm := s.store.LatestWatermark(ctx, entityType)

	recs, err := s.fetch(ctx, entityType, wm.LastSyncValue)
	if err != nil {
		return s.fail(ctx, entityType, wm.LastSyncValue, 0, started, err)
	}

	// empty delta is a successful run with an unchanged watermark
	if len(recs) == 0 {
		s.writeWatermark(ctx, entityType, wm.LastSyncValue, 0, started, model.StatusSuccess, nil)
		return Result{
			Status:    model.StatusSuccess,
			Watermark: wm.LastSyncValue,
			Message:   "no new records",
		}
	}

	// raw before processed: the raw history must never be missing data the
	// processed view claims to have
	if err := s.store.AppendRaw(ctx, entityType, recs); err != nil {
		return s.fail(ctx, entityType, wm.LastSyncValue, 0, started, err)
	}
	if err := s.store.UpsertProcessed(ctx, entityType, recs); err != nil {
		return s.fail(ctx, entityType, wm.LastSyncValue, 0, started, err)
	}

	// the watermark advances to the maximum source-side creation time seen,
	// never to wall-clock time
	newWatermark := wm.LastSyncValue
	for _, rec := range recs {
		if rec.Created > newWatermark {
			newWatermark = rec.Created
		}
	}
	s.writeWatermark(ctx, entityType, newWatermark, len(recs), started, model.StatusSuccess, nil)

	if entityType == "customers" {
		if err := s.notifyNewCustomers(ctx, recs); err != nil {
			// data landed and is safe to land again; mark the run failed so
			// the next trigger retries, superseding the success row
			return s.fail(ctx, entityType, newWatermark, len(recs), started, err)
		}
	}

	return Result{
		Status:        model.StatusSuccess,
		RecordsSynced: len(recs),
		Watermark:     newWatermark,
	}
}

func (s *Syncer) fetch(ctx context.Context, entityType string, since int64) ([]model.SourceRecord, error) {
	switch entityType {
	case "customers", "subscriptions":
		return s.billing.FetchIncremental(ctx, entityType, since)
	case "tiers":
		return s.membership.FetchTiers(ctx)
	case "members":
		return s.membership.FetchMembers(ctx)
	default:
		return nil, fmt.Errorf("%w: %s", store.ErrUnknownEntity, entityType)
	}
}

func (s *Syncer) notifyNewCustomers(ctx context.Context, recs []model.SourceRecord) error {
	customers := make([]billing.Customer, 0, len(recs))
	for _, rec := range recs {
		var c billing.Customer
		if err := json.Unmarshal(rec.Payload, &c); err != nil {
			return fmt.Errorf("decode customer %s for notification: %w", rec.ID, err)
		}
		customers = append(customers, c)
	}
	audience := forward.BuildAudience(ctx, s.billing, customers, s.log)
	if len(audience) == 0 {
		s.log.Info("no notifiable customers (all lack email/phone/name)")
		return nil
	}
	return s.notifier.Deliver(ctx, audience, nil)
}

// fail records a failed watermark row carrying the given value and returns
// the failed result. The value is the prior watermark for landing failures
// and the already-advanced one when only notification failed.
func (s *Syncer) fail(ctx context.Context, entityType string, value int64, count int, started time.Time, err error) Result {
	s.log.Errorf("sync %s failed: %v", entityType, err)
	msg := err.Error()
	s.writeWatermark(ctx, entityType, value, count, started, model.StatusFailed, &msg)
	return Result{
		Status:        model.StatusFailed,
		RecordsSynced: count,
		Watermark:     value,
		Error:         msg,
	}
}

// writeWatermark appends a sync_history row. Write failures are logged, not
// propagated: already-landed data must not be aborted over a metadata write,
// and the idempotent upsert makes the resulting duplicate refetch safe.
func (s *Syncer) writeWatermark(ctx context.Context, entityType string, value int64, count int, started time.Time, status string, errMsg *string) {
	row := &model.SyncHistory{
		EntityType:      entityType,
		LastSyncValue:   value,
		RecordsSynced:   count,
		Status:          status,
		SyncStartedAt:   started,
		SyncCompletedAt: time.Now().UTC(),
		ErrorMessage:    errMsg,
	}
	if err := s.store.AppendWatermark(ctx, row); err != nil {
		s.log.Errorf("write watermark for %s: %v", entityType, err)
	}
}

func (s *Syncer) publishResult(ctx context.Context, entityType string, res Result) {
	if s.events == nil {
		return
	}
	payload, err := json.Marshal(struct {
		EntityType string `json:"entity_type"`
		Result
	}{EntityType: entityType, Result: res})
	if err != nil {
		return
	}
	if err := s.events.Publish(ctx, entityType, payload); err != nil {
		s.log.Warnf("publish sync result for %s: %v", entityType, err)
	}
}
