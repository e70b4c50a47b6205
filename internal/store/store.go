package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marcusvale/billing-sync/internal/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// writeBatchSize bounds each warehouse insert. A failed batch aborts the
// remaining batches for that entity type.
const writeBatchSize = 500

// rawEntities lists the entity types that get an append-only raw table.
var rawEntities = []string{"customers", "subscriptions", "tiers", "members"}

// Interface restricts Store methods (mock-friendly for unit tests).
type Interface interface {
	LatestWatermark(ctx context.Context, entityType string) model.SyncHistory
	AppendWatermark(ctx context.Context, row *model.SyncHistory) error
	AppendRaw(ctx context.Context, entityType string, recs []model.SourceRecord) error
	UpsertProcessed(ctx context.Context, entityType string, recs []model.SourceRecord) error
}

// Store implements the warehouse side of the sync: the sync_history watermark
// table, per-entity raw landing tables and the flattened processed tables.
type Store struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

// New constructs a Store.
func New(db *gorm.DB, log *zap.SugaredLogger) *Store {
	return &Store{db: db, log: log}
}

// AutoMigrate creates the warehouse tables.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(
		&model.SyncHistory{},
		&model.Customer{},
		&model.Subscription{},
		&model.MembershipTier{},
		&model.Member{},
	); err != nil {
		return err
	}
	for _, entity := range rawEntities {
		if err := s.db.Table(entity + "_raw").AutoMigrate(&model.RawRecord{}); err != nil {
			return fmt.Errorf("migrate %s_raw: %w", entity, err)
		}
	}
	return nil
}

// LatestWatermark returns the most recent sync_history row for the entity
// type. Absence and read failures both degrade to the zero-value record so a
// broken metadata read never blocks a full resync; the downstream upsert is
// idempotent, so the worst case is a redundant refetch.
func (s *Store) LatestWatermark(ctx context.Context, entityType string) model.SyncHistory {
	var row model.SyncHistory
	err := s.db.WithContext(ctx).
		Where("entity_type = ?", entityType).
		Order("sync_completed_at DESC, id DESC").
		First(&row).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warnf("read watermark for %s: %v (treating as first sync)", entityType, err)
		}
		return model.SyncHistory{EntityType: entityType, Status: model.StatusPending}
	}
	return row
}

// AppendWatermark inserts a sync_history row. History is never updated in
// place; the latest row wins.
func (s *Store) AppendWatermark(ctx context.Context, row *model.SyncHistory) error {
	return s.db.WithContext(ctx).Create(row).Error
}

// AppendRaw lands records verbatim in the entity's raw table, in batches.
func (s *Store) AppendRaw(ctx context.Context, entityType string, recs []model.SourceRecord) error {
	if len(recs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	table := entityType + "_raw"
	for i := 0; i < len(recs); i += writeBatchSize {
		end := i + writeBatchSize
		if end > len(recs) {
			end = len(recs)
		}
		rows := make([]model.RawRecord, 0, end-i)
		for _, rec := range recs[i:end] {
			rows = append(rows, model.RawRecord{
				RecordID:        rec.ID,
				Payload:         string(rec.Payload),
				IngestedAt:      now,
				SourceCreatedAt: time.Unix(rec.Created, 0).UTC(),
			})
		}
		if err := s.db.WithContext(ctx).Table(table).Create(&rows).Error; err != nil {
			return fmt.Errorf("append batch %d to %s: %w", i/writeBatchSize+1, table, err)
		}
	}
	s.log.Infof("landed %d raw rows in %s", len(recs), table)
	return nil
}
