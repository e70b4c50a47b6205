package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/marcusvale/billing-sync/internal/logger"
	"github.com/marcusvale/billing-sync/internal/model"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T, name string) *Store {
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	assert.NoError(t, err)
	log, _ := logger.NewLogger()
	s := New(db, log)
	assert.NoError(t, s.AutoMigrate())
	return s
}

func TestLatestWatermark_NoHistory(t *testing.T) {
	s := newTestStore(t, "wm_empty")
	ctx := context.Background()

	wm := s.LatestWatermark(ctx, "customers")
	assert.Equal(t, "customers", wm.EntityType)
	assert.Equal(t, int64(0), wm.LastSyncValue)
	assert.Equal(t, model.StatusPending, wm.Status)
}

func TestLatestWatermark_LatestRowWins(t *testing.T) {
	s := newTestStore(t, "wm_latest")
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	values := []int64{100, 100, 250}
	for i, v := range values {
		assert.NoError(t, s.AppendWatermark(ctx, &model.SyncHistory{
			EntityType:      "customers",
			LastSyncValue:   v,
			Status:          model.StatusSuccess,
			SyncCompletedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	// a different entity type must not interfere
	assert.NoError(t, s.AppendWatermark(ctx, &model.SyncHistory{
		EntityType:      "subscriptions",
		LastSyncValue:   999,
		Status:          model.StatusSuccess,
		SyncCompletedAt: base.Add(time.Hour),
	}))

	wm := s.LatestWatermark(ctx, "customers")
	assert.Equal(t, int64(250), wm.LastSyncValue)
	assert.Equal(t, model.StatusSuccess, wm.Status)
}

func TestAppendRaw_DuplicateIDsAccumulate(t *testing.T) {
	s := newTestStore(t, "raw_dup")
	ctx := context.Background()

	rec := model.SourceRecord{ID: "cus_1", Created: 100, Payload: json.RawMessage(`{"id":"cus_1","created":100}`)}
	assert.NoError(t, s.AppendRaw(ctx, "customers", []model.SourceRecord{rec}))
	assert.NoError(t, s.AppendRaw(ctx, "customers", []model.SourceRecord{rec}))

	var count int64
	assert.NoError(t, s.db.Table("customers_raw").Count(&count).Error)
	assert.Equal(t, int64(2), count)

	var row model.RawRecord
	assert.NoError(t, s.db.Table("customers_raw").First(&row).Error)
	assert.Equal(t, "cus_1", row.RecordID)
	assert.JSONEq(t, `{"id":"cus_1","created":100}`, row.Payload)
}

func TestAppendRaw_EmptyIsNoop(t *testing.T) {
	s := newTestStore(t, "raw_empty")
	assert.NoError(t, s.AppendRaw(context.Background(), "customers", nil))

	var count int64
	assert.NoError(t, s.db.Table("customers_raw").Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestUpsertProcessed_UnknownEntity(t *testing.T) {
	s := newTestStore(t, "unknown_entity")
	recs := []model.SourceRecord{{ID: "x", Payload: json.RawMessage(`{}`)}}
	err := s.UpsertProcessed(context.Background(), "invoices", recs)
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestUpsertCustomers_LastWriteWins(t *testing.T) {
	s := newTestStore(t, "cust_upsert")
	ctx := context.Background()

	first := model.SourceRecord{ID: "cus_1", Created: 100,
		Payload: json.RawMessage(`{"id":"cus_1","object":"customer","email":"old@example.com","created":100}`)}
	second := model.SourceRecord{ID: "cus_1", Created: 100,
		Payload: json.RawMessage(`{"id":"cus_1","object":"customer","email":"new@example.com","created":100}`)}

	assert.NoError(t, s.UpsertProcessed(ctx, "customers", []model.SourceRecord{first}))
	assert.NoError(t, s.UpsertProcessed(ctx, "customers", []model.SourceRecord{second}))

	var count int64
	assert.NoError(t, s.db.Model(&model.Customer{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var row model.Customer
	assert.NoError(t, s.db.First(&row, "customer_id = ?", "cus_1").Error)
	assert.NotNil(t, row.Email)
	assert.Equal(t, "new@example.com", *row.Email)
}

func TestReplaceTiers_Wholesale(t *testing.T) {
	s := newTestStore(t, "tiers_replace")
	ctx := context.Background()

	old := []model.SourceRecord{{ID: "tier_old", Payload: json.RawMessage(`{"id":"tier_old","name":"Bronze"}`)}}
	assert.NoError(t, s.UpsertProcessed(ctx, "tiers", old))

	fresh := []model.SourceRecord{{ID: "tier_new", Payload: json.RawMessage(`{"id":"tier_new","name":"Gold","price":49.5}`)}}
	assert.NoError(t, s.UpsertProcessed(ctx, "tiers", fresh))

	var rows []model.MembershipTier
	assert.NoError(t, s.db.Find(&rows).Error)
	assert.Len(t, rows, 1)
	assert.Equal(t, "tier_new", rows[0].TierID)
	assert.NotNil(t, rows[0].Price)
	assert.Equal(t, "49.5", rows[0].Price.String())
}
