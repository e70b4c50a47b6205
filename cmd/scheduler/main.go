package main

import (
	"context"
	"fmt"
	"time"

	"github.com/marcusvale/billing-sync/internal/billing"
	"github.com/marcusvale/billing-sync/internal/config"
	"github.com/marcusvale/billing-sync/internal/forward"
	"github.com/marcusvale/billing-sync/internal/logger"
	"github.com/marcusvale/billing-sync/internal/membership"
	"github.com/marcusvale/billing-sync/internal/store"
	"github.com/marcusvale/billing-sync/internal/syncer"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	st := store.New(gdb, log)
	if err := st.AutoMigrate(); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}

	billingClient := billing.NewClient(cfg.Billing, log)
	membershipClient := membership.NewClient(cfg.Membership, rdb, log)
	forwarder := forward.New(cfg.Webhook, log)
	s := syncer.New(st, billingClient, membershipClient, forwarder, syncer.NewKafkaPublisher(kw), log)

	interval := time.Duration(cfg.Scheduler.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Infof("sync-scheduler started (every %s)", interval)
	runOnce(s, log)
	for range ticker.C {
		runOnce(s, log)
	}
}

func runOnce(s *syncer.Syncer, log *zap.SugaredLogger) {
	report := s.Run(context.Background(), nil)
	for entity, res := range report.Results {
		log.Infof("%s: %d records - %s", entity, res.RecordsSynced, res.Status)
	}
}
