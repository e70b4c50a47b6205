package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/marcusvale/billing-sync/internal/billing"
	"github.com/marcusvale/billing-sync/internal/config"
	"github.com/marcusvale/billing-sync/internal/forward"
	"github.com/marcusvale/billing-sync/internal/logger"
	"github.com/marcusvale/billing-sync/internal/membership"
	"github.com/marcusvale/billing-sync/internal/store"
	"github.com/marcusvale/billing-sync/internal/syncer"
	httptransport "github.com/marcusvale/billing-sync/internal/transport/http"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// 1. load config
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres warehouse
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	st := store.New(gdb, log)
	if err := st.AutoMigrate(); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. redis (membership token cache)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. kafka writer for sync-result events
	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}

	// 6. vendor clients, forwarder, syncer
	billingClient := billing.NewClient(cfg.Billing, log)
	membershipClient := membership.NewClient(cfg.Membership, rdb, log)
	forwarder := forward.New(cfg.Webhook, log)
	s := syncer.New(st, billingClient, membershipClient, forwarder, syncer.NewKafkaPublisher(kw), log)

	// 7. gin router
	router := httptransport.NewRouter(s, cfg.RateLimit, log)

	// 8. serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("billing-sync listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
