package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Radia-Labs/radia-collectibles/internal/scheduler"
	"github.com/Radia-Labs/radia-collectibles/pkg/changestream"
	"github.com/Radia-Labs/radia-collectibles/pkg/config"
	"github.com/Radia-Labs/radia-collectibles/pkg/logger"
	"github.com/Radia-Labs/radia-collectibles/pkg/producer"
	"github.com/Radia-Labs/radia-collectibles/pkg/server"
	"github.com/Radia-Labs/radia-collectibles/pkg/store"
	"github.com/Radia-Labs/radia-collectibles/pkg/token"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func main() {
	// 1. Load config
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	l, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		ServiceName: "scheduler",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer l.Sync()

	l.Info("scheduler service initializing",
		zap.String("env", cfg.Environment),
		zap.String("mode", cfg.Scheduler.Mode))

	// 3. Initialize MongoDB
	mongoCtx, mongoCancel := context.WithTimeout(context.Background(), cfg.MongoDB.ConnectTimeout)
	defer mongoCancel()
	client, err := mongo.Connect(mongoCtx, options.Client().ApplyURI(cfg.MongoDB.URI))
	if err != nil {
		l.Error("failed to connect to mongodb", err)
		os.Exit(1)
	}
	defer client.Disconnect(context.Background())

	coll := client.Database(cfg.MongoDB.Database).Collection(cfg.MongoDB.Collection)

	// 4. Initialize components
	var tokenStore token.TokenStore
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer rdb.Close()
		tokenStore = token.NewRedisTokenStore(rdb, "scheduler:resume_token")
	} else {
		tokenStore = token.NewFileTokenStore(cfg.Scheduler.ResumeTokenPath)
	}

	checkProducer := producer.NewKafkaProducer(producer.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.AccrualTopic,
	})
	digestProducer := producer.NewKafkaProducer(producer.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.DigestTopic,
	})
	streamWatcher := changestream.NewMongoWatcher(coll)
	mongoStore := store.NewMongoStore(coll)

	// 5. Create service
	svc := scheduler.NewService(l, mongoStore, tokenStore, streamWatcher, checkProducer, digestProducer)

	// 6. Start observability server
	obsServer := server.New(":8080", l)
	go func() {
		if err := obsServer.Start(); err != nil {
			l.Error("observability server failed", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 7. Run the selected mode. The stream mode blocks until shutdown; the
	// sweep modes do one pass and exit, suited to cron invocation.
	l.Info("scheduler service starting")
	switch cfg.Scheduler.Mode {
	case "stream":
		err = svc.RunStream(ctx)
	case "daily":
		err = svc.RunDailySweep(ctx)
		if stopErr := svc.Stop(context.Background()); stopErr != nil {
			l.Error("error during service stop", stopErr)
		}
	case "digest":
		err = svc.RunDigestSweep(ctx)
		if stopErr := svc.Stop(context.Background()); stopErr != nil {
			l.Error("error during service stop", stopErr)
		}
	default:
		err = fmt.Errorf("unknown scheduler mode %q", cfg.Scheduler.Mode)
	}
	if err != nil {
		if err == context.Canceled {
			l.Info("scheduler service stopping")
		} else {
			l.Error("scheduler service failed", err)
		}
	}

	// Clean up observability server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	obsServer.Shutdown(shutdownCtx)
}
