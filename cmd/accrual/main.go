package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Radia-Labs/radia-collectibles/internal/accrual"
	"github.com/Radia-Labs/radia-collectibles/pkg/config"
	"github.com/Radia-Labs/radia-collectibles/pkg/consumer"
	"github.com/Radia-Labs/radia-collectibles/pkg/directory"
	"github.com/Radia-Labs/radia-collectibles/pkg/logger"
	"github.com/Radia-Labs/radia-collectibles/pkg/mailer"
	"github.com/Radia-Labs/radia-collectibles/pkg/secrets"
	"github.com/Radia-Labs/radia-collectibles/pkg/server"
	"github.com/Radia-Labs/radia-collectibles/pkg/spotify"
	"github.com/Radia-Labs/radia-collectibles/pkg/store"
	"github.com/Radia-Labs/radia-collectibles/pkg/worker"

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
		ServiceName: "accrual",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer l.Sync()

	l.Info("accrual service initializing", zap.String("env", cfg.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
	achievementStore := store.NewPacedStore(
		store.NewMongoStore(coll),
		cfg.Accrual.WritesPerSecond,
		cfg.Accrual.WriteBurst,
	)

	// 4. Initialize secrets and the provider client
	secretsProvider := newSecretsProvider(cfg)
	spotifyClient := spotify.NewClient()

	// 5. Initialize email
	sender := newSender(ctx, cfg, secretsProvider, l, cfg.Accrual.EmailEnabled, cfg.Accrual.EmailFrom)

	// 6. Initialize the artist directory (optional)
	var dir directory.Directory
	if cfg.Postgres.URI != "" {
		pgDir, err := directory.NewPGDirectory(ctx, directory.PostgresConfig{
			URI:      cfg.Postgres.URI,
			MinConns: int32(cfg.Postgres.MinConns),
			MaxConns: int32(cfg.Postgres.MaxConns),
		}, l)
		if err != nil {
			l.Error("failed to connect to postgres", err)
			os.Exit(1)
		}
		defer pgDir.Close()
		dir = pgDir
	} else {
		l.Info("artist directory disabled, no postgres uri configured")
	}

	// 7. Initialize Consumer
	kafkaConsumer := consumer.NewKafkaConsumer(consumer.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.AccrualTopic,
		GroupID: "accrual-group",
	})
	defer kafkaConsumer.Close()

	// 8. Initialize Coordinator and Worker Pool
	coordinator := accrual.NewCoordinator(l, achievementStore, spotifyClient, secretsProvider, dir, sender, accrual.Config{
		RecentLimit:       cfg.Accrual.RecentLimit,
		SpotifySecretName: cfg.Secrets.SpotifyName,
		EmailEnabled:      cfg.Accrual.EmailEnabled,
	})
	workerPool := worker.NewWorkerPool(l, coordinator, kafkaConsumer, cfg.Accrual.WorkerCount)

	// 9. Create service
	svc := accrual.NewService(l, kafkaConsumer, workerPool)

	// 10. Start observability server
	obsServer := server.New(":8081", l)
	go func() {
		if err := obsServer.Start(); err != nil {
			l.Error("observability server failed", err)
		}
	}()

	// 11. Start service
	l.Info("accrual service starting")
	if err := svc.Start(ctx); err != nil {
		if err == context.Canceled {
			l.Info("accrual service stopping")
		} else {
			l.Error("accrual service failed", err)
		}
	}

	// Clean up observability server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	obsServer.Shutdown(shutdownCtx)
}

func newSecretsProvider(cfg *config.AppConfig) secrets.Provider {
	if cfg.Secrets.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		return secrets.NewRedisProvider(rdb, cfg.Secrets.RedisPrefix)
	}
	return secrets.NewFileProvider(cfg.Secrets.FilePath)
}

// newSender resolves the email API key and falls back to a no-op sender when
// email is disabled or the key is missing, so runs proceed without it.
func newSender(ctx context.Context, cfg *config.AppConfig, sp secrets.Provider, l *logger.Logger, enabled bool, from string) mailer.Sender {
	if !enabled {
		return mailer.NewNoopSender(l)
	}
	bundle, err := sp.Get(ctx, cfg.Secrets.APIName)
	if err != nil {
		l.Warn("email disabled, api credentials unavailable", zap.Error(err))
		return mailer.NewNoopSender(l)
	}
	apiKey := bundle["RESEND_API_KEY"]
	if apiKey == "" || from == "" {
		l.Warn("email disabled, missing api key or from address")
		return mailer.NewNoopSender(l)
	}
	return mailer.NewResendSender(apiKey, from, l)
}
