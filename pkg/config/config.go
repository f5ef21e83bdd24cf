package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig holds the complete configuration for the application
type AppConfig struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	ServiceName string          `mapstructure:"service_name"`
	MongoDB     MongoConfig     `mapstructure:"mongodb"`
	Kafka       KafkaConfig     `mapstructure:"kafka"`
	Postgres    PostgresConfig  `mapstructure:"postgres"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Secrets     SecretsConfig   `mapstructure:"secrets"`
	Scheduler   SchedulerConfig `mapstructure:"scheduler"`
	Accrual     AccrualConfig   `mapstructure:"accrual"`
	Digest      DigestConfig    `mapstructure:"digest"`
}

type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	Collection     string        `mapstructure:"collection"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type KafkaConfig struct {
	Brokers      []string `mapstructure:"brokers"`
	AccrualTopic string   `mapstructure:"accrual_topic"`
	DigestTopic  string   `mapstructure:"digest_topic"`
}

type PostgresConfig struct {
	URI             string        `mapstructure:"uri"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
}

type SecretsConfig struct {
	// Backend selects "file" or "redis".
	Backend     string `mapstructure:"backend"`
	FilePath    string `mapstructure:"file_path"`
	RedisPrefix string `mapstructure:"redis_prefix"`
	SpotifyName string `mapstructure:"spotify_name"`
	APIName     string `mapstructure:"api_name"`
}

type SchedulerConfig struct {
	ResumeTokenPath string `mapstructure:"resume_token_path"`
	// Mode selects "daily", "stream" or "digest".
	Mode string `mapstructure:"mode"`
}

type AccrualConfig struct {
	WorkerCount     int     `mapstructure:"worker_count"`
	RecentLimit     int     `mapstructure:"recent_limit"`
	WritesPerSecond float64 `mapstructure:"writes_per_second"`
	WriteBurst      int     `mapstructure:"write_burst"`
	EmailEnabled    bool    `mapstructure:"email_enabled"`
	EmailFrom       string  `mapstructure:"email_from"`
}

type DigestConfig struct {
	WindowDays   int    `mapstructure:"window_days"`
	EmailEnabled bool   `mapstructure:"email_enabled"`
	EmailFrom    string `mapstructure:"email_from"`
	ArtistPage   string `mapstructure:"artist_page"`
}

// Load loads configuration from file and environment variables
func Load(path string) (*AppConfig, error) {
	v := viper.New()

	// Default values
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("mongodb.connect_timeout", 10*time.Second)
	v.SetDefault("mongodb.collection", "user_records")
	v.SetDefault("kafka.accrual_topic", "accrual-jobs")
	v.SetDefault("kafka.digest_topic", "digest-jobs")
	v.SetDefault("postgres.max_conns", 50)
	v.SetDefault("postgres.min_conns", 10)
	v.SetDefault("postgres.uri", "")
	v.SetDefault("secrets.backend", "file")
	v.SetDefault("secrets.file_path", "secrets.json")
	v.SetDefault("secrets.redis_prefix", "secrets:")
	v.SetDefault("secrets.spotify_name", "radia/spotify")
	v.SetDefault("secrets.api_name", "radia/api")
	v.SetDefault("scheduler.resume_token_path", "resume_token.bin")
	v.SetDefault("scheduler.mode", "stream")
	v.SetDefault("accrual.worker_count", 4)
	v.SetDefault("accrual.recent_limit", 50)
	v.SetDefault("accrual.writes_per_second", 2.0)
	v.SetDefault("accrual.write_burst", 1)
	v.SetDefault("accrual.email_enabled", false)
	v.SetDefault("digest.window_days", 7)
	v.SetDefault("digest.email_enabled", true)
	v.SetDefault("digest.artist_page", "https://beta.radia.world/artist/")

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Config file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	// Bind environment variables explicitly for nested structs to ensure Unmarshal picks them up
	v.BindEnv("service_name", "SERVICE_NAME")
	v.BindEnv("environment", "ENVIRONMENT")
	v.BindEnv("log_level", "LOG_LEVEL")
	v.BindEnv("mongodb.uri", "MONGODB_URI")
	v.BindEnv("mongodb.database", "MONGODB_DATABASE")
	v.BindEnv("mongodb.collection", "MONGODB_COLLECTION")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.accrual_topic", "KAFKA_ACCRUAL_TOPIC")
	v.BindEnv("kafka.digest_topic", "KAFKA_DIGEST_TOPIC")
	v.BindEnv("postgres.uri", "POSTGRES_URI")
	v.BindEnv("postgres.max_conns", "POSTGRES_MAX_CONNS")
	v.BindEnv("postgres.min_conns", "POSTGRES_MIN_CONNS")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("secrets.backend", "SECRETS_BACKEND")
	v.BindEnv("secrets.file_path", "SECRETS_FILE_PATH")
	v.BindEnv("scheduler.resume_token_path", "SCHEDULER_RESUME_TOKEN_PATH")
	v.BindEnv("scheduler.mode", "SCHEDULER_MODE")
	v.BindEnv("accrual.worker_count", "ACCRUAL_WORKER_COUNT")
	v.BindEnv("accrual.recent_limit", "ACCRUAL_RECENT_LIMIT")
	v.BindEnv("accrual.writes_per_second", "ACCRUAL_WRITES_PER_SECOND")
	v.BindEnv("accrual.email_enabled", "ACCRUAL_EMAIL_ENABLED")
	v.BindEnv("accrual.email_from", "ACCRUAL_EMAIL_FROM")
	v.BindEnv("digest.window_days", "DIGEST_WINDOW_DAYS")
	v.BindEnv("digest.email_enabled", "DIGEST_EMAIL_ENABLED")
	v.BindEnv("digest.email_from", "DIGEST_EMAIL_FROM")

	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Manual check for Kafka brokers if they came as a single string from env
	brokers := v.GetString("kafka.brokers")
	if brokers != "" && len(config.Kafka.Brokers) == 0 {
		config.Kafka.Brokers = strings.Split(brokers, ",")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *AppConfig) Validate() error {
	if c.ServiceName == "" {
		return errors.New("service_name is required")
	}
	if c.MongoDB.URI == "" {
		return errors.New("mongodb.uri is required")
	}
	if c.MongoDB.Database == "" {
		return errors.New("mongodb.database is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required")
	}
	if c.Kafka.AccrualTopic == "" {
		return errors.New("kafka.accrual_topic is required")
	}
	if c.Secrets.Backend != "file" && c.Secrets.Backend != "redis" {
		return errors.New("secrets.backend must be file or redis")
	}
	if c.Secrets.Backend == "redis" && c.Redis.Addr == "" {
		return errors.New("redis.addr is required for the redis secrets backend")
	}
	if c.Scheduler.ResumeTokenPath == "" {
		return errors.New("scheduler.resume_token_path is required")
	}
	if c.Accrual.WorkerCount < 1 {
		return errors.New("accrual.worker_count must be at least 1")
	}
	return nil
}
