package main

import (
	"fmt"
	"os"
	"time"

	"codearena/internal/common/auth"
	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	"codearena/internal/common/mq"
	"codearena/internal/common/storage"
	contestservice "codearena/internal/contest/service"
	judgeclient "codearena/internal/judge/client"
	"codearena/internal/judge/runner"
	submitservice "codearena/internal/submit/service"
	"codearena/pkg/utils/logger"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr" validate:"required"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// DatabaseConfig selects the SQL driver. The MySQL DSN needs parseTime=true.
type DatabaseConfig struct {
	Driver string        `yaml:"driver" validate:"oneof=mysql postgres"`
	DSN    string        `yaml:"dsn" validate:"required"`
	Pool   db.PoolConfig `yaml:"pool"`
}

type MinIOConfig struct {
	storage.MinIOConfig `yaml:",inline"`
	Enabled             bool   `yaml:"enabled"`
	ArchivePrefix       string `yaml:"archivePrefix"`
}

type KafkaConfig struct {
	mq.KafkaConfig `yaml:",inline"`
	Enabled        bool   `yaml:"enabled"`
	ConsumerGroup  string `yaml:"consumerGroup"`
}

type TopicConfig struct {
	SubmissionJudged   string `yaml:"submissionJudged"`
	ContestLeaderboard string `yaml:"contestLeaderboard"`
	PrizeAwarded       string `yaml:"prizeAwarded"`
}

// RateLimitConfig limits the judge-backed routes per IP and per user.
type RateLimitConfig struct {
	Window       time.Duration `yaml:"window"`
	IPMax        int           `yaml:"ipMax" validate:"gte=0"`
	UserMax      int           `yaml:"userMax" validate:"gte=0"`
	CacheTimeout time.Duration `yaml:"cacheTimeout"`
}

type CacheConfig struct {
	ProblemTTL      time.Duration `yaml:"problemTTL"`
	ProblemEmptyTTL time.Duration `yaml:"problemEmptyTTL"`
	ContestTTL      time.Duration `yaml:"contestTTL"`
	ContestEmptyTTL time.Duration `yaml:"contestEmptyTTL"`
}

type SubmitConfig struct {
	MaxCodeBytes int                           `yaml:"maxCodeBytes" validate:"gte=0"`
	InflightTTL  time.Duration                 `yaml:"inflightTTL"`
	RateLimit    submitservice.RateLimitConfig `yaml:"rateLimit"`
	Timeouts     submitservice.TimeoutConfig   `yaml:"timeouts"`
}

type ContestConfig struct {
	MaxRetries int                          `yaml:"maxRetries" validate:"gte=0,lte=20"`
	Sweep      contestservice.SweeperConfig `yaml:"sweep"`
	Timeouts   contestservice.TimeoutConfig `yaml:"timeouts"`
}

// AppConfig holds arena-service configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Logger    logger.Config      `yaml:"logger"`
	Database  DatabaseConfig     `yaml:"database"`
	Redis     cache.RedisConfig  `yaml:"redis"`
	Kafka     KafkaConfig        `yaml:"kafka"`
	Topics    TopicConfig        `yaml:"topics"`
	MinIO     MinIOConfig        `yaml:"minio"`
	Judge     judgeclient.Config `yaml:"judge"`
	Runner    runner.Config      `yaml:"runner"`
	Auth      auth.Config        `yaml:"auth"`
	RateLimit RateLimitConfig    `yaml:"rateLimit"`
	Cache     CacheConfig        `yaml:"cache"`
	Submit    SubmitConfig       `yaml:"submit"`
	Contest   ContestConfig      `yaml:"contest"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required when kafka is enabled")
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "mysql"
	}

	if cfg.Kafka.ClientID == "" {
		cfg.Kafka.ClientID = "arena-service"
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = "arena-leaderboard-ws"
	}
	if cfg.Topics.SubmissionJudged == "" {
		cfg.Topics.SubmissionJudged = "submission.judged"
	}
	if cfg.Topics.ContestLeaderboard == "" {
		cfg.Topics.ContestLeaderboard = "contest.leaderboard"
	}
	if cfg.Topics.PrizeAwarded == "" {
		cfg.Topics.PrizeAwarded = "contest.prize_awarded"
	}

	if cfg.MinIO.ArchivePrefix == "" {
		cfg.MinIO.ArchivePrefix = "solutions"
	}

	if cfg.Runner.Concurrency == 0 {
		cfg.Runner.Concurrency = 4
	}

	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = time.Minute
	}
	if cfg.RateLimit.IPMax == 0 {
		cfg.RateLimit.IPMax = 60
	}
	if cfg.RateLimit.UserMax == 0 {
		cfg.RateLimit.UserMax = 30
	}
	if cfg.RateLimit.CacheTimeout == 0 {
		cfg.RateLimit.CacheTimeout = 500 * time.Millisecond
	}

	if cfg.Submit.MaxCodeBytes == 0 {
		cfg.Submit.MaxCodeBytes = 64 * 1024
	}
	if cfg.Submit.InflightTTL == 0 {
		cfg.Submit.InflightTTL = 2 * time.Minute
	}
	if cfg.Submit.RateLimit.Window == 0 {
		cfg.Submit.RateLimit.Window = time.Minute
	}
	if cfg.Submit.RateLimit.UserMax == 0 {
		cfg.Submit.RateLimit.UserMax = 10
	}
	if cfg.Submit.Timeouts.DB == 0 {
		cfg.Submit.Timeouts.DB = 3 * time.Second
	}
	if cfg.Submit.Timeouts.Cache == 0 {
		cfg.Submit.Timeouts.Cache = time.Second
	}
	if cfg.Submit.Timeouts.MQ == 0 {
		cfg.Submit.Timeouts.MQ = 3 * time.Second
	}
	if cfg.Submit.Timeouts.Storage == 0 {
		cfg.Submit.Timeouts.Storage = 5 * time.Second
	}

	if cfg.Contest.MaxRetries == 0 {
		cfg.Contest.MaxRetries = 5
	}
	if cfg.Contest.Timeouts.DB == 0 {
		cfg.Contest.Timeouts.DB = 3 * time.Second
	}
	if cfg.Contest.Timeouts.MQ == 0 {
		cfg.Contest.Timeouts.MQ = 3 * time.Second
	}
}
