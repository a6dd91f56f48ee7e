package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	AppEnv      string `env:"APP_ENV"      envDefault:"development" validate:"oneof=development production"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"    validate:"oneof=postgres memory"`

	RedisEnabled      bool   `env:"REDIS_ENABLED"       envDefault:"true"`
	RedisAuctionsHost string `env:"REDIS_AUCTIONS_HOST" envDefault:"localhost"`
	RedisAuctionsPort uint16 `env:"REDIS_AUCTIONS_PORT" envDefault:"6379"   validate:"min=1000,max=65535"`

	PostgresHost     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"auction_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"auction_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"auction_db"`

	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"8085" validate:"min=1000,max=65535"`

	InitialBalance int64 `env:"INITIAL_BALANCE" envDefault:"10000" validate:"min=0"`

	ReaperPollInterval time.Duration `env:"REAPER_POLL_INTERVAL" envDefault:"500ms" validate:"gt=0"`
	ReaperConcurrency  int           `env:"REAPER_CONCURRENCY"   envDefault:"16"    validate:"min=1,max=1024"`
	ReaperLockTTL      time.Duration `env:"REAPER_LOCK_TTL"      envDefault:"5s"    validate:"gt=0"`

	TxIsolation   string        `env:"TX_ISOLATION"    envDefault:"serializable" validate:"oneof=read_committed repeatable_read serializable"`
	TxMaxAttempts int           `env:"TX_MAX_ATTEMPTS" envDefault:"4"            validate:"min=1,max=50"`
	TxBaseDelay   time.Duration `env:"TX_BASE_DELAY"   envDefault:"50ms"         validate:"gte=0"`
	TxMaxDelay    time.Duration `env:"TX_MAX_DELAY"    envDefault:"1500ms"       validate:"gte=0"`
	TxJitterRatio float64       `env:"TX_JITTER_RATIO" envDefault:"0.3"          validate:"min=0,max=1"`
	TxDeadline    time.Duration `env:"TX_DEADLINE"     envDefault:"8s"           validate:"gte=0"`
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	// Parse config from environment variables
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	if err = Validate(cfg); err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}

func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}
