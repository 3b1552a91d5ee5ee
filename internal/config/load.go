// Package config defines environment configuration structs and loaders.
package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type AppConfig struct {
	CloudflareEnvConfig
	RedisEnvConfig
	StorageEnvConfig
	PredictionEnvConfig
	BacktestEnvConfig
	ForecasterEnvConfig
}

func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if cfg.KVNamespaceID == "" {
		cfg.KVNamespaceID = cfg.MetricsNamespaceID
	}
	return cfg, nil
}

// CloudflareEnvConfig holds Cloudflare KV credentials and client tuning.
type CloudflareEnvConfig struct {
	AccountID          string        `env:"CF_ACCOUNT_ID"`
	APIToken           string        `env:"CF_API_TOKEN"`
	KVNamespaceID      string        `env:"CF_KV_NAMESPACE_ID"`
	MetricsNamespaceID string        `env:"CF_METRICS_NAMESPACE_ID"`
	APIBaseURL         string        `env:"CF_API_BASE_URL" envDefault:"https://api.cloudflare.com/client/v4"`
	Timeout            time.Duration `env:"CF_TIMEOUT" envDefault:"20s"`
	RetryMax           int           `env:"CF_RETRY_MAX" envDefault:"3"`
}

// HasCredentials reports whether every value needed to talk to KV is present.
func (c CloudflareEnvConfig) HasCredentials() bool {
	return c.AccountID != "" && c.APIToken != "" && c.KVNamespaceID != ""
}

// RedisEnvConfig configures the optional Redis read-through cache.
type RedisEnvConfig struct {
	RedisEnabled  bool          `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHost     string        `env:"REDIS_HOST" envDefault:"127.0.0.1"`
	RedisPort     int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	RedisCacheTTL time.Duration `env:"REDIS_CACHE_TTL" envDefault:"1h"`
}

// StorageEnvConfig names the stored documents and the local backup directory.
type StorageEnvConfig struct {
	HistoryKey     string `env:"HISTORY_KEY" envDefault:"top_subnets_history"`
	PredictionsKey string `env:"PREDICTIONS_KEY" envDefault:"subnet_predictions"`
	BacktestKey    string `env:"BACKTEST_KEY" envDefault:"backtest_results"`
	DataDir        string `env:"DATA_DIR" envDefault:".github/data"`
	BackupCompress bool   `env:"BACKUP_COMPRESS" envDefault:"false"`
}

// PredictionEnvConfig configures a prediction run.
type PredictionEnvConfig struct {
	LookbackDays     int     `env:"LOOKBACK_DAYS" envDefault:"28"`
	MinDataPoints    int     `env:"MIN_DATA_POINTS" envDefault:"48"`
	TargetDates      string  `env:"PREDICTION_TARGET_DATES"`
	ModelConfigFile  string  `env:"MODEL_CONFIG_FILE"`
	DefaultLeaderGap float64 `env:"DEFAULT_LEADER_GAP" envDefault:"100"`
}

// BacktestEnvConfig configures the backtest sweep.
type BacktestEnvConfig struct {
	BacktestDays      int   `env:"BACKTEST_DAYS" envDefault:"14"`
	PredictionWindows []int `env:"BACKTEST_PREDICTION_WINDOWS" envDefault:"7,14,30" envSeparator:","`
	MaxTests          int   `env:"BACKTEST_MAX_TESTS" envDefault:"10"`
	LookbackFloorDays int   `env:"BACKTEST_LOOKBACK_FLOOR_DAYS" envDefault:"28"`
	MinSnapshots      int   `env:"BACKTEST_MIN_SNAPSHOTS" envDefault:"48"`
}

// ForecasterEnvConfig configures the long-running forecaster.
type ForecasterEnvConfig struct {
	Environment  string        `env:"ENVIRONMENT" envDefault:"dev"`
	ForecastCron string        `env:"FORECAST_CRON" envDefault:"0 15 * * * *"`
	BacktestCron string        `env:"BACKTEST_CRON" envDefault:"0 30 3 * * *"`
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8090"`
	RunTimeout   time.Duration `env:"RUN_TIMEOUT" envDefault:"2m"`
}

// IsProd reports whether the forecaster runs with production settings.
func (c ForecasterEnvConfig) IsProd() bool {
	return strings.ToLower(c.Environment) == "prod"
}
