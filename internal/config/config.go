// Package config loads the scheduler's layered configuration: defaults,
// optional YAML file, then environment variable overrides — grounded on
// the teacher's viper-based `internal/config` package.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/fieldnote/scrapesched/internal/logger"
	"github.com/fieldnote/scrapesched/internal/scraper"
	"github.com/fieldnote/scrapesched/internal/worker"
)

// Config is the fully resolved, typed configuration for one scheduler process.
type Config struct {
	APIHost string `mapstructure:"api_host"`
	APIPort int    `mapstructure:"api_port"`

	DatabaseURL string `mapstructure:"database_url"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisDB     int    `mapstructure:"redis_db"`

	WSHeartbeatInterval time.Duration `mapstructure:"ws_heartbeat_interval"`

	Worker worker.Config
	Logger logger.Config
}

// Default values for the top-level keys that don't already have a
// Default* constant living next to their owning package.
const (
	DefaultAPIHost = "0.0.0.0"
	DefaultAPIPort = 8080

	DefaultDatabaseURL = "postgres://localhost:5432/scrapesched?sslmode=disable"
	DefaultRedisAddr   = "localhost:6379"
	DefaultRedisDB     = 0

	DefaultWSHeartbeatInterval = 30 * time.Second
	DefaultScrapeTimeout       = scraper.DefaultTimeout
)

// Load reads defaults, an optional config file (name "config", searched in
// "." and "./config"), and environment variable overrides, in that order of
// increasing precedence, and returns the resolved Config.
func Load(cfgFile string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		APIHost:             v.GetString("api_host"),
		APIPort:             v.GetInt("api_port"),
		DatabaseURL:         v.GetString("database_url"),
		RedisAddr:           v.GetString("redis_addr"),
		RedisDB:             v.GetInt("redis_db"),
		WSHeartbeatInterval: v.GetDuration("ws_heartbeat_interval"),
		Worker: worker.Config{
			PoolSize:            v.GetInt("worker.pool_size"),
			DrainTimeout:        v.GetDuration("worker.drain_timeout"),
			JobTimeout:          v.GetDuration("scrape_timeout"),
			HealthCheckInterval: v.GetDuration("worker.health_check_interval"),
			PollInterval:        v.GetDuration("consumer_poll_interval"),
			MaxRetryAttempts:    v.GetInt("max_retry_attempts"),
			RetryBaseDelay:      v.GetDuration("retry_base_delay"),
			RetryMaxDelay:       v.GetDuration("worker.retry_max_delay"),
		},
		Logger: logger.Config{
			Level:       v.GetString("logger.level"),
			Format:      v.GetString("logger.format"),
			Development: v.GetBool("logger.development"),
			OutputPaths: v.GetStringSlice("logger.output_paths"),
		},
	}

	if err := cfg.Worker.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid worker config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_host", DefaultAPIHost)
	v.SetDefault("api_port", DefaultAPIPort)
	v.SetDefault("database_url", DefaultDatabaseURL)
	v.SetDefault("redis_addr", DefaultRedisAddr)
	v.SetDefault("redis_db", DefaultRedisDB)
	v.SetDefault("ws_heartbeat_interval", DefaultWSHeartbeatInterval)

	v.SetDefault("max_retry_attempts", worker.DefaultMaxRetryAttempts)
	v.SetDefault("retry_base_delay", worker.DefaultRetryBaseDelay)
	v.SetDefault("scrape_timeout", DefaultScrapeTimeout)
	v.SetDefault("consumer_poll_interval", worker.DefaultPollInterval)

	v.SetDefault("worker.pool_size", worker.DefaultPoolSize)
	v.SetDefault("worker.drain_timeout", worker.DefaultDrainTimeout)
	v.SetDefault("worker.health_check_interval", worker.DefaultHealthCheckInterval)
	v.SetDefault("worker.retry_max_delay", worker.DefaultRetryMaxDelay)

	v.SetDefault("logger.level", logger.DefaultLevel)
	v.SetDefault("logger.format", logger.DefaultFormat)
	v.SetDefault("logger.development", false)
	v.SetDefault("logger.output_paths", logger.DefaultOutputPaths)
}

// bindEnv wires the Configuration table's keys (§6) to explicit environment
// variable names, matching the teacher's bindAppEnvVars/bindElasticsearchEnvVars
// pattern of naming each override rather than relying solely on the
// automatic dotted-to-underscore replacer.
func bindEnv(v *viper.Viper) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	_ = v.BindEnv("api_host", "SCRAPESCHED_API_HOST")
	_ = v.BindEnv("api_port", "SCRAPESCHED_API_PORT")
	_ = v.BindEnv("database_url", "SCRAPESCHED_DATABASE_URL")
	_ = v.BindEnv("redis_addr", "SCRAPESCHED_REDIS_ADDR")
	_ = v.BindEnv("redis_db", "SCRAPESCHED_REDIS_DB")
	_ = v.BindEnv("ws_heartbeat_interval", "SCRAPESCHED_WS_HEARTBEAT_INTERVAL")
	_ = v.BindEnv("max_retry_attempts", "SCRAPESCHED_MAX_RETRY_ATTEMPTS")
	_ = v.BindEnv("retry_base_delay", "SCRAPESCHED_RETRY_BASE_DELAY")
	_ = v.BindEnv("scrape_timeout", "SCRAPESCHED_SCRAPE_TIMEOUT")
	_ = v.BindEnv("consumer_poll_interval", "SCRAPESCHED_CONSUMER_POLL_INTERVAL")
	_ = v.BindEnv("logger.level", "LOG_LEVEL")
	_ = v.BindEnv("logger.format", "LOG_FORMAT")
}
