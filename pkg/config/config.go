package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig holds the complete configuration for the tracker service
type AppConfig struct {
	Environment string         `mapstructure:"environment"`
	LogLevel    string         `mapstructure:"log_level"`
	ServiceName string         `mapstructure:"service_name"`
	Server      ServerConfig   `mapstructure:"server"`
	Store       StoreConfig    `mapstructure:"store"`
	MongoDB     MongoConfig    `mapstructure:"mongodb"`
	Postgres    PostgresConfig `mapstructure:"postgres"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Kafka       KafkaConfig    `mapstructure:"kafka"`
	Upstream    UpstreamConfig `mapstructure:"upstream"`
	Tracker     TrackerConfig  `mapstructure:"tracker"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type StoreConfig struct {
	// Backend selects the persistence implementation: "mongo" or "postgres"
	Backend string `mapstructure:"backend"`
}

type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	Collection     string        `mapstructure:"collection"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type PostgresConfig struct {
	URI      string `mapstructure:"uri"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type UpstreamConfig struct {
	ProfileURL     string        `mapstructure:"profile_url"`
	HiscoreURL     string        `mapstructure:"hiscore_url"`
	PriceURL       string        `mapstructure:"price_url"`
	ItemURL        string        `mapstructure:"item_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ActivityWindow int           `mapstructure:"activity_window"`
}

type TrackerConfig struct {
	CronSpec        string        `mapstructure:"cron_spec"`
	ThrottleDelay   time.Duration `mapstructure:"throttle_delay"`
	ConflictRetries int           `mapstructure:"conflict_retries"`
}

// Load loads configuration from file and environment variables
func Load(path string) (*AppConfig, error) {
	v := viper.New()

	// Default values
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("store.backend", "mongo")
	v.SetDefault("mongodb.collection", "user_trackers")
	v.SetDefault("mongodb.connect_timeout", 10*time.Second)
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("redis.cache_ttl", 5*time.Minute)
	v.SetDefault("upstream.profile_url", "https://apps.runescape.com/runemetrics/profile/profile")
	v.SetDefault("upstream.hiscore_url", "https://secure.runescape.com")
	v.SetDefault("upstream.price_url", "https://prices.runescape.wiki/api/v1/osrs/latest?id=23903")
	v.SetDefault("upstream.item_url", "https://secure.runescape.com/m=itemdb_rs/api/catalogue/detail.json")
	v.SetDefault("upstream.timeout", 15*time.Second)
	v.SetDefault("upstream.activity_window", 20)
	v.SetDefault("tracker.cron_spec", "0 */3 * * *")
	v.SetDefault("tracker.throttle_delay", 1*time.Second)
	v.SetDefault("tracker.conflict_retries", 3)

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
	v.BindEnv("server.addr", "SERVER_ADDR")
	v.BindEnv("store.backend", "STORE_BACKEND")
	v.BindEnv("mongodb.uri", "MONGODB_URI")
	v.BindEnv("mongodb.database", "MONGODB_DATABASE")
	v.BindEnv("mongodb.collection", "MONGODB_COLLECTION")
	v.BindEnv("postgres.uri", "POSTGRES_URI")
	v.BindEnv("postgres.max_conns", "POSTGRES_MAX_CONNS")
	v.BindEnv("postgres.min_conns", "POSTGRES_MIN_CONNS")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.cache_ttl", "REDIS_CACHE_TTL")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_TOPIC")
	v.BindEnv("upstream.profile_url", "UPSTREAM_PROFILE_URL")
	v.BindEnv("upstream.hiscore_url", "UPSTREAM_HISCORE_URL")
	v.BindEnv("upstream.price_url", "UPSTREAM_PRICE_URL")
	v.BindEnv("upstream.item_url", "UPSTREAM_ITEM_URL")
	v.BindEnv("upstream.timeout", "UPSTREAM_TIMEOUT")
	v.BindEnv("upstream.activity_window", "UPSTREAM_ACTIVITY_WINDOW")
	v.BindEnv("tracker.cron_spec", "TRACKER_CRON_SPEC")
	v.BindEnv("tracker.throttle_delay", "TRACKER_THROTTLE_DELAY")
	v.BindEnv("tracker.conflict_retries", "TRACKER_CONFLICT_RETRIES")

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
	switch c.Store.Backend {
	case "mongo":
		if c.MongoDB.URI == "" {
			return errors.New("mongodb.uri is required")
		}
		if c.MongoDB.Database == "" {
			return errors.New("mongodb.database is required")
		}
	case "postgres":
		if c.Postgres.URI == "" {
			return errors.New("postgres.uri is required")
		}
	default:
		return errors.New(`store.backend must be "mongo" or "postgres"`)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka.topic is required when kafka.brokers is set")
	}
	if c.Upstream.ProfileURL == "" {
		return errors.New("upstream.profile_url is required")
	}
	if c.Upstream.HiscoreURL == "" {
		return errors.New("upstream.hiscore_url is required")
	}
	if c.Tracker.CronSpec == "" {
		return errors.New("tracker.cron_spec is required")
	}
	if c.Tracker.ThrottleDelay < 0 {
		return errors.New("tracker.throttle_delay must not be negative")
	}
	return nil
}
