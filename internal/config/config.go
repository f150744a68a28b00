// Package config loads server settings from a YAML file and MESSENGER_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StorePebble   = "pebble"
)

// Blob backends.
const (
	BlobMemory = "memory"
	BlobS3     = "s3"
)

type ServerCfg struct {
	Addr        string `mapstructure:"addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	Dev         bool   `mapstructure:"dev"`
	TLSCert     string `mapstructure:"tls_cert"`
	TLSKey      string `mapstructure:"tls_key"`
}

type StoreCfg struct {
	Backend     string        `mapstructure:"backend"`
	DSN         string        `mapstructure:"dsn"`
	PebbleDir   string        `mapstructure:"pebble_dir"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
}

type BlobCfg struct {
	Backend  string        `mapstructure:"backend"`
	Bucket   string        `mapstructure:"bucket"`
	Region   string        `mapstructure:"region"`
	Endpoint string        `mapstructure:"endpoint"`
	URLTTL   time.Duration `mapstructure:"url_ttl"`
	BaseURL  string        `mapstructure:"base_url"`
}

// RedisCfg enables cross-process change notification when Addr is set.
type RedisCfg struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// KafkaCfg enables domain event publishing when Brokers is non-empty.
type KafkaCfg struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type JWTCfg struct {
	Key string        `mapstructure:"key"`
	TTL time.Duration `mapstructure:"ttl"`
}

type Config struct {
	Server ServerCfg `mapstructure:"server"`
	Store  StoreCfg  `mapstructure:"store"`
	Blob   BlobCfg   `mapstructure:"blob"`
	Redis  RedisCfg  `mapstructure:"redis"`
	Kafka  KafkaCfg  `mapstructure:"kafka"`
	JWT    JWTCfg    `mapstructure:"jwt"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8443")
	v.SetDefault("server.metrics_addr", ":9090")
	v.SetDefault("server.dev", false)
	v.SetDefault("server.tls_cert", "")
	v.SetDefault("server.tls_key", "")

	v.SetDefault("store.backend", StoreMemory)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.pebble_dir", "data/pebble")
	v.SetDefault("store.max_attempts", 8)
	v.SetDefault("store.base_delay", 10*time.Millisecond)

	v.SetDefault("blob.backend", BlobMemory)
	v.SetDefault("blob.bucket", "")
	v.SetDefault("blob.region", "us-east-1")
	v.SetDefault("blob.endpoint", "")
	v.SetDefault("blob.url_ttl", time.Hour)
	v.SetDefault("blob.base_url", "mem://blob")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "messenger")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "messenger.events")

	v.SetDefault("jwt.key", "")
	v.SetDefault("jwt.ttl", 24*time.Hour)
}

// Load reads path (optional) and overlays the environment. Nested keys map
// to variables like MESSENGER_STORE_BACKEND.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("MESSENGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// env lists arrive as one comma separated string
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreMemory, StorePebble:
	case StorePostgres:
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.MaxAttempts < 0 {
		return errors.New("store.max_attempts must not be negative")
	}
	if c.Store.Backend == StorePebble && c.Store.PebbleDir == "" {
		return errors.New("store.pebble_dir is required for the pebble backend")
	}
	switch c.Blob.Backend {
	case BlobMemory:
	case BlobS3:
		if c.Blob.Bucket == "" {
			return errors.New("blob.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown blob backend %q", c.Blob.Backend)
	}
	if c.JWT.Key == "" {
		return errors.New("jwt.key is required")
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return errors.New("server.tls_cert and server.tls_key must be set together")
	}
	return nil
}
