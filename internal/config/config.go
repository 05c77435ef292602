package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/fortressbank/bankd/pkg/logger"
)

var config *Config

// Config holds every env-sourced value the process uses. Only this
// struct must be used to hold configuration values, no direct access to
// env or any other config source should be made elsewhere.
type Config struct {
	AppEnv   string `env:"APP_ENV" default:"dev"`
	AppName  string `env:"APP_NAME" default:"bankd"`
	AppDebug bool   `env:"APP_DEBUG" default:"1"`

	PrimaryListenAddr string `env:"PRIMARY_LISTEN_ADDR" default:"127.0.0.1:1069"`
	BackupListenAddr  string `env:"BACKUP_LISTEN_ADDR" default:"127.0.0.1:1070"`

	StoreDriver string `env:"STORE_DRIVER" default:"sqlite"`
	PrimaryDSN  string `env:"PRIMARY_DSN" default:"bankd_primary.db"`
	BackupDSN   string `env:"BACKUP_DSN" default:"bankd_backup.db"`

	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX" default:"bankd:"`

	CacheTTL       time.Duration `env:"CACHE_TTL" default:"5m"`
	SyncInterval   time.Duration `env:"SYNC_INTERVAL" default:"2s"`
	SessionTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" default:"5m"`
	MaxFrameSize   int           `env:"MAX_FRAME_SIZE"`

	AdminPassword   string `env:"ADMIN_PASSWORD" default:"admin"`
	StartingBalance int64  `env:"STARTING_BALANCE" default:"100000"`

	SMSProviderURL string `env:"SMS_PROVIDER_URL"`
	SMSWorkers     int    `env:"SMS_WORKERS" default:"2"`
	SMSQueueSize   int    `env:"SMS_QUEUE_SIZE" default:"256"`

	MetricsAddr   string `env:"METRICS_ADDR"`
	PromNamespace string `env:"PROM_NAMESPACE" default:"bankd"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.New("failed to load configuration file " + path + " error: " + err.Error())
		}
	}

	_, err = env.UnmarshalFromEnviron(c)
	if err != nil {
		return errors.New("failed to map env variables to Configuration object " + " error: " + err.Error())
	}

	config = c
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}
