// Package config loads service settings from an optional YAML file and the
// environment. Environment variables win over the file, the file wins over
// defaults.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigFile          = "CONFIG_FILE"
	EnvHTTPAddr            = "HTTP_ADDR"
	EnvGRPCAddr            = "GRPC_ADDR"
	EnvLogLevel            = "LOG_LEVEL"
	EnvShutdownTimeout     = "SHUTDOWN_TIMEOUT"
	EnvPurchaseTimeout     = "PURCHASE_TIMEOUT_MS"
	EnvCompensationTimeout = "COMPENSATION_TIMEOUT_MS"
	EnvJaegerEndpoint      = "JAEGER_ENDPOINT"

	EnvMySQLDSN          = "MYSQL_DSN"
	EnvMySQLMaxOpenConns = "MYSQL_MAX_OPEN_CONNS"
	EnvMySQLMaxIdleConns = "MYSQL_MAX_IDLE_CONNS"
	EnvAutoMigrate       = "AUTO_MIGRATE"

	EnvRedisAddr      = "REDIS_ADDR"
	EnvRedisPassword  = "REDIS_PASSWORD"
	EnvRedisDB        = "REDIS_DB"
	EnvRedisPoolSize  = "REDIS_POOL_SIZE"
	EnvStockKeyPrefix = "STOCK_KEY_PREFIX"
)

type Config struct {
	ServiceName string `yaml:"service_name"`
	HTTPAddr    string `yaml:"http_addr"`
	GRPCAddr    string `yaml:"grpc_addr"`
	LogLevel    string `yaml:"log_level"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// PurchaseTimeout bounds one purchase attempt; zero disables it.
	PurchaseTimeout time.Duration `yaml:"purchase_timeout"`
	// CompensationTimeout bounds the compensating increment, which runs
	// detached from the request context.
	CompensationTimeout time.Duration `yaml:"compensation_timeout"`

	JaegerEndpoint string `yaml:"jaeger_endpoint"`

	MySQL MySQLConfig `yaml:"mysql"`
	Redis RedisConfig `yaml:"redis"`
}

type MySQLConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
}

func Default() Config {
	return Config{
		ServiceName:         "flash-sale-gate",
		HTTPAddr:            ":8080",
		GRPCAddr:            ":50051",
		LogLevel:            "info",
		ShutdownTimeout:     5 * time.Second,
		PurchaseTimeout:     5 * time.Second,
		CompensationTimeout: 2 * time.Second,
		MySQL: MySQLConfig{
			DSN:             "root:root@tcp(localhost:3306)/flashsale?parseTime=true",
			MaxOpenConns:    50,
			MaxIdleConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  100,
			KeyPrefix: "stock:product:",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "read config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config file %s", path)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	trySetFromEnv(EnvHTTPAddr, &cfg.HTTPAddr)
	trySetFromEnv(EnvGRPCAddr, &cfg.GRPCAddr)
	trySetFromEnv(EnvLogLevel, &cfg.LogLevel)
	trySetFromEnv(EnvJaegerEndpoint, &cfg.JaegerEndpoint)
	trySetSecondsFromEnv(EnvShutdownTimeout, &cfg.ShutdownTimeout)
	trySetMillisFromEnv(EnvPurchaseTimeout, &cfg.PurchaseTimeout)
	trySetMillisFromEnv(EnvCompensationTimeout, &cfg.CompensationTimeout)

	trySetFromEnv(EnvMySQLDSN, &cfg.MySQL.DSN)
	trySetIntFromEnv(EnvMySQLMaxOpenConns, &cfg.MySQL.MaxOpenConns)
	trySetIntFromEnv(EnvMySQLMaxIdleConns, &cfg.MySQL.MaxIdleConns)
	trySetBoolFromEnv(EnvAutoMigrate, &cfg.MySQL.AutoMigrate)

	trySetFromEnv(EnvRedisAddr, &cfg.Redis.Addr)
	trySetFromEnv(EnvRedisPassword, &cfg.Redis.Password)
	trySetIntFromEnv(EnvRedisDB, &cfg.Redis.DB)
	trySetIntFromEnv(EnvRedisPoolSize, &cfg.Redis.PoolSize)
	trySetFromEnv(EnvStockKeyPrefix, &cfg.Redis.KeyPrefix)
}

func (c Config) Validate() error {
	switch {
	case c.HTTPAddr == "":
		return errors.New("http address is required")
	case c.GRPCAddr == "":
		return errors.New("grpc address is required")
	case c.MySQL.DSN == "":
		return errors.New("mysql dsn is required")
	case c.Redis.Addr == "":
		return errors.New("redis address is required")
	case c.CompensationTimeout <= 0:
		return errors.New("compensation timeout must be positive")
	case c.PurchaseTimeout < 0:
		return errors.New("purchase timeout must not be negative")
	}
	return nil
}

func trySetFromEnv(envName string, val *string) {
	if envVal, found := os.LookupEnv(envName); found && envVal != "" {
		*val = envVal
	}
}

func trySetIntFromEnv(envName string, val *int) {
	var s string
	trySetFromEnv(envName, &s)
	if n, err := strconv.Atoi(s); err == nil {
		*val = n
	}
}

func trySetBoolFromEnv(envName string, val *bool) {
	var s string
	trySetFromEnv(envName, &s)
	if b, err := strconv.ParseBool(s); err == nil {
		*val = b
	}
}

func trySetMillisFromEnv(envName string, val *time.Duration) {
	n := -1
	trySetIntFromEnv(envName, &n)
	if n >= 0 {
		*val = time.Duration(n) * time.Millisecond
	}
}

func trySetSecondsFromEnv(envName string, val *time.Duration) {
	n := -1
	trySetIntFromEnv(envName, &n)
	if n >= 0 {
		*val = time.Duration(n) * time.Second
	}
}
