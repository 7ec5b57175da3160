package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Gateway   GatewayConfig
	Scheduler SchedulerConfig
	Report    ReportConfig
	Redis     RedisConfig `validate:"-"`
	LogLevel  string      `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
}

type ServerConfig struct {
	Address string `env:"SERVER_ADDRESS" validate:"required"`
}

type DatabaseConfig struct {
	PostgresURL string `env:"POSTGRES_URL" validate:"required"`
}

type GatewayConfig struct {
	URL           string        `env:"GATEWAY_URL" validate:"required,url"`
	APIKey        string        `env:"GATEWAY_API_KEY"`
	Timeout       time.Duration `env:"GATEWAY_TIMEOUT_SECONDS" validate:"gt=0"`
	MediaBaseURL  string        `env:"MEDIA_BASE_URL" validate:"required,url"`
	ThrottleDelay time.Duration `env:"THROTTLE_DELAY_MS" validate:"gte=0"`
}

type SchedulerConfig struct {
	SweepInterval   time.Duration  `env:"SWEEP_INTERVAL_SECONDS" validate:"gt=0"`
	StaleAfter      time.Duration  `env:"STALE_AFTER_HOURS" validate:"gt=0"`
	CleanupInterval time.Duration  `env:"CLEANUP_INTERVAL_HOURS" validate:"gt=0"`
	LogRetention    time.Duration  `env:"LOG_RETENTION_DAYS" validate:"gt=0"`
	ReportInterval  time.Duration  `env:"SYSTEM_REPORT_INTERVAL_HOURS" validate:"gt=0"`
	CronLocation    *time.Location `env:"CRON_TIMEZONE" validate:"required"`
}

type ReportConfig struct {
	Enabled  bool           `env:"REPORT_ENABLED"`
	Location *time.Location `env:"REPORT_TIMEZONE" validate:"required"`
}

type RedisConfig struct {
	Enabled  bool
	Address  string        `env:"REDIS_ADDR" validate:"required"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" validate:"gte=0"`
	TTL      time.Duration `env:"REDIS_TTL_SECONDS" validate:"gt=0"`
}

// LoadAll reads the environment and reports every problem at once.
func LoadAll() (*Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	postgresURL, err := requireEnv("POSTGRES_URL")
	collect(err)
	gatewayURL, err := requireEnv("GATEWAY_URL")
	collect(err)

	gatewayTimeout, err := getEnvInt("GATEWAY_TIMEOUT_SECONDS", 30)
	collect(err)
	throttleMs, err := getEnvInt("THROTTLE_DELAY_MS", 3000)
	collect(err)
	sweepSeconds, err := getEnvInt("SWEEP_INTERVAL_SECONDS", 1800)
	collect(err)
	staleHours, err := getEnvInt("STALE_AFTER_HOURS", 168)
	collect(err)
	cleanupHours, err := getEnvInt("CLEANUP_INTERVAL_HOURS", 24)
	collect(err)
	retentionDays, err := getEnvInt("LOG_RETENTION_DAYS", 30)
	collect(err)
	systemReportHours, err := getEnvInt("SYSTEM_REPORT_INTERVAL_HOURS", 24)
	collect(err)
	reportEnabled, err := getEnvBool("REPORT_ENABLED", true)
	collect(err)
	reportLoc, err := getEnvLocation("REPORT_TIMEZONE", "America/Sao_Paulo")
	collect(err)
	cronLoc, err := getEnvLocation("CRON_TIMEZONE", "UTC")
	collect(err)

	redisCfg, err := loadRedisConfig()
	collect(err)

	if len(errs) > 0 {
		return nil, joinErrors(errs)
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: postgresURL,
		},
		Gateway: GatewayConfig{
			URL:           gatewayURL,
			APIKey:        os.Getenv("GATEWAY_API_KEY"),
			Timeout:       time.Duration(gatewayTimeout) * time.Second,
			MediaBaseURL:  getEnv("MEDIA_BASE_URL", "http://localhost:3001"),
			ThrottleDelay: time.Duration(throttleMs) * time.Millisecond,
		},
		Scheduler: SchedulerConfig{
			SweepInterval:   time.Duration(sweepSeconds) * time.Second,
			StaleAfter:      time.Duration(staleHours) * time.Hour,
			CleanupInterval: time.Duration(cleanupHours) * time.Hour,
			LogRetention:    time.Duration(retentionDays) * 24 * time.Hour,
			ReportInterval:  time.Duration(systemReportHours) * time.Hour,
			CronLocation:    cronLoc,
		},
		Report: ReportConfig{
			Enabled:  reportEnabled,
			Location: reportLoc,
		},
		Redis:    redisCfg,
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SlogLevel maps LogLevel onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	db, dbErr := getEnvInt("REDIS_DB", 0)
	ttl, ttlErr := getEnvInt("REDIS_TTL_SECONDS", 86400)
	if err := errors.Join(dbErr, ttlErr); err != nil {
		return RedisConfig{}, err
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttl) * time.Second,
	}, nil
}

var validate = newValidator()

func newValidator() func(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})

	return func(cfg *Config) error {
		var errs []error
		errs = append(errs, describe(v.Struct(cfg))...)
		if cfg.Redis.Enabled {
			errs = append(errs, describe(v.Struct(cfg.Redis))...)
		}
		return joinErrors(errs)
	}
}

func describe(err error) []error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []error{err}
	}

	out := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			out = append(out, fmt.Errorf("invalid %s: must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		out = append(out, fmt.Errorf("invalid %s: %s", fe.Field(), fe.Tag()))
	}
	return out
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for env %s: %q", key, v)
	}
	return i, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid bool for env %s: %q", key, v)
	}
	return b, nil
}

func getEnvLocation(key, def string) (*time.Location, error) {
	name := getEnv(key, def)
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone for env %s: %q", key, name)
	}
	return loc, nil
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}
