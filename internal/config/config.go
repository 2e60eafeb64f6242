package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Google    GoogleConfig    `mapstructure:"google"`
	Outlook   OutlookConfig   `mapstructure:"outlook"`
	ICS       ICSConfig       `mapstructure:"ics"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type DatabaseConfig struct {
	URL     string `mapstructure:"url"`
	Migrate bool   `mapstructure:"migrate"`
}

// RedisConfig enables the shared rate limiter when Addr is set.
type RedisConfig struct {
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`
}

type AuthConfig struct {
	JWTSecret    string   `mapstructure:"jwt_secret"`
	StaticTokens []string `mapstructure:"static_tokens"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type BusinessHoursConfig struct {
	Start string `mapstructure:"start"`
	End   string `mapstructure:"end"`
}

type EngineConfig struct {
	DefaultTimezone        string              `mapstructure:"default_timezone"`
	ProviderTimeout        time.Duration       `mapstructure:"provider_timeout"`
	MaxConcurrentProviders int                 `mapstructure:"max_concurrent_providers"`
	BusinessHours          BusinessHoursConfig `mapstructure:"business_hours"`
	SuggestionStep         time.Duration       `mapstructure:"suggestion_step"`
}

type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

type OutlookConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Tenant       string `mapstructure:"tenant"`
	BaseURL      string `mapstructure:"base_url"`
}

type ICSConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

type SecretsConfig struct {
	// Key is the base64 encoded 32 byte credential encryption key.
	Key string `mapstructure:"key"`
}

// Load reads defaults, then the optional YAML file at path, then
// AVAILABILITY_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("AVAILABILITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Auth.StaticTokens = splitTokens(cfg.Auth.StaticTokens)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.url", "")
	v.SetDefault("database.migrate", false)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.rate_limit", 120)
	v.SetDefault("redis.rate_window", "1m")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.static_tokens", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "availability-service")
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("engine.default_timezone", "UTC")
	v.SetDefault("engine.provider_timeout", "10s")
	v.SetDefault("engine.max_concurrent_providers", 8)
	v.SetDefault("engine.business_hours.start", "09:00")
	v.SetDefault("engine.business_hours.end", "18:00")
	v.SetDefault("engine.suggestion_step", "30m")

	v.SetDefault("google.client_id", "")
	v.SetDefault("google.client_secret", "")

	v.SetDefault("outlook.client_id", "")
	v.SetDefault("outlook.client_secret", "")
	v.SetDefault("outlook.tenant", "common")
	v.SetDefault("outlook.base_url", "https://graph.microsoft.com/v1.0")

	v.SetDefault("ics.max_bytes", 5*1024*1024)

	v.SetDefault("secrets.key", "")
}

// splitTokens accepts both a YAML list and a comma separated env value.
func splitTokens(in []string) []string {
	var out []string
	for _, item := range in {
		for _, t := range strings.Split(item, ",") {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port must be between 1 and 65535")
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		return fmt.Errorf("config: database.url is required")
	}
	if c.Auth.JWTSecret == "" && len(c.Auth.StaticTokens) == 0 {
		return fmt.Errorf("config: auth.jwt_secret or auth.static_tokens is required")
	}
	if _, err := c.Engine.Location(); err != nil {
		return fmt.Errorf("config: engine.default_timezone: %w", err)
	}
	start, end, err := c.Engine.BusinessHoursRange()
	if err != nil {
		return fmt.Errorf("config: engine.business_hours: %w", err)
	}
	if end <= start {
		return fmt.Errorf("config: engine.business_hours.end must be after start")
	}
	if c.Engine.SuggestionStep <= 0 {
		return fmt.Errorf("config: engine.suggestion_step must be positive")
	}
	if c.Engine.MaxConcurrentProviders < 0 {
		return fmt.Errorf("config: engine.max_concurrent_providers must not be negative")
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c.Secrets.Key))
	if err != nil || len(key) != 32 {
		return fmt.Errorf("config: secrets.key must be a base64 encoded 32 byte key")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("config: telemetry.sample_ratio must be between 0 and 1")
	}
	return nil
}

func (e EngineConfig) Location() (*time.Location, error) {
	return time.LoadLocation(e.DefaultTimezone)
}

// BusinessHoursRange returns the band as offsets from local midnight.
func (e EngineConfig) BusinessHoursRange() (time.Duration, time.Duration, error) {
	start, err := parseClock(e.BusinessHours.Start)
	if err != nil {
		return 0, 0, err
	}
	end, err := parseClock(e.BusinessHours.End)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func parseClock(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "24:00" {
		return 24 * time.Hour, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
