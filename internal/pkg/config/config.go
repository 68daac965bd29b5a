package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Mode string

const (
	ModeCloud Mode = "cloud"
	ModeLocal Mode = "local"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	AirzoneCfg *AirzoneConfig `envPrefix:"AIRZONE_"`
	MqttCfg    *MqttConfig    `envPrefix:"MQTT_"`
	DbCfg      *DatabaseConfig
	ServerCfg  *ServerConfig

	LogLevel         string        `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFile          string        `env:"LOG_FILE"`
	HistoryRetention time.Duration `env:"HISTORY_RETENTION" envDefault:"192h"`
}

type AirzoneConfig struct {
	Mode         Mode          `env:"MODE" envDefault:"cloud"`
	Username     string        `env:"USERNAME"`
	Password     string        `env:"PASSWORD"`
	BaseURL      string        `env:"BASE_URL" envDefault:"https://www.airzonecloud.com"`
	Host         string        `env:"HOST"`
	Port         int           `env:"PORT" envDefault:"3000"`
	SystemID     int           `env:"SYSTEM_ID" envDefault:"1"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"30s"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

type MqttConfig struct {
	Host            string `env:"HOST"`
	Username        string `env:"USER"`
	Password        string `env:"PASS"`
	Prefix          string `env:"PREFIX" envDefault:"airzone"`
	DiscoveryPrefix string `env:"DISCOVERY_PREFIX" envDefault:"homeassistant"`
}

type DatabaseConfig struct {
	URL              string `env:"DATABASE_URL"`
	MigrationsFolder string `env:"MIGRATIONS_FOLDER"`
}

type ServerConfig struct {
	Addr         string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8000"`
	Username     string        `env:"API_USERNAME"`
	PasswordHash string        `env:"API_PASSWORD_HASH"`
	JwtSecret    string        `env:"API_JWT_SECRET"`
	TokenTTL     time.Duration `env:"API_TOKEN_TTL" envDefault:"24h"`
}

// Load parses the whole configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		AirzoneCfg: &AirzoneConfig{},
		MqttCfg:    &MqttConfig{},
		DbCfg:      &DatabaseConfig{},
		ServerCfg:  &ServerConfig{},
	}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.AirzoneCfg == nil {
		return fmt.Errorf("%w: missing airzone config", ErrInvalidConfig)
	}
	if err := c.AirzoneCfg.Validate(); err != nil {
		return err
	}
	if c.ServerCfg != nil && c.ServerCfg.Username != "" {
		if c.ServerCfg.PasswordHash == "" || c.ServerCfg.JwtSecret == "" {
			return fmt.Errorf("%w: API_USERNAME requires API_PASSWORD_HASH and API_JWT_SECRET", ErrInvalidConfig)
		}
	}
	return nil
}

func (c *AirzoneConfig) Validate() error {
	c.Mode = Mode(strings.ToLower(string(c.Mode)))
	switch c.Mode {
	case ModeCloud:
		if c.Username == "" || c.Password == "" {
			return fmt.Errorf("%w: cloud mode requires AIRZONE_USERNAME and AIRZONE_PASSWORD", ErrInvalidConfig)
		}
		if c.BaseURL == "" {
			return fmt.Errorf("%w: cloud mode requires AIRZONE_BASE_URL", ErrInvalidConfig)
		}
	case ModeLocal:
		if c.Host == "" {
			return fmt.Errorf("%w: local mode requires AIRZONE_HOST", ErrInvalidConfig)
		}
		if c.Port <= 0 || c.Port > 65535 {
			return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
		}
		if c.SystemID <= 0 {
			return fmt.Errorf("%w: system id must be positive", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}
	if c.PollInterval < time.Second {
		return fmt.Errorf("%w: poll interval %s too short", ErrInvalidConfig, c.PollInterval)
	}
	return nil
}

// LocalURL is the base address of the local API.
func (c *AirzoneConfig) LocalURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}
