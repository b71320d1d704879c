package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for every ride-hail mode (§6.5). Every
// mode loads the same file and reads only the sections it needs.
type Config struct {
	Environment string `yaml:"environment"`

	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"database"`

	Redis struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	RabbitMQ struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
	} `yaml:"rabbitmq"`

	JWT struct {
		SecretKey string `yaml:"secret_key"`
	} `yaml:"jwt"`

	Services struct {
		DispatchServicePort int `yaml:"dispatch_service"`
		PresenceServicePort int `yaml:"presence_service"`
		AdminServicePort    int `yaml:"admin_service"`
	} `yaml:"services"`

	Dispatch struct {
		RadiusKM           float64 `yaml:"radius_km"`
		RadiusStepKM       float64 `yaml:"radius_step_km"`
		MaxRadiusKM        float64 `yaml:"max_radius_km"`
		WaveSize           int     `yaml:"wave_size"`
		WaveTimeoutSeconds int     `yaml:"wave_timeout_seconds"`
		MaxWaves           int     `yaml:"max_waves"`
	} `yaml:"dispatch"`

	Earnings struct {
		DefaultCommissionRate float64 `yaml:"default_commission_rate"`
	} `yaml:"earnings"`

	RunCleanupOnStartup bool `yaml:"run_cleanup_on_startup"`
}

// LoadFromFile loads config from a YAML file, applies defaults, and validates required fields.
func LoadFromFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets safe defaults for fields left unset in the YAML file,
// including the dispatch radius/wave defaults and fallback commission rate
// from §6.5.
func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}

	// Redis
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}

	// Services
	if cfg.Services.DispatchServicePort == 0 {
		cfg.Services.DispatchServicePort = 3000
	}
	if cfg.Services.PresenceServicePort == 0 {
		cfg.Services.PresenceServicePort = 3001
	}
	if cfg.Services.AdminServicePort == 0 {
		cfg.Services.AdminServicePort = 3004
	}

	// Dispatch (§4.2)
	if cfg.Dispatch.RadiusKM == 0 {
		cfg.Dispatch.RadiusKM = 5
	}
	if cfg.Dispatch.RadiusStepKM == 0 {
		cfg.Dispatch.RadiusStepKM = 3
	}
	if cfg.Dispatch.MaxRadiusKM == 0 {
		cfg.Dispatch.MaxRadiusKM = 15
	}
	if cfg.Dispatch.WaveSize == 0 {
		cfg.Dispatch.WaveSize = 5
	}
	if cfg.Dispatch.WaveTimeoutSeconds == 0 {
		cfg.Dispatch.WaveTimeoutSeconds = 30
	}
	if cfg.Dispatch.MaxWaves == 0 {
		cfg.Dispatch.MaxWaves = 4
	}

	// Earnings (§4.5 step 4 default fallback)
	if cfg.Earnings.DefaultCommissionRate == 0 {
		cfg.Earnings.DefaultCommissionRate = 0.15
	}

	if cfg.JWT.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// fallback: time-based bytes
			key = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		cfg.JWT.SecretKey = base64.StdEncoding.EncodeToString(key)
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "database.port must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "database.password is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.name is required")
	}

	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		problems = append(problems, "redis.port must be in 1..65535")
	}

	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq.port must be in 1..65535")
	}
	if c.RabbitMQ.User == "" {
		problems = append(problems, "rabbitmq.user is required")
	}
	if c.RabbitMQ.Password == "" {
		problems = append(problems, "rabbitmq.password is required")
	}

	if c.Services.DispatchServicePort <= 0 || c.Services.DispatchServicePort > 65535 {
		problems = append(problems, "services.dispatch_service must be in 1..65535")
	}
	if c.Services.PresenceServicePort <= 0 || c.Services.PresenceServicePort > 65535 {
		problems = append(problems, "services.presence_service must be in 1..65535")
	}
	if c.Services.AdminServicePort <= 0 || c.Services.AdminServicePort > 65535 {
		problems = append(problems, "services.admin_service must be in 1..65535")
	}

	if c.Dispatch.RadiusStepKM <= 0 {
		problems = append(problems, "dispatch.radius_step_km must be > 0")
	}
	if c.Dispatch.MaxRadiusKM < c.Dispatch.RadiusKM {
		problems = append(problems, "dispatch.max_radius_km must be >= dispatch.radius_km")
	}
	if c.Dispatch.WaveSize <= 0 {
		problems = append(problems, "dispatch.wave_size must be > 0")
	}
	if c.Dispatch.WaveTimeoutSeconds <= 0 {
		problems = append(problems, "dispatch.wave_timeout_seconds must be > 0")
	}

	if c.Earnings.DefaultCommissionRate < 0 || c.Earnings.DefaultCommissionRate > 1 {
		problems = append(problems, "earnings.default_commission_rate must be within [0,1]")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
