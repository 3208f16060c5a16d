package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Program   ProgramConfig   `yaml:"program"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// ProgramConfig holds defaults for users who never chose a program start date.
type ProgramConfig struct {
	DefaultStartDate string `yaml:"default_start_date"`
}

// StartDate parses DefaultStartDate. An empty value yields the zero time.
func (p ProgramConfig) StartDate() (time.Time, error) {
	if p.DefaultStartDate == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", p.DefaultStartDate)
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Load reads config from a YAML file, then applies environment variable overrides.
// Env vars use the prefix WEEKGRID_ and underscore-separated paths:
//
//	WEEKGRID_SERVER_HOST, WEEKGRID_SERVER_PORT,
//	WEEKGRID_DB_HOST, WEEKGRID_DB_PORT, WEEKGRID_DB_NAME,
//	WEEKGRID_DB_USER, WEEKGRID_DB_PASSWORD, WEEKGRID_DB_SSLMODE,
//	WEEKGRID_AUTH_API_KEY,
//	WEEKGRID_TAILSCALE_ENABLED, WEEKGRID_TAILSCALE_HOSTNAME, WEEKGRID_TAILSCALE_STATE_DIR,
//	WEEKGRID_PROGRAM_DEFAULT_START_DATE
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WEEKGRID_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("WEEKGRID_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("WEEKGRID_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("WEEKGRID_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("WEEKGRID_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("WEEKGRID_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("WEEKGRID_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("WEEKGRID_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("WEEKGRID_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("WEEKGRID_TAILSCALE_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = enabled
		}
	}
	if v := os.Getenv("WEEKGRID_TAILSCALE_HOSTNAME"); v != "" {
		cfg.Tailscale.Hostname = v
	}
	if v := os.Getenv("WEEKGRID_TAILSCALE_STATE_DIR"); v != "" {
		cfg.Tailscale.StateDir = v
	}
	if v := os.Getenv("WEEKGRID_PROGRAM_DEFAULT_START_DATE"); v != "" {
		cfg.Program.DefaultStartDate = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 && !c.Tailscale.Enabled {
		return fmt.Errorf("server.port is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	// Tailscale identifies callers itself; otherwise the API key guards the API.
	if c.Auth.APIKey == "" && !c.Tailscale.Enabled {
		return fmt.Errorf("auth.api_key is required")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	if _, err := c.Program.StartDate(); err != nil {
		return fmt.Errorf("program.default_start_date: %w", err)
	}
	return nil
}
