package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const defaultDSN = "host=localhost port=5432 user=postgres password=postgres dbname=rateio sslmode=disable"

// Config holds all application configuration.
type Config struct {
	Port     string `yaml:"port"`
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Events struct {
		AMQPURL    string `yaml:"amqp_url"`
		Exchange   string `yaml:"exchange"`
		BufferSize int    `yaml:"buffer_size"`
	} `yaml:"events"`
	Session struct {
		TTL          time.Duration `yaml:"ttl"`
		SecureCookie bool          `yaml:"secure_cookie"`
	} `yaml:"session"`
	Schedule struct {
		SessionPurge   string `yaml:"session_purge"`
		IntegrityAudit string `yaml:"integrity_audit"`
	} `yaml:"schedule"`
	Cache struct {
		SummaryTTL time.Duration `yaml:"summary_ttl"`
	} `yaml:"cache"`
	Login struct {
		RatePerMinute int `yaml:"rate_per_minute"`
	} `yaml:"login"`
	Seed Seed `yaml:"seed"`
}

// Seed describes the ledgers and accounts created by the seed command.
type Seed struct {
	Ledgers []SeedLedger `yaml:"ledgers"`
	Users   []SeedUser   `yaml:"users"`
}

type SeedLedger struct {
	Name          string            `yaml:"name"`
	Currency      string            `yaml:"currency"`
	OverallBudget string            `yaml:"overall_budget"`
	Participants  []SeedParticipant `yaml:"participants"`
}

type SeedParticipant struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

type SeedUser struct {
	Email    string `yaml:"email"`
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
	// Ledger is the name of a seeded ledger, empty for global roles.
	Ledger string `yaml:"ledger"`
}

// Load reads a .env file if present, then the YAML file at path if present, then applies
// environment variable overrides and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error

	setString(&c.Port, "PORT")
	setString(&c.Database.Driver, "DB_DRIVER")
	setString(&c.Database.DSN, "DATABASE_URL")
	setString(&c.Events.AMQPURL, "AMQP_URL")
	setString(&c.Events.Exchange, "AMQP_EXCHANGE")
	setString(&c.Schedule.SessionPurge, "CRON_SESSION_PURGE")
	setString(&c.Schedule.IntegrityAudit, "CRON_INTEGRITY_AUDIT")

	errs = append(errs,
		setInt(&c.Events.BufferSize, "EVENT_BUFFER_SIZE"),
		setInt(&c.Login.RatePerMinute, "LOGIN_RATE_PER_MINUTE"),
		setDuration(&c.Session.TTL, "SESSION_TTL"),
		setDuration(&c.Cache.SummaryTTL, "SUMMARY_CACHE_TTL"),
		setBool(&c.Session.SecureCookie, "SESSION_SECURE_COOKIE"),
	)

	return errors.Join(errs...)
}

func (c *Config) applyDefaults() {
	if c.Port == "" {
		c.Port = "5000"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.DSN == "" && c.Database.Driver == "postgres" {
		c.Database.DSN = defaultDSN
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "rateio.db"
	}
	if c.Events.Exchange == "" {
		c.Events.Exchange = "rateio"
	}
	if c.Events.BufferSize == 0 {
		c.Events.BufferSize = 100
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 7 * 24 * time.Hour
	}
	if c.Schedule.SessionPurge == "" {
		c.Schedule.SessionPurge = "@hourly"
	}
	if c.Schedule.IntegrityAudit == "" {
		c.Schedule.IntegrityAudit = "0 3 * * *"
	}
	if c.Cache.SummaryTTL == 0 {
		c.Cache.SummaryTTL = 5 * time.Minute
	}
	if c.Login.RatePerMinute == 0 {
		c.Login.RatePerMinute = 10
	}
}

// Validate validates the configuration and returns every problem found in one error.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("invalid database driver '%s': must be postgres or sqlite", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		problems = append(problems, "database DSN cannot be empty")
	}

	if c.Events.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.Events.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL: %v", err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.Events.Exchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}
	if c.Events.BufferSize < 1 {
		problems = append(problems, fmt.Sprintf("invalid event buffer size %d: must be positive", c.Events.BufferSize))
	}

	if c.Session.TTL <= 0 {
		problems = append(problems, "session TTL must be positive")
	}
	if c.Cache.SummaryTTL <= 0 {
		problems = append(problems, "summary cache TTL must be positive")
	}
	if c.Login.RatePerMinute < 1 {
		problems = append(problems, "login rate per minute must be positive")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, spec := range map[string]string{
		"session purge":   c.Schedule.SessionPurge,
		"integrity audit": c.Schedule.IntegrityAudit,
	} {
		if _, err := parser.Parse(spec); err != nil {
			problems = append(problems, fmt.Sprintf("invalid %s schedule '%s': %v", name, spec, err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}

	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}
