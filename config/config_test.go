package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "5000" {
		t.Errorf("port = %s, want 5000", cfg.Port)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.DSN != defaultDSN {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Session.TTL != 7*24*time.Hour {
		t.Errorf("session ttl = %s", cfg.Session.TTL)
	}
	if cfg.Schedule.IntegrityAudit != "0 3 * * *" {
		t.Errorf("audit schedule = %q", cfg.Schedule.IntegrityAudit)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadYAMLWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rateio.yaml")
	yamlDoc := `
port: "8080"
database:
  driver: sqlite
  dsn: /tmp/rateio.db
cache:
  summary_ttl: 30s
seed:
  ledgers:
    - name: Wedding
      currency: inr
      participants:
        - {code: A, name: Asha}
        - {code: B, name: Bala}
  users:
    - email: admin@example.com
      password: secret
      role: ADMIN
      ledger: Wedding
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "9090")
	t.Setenv("LOGIN_RATE_PER_MINUTE", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("env override ignored, port = %s", cfg.Port)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "/tmp/rateio.db" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Cache.SummaryTTL != 30*time.Second {
		t.Errorf("summary ttl = %s", cfg.Cache.SummaryTTL)
	}
	if cfg.Login.RatePerMinute != 3 {
		t.Errorf("rate = %d", cfg.Login.RatePerMinute)
	}
	if len(cfg.Seed.Ledgers) != 1 || len(cfg.Seed.Ledgers[0].Participants) != 2 {
		t.Fatalf("seed ledgers = %+v", cfg.Seed.Ledgers)
	}
	if len(cfg.Seed.Users) != 1 || cfg.Seed.Users[0].Ledger != "Wedding" {
		t.Errorf("seed users = %+v", cfg.Seed.Users)
	}
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("SESSION_TTL", "forever")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "SESSION_TTL") {
		t.Errorf("expected SESSION_TTL error, got %v", err)
	}
}

func TestValidateAccumulates(t *testing.T) {
	cfg := &Config{Port: "abc"}
	cfg.applyDefaults()
	cfg.Database.Driver = "mysql"
	cfg.Events.AMQPURL = "http://broker"
	cfg.Schedule.SessionPurge = "not a cron"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"invalid port", "invalid database driver", "AMQP URL scheme", "session purge schedule"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in %v", want, err)
		}
	}
}
