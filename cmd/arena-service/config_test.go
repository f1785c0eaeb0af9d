package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arena.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	return path
}

const minimalConfig = `
database:
  dsn: "arena:arena@tcp(localhost:3306)/codearena?parseTime=true"
redis:
  addr: "localhost:6379"
judge:
  baseURL: "http://localhost:2358"
auth:
  secret: "s3cret"
`

func TestLoadAppConfigDefaults(t *testing.T) {
	cfg, err := loadAppConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}
	if cfg.Server.Addr != defaultHTTPAddr || cfg.Server.WriteTimeout != defaultWriteTimeout {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Database.Driver != "mysql" {
		t.Fatalf("expected mysql driver, got %q", cfg.Database.Driver)
	}
	if cfg.Topics.ContestLeaderboard != "contest.leaderboard" || cfg.Topics.PrizeAwarded != "contest.prize_awarded" {
		t.Fatalf("unexpected topics: %+v", cfg.Topics)
	}
	if cfg.Contest.MaxRetries != 5 || cfg.Runner.Concurrency != 4 {
		t.Fatalf("unexpected contest/runner defaults: %+v %+v", cfg.Contest, cfg.Runner)
	}
	if cfg.Submit.MaxCodeBytes != 64*1024 || cfg.Submit.Timeouts.Cache != time.Second {
		t.Fatalf("unexpected submit defaults: %+v", cfg.Submit)
	}
}

func TestLoadAppConfigInlineSections(t *testing.T) {
	body := minimalConfig + `
kafka:
  enabled: true
  brokers: ["k1:9092", "k2:9092"]
minio:
  enabled: true
  endpoint: "minio:9000"
  bucket: arena
`
	cfg, err := loadAppConfig(writeConfig(t, body))
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.ClientID != "arena-service" {
		t.Fatalf("unexpected kafka config: %+v", cfg.Kafka)
	}
	if cfg.MinIO.Endpoint != "minio:9000" || cfg.MinIO.ArchivePrefix != "solutions" {
		t.Fatalf("unexpected minio config: %+v", cfg.MinIO)
	}
}

func TestLoadAppConfigRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"unknown driver", strings.Replace(minimalConfig, "database:\n", "database:\n  driver: sqlite\n", 1), "Driver"},
		{"missing secret", strings.Replace(minimalConfig, `  secret: "s3cret"`, "", 1), "Secret"},
		{"missing judge url", strings.Replace(minimalConfig, `  baseURL: "http://localhost:2358"`, "", 1), "BaseURL"},
		{"kafka without brokers", minimalConfig + "kafka:\n  enabled: true\n", "brokers"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadAppConfig(writeConfig(t, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}
