package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileIgnoresUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
time:
  cycle_millis: 500
actor:
  type: Broker
  name: broker-1
  guid: 11111111-1111-1111-1111-111111111111
  kafka-topic: broker-1-requests
  not_a_real_field: true
unrelated_top_level_section:
  whatever: true
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Time.CycleMillis != 500 {
		t.Fatalf("expected cycle millis 500, got %d", cfg.Time.CycleMillis)
	}
	if cfg.Actor.Type != "Broker" || cfg.Actor.Name != "broker-1" {
		t.Fatalf("unexpected actor config: %#v", cfg.Actor)
	}
	if cfg.Actor.KafkaTopic != "broker-1-requests" {
		t.Fatalf("expected kafka topic to parse, got %q", cfg.Actor.KafkaTopic)
	}
}

func TestDatabaseConfigConnectionStringPrefersDSN(t *testing.T) {
	cfg := DatabaseConfig{DSN: "postgres://explicit", Host: "ignored"}
	if got := cfg.ConnectionString(); got != "postgres://explicit" {
		t.Fatalf("expected explicit DSN to win, got %q", got)
	}

	cfg = DatabaseConfig{Host: "db", Port: 5432, User: "actor", Password: "p", Name: "actordb", SSLMode: "disable"}
	want := "host=db port=5432 user=actor password=p dbname=actordb sslmode=disable"
	if got := cfg.ConnectionString(); got != want {
		t.Fatalf("unexpected connection string: %q", got)
	}
}

func TestNewDefaults(t *testing.T) {
	cfg := New()
	if cfg.Time.CycleMillis == 0 {
		t.Fatalf("expected a default cycle length")
	}
	if cfg.Runtime.KernelQueueCapacity == 0 {
		t.Fatalf("expected a default kernel queue capacity")
	}
}
