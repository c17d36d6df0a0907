package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != "50051" {
		t.Fatalf("port = %q", cfg.Server.Port)
	}
	if cfg.Typing.TTL != 30*time.Second {
		t.Fatalf("typing ttl = %v", cfg.Typing.TTL)
	}
	if cfg.Realtime.SendTimeout != 250*time.Millisecond {
		t.Fatalf("send timeout = %v", cfg.Realtime.SendTimeout)
	}
	if cfg.Mongo.Database != "chat_db" {
		t.Fatalf("database = %q", cfg.Mongo.Database)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017/?replicaSet=rs0")
	t.Setenv("JWT_KEYS", "k1:one,k2:two")
	t.Setenv("JWT_ACTIVE_KID", "k2")
	t.Setenv("PORT", "6000")
	t.Setenv("TYPING_TTL", "5s")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != "6000" || cfg.Typing.TTL != 5*time.Second {
		t.Fatalf("env not applied: %+v", cfg.Server)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "b:9092" {
		t.Fatalf("brokers = %v", cfg.Kafka.Brokers)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	keys, err := cfg.JWTKeys()
	if err != nil || keys["k2"] != "two" {
		t.Fatalf("JWTKeys = %v, %v", keys, err)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat.yaml")
	body := "server:\n  port: \"7000\"\ntyping:\n  backend: redis\nredis:\n  addr: localhost:6379\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != "7000" || cfg.Typing.Backend != "redis" || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
}

func TestValidate_ReportsMissing(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg.Mongo.URI = ""
	cfg.JWT = JWTConfig{}
	cfg.Typing.Backend = "etcd"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation errors")
	}
}

func TestJWTKeys_Invalid(t *testing.T) {
	cfg := &Config{JWT: JWTConfig{Keys: "nokid"}}
	if _, err := cfg.JWTKeys(); err == nil {
		t.Fatal("expected error for entry without separator")
	}
}
