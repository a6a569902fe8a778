package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MINIO_ACCESS_KEY_ID", "minio")
	t.Setenv("MINIO_SECRET_ACCESS_KEY", "minio-secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Port != 8080 {
		t.Fatalf("api port = %d, want 8080", cfg.API.Port)
	}
	if cfg.Persistence.MaxWriteAttempts != 5 {
		t.Fatalf("max write attempts = %d, want 5", cfg.Persistence.MaxWriteAttempts)
	}
	if cfg.Auth.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("access ttl = %s", cfg.Auth.AccessTokenTTL)
	}
	if !cfg.Database.MigrateOnStart {
		t.Fatal("expected migrate_on_start default true")
	}
	if cfg.Worker.PDFTimeout != time.Minute {
		t.Fatalf("pdf timeout = %s", cfg.Worker.PDFTimeout)
	}
	if got := cfg.Redis.Addr(); got != "localhost:6379" {
		t.Fatalf("redis addr = %q", got)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_PORT", "9090")
	t.Setenv("PERSISTENCE_MAX_WRITE_ATTEMPTS", "3")
	t.Setenv("API_ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Port != 9090 {
		t.Fatalf("api port = %d, want 9090", cfg.API.Port)
	}
	if cfg.Persistence.MaxWriteAttempts != 3 {
		t.Fatalf("max write attempts = %d, want 3", cfg.Persistence.MaxWriteAttempts)
	}
	origins := cfg.API.Origins()
	if len(origins) != 2 || origins[1] != "https://b.example" {
		t.Fatalf("origins = %v", origins)
	}
}

func TestLoad_MissingMinIOCredentials(t *testing.T) {
	t.Setenv("MINIO_ACCESS_KEY_ID", "")
	t.Setenv("MINIO_SECRET_ACCESS_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error without minio credentials")
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	want := "host=db port=5432 user=u password=p dbname=n sslmode=disable"
	if got := d.DSN(); got != want {
		t.Fatalf("dsn = %q, want %q", got, want)
	}
}
