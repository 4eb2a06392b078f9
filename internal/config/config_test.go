package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_DefaultsAndUnprefixedEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://localhost/vibeverse")
	t.Setenv("JWT_SECRET", "access-secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.AccessTTL != 15*time.Minute {
		t.Errorf("expected 15m access ttl, got %v", cfg.AccessTTL)
	}
	if cfg.RefreshTTL != 240*time.Hour {
		t.Errorf("expected 10 day refresh ttl, got %v", cfg.RefreshTTL)
	}
	if cfg.RefreshSecret != "access-secret" {
		t.Errorf("expected refresh secret to fall back to access secret, got %q", cfg.RefreshSecret)
	}
	if cfg.SecureCookies() {
		t.Error("expected insecure cookies for http base url")
	}
}

func TestLoad_PrefixedEnvWins(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://localhost/plain")
	t.Setenv("VIBEVERSE_DATABASE_URL", "postgres://localhost/prefixed")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("VIBEVERSE_ACCESS_TOKEN_TTL", "5m")
	t.Setenv("VIBEVERSE_MAX_UPLOAD_BYTES", "1024")
	t.Setenv("WEBHOOK_URL", "https://hooks.test/vibeverse")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://localhost/prefixed" {
		t.Errorf("expected prefixed database url, got %q", cfg.DatabaseURL)
	}
	if cfg.AccessTTL != 5*time.Minute {
		t.Errorf("expected 5m, got %v", cfg.AccessTTL)
	}
	if cfg.MaxUploadBytes != 1024 {
		t.Errorf("expected 1024, got %d", cfg.MaxUploadBytes)
	}
	if cfg.WebhookURL != "https://hooks.test/vibeverse" {
		t.Errorf("expected webhook url from env, got %q", cfg.WebhookURL)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("DATABASE_URL")
	os.Unsetenv("JWT_SECRET")
	content := "DATABASE_URL=postgres://localhost/dotenv\nJWT_SECRET=from-dotenv\nBASE_URL=https://vibeverse.example\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Unsetenv("BASE_URL")
	})

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://localhost/dotenv" {
		t.Errorf("expected url from .env, got %q", cfg.DatabaseURL)
	}
	if !cfg.SecureCookies() {
		t.Error("expected secure cookies for https base url")
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("S3_BUCKET", "")
	path := filepath.Join(dir, "vibeverse.yaml")
	content := "database_url: postgres://localhost/file\ns3_bucket: media\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://localhost/file" {
		t.Errorf("expected url from file, got %q", cfg.DatabaseURL)
	}
	if cfg.S3Bucket != "media" {
		t.Errorf("expected bucket media, got %q", cfg.S3Bucket)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("VIBEVERSE_DATABASE_URL", "")
	t.Setenv("VIBEVERSE_JWT_SECRET", "")

	_, err := Load("")
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"DATABASE_URL is required", "JWT_SECRET is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %q", want, err.Error())
		}
	}
}

func TestValidate_TTLOrdering(t *testing.T) {
	cfg := &Config{
		DatabaseURL:  "postgres://x",
		AccessSecret: "s",
		AccessTTL:    time.Hour,
		RefreshTTL:   time.Minute,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when access ttl exceeds refresh ttl")
	}
}
