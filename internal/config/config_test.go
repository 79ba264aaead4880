package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DISCORD_TOKEN", "token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RetentionDays != 90 {
		t.Fatalf("expected 90 retention days, got %d", cfg.RetentionDays)
	}
	if cfg.Storage.Backend != BackendMongo || cfg.Mongo.Database != "distrack" {
		t.Fatalf("unexpected storage defaults: %+v %+v", cfg.Storage, cfg.Mongo)
	}
	if cfg.Tickets.MaxOpenPerUser != 3 || cfg.TicketDeleteDelay() != 10*time.Second {
		t.Fatalf("unexpected ticket defaults: %+v", cfg.Tickets)
	}
	if cfg.Colors.Error != 0xff0000 || cfg.Colors.Primary != 0x7289da {
		t.Fatalf("unexpected colours: %+v", cfg.Colors)
	}
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DISCORD_TOKEN", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error without token")
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
discord_token: from-file
retention_days: 30
storage:
  backend: MEMORY
tickets:
  max_open_per_user: 5
  categories:
    - name: Billing
      emoji: "💳"
moderation:
  max_timeout_days: 60
colors:
  success: 0x123456
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("RETENTION_DAYS", "7")
	t.Setenv("EMBED_COLOR_INFO", "0xabcdef")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DiscordToken != "from-file" {
		t.Fatalf("expected token from file, got %q", cfg.DiscordToken)
	}
	if cfg.RetentionDays != 7 {
		t.Fatalf("expected env override 7, got %d", cfg.RetentionDays)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Fatalf("expected memory backend, got %q", cfg.Storage.Backend)
	}
	if cfg.Tickets.MaxOpenPerUser != 5 || len(cfg.Tickets.Categories) != 1 {
		t.Fatalf("unexpected tickets config: %+v", cfg.Tickets)
	}
	if cfg.Moderation.MaxTimeoutDays != 28 {
		t.Fatalf("expected max timeout clamped to 28, got %d", cfg.Moderation.MaxTimeoutDays)
	}
	if cfg.Colors.Success != 0x123456 || cfg.Colors.Info != 0xabcdef {
		t.Fatalf("unexpected colours: %+v", cfg.Colors)
	}
}

func TestRetentionDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetentionDays = 0
	if cfg.Retention() != 0 {
		t.Fatalf("expected disabled retention, got %v", cfg.Retention())
	}
}
