package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
discord:
  token: "abc"
  prefix: "?"
logging:
  level: debug
storage:
  driver: sqlite
  path: ./x.db
  busy_timeout: 2s
audit:
  retention: 720h
`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discord.Token != "abc" || cfg.Prefix() != "?" {
		t.Fatalf("discord section: %+v", cfg.Discord)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("logging section: %+v", cfg.Logging)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.BusyTimeout != "2s" {
		t.Fatalf("storage section: %+v", cfg.Storage)
	}
	if !cfg.AuditEnabled() || cfg.Audit.Retention != "720h" {
		t.Fatalf("audit section: %+v", cfg.Audit)
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json",
		`{"discord":{"token":"abc"},"logging":{},"storage":{"driver":"file","path":"./s"}}`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Prefix() != "!" {
		t.Fatalf("default prefix = %q, want !", cfg.Prefix())
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
discord:
  token: "abc"
  prefixx: "?"
storage:
  driver: file
  path: ./s
logging: {}
`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestMissingTokenRejected(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
discord:
  prefix: "!"
storage:
  driver: file
  path: ./s
logging: {}
`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected missing token to be rejected")
	}
}

func TestBadDurationRejected(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
discord:
  token: "abc"
storage:
  driver: sqlite
  path: ./s
  busy_timeout: soon
logging: {}
`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected invalid duration to be rejected")
	}
}

func TestAuditEnabledExplicitFalse(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
discord:
  token: "abc"
storage:
  driver: file
  path: ./s
logging: {}
audit:
  enabled: false
`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AuditEnabled() {
		t.Fatal("explicit audit.enabled=false must win over the default")
	}
}
