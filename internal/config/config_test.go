package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "genepool.db" {
		t.Fatalf("db path = %q", cfg.DBPath)
	}
	if cfg.Timeouts.Judge.Std() != 120*time.Second {
		t.Fatalf("judge timeout = %v", cfg.Timeouts.Judge.Std())
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "controller.yaml")
	body := `
db_path: /var/lib/genepool/pool.db
model:
  base_url: http://gateway.internal:8080/v1
  mutator_model: creative-large
timeouts:
  mutate: 90s
  judge: 3m
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/var/lib/genepool/pool.db" {
		t.Fatalf("db path = %q", cfg.DBPath)
	}
	if cfg.Model.MutatorModel != "creative-large" {
		t.Fatalf("mutator model = %q", cfg.Model.MutatorModel)
	}
	// Unset fields keep their defaults.
	if cfg.Model.JudgeModel != "gpt-4o" {
		t.Fatalf("judge model = %q, want default", cfg.Model.JudgeModel)
	}
	if cfg.Timeouts.Mutate.Std() != 90*time.Second || cfg.Timeouts.Judge.Std() != 3*time.Minute {
		t.Fatalf("timeouts = %v/%v", cfg.Timeouts.Mutate.Std(), cfg.Timeouts.Judge.Std())
	}
	if cfg.Timeouts.Supervise.Std() != 30*time.Second {
		t.Fatalf("supervise timeout = %v, want default", cfg.Timeouts.Supervise.Std())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GENEPOOL_DB", "/tmp/override.db")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/override.db" {
		t.Fatalf("db path = %q", cfg.DBPath)
	}
	if cfg.Model.APIKey != "sk-test" {
		t.Fatalf("api key = %q", cfg.Model.APIKey)
	}
}

func TestLoadBadFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("timeouts:\n  mutate: not-a-duration\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for bad duration")
	}
}
