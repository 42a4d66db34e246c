package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_DefaultsWhenNoFiles(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	def := DefaultConfig()

	if cfg.DataLimit != def.DataLimit || cfg.AllocQuantum != def.AllocQuantum ||
		cfg.ReadQuantum != def.ReadQuantum || *cfg.TrimLimit != *def.TrimLimit {
		t.Fatalf("config = %+v, want defaults", cfg)
	}
}

func TestLoadConfig_ReadsJWCC(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	content := `{
		// Inspector defaults.
		"data_limit": 4096,
		"read_quantum": 1024, // trailing comma is fine
	}`

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.DataLimit != 4096 || cfg.ReadQuantum != 1024 {
		t.Fatalf("config = %+v, want overrides applied", cfg)
	}

	// Untouched fields keep their defaults.
	if cfg.AllocQuantum != DefaultConfig().AllocQuantum {
		t.Fatalf("alloc quantum = %d, want default", cfg.AllocQuantum)
	}

	if *cfg.TrimLimit != *DefaultConfig().TrimLimit {
		t.Fatalf("trim limit = %d, want default", *cfg.TrimLimit)
	}
}

func TestLoadConfig_TrimLimitZeroOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	if err := os.WriteFile(path, []byte(`{"trim_limit": 0}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.TrimLimit == nil || *cfg.TrimLimit != 0 {
		t.Fatalf("trim limit = %v, want explicit 0 to override the default", cfg.TrimLimit)
	}
}

func TestMergeConfig_UnsetTrimLimitKeepsBase(t *testing.T) {
	base := DefaultConfig()

	merged := mergeConfig(base, Config{DataLimit: 2048})

	if *merged.TrimLimit != *base.TrimLimit {
		t.Fatalf("trim limit = %d, want base value retained", *merged.TrimLimit)
	}

	if merged.DataLimit != 2048 {
		t.Fatalf("data limit = %d, want override", merged.DataLimit)
	}
}

func TestLoadConfig_MissingExplicitFileIsAnError(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("missing explicit config did not error")
	}
}
