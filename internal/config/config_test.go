package config

import (
	"os"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := defaults()
	if cfg.TapesPath != "testdata/tapes" {
		t.Errorf("unexpected default TapesPath: %q", cfg.TapesPath)
	}
	if cfg.Record != "new" {
		t.Errorf("unexpected default Record mode: %q", cfg.Record)
	}
	if cfg.Fallback != "not_found" {
		t.Errorf("unexpected default Fallback mode: %q", cfg.Fallback)
	}
	if !cfg.Redact {
		t.Error("expected redaction enabled by default")
	}
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("REPLAY_TAPES_PATH", "/tmp/my-tapes")
	t.Setenv("REPLAY_RECORD", "overwrite")
	t.Setenv("REPLAY_ERROR_RATE", "12.5")
	t.Setenv("REPLAY_IGNORE_ENV", "PWD, OLDPWD ,SHLVL")

	cfg := defaults()
	loadEnv(cfg)

	if cfg.TapesPath != "/tmp/my-tapes" {
		t.Errorf("TapesPath not overridden: %q", cfg.TapesPath)
	}
	if cfg.Record != "overwrite" {
		t.Errorf("Record not overridden: %q", cfg.Record)
	}
	if cfg.ErrorRate != 12.5 {
		t.Errorf("ErrorRate not overridden: %v", cfg.ErrorRate)
	}
	want := []string{"PWD", "OLDPWD", "SHLVL"}
	if len(cfg.IgnoreEnv) != len(want) {
		t.Fatalf("IgnoreEnv = %v, want %v", cfg.IgnoreEnv, want)
	}
	for i := range want {
		if cfg.IgnoreEnv[i] != want[i] {
			t.Errorf("IgnoreEnv[%d] = %q, want %q", i, cfg.IgnoreEnv[i], want[i])
		}
	}
}

func TestLoadFileIsOptional(t *testing.T) {
	cfg := defaults()
	loadFile(cfg, "/nonexistent/replay-config.json")
	if cfg.TapesPath != "testdata/tapes" {
		t.Error("missing config file should leave defaults untouched")
	}
}

func TestLoadFileMergesOverTopOfDefaults(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/replay-config.json"
	if err := os.WriteFile(path, []byte(`{"tapesPath":"custom/tapes","errorRate":5}`), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	cfg := defaults()
	loadFile(cfg, path)

	if cfg.TapesPath != "custom/tapes" {
		t.Errorf("TapesPath not merged: %q", cfg.TapesPath)
	}
	if cfg.ErrorRate != 5 {
		t.Errorf("ErrorRate not merged: %v", cfg.ErrorRate)
	}
	if cfg.Record != "new" {
		t.Errorf("untouched field should keep default, got %q", cfg.Record)
	}
}
