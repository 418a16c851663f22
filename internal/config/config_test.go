package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CaptureMaxBytes != DefaultCaptureMaxBytes {
		t.Fatalf("CaptureMaxBytes = %d, want %d", cfg.CaptureMaxBytes, DefaultCaptureMaxBytes)
	}
	if len(cfg.TrackingParams) != 0 {
		t.Fatalf("TrackingParams = %v, want empty", cfg.TrackingParams)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"capture_max_bytes": 500, "tracking_params": ["ref", "utm_medium=email"]}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CaptureMaxBytes != 500 {
		t.Fatalf("CaptureMaxBytes = %d, want %d", cfg.CaptureMaxBytes, 500)
	}
	if len(cfg.TrackingParams) != 2 {
		t.Fatalf("TrackingParams = %v, want 2 entries", cfg.TrackingParams)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{not json}`)

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_DisabledTools(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"disabled_tools": ["interaction_delete", "interaction_ingest"]}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.DisabledTools) != 2 {
		t.Fatalf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
	if cfg.DisabledTools[0] != "interaction_delete" {
		t.Errorf("DisabledTools[0] = %q, want %q", cfg.DisabledTools[0], "interaction_delete")
	}
}

func TestConfig_Normalizer(t *testing.T) {
	cfg := &Config{TrackingParams: []string{"ref"}}
	n := cfg.Normalizer()

	if !n.Equal("https://a.example/x?ref=feed", "https://a.example/x") {
		t.Error("configured param should be dropped")
	}
	if !n.Equal("https://a.example/x?utm_source=chatgpt.com", "https://a.example/x") {
		t.Error("default param should still be dropped")
	}
	if n.Equal("https://a.example/x?utm_source=newsletter", "https://a.example/x") {
		t.Error("default param only matches its exact value")
	}
}

func TestLoadWithRepo_BothPresent(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	writeConfig(t, globalDir, `{"capture_max_bytes": 8000, "tracking_params": ["ref"], "disabled_tools": ["interaction_delete"]}`)
	writeConfig(t, filepath.Join(repoRoot, ".citelens"), `{"capture_max_bytes": 5000, "tracking_params": ["fbclid"], "disabled_tools": ["interaction_ingest"]}`)

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	// Repo overrides scalar
	if cfg.CaptureMaxBytes != 5000 {
		t.Errorf("CaptureMaxBytes = %d, want 5000 (repo override)", cfg.CaptureMaxBytes)
	}

	// Arrays merged
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
	if len(cfg.TrackingParams) != 2 {
		t.Errorf("TrackingParams = %v, want [ref fbclid]", cfg.TrackingParams)
	}
}

func TestLoadWithRepo_OnlyGlobal(t *testing.T) {
	globalDir := t.TempDir()
	repoDir := t.TempDir()

	writeConfig(t, globalDir, `{"capture_max_bytes": 8000, "disabled_tools": ["interaction_delete"]}`)

	cfg, err := LoadWithRepo(globalDir, repoDir)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.CaptureMaxBytes != 8000 {
		t.Errorf("CaptureMaxBytes = %d, want 8000", cfg.CaptureMaxBytes)
	}
	if len(cfg.DisabledTools) != 1 || cfg.DisabledTools[0] != "interaction_delete" {
		t.Errorf("DisabledTools = %v, want [interaction_delete]", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_NeitherPresent(t *testing.T) {
	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.CaptureMaxBytes != DefaultCaptureMaxBytes {
		t.Errorf("CaptureMaxBytes = %d, want default", cfg.CaptureMaxBytes)
	}
	if len(cfg.DisabledTools) != 0 {
		t.Errorf("DisabledTools = %v, want empty", cfg.DisabledTools)
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{CaptureMaxBytes: 10000, DBMaxOpenConns: 5}
	overlay := &Config{CaptureMaxBytes: 5000} // DBMaxOpenConns is 0 (zero value)

	result := Merge(base, overlay)

	if result.CaptureMaxBytes != 5000 {
		t.Errorf("CaptureMaxBytes = %d, want 5000 (overlay)", result.CaptureMaxBytes)
	}
	if result.DBMaxOpenConns != 5 {
		t.Errorf("DBMaxOpenConns = %d, want 5 (base, overlay is zero)", result.DBMaxOpenConns)
	}
}

func TestMerge_BooleanOr(t *testing.T) {
	base := &Config{AllowUnsafePaths: true}
	overlay := &Config{AllowUnsafePaths: false}

	result := Merge(base, overlay)

	if !result.AllowUnsafePaths {
		t.Error("AllowUnsafePaths should be true (base OR overlay)")
	}
}

func TestMerge_ArrayMergeDedup(t *testing.T) {
	base := &Config{TrackingParams: []string{"ref", " fbclid "}}
	overlay := &Config{TrackingParams: []string{"fbclid", "gclid", ""}}

	result := Merge(base, overlay)

	want := []string{"ref", "fbclid", "gclid"}
	if len(result.TrackingParams) != len(want) {
		t.Fatalf("TrackingParams = %v, want %v", result.TrackingParams, want)
	}
	for i := range want {
		if result.TrackingParams[i] != want[i] {
			t.Errorf("TrackingParams[%d] = %q, want %q", i, result.TrackingParams[i], want[i])
		}
	}
}

func TestFindRepoConfig_InParentDir(t *testing.T) {
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, ".citelens")
	writeConfig(t, configDir, `{}`)

	subdir := filepath.Join(tmpDir, "subdir", "deeper")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	found := FindRepoConfig(subdir)
	if want := filepath.Join(configDir, "config.json"); found != want {
		t.Errorf("FindRepoConfig() = %q, want %q", found, want)
	}
}

func TestFindRepoConfig_NotFound(t *testing.T) {
	if found := FindRepoConfig(t.TempDir()); found != "" {
		t.Errorf("FindRepoConfig() = %q, want empty string", found)
	}
}
