package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	t.Setenv("QRLOG_HOME", t.TempDir())
	cfg := Default()

	if cfg.ExcelPath != "qr_scans.xlsx" {
		t.Errorf("expected default excel path, got %s", cfg.ExcelPath)
	}
	if cfg.SheetName != "My QR Scans" {
		t.Errorf("expected default sheet name, got %s", cfg.SheetName)
	}
	if cfg.CredentialsFile != "credentials.json" || cfg.TokenFile != "token.json" {
		t.Errorf("unexpected google files: %s %s", cfg.CredentialsFile, cfg.TokenFile)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("QRLOG_HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ExcelPath != DefaultExcelPath {
		t.Errorf("expected defaults when file is missing, got %s", cfg.ExcelPath)
	}
}

func TestSaveAndLoad(t *testing.T) {
	home := t.TempDir()
	t.Setenv("QRLOG_HOME", home)

	cfg := Default()
	cfg.ExcelPath = "/data/inventory.xlsx"
	cfg.SheetName = "Warehouse"
	cfg.Camera = 2
	cfg.GoogleClientSecret = "must-not-persist"

	if err := Save(cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(home, "config.yaml"))
	if err != nil {
		t.Fatalf("expected config file: %v", err)
	}
	if string(data) == "" {
		t.Fatal("config file is empty")
	}
	if contains(string(data), "must-not-persist") {
		t.Error("client secret must not be written to the config file")
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.ExcelPath != "/data/inventory.xlsx" || loaded.SheetName != "Warehouse" || loaded.Camera != 2 {
		t.Errorf("loaded config mismatch: %+v", loaded)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("QRLOG_HOME", home)

	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte("sheet_name: Tools\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SheetName != "Tools" {
		t.Errorf("expected sheet name from file, got %s", cfg.SheetName)
	}
	if cfg.ExcelPath != DefaultExcelPath {
		t.Errorf("expected default excel path, got %s", cfg.ExcelPath)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("QRLOG_HOME", home)

	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte("camera: [not a number"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("QRLOG_HOME", t.TempDir())
	t.Setenv("QRLOG_EXCEL_PATH", "env.xlsx")
	t.Setenv("QRLOG_SHEET_NAME", "Env Sheet")
	t.Setenv("QRLOG_CAMERA", "1")
	t.Setenv("QRLOG_WEB_PORT", "9090")
	t.Setenv("GOOGLE_CLIENT_ID", "id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.ExcelPath != "env.xlsx" || cfg.SheetName != "Env Sheet" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
	if cfg.Camera != 1 || cfg.WebPort != "9090" {
		t.Errorf("numeric env overrides not applied: %+v", cfg)
	}
	if cfg.GoogleClientID != "id" || cfg.GoogleClientSecret != "secret" {
		t.Error("google client env not applied")
	}
}

func TestApplyEnvIgnoresBadCamera(t *testing.T) {
	t.Setenv("QRLOG_HOME", t.TempDir())
	t.Setenv("QRLOG_CAMERA", "front")

	cfg := Default()
	cfg.ApplyEnv()
	if cfg.Camera != 0 {
		t.Errorf("expected camera to stay 0, got %d", cfg.Camera)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("QRLOG_TEST_DOTENV=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("QRLOG_TEST_DOTENV", "")
	os.Unsetenv("QRLOG_TEST_DOTENV")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if got := os.Getenv("QRLOG_TEST_DOTENV"); got != "from-file" {
		t.Errorf("expected value from .env, got %q", got)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("QRLOG_HOME", t.TempDir())

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty excel path", func(c *Config) { c.ExcelPath = "" }, "excel_path"},
		{"wrong extension", func(c *Config) { c.ExcelPath = "scans.csv" }, "excel_path"},
		{"negative camera", func(c *Config) { c.Camera = -1 }, "camera"},
		{"bad port", func(c *Config) { c.WebPort = "http" }, "web_port"},
		{"port out of range", func(c *Config) { c.WebPort = "70000" }, "web_port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %v", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("field = %s, want %s", cfgErr.Field, tt.field)
			}
		})
	}
}

func TestValidateAcceptsUpperCaseExtension(t *testing.T) {
	t.Setenv("QRLOG_HOME", t.TempDir())
	cfg := Default()
	cfg.ExcelPath = "SCANS.XLSX"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
