// Package config loads qrlog settings.
//
// Priority (highest to lowest): CLI flags > environment variables (and .env)
// > ~/.qrlog/config.yaml > defaults. Flags are applied by cmd/qrlog.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultExcelPath       = "qr_scans.xlsx"
	DefaultSheetName       = "My QR Scans"
	DefaultCredentialsFile = "credentials.json"
	DefaultTokenFile       = "token.json"
	DefaultWebPort         = "8181"
	DefaultLogLevel        = "info"

	dirName    = ".qrlog"
	fileName   = "config.yaml"
	envHomeVar = "QRLOG_HOME"
)

// Config holds all qrlog settings.
type Config struct {
	// ExcelPath is the local workbook scans are appended to.
	ExcelPath string `yaml:"excel_path"`

	// SheetName is the Google spreadsheet title scans are appended to.
	SheetName string `yaml:"sheet_name"`

	// CredentialsFile is the OAuth client-secrets JSON from Google Cloud Console.
	CredentialsFile string `yaml:"credentials_file"`

	// TokenFile stores the user's access and refresh tokens after consent.
	TokenFile string `yaml:"token_file"`

	// JournalPath is the scan history file.
	JournalPath string `yaml:"journal_path"`

	// Camera is the webcam device index.
	Camera int `yaml:"camera"`

	// WebPort is the dashboard and OAuth loopback port.
	WebPort string `yaml:"web_port"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// Google OAuth client used when CredentialsFile is absent.
	// Environment only, never written to disk.
	GoogleClientID     string `yaml:"-"`
	GoogleClientSecret string `yaml:"-"`
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Message)
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		ExcelPath:       DefaultExcelPath,
		SheetName:       DefaultSheetName,
		CredentialsFile: DefaultCredentialsFile,
		TokenFile:       DefaultTokenFile,
		JournalPath:     filepath.Join(Dir(), "journal.json"),
		Camera:          0,
		WebPort:         DefaultWebPort,
		LogLevel:        DefaultLogLevel,
	}
}

// Dir returns the qrlog state directory (QRLOG_HOME or ~/.qrlog).
func Dir() string {
	if dir := os.Getenv(envHomeVar); dir != "" {
		return dir
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, dirName)
}

// Path returns the path to the config file.
func Path() string {
	return filepath.Join(Dir(), fileName)
}

// LogPath returns the log file used when stdout belongs to the terminal UI.
func LogPath() string {
	return filepath.Join(Dir(), "qrlog.log")
}

// Load reads the config file over the defaults.
// A missing file is not an error.
func Load() (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path())
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("parse %s: %w", Path(), err)
	}

	return cfg, nil
}

// LoadWithOverrides loads the config file, then .env from the working
// directory if present, then environment variables.
func LoadWithOverrides() (Config, error) {
	cfg, err := Load()
	if err != nil {
		return cfg, err
	}

	if err := LoadDotEnv(".env"); err != nil {
		return cfg, err
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// LoadDotEnv loads variables from path without overriding ones already set.
// A missing file is ignored.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("QRLOG_EXCEL_PATH"); v != "" {
		c.ExcelPath = v
	}
	if v := os.Getenv("QRLOG_SHEET_NAME"); v != "" {
		c.SheetName = v
	}
	if v := os.Getenv("QRLOG_CREDENTIALS_FILE"); v != "" {
		c.CredentialsFile = v
	}
	if v := os.Getenv("QRLOG_TOKEN_FILE"); v != "" {
		c.TokenFile = v
	}
	if v := os.Getenv("QRLOG_JOURNAL_PATH"); v != "" {
		c.JournalPath = v
	}
	if v := os.Getenv("QRLOG_CAMERA"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Camera = n
		}
	}
	if v := os.Getenv("QRLOG_WEB_PORT"); v != "" {
		c.WebPort = v
	}
	if v := os.Getenv("QRLOG_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	c.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	c.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
}

// Validate checks the config values.
func (c *Config) Validate() error {
	if c.ExcelPath == "" {
		return &ConfigError{Field: "excel_path", Message: "must not be empty"}
	}
	if ext := strings.ToLower(filepath.Ext(c.ExcelPath)); ext != ".xlsx" {
		return &ConfigError{Field: "excel_path", Message: fmt.Sprintf("must end in .xlsx, got %q", c.ExcelPath)}
	}
	if c.Camera < 0 {
		return &ConfigError{Field: "camera", Message: "device index must be >= 0"}
	}
	if port, err := strconv.Atoi(c.WebPort); err != nil || port <= 0 || port > 65535 {
		return &ConfigError{Field: "web_port", Message: fmt.Sprintf("invalid port %q", c.WebPort)}
	}
	return nil
}

// Save writes the config file, creating the state directory.
func Save(cfg Config) error {
	if err := os.MkdirAll(Dir(), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(Path(), data, 0644)
}
