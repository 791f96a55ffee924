package config

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for docsheet
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Uploads  UploadsConfig  `mapstructure:"uploads"`
	Vision   VisionConfig   `mapstructure:"vision"`
	Sheets   SheetsConfig   `mapstructure:"sheets"`
	Security SecurityConfig `mapstructure:"security"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"`
	Intake   IntakeConfig   `mapstructure:"intake"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	BodyLimit    int    `mapstructure:"body_limit"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
	BadgerPath string `mapstructure:"badger_path"`
}

// UploadsConfig holds upload handling settings
type UploadsConfig struct {
	Dir           string   `mapstructure:"dir"`
	MaxFiles      int      `mapstructure:"max_files"`
	AllowedExts   []string `mapstructure:"allowed_exts"`
	InlineMaxSize int64    `mapstructure:"inline_max_size"`
	BlobTTLHours  int      `mapstructure:"blob_ttl_hours"`
}

// VisionConfig holds vision extraction settings
type VisionConfig struct {
	Provider          string              `mapstructure:"provider"`
	Providers         map[string]Provider `mapstructure:"providers"`
	Workers           int                 `mapstructure:"workers"`
	Retries           int                 `mapstructure:"retries"`
	RetryDelaySeconds int                 `mapstructure:"retry_delay_seconds"`
	JobTimeoutSeconds int                 `mapstructure:"job_timeout_seconds"`
	RequestsPerMinute int                 `mapstructure:"requests_per_minute"`
}

// Provider holds individual vision provider configuration
type Provider struct {
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	Timeout   int    `mapstructure:"timeout"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// SheetsConfig holds Google Sheets settings
type SheetsConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	SpreadsheetID   string `mapstructure:"spreadsheet_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// SecurityConfig holds security settings
type SecurityConfig struct {
	JWTSecret       string   `mapstructure:"jwt_secret"`
	TokenTTLHours   int      `mapstructure:"token_ttl_hours"`
	AllowOrigins    []string `mapstructure:"allow_origins"`
	SeedDefaults    bool     `mapstructure:"seed_defaults"`
	AdminEmail      string   `mapstructure:"admin_email"`
	AdminPassword   string   `mapstructure:"admin_password"`
	DefaultPassword string   `mapstructure:"default_password"`
}

// CleanupConfig holds scheduled upload cleanup settings
type CleanupConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
	MaxAgeH  int    `mapstructure:"max_age_hours"`
}

// IntakeConfig holds NAS folder intake settings
type IntakeConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	Dirs            []string `mapstructure:"dirs"`
	DocumentType    string   `mapstructure:"document_type"`
	ServiceAccount  string   `mapstructure:"service_account"`
	DebounceSeconds int      `mapstructure:"debounce_seconds"`
	InitialScan     bool     `mapstructure:"initial_scan"`
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.Set("storage.data_dir", dataDir)
	v.Set("storage.sqlite_path", filepath.Join(dataDir, "docsheet.db"))
	v.Set("storage.badger_path", filepath.Join(dataDir, "badger"))
	v.SetDefault("uploads.dir", filepath.Join(dataDir, "uploads"))
	v.SetDefault("sheets.credentials_file", filepath.Join(dataDir, "google_credentials.json"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "docsheet.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Environment variables (DOCSHEET_SERVER_PORT, DOCSHEET_SHEETS_SPREADSHEET_ID, etc.)
	v.SetEnvPrefix("DOCSHEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Viper doesn't handle nested maps well with env vars
	loadEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.body_limit", 16*1024*1024)

	v.SetDefault("uploads.max_files", 10)
	v.SetDefault("uploads.allowed_exts", []string{"png", "jpg", "jpeg", "pdf"})
	v.SetDefault("uploads.inline_max_size", 1024*1024)
	v.SetDefault("uploads.blob_ttl_hours", 24)

	v.SetDefault("vision.provider", "gemini")
	v.SetDefault("vision.providers.gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("vision.providers.gemini.model", "gemini-2.0-flash")
	v.SetDefault("vision.providers.gemini.timeout", 120)
	v.SetDefault("vision.providers.gemini.max_tokens", 2048)
	v.SetDefault("vision.providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("vision.providers.openai.model", "gpt-4o")
	v.SetDefault("vision.providers.openai.timeout", 120)
	v.SetDefault("vision.providers.openai.max_tokens", 2048)
	v.SetDefault("vision.providers.anthropic.base_url", "https://api.anthropic.com/v1")
	v.SetDefault("vision.providers.anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("vision.providers.anthropic.timeout", 120)
	v.SetDefault("vision.providers.anthropic.max_tokens", 2048)
	v.SetDefault("vision.workers", 3)
	v.SetDefault("vision.retries", 2)
	v.SetDefault("vision.retry_delay_seconds", 3)
	v.SetDefault("vision.job_timeout_seconds", 180)
	v.SetDefault("vision.requests_per_minute", 30)

	v.SetDefault("sheets.enabled", true)

	v.SetDefault("security.token_ttl_hours", 168)
	v.SetDefault("security.allow_origins", []string{"*"})
	v.SetDefault("security.seed_defaults", true)
	v.SetDefault("security.admin_email", "admin@example.com")

	v.SetDefault("cleanup.enabled", true)
	v.SetDefault("cleanup.schedule", "@hourly")
	v.SetDefault("cleanup.max_age_hours", 24)

	v.SetDefault("intake.enabled", false)
	v.SetDefault("intake.document_type", "invoice")
	v.SetDefault("intake.service_account", "intake@localhost")
	v.SetDefault("intake.debounce_seconds", 2)
	v.SetDefault("intake.initial_scan", true)
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "docsheet")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "docsheet")
}

// loadEnvOverrides loads specific env vars that Viper doesn't handle well with nested maps
func loadEnvOverrides(cfg *Config) {
	getEnv := func(key, fallback string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		return fallback
	}

	cfg.Vision.Provider = getEnv("DOCSHEET_VISION_PROVIDER", cfg.Vision.Provider)

	if cfg.Vision.Providers == nil {
		cfg.Vision.Providers = make(map[string]Provider)
	}

	for _, name := range []string{"gemini", "openai", "anthropic"} {
		canonical := "DOCSHEET_VISION_PROVIDERS_" + strings.ToUpper(name) + "_API_KEY"
		if apiKey := ResolveEnvWithAliases(canonical); apiKey != "" {
			p := cfg.Vision.Providers[name]
			p.APIKey = apiKey
			p.BaseURL = getEnv("DOCSHEET_VISION_PROVIDERS_"+strings.ToUpper(name)+"_BASE_URL", p.BaseURL)
			p.Model = getEnv("DOCSHEET_VISION_PROVIDERS_"+strings.ToUpper(name)+"_MODEL", p.Model)
			cfg.Vision.Providers[name] = p
		}
	}

	cfg.Server.Address = getEnv("DOCSHEET_SERVER_ADDRESS", cfg.Server.Address)
	if port := os.Getenv("DOCSHEET_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	cfg.Storage.DataDir = getEnv("DOCSHEET_STORAGE_DATA_DIR", cfg.Storage.DataDir)
	cfg.Uploads.Dir = getEnv("DOCSHEET_UPLOADS_DIR", cfg.Uploads.Dir)

	cfg.Sheets.SpreadsheetID = getEnv("DOCSHEET_SHEETS_SPREADSHEET_ID", cfg.Sheets.SpreadsheetID)
	cfg.Sheets.CredentialsFile = getEnv("DOCSHEET_SHEETS_CREDENTIALS_FILE", cfg.Sheets.CredentialsFile)

	cfg.Security.JWTSecret = ResolveEnvWithAliases("DOCSHEET_SECURITY_JWT_SECRET")
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = getEnv("DOCSHEET_SECURITY_JWT_SECRET", "")
	}
	cfg.Security.AdminPassword = getEnv("DOCSHEET_SECURITY_ADMIN_PASSWORD", cfg.Security.AdminPassword)
	cfg.Security.DefaultPassword = getEnv("DOCSHEET_SECURITY_DEFAULT_PASSWORD", cfg.Security.DefaultPassword)
}

func validate(cfg *Config) error {
	if cfg.Vision.Provider == "" {
		return fmt.Errorf("vision.provider is required")
	}

	if _, ok := cfg.Vision.Providers[cfg.Vision.Provider]; !ok {
		return fmt.Errorf("vision provider %s not configured", cfg.Vision.Provider)
	}

	if cfg.Uploads.MaxFiles <= 0 {
		return fmt.Errorf("uploads.max_files must be positive")
	}
	if cfg.Vision.Workers <= 0 {
		return fmt.Errorf("vision.workers must be positive")
	}

	if cfg.Sheets.Enabled && cfg.Sheets.SpreadsheetID == "" {
		return fmt.Errorf("sheets.spreadsheet_id is required when sheets is enabled")
	}

	if cfg.Security.JWTSecret == "" {
		// Generated secrets invalidate all tokens on restart; set
		// security.jwt_secret for stable sessions.
		cfg.Security.JWTSecret = generateRandomString(32)
	}

	return nil
}

func generateRandomString(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b)
}

// GetProvider returns the vision provider configuration by name
func (c *Config) GetProvider(name string) (Provider, bool) {
	p, ok := c.Vision.Providers[name]
	return p, ok
}

// ActiveProvider returns the configured vision provider
func (c *Config) ActiveProvider() (Provider, error) {
	p, ok := c.Vision.Providers[c.Vision.Provider]
	if !ok {
		return Provider{}, fmt.Errorf("vision provider %s not found", c.Vision.Provider)
	}
	return p, nil
}
