// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Media backends.
const (
	MediaLocal = "local"
	MediaS3    = "s3"
)

// DefaultAppID namespaces the store document path.
const DefaultAppID = "stone-wall-books-v2"

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Storage   StorageConfig
	Server    ServerConfig
	Auth      AuthConfig
	Sync      SyncConfig
	Messaging MessagingConfig
	Media     MediaConfig
	Backup    BackupConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level  string
	Format string // json or pretty; empty picks by environment
}

// StorageConfig holds document and media storage configuration.
type StorageConfig struct {
	DataPath  string
	MediaPath string // default: {data}/media
	Backend   string // badger or sqlite
	AppID     string
}

// BadgerPath is where the badger backend keeps its files.
func (s StorageConfig) BadgerPath() string {
	return filepath.Join(s.DataPath, "badger")
}

// SQLitePath is the sqlite backend's database file.
func (s StorageConfig) SQLitePath() string {
	return filepath.Join(s.DataPath, "store.db")
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port         string
	PublicURL    string // Optional; prefixes media URLs when set
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	EchoTimeout  time.Duration
	CORSOrigins  []string
}

// MediaBaseURL is the URL prefix uploaded images are served under.
func (s ServerConfig) MediaBaseURL() string {
	return strings.TrimSuffix(s.PublicURL, "/") + "/media"
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// PASETO v4 symmetric key (32 bytes), set by auth.LoadOrGenerateKey in main.
	AccessTokenKey           []byte
	SessionDuration          time.Duration
	AnonymousSessionDuration time.Duration
	// Sign-in attempts per second per client, with burst.
	RateLimit float64
	RateBurst int
}

// SyncConfig holds store write configuration.
type SyncConfig struct {
	// StrictWrites rejects a mutation whose base version is stale instead of overwriting.
	StrictWrites bool
}

// MessagingConfig holds cross-instance change notification configuration.
type MessagingConfig struct {
	NATSURL string // empty disables NATS
	Subject string
}

// MediaConfig selects where uploaded images are stored.
type MediaConfig struct {
	Backend string // local or s3
	S3      S3Config
}

// S3Config holds the bucket settings for the s3 media backend. Endpoint is set for
// S3-compatible services; PublicURL overrides the default bucket URL, e.g. for a CDN.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PublicURL string
	Prefix    string
}

// BackupConfig holds scheduled backup configuration.
type BackupConfig struct {
	Schedule string // cron expression; empty disables scheduled backups
	Keep     int
	Dir      string // default: {data}/backups
}

// Load reads configuration with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("storefront", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", "", "Log format (json, pretty)")

	dataPath := fs.String("data-path", "", "Base path for store data")
	mediaPath := fs.String("media-path", "", "Path for uploaded images (default: {data}/media)")
	backend := fs.String("store-backend", "", "Document store backend (badger, sqlite)")
	appID := fs.String("app-id", "", "Application id used in the store document path")

	port := fs.String("port", "", "Server port (default: 8080)")
	publicURL := fs.String("public-url", "", "Public base URL of the server")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 60s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	echoTimeout := fs.String("echo-timeout", "", "How long a mutation waits for its echo (default: 5s)")
	corsOrigins := fs.String("cors-origins", "", "Comma-separated allowed browser origins")

	sessionDuration := fs.String("session-duration", "", "Account session lifetime (default: 720h)")
	anonDuration := fs.String("anonymous-session-duration", "", "Anonymous session lifetime (default: 720h)")
	strictWrites := fs.String("strict-writes", "", "Reject writes based on a stale version (default: false)")
	natsURL := fs.String("nats-url", "", "NATS server URL for cross-instance notifications")

	mediaBackend := fs.String("media-backend", "", "Image storage backend (local, s3)")
	s3Bucket := fs.String("s3-bucket", "", "Bucket for the s3 media backend")
	s3Region := fs.String("s3-region", "", "Region for the s3 media backend")
	s3Endpoint := fs.String("s3-endpoint", "", "Endpoint for S3-compatible services")

	backupSchedule := fs.String("backup-schedule", "", "Cron expression for scheduled backups (empty disables)")
	backupKeep := fs.String("backup-keep", "", "Scheduled backups to keep (default: 7)")
	backupDir := fs.String("backup-dir", "", "Directory for scheduled backups (default: {data}/backups)")

	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Missing .env files are fine; existing environment variables win over the file.
	_ = godotenv.Load(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level:  getConfigValue(*logLevel, "LOG_LEVEL", "info"),
			Format: getConfigValue(*logFormat, "LOG_FORMAT", ""),
		},
		Storage: StorageConfig{
			DataPath:  getConfigValue(*dataPath, "DATA_PATH", ""),
			MediaPath: getConfigValue(*mediaPath, "MEDIA_PATH", ""),
			Backend:   strings.ToLower(getConfigValue(*backend, "STORE_BACKEND", BackendBadger)),
			AppID:     getConfigValue(*appID, "APP_ID", DefaultAppID),
		},
		Server: ServerConfig{
			Port:        getConfigValue(*port, "SERVER_PORT", "8080"),
			PublicURL:   getConfigValue(*publicURL, "PUBLIC_URL", ""),
			CORSOrigins: splitList(getConfigValue(*corsOrigins, "CORS_ORIGINS", "")),
		},
		Auth: AuthConfig{
			RateLimit: 1,
			RateBurst: 5,
		},
		Sync: SyncConfig{
			StrictWrites: getBoolConfigValue(*strictWrites, "STRICT_WRITES", false),
		},
		Messaging: MessagingConfig{
			NATSURL: getConfigValue(*natsURL, "NATS_URL", ""),
			Subject: getConfigValue("", "NATS_SUBJECT", "storefront.documents.changed"),
		},
		Media: MediaConfig{
			Backend: strings.ToLower(getConfigValue(*mediaBackend, "MEDIA_BACKEND", MediaLocal)),
			S3: S3Config{
				Bucket:    getConfigValue(*s3Bucket, "S3_BUCKET", ""),
				Region:    getConfigValue(*s3Region, "S3_REGION", ""),
				Endpoint:  getConfigValue(*s3Endpoint, "S3_ENDPOINT", ""),
				AccessKey: getConfigValue("", "S3_ACCESS_KEY", ""),
				SecretKey: getConfigValue("", "S3_SECRET_KEY", ""),
				PublicURL: getConfigValue("", "S3_PUBLIC_URL", ""),
				Prefix:    getConfigValue("", "S3_PREFIX", ""),
			},
		},
		Backup: BackupConfig{
			Schedule: getConfigValue(*backupSchedule, "BACKUP_SCHEDULE", ""),
			Dir:      getConfigValue(*backupDir, "BACKUP_DIR", ""),
		},
	}

	keep := getConfigValue(*backupKeep, "BACKUP_KEEP", "7")
	parsedKeep, err := strconv.Atoi(keep)
	if err != nil {
		return nil, fmt.Errorf("invalid backup_keep %q: %w", keep, err)
	}
	cfg.Backup.Keep = parsedKeep

	durations := []struct {
		flagValue, envKey, fallback string
		target                      *time.Duration
	}{
		{*readTimeout, "SERVER_READ_TIMEOUT", "15s", &cfg.Server.ReadTimeout},
		{*writeTimeout, "SERVER_WRITE_TIMEOUT", "60s", &cfg.Server.WriteTimeout},
		{*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s", &cfg.Server.IdleTimeout},
		{*echoTimeout, "ECHO_TIMEOUT", "5s", &cfg.Server.EchoTimeout},
		{*sessionDuration, "SESSION_DURATION", "720h", &cfg.Auth.SessionDuration},
		{*anonDuration, "ANONYMOUS_SESSION_DURATION", "720h", &cfg.Auth.AnonymousSessionDuration},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flagValue, d.envKey, d.fallback)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", strings.ToLower(d.envKey), raw, err)
		}
		*d.target = parsed
	}

	if err := cfg.expandStoragePaths(); err != nil {
		return nil, fmt.Errorf("invalid storage path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	switch c.Logger.Format {
	case "", "json", "pretty":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or pretty)", c.Logger.Format)
	}

	switch c.Storage.Backend {
	case BackendBadger, BackendSQLite:
	default:
		return fmt.Errorf("invalid store backend: %s (must be badger or sqlite)", c.Storage.Backend)
	}

	if strings.TrimSpace(c.Storage.AppID) == "" {
		return errors.New("APP_ID cannot be empty")
	}
	if strings.Contains(c.Storage.AppID, "/") {
		return fmt.Errorf("invalid app id %q: must not contain '/'", c.Storage.AppID)
	}

	if c.Storage.DataPath == "" {
		return errors.New("data path cannot be empty after expansion")
	}

	if c.Server.EchoTimeout <= 0 {
		return errors.New("echo timeout must be positive")
	}

	switch c.Media.Backend {
	case MediaLocal:
	case MediaS3:
		if c.Media.S3.Bucket == "" || c.Media.S3.Region == "" {
			return errors.New("s3 media backend requires S3_BUCKET and S3_REGION")
		}
	default:
		return fmt.Errorf("invalid media backend: %s (must be local or s3)", c.Media.Backend)
	}

	if c.Backup.Keep < 1 {
		return fmt.Errorf("invalid backup keep %d: must be at least 1", c.Backup.Keep)
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandStoragePaths resolves the data path, defaulting to ~/StoneWallBooks, and places
// media under it unless configured elsewhere.
func (c *Config) expandStoragePaths() error {
	defaultPath := ""
	if c.Storage.DataPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		defaultPath = filepath.Join(homeDir, "StoneWallBooks", "data")
	}

	expanded, err := expandPath(c.Storage.DataPath, defaultPath)
	if err != nil {
		return err
	}
	c.Storage.DataPath = expanded

	media, err := expandPath(c.Storage.MediaPath, filepath.Join(expanded, "media"))
	if err != nil {
		return err
	}
	c.Storage.MediaPath = media

	backups, err := expandPath(c.Backup.Dir, filepath.Join(expanded, "backups"))
	if err != nil {
		return err
	}
	c.Backup.Dir = backups
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	if b, err := strconv.ParseBool(strValue); err == nil {
		return b
	}
	return strings.EqualFold(strValue, "yes")
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
