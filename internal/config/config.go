package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

type Redis struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type MySQL struct {
	DSN string `toml:"dsn"`
}

type Kafka struct {
	Enabled bool     `toml:"enabled"`
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// Cache contains the local cache key layout and locking mode.
type Cache struct {
	KeyPrefix string `toml:"key_prefix"`
	// DistributedLock switches per-community locking from in-process to Redis,
	// needed only when several bot processes share one Redis.
	DistributedLock bool `toml:"distributed_lock"`
}

// Resync contains the reconciler timing. BackoffBaseSeconds = 0 disables
// backoff so every pending community is retried on every tick.
type Resync struct {
	IntervalSeconds    int `toml:"interval_seconds"`
	PushTimeoutSeconds int `toml:"push_timeout_seconds"`
	BackoffBaseSeconds int `toml:"backoff_base_seconds"`
	BackoffMaxSeconds  int `toml:"backoff_max_seconds"`
	AlertAfter         int `toml:"alert_after"`
}

type SMTP struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
}

type Alerts struct {
	Recipients []string `toml:"recipients"`
}

// API contains the operator HTTP API settings.
type API struct {
	Bind                 string `toml:"bind"`
	Operator             string `toml:"operator"`
	OperatorPasswordHash string `toml:"operator_password_hash"` // bcrypt
	AccessSecret         string `toml:"access_secret"`
	RefreshSecret        string `toml:"refresh_secret"`
}

type Logging struct {
	Level       string   `toml:"level"`
	Format      string   `toml:"format"`
	OutputPaths []string `toml:"output_paths"`
}

type Paths struct {
	LockDir string `toml:"lock_dir"`
}

// Config encapsulates all configuration values for the sync engine.
type Config struct {
	Redis   Redis   `toml:"redis"`
	MySQL   MySQL   `toml:"mysql"`
	Kafka   Kafka   `toml:"kafka"`
	Cache   Cache   `toml:"cache"`
	Resync  Resync  `toml:"resync"`
	SMTP    SMTP    `toml:"smtp"`
	Alerts  Alerts  `toml:"alerts"`
	API     API     `toml:"api"`
	Logging Logging `toml:"logging"`
	Paths   Paths   `toml:"paths"`
}

// Default returns a configuration populated with the built-in defaults.
func Default() Config {
	return Config{
		Redis: Redis{Addr: "127.0.0.1:6379"},
		Kafka: Kafka{Topic: "showtimes.events"},
		Cache: Cache{KeyPrefix: "showtimes"},
		Resync: Resync{
			IntervalSeconds:    60,
			PushTimeoutSeconds: 10,
			BackoffBaseSeconds: 60,
			BackoffMaxSeconds:  3600,
			AlertAfter:         10,
		},
		SMTP:    SMTP{Port: 587},
		API:     API{Bind: "127.0.0.1:8080", Operator: "ops"},
		Logging: Logging{Level: "info", Format: "json", OutputPaths: []string{"stdout"}},
		Paths:   Paths{LockDir: "~/.local/state/showtimes"},
	}
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/showtimes/config.toml")
}

// Load locates, parses, and validates a configuration file.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		p, err := DefaultConfigPath()
		if err != nil {
			return "", false, err
		}
		path = p
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %q is a directory", expanded)
	}
	return expanded, true, nil
}

func (c *Config) normalize() error {
	c.Cache.KeyPrefix = strings.TrimSpace(c.Cache.KeyPrefix)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if len(c.Logging.OutputPaths) == 0 {
		c.Logging.OutputPaths = []string{"stdout"}
	}
	lockDir, err := expandPath(c.Paths.LockDir)
	if err != nil {
		return err
	}
	c.Paths.LockDir = lockDir
	var recipients []string
	for _, r := range c.Alerts.Recipients {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	c.Alerts.Recipients = recipients
	return nil
}

// Validate checks values that would otherwise fail at runtime.
func (c *Config) Validate() error {
	if c.Cache.KeyPrefix == "" {
		return errors.New("cache.key_prefix must not be empty")
	}
	if strings.ContainsAny(c.Cache.KeyPrefix, "*?[]") {
		return fmt.Errorf("cache.key_prefix %q must not contain glob characters", c.Cache.KeyPrefix)
	}
	if c.Resync.IntervalSeconds <= 0 {
		return errors.New("resync.interval_seconds must be positive")
	}
	if c.Resync.PushTimeoutSeconds <= 0 {
		return errors.New("resync.push_timeout_seconds must be positive")
	}
	if c.Resync.BackoffBaseSeconds < 0 || c.Resync.BackoffMaxSeconds < 0 {
		return errors.New("resync backoff values must not be negative")
	}
	if c.Resync.BackoffBaseSeconds > 0 && c.Resync.BackoffMaxSeconds < c.Resync.BackoffBaseSeconds {
		return errors.New("resync.backoff_max_seconds must be >= backoff_base_seconds")
	}
	if c.Resync.AlertAfter < 0 {
		return errors.New("resync.alert_after must not be negative")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || strings.TrimSpace(c.Kafka.Topic) == "") {
		return errors.New("kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	if len(c.Alerts.Recipients) > 0 && strings.TrimSpace(c.SMTP.Host) == "" {
		return errors.New("smtp.host is required when alert recipients are configured")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

// RequireAPI checks the settings needed to serve the operator API.
func (c *Config) RequireAPI() error {
	if strings.TrimSpace(c.API.AccessSecret) == "" || strings.TrimSpace(c.API.RefreshSecret) == "" {
		return errors.New("api.access_secret and api.refresh_secret are required")
	}
	if strings.TrimSpace(c.API.OperatorPasswordHash) == "" {
		return errors.New("api.operator_password_hash is required")
	}
	return nil
}

func (c *Config) ResyncInterval() time.Duration {
	return time.Duration(c.Resync.IntervalSeconds) * time.Second
}

func (c *Config) PushTimeout() time.Duration {
	return time.Duration(c.Resync.PushTimeoutSeconds) * time.Second
}

func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Resync.BackoffBaseSeconds) * time.Second
}

func (c *Config) BackoffMax() time.Duration {
	return time.Duration(c.Resync.BackoffMaxSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
