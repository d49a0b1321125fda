package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// RemoteConfig holds connection settings for the remote task backend.
type RemoteConfig struct {
	// BaseURL is the project root URL (e.g., https://xyz.supabase.co).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// APIKey is the anon/service key sent with every request.
	APIKey string `mapstructure:"api_key" yaml:"api_key"`

	// ProbeURL overrides the reachability probe target. Empty means
	// probe the BaseURL itself.
	ProbeURL string `mapstructure:"probe_url" yaml:"probe_url"`
}

// SyncConfig holds tuning for the background sync machinery.
type SyncConfig struct {
	// RetryIntervalSec is how often the retry loop re-checks the
	// pending queue while online.
	RetryIntervalSec int `mapstructure:"retry_interval_sec" yaml:"retry_interval_sec"`

	// ProbeIntervalSec is how often connectivity is re-probed.
	ProbeIntervalSec int `mapstructure:"probe_interval_sec" yaml:"probe_interval_sec"`
}

// StorageConfig holds local persistence settings.
type StorageConfig struct {
	// DBPath is the sqlite database file for the task cache and
	// pending-operation queue.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// LogConfig holds settings for the rotating log file.
type LogConfig struct {
	Path       string `mapstructure:"path" yaml:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Remote  RemoteConfig  `mapstructure:"remote" yaml:"remote"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/afflosync/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "afflosync", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".local", "share", "afflosync")
	return &AppConfig{
		Sync: SyncConfig{
			RetryIntervalSec: 30,
			ProbeIntervalSec: 15,
		},
		Storage: StorageConfig{
			DBPath: filepath.Join(dataDir, "tasks.db"),
		},
		Log: LogConfig{
			Path:       filepath.Join(dataDir, "afflosync.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	defaults := defaultAppConfig()
	v.SetDefault("sync.retry_interval_sec", defaults.Sync.RetryIntervalSec)
	v.SetDefault("sync.probe_interval_sec", defaults.Sync.ProbeIntervalSec)
	v.SetDefault("storage.db_path", defaults.Storage.DBPath)
	v.SetDefault("log.path", defaults.Log.Path)
	v.SetDefault("log.max_size_mb", defaults.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", defaults.Log.MaxBackups)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaults, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaults, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("remote", cfg.Remote)
	v.Set("sync", cfg.Sync)
	v.Set("storage", cfg.Storage)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
