package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`
	HTTPAddr string `mapstructure:"http_addr"`

	ThinkUpBaseURL        string        `mapstructure:"thinkup_base_url"`
	ThinkUpTimeoutSeconds int64         `mapstructure:"thinkup_timeout_seconds"`
	ThinkUpRawQuery       bool          `mapstructure:"thinkup_raw_query"`
	ThinkUpTimeout        time.Duration `mapstructure:"-"`

	RoutesFile     string `mapstructure:"routes_file"`
	PublishersFile string `mapstructure:"publishers_file"`

	JournalType            string        `mapstructure:"journal_type"`
	BBoltPath              string        `mapstructure:"bbolt_path"`
	RedisAddr              string        `mapstructure:"redis_addr"`
	JournalTTLSeconds      int64         `mapstructure:"journal_ttl_seconds"`
	JournalCleanupSeconds  int64         `mapstructure:"journal_cleanup_interval_seconds"`
	JournalMaxEntries      int           `mapstructure:"journal_max_entries"`
	JournalTTL             time.Duration `mapstructure:"-"`
	JournalCleanupInterval time.Duration `mapstructure:"-"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	return decode(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "thinkup-relay")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("http_addr", ":4567")
	v.SetDefault("thinkup_base_url", "http://localhost:80/projects/ThinkUp/webapp/")
	v.SetDefault("thinkup_timeout_seconds", 0) // no timeout
	v.SetDefault("thinkup_raw_query", false)
	v.SetDefault("routes_file", "")
	v.SetDefault("publishers_file", "")
	v.SetDefault("journal_type", "none")
	v.SetDefault("bbolt_path", "./data/journal.db")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("journal_ttl_seconds", int64((24*time.Hour)/time.Second))
	v.SetDefault("journal_cleanup_interval_seconds", int64(time.Hour/time.Second))
	v.SetDefault("journal_max_entries", 500)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.ThinkUpBaseURL = strings.TrimSpace(cfg.ThinkUpBaseURL)
	if cfg.ThinkUpBaseURL == "" {
		return nil, fmt.Errorf("thinkup_base_url is required")
	}
	if !strings.HasSuffix(cfg.ThinkUpBaseURL, "/") {
		return nil, fmt.Errorf("thinkup_base_url must end with a slash, got %q", cfg.ThinkUpBaseURL)
	}
	if cfg.ThinkUpTimeoutSeconds < 0 {
		return nil, fmt.Errorf("invalid thinkup_timeout_seconds (must be zero or positive seconds)")
	}
	cfg.ThinkUpTimeout = time.Duration(cfg.ThinkUpTimeoutSeconds) * time.Second

	cfg.JournalType = strings.ToLower(strings.TrimSpace(cfg.JournalType))
	if cfg.JournalTTLSeconds <= 0 {
		return nil, fmt.Errorf("invalid journal_ttl_seconds (must be positive seconds)")
	}
	if cfg.JournalCleanupSeconds <= 0 {
		return nil, fmt.Errorf("invalid journal_cleanup_interval_seconds (must be positive seconds)")
	}
	if cfg.JournalMaxEntries <= 0 {
		return nil, fmt.Errorf("invalid journal_max_entries (must be positive)")
	}
	cfg.JournalTTL = time.Duration(cfg.JournalTTLSeconds) * time.Second
	cfg.JournalCleanupInterval = time.Duration(cfg.JournalCleanupSeconds) * time.Second

	return &cfg, nil
}
