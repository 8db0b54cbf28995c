package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the closed option surface. Every recognized key is listed here
// with an explicit effect; unknown keys are dropped during unmarshalling.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Databases    []DatabaseConfig   `mapstructure:"databases"`
	Backup       BackupConfig       `mapstructure:"backup"`
	Retention    RetentionConfig    `mapstructure:"retention"`
	Notification NotificationConfig `mapstructure:"notification"`
	Telegram     TelegramConfig     `mapstructure:"telegram"`
	S3           S3Config           `mapstructure:"s3"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

type DatabaseConfig struct {
	Name     string `mapstructure:"name"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`

	// Command replaces the default dump tool invocation entirely. When set,
	// the runner executes `command args...` and streams its stdout; the
	// built-in mysqldump argument set is skipped.
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

type BackupConfig struct {
	ArtifactRoot      string `mapstructure:"artifact_root"`
	Compress          bool   `mapstructure:"compress"`
	Parallelism       int    `mapstructure:"parallelism"`
	RetentionSchedule string `mapstructure:"retention_schedule"`
}

type RetentionConfig struct {
	KeepDays  int `mapstructure:"keep_days"`
	KeepCount int `mapstructure:"keep_count"`
}

type NotificationConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	SMTPHost          string        `mapstructure:"smtp_host"`
	SMTPPort          int           `mapstructure:"smtp_port"`
	Username          string        `mapstructure:"username"`
	Password          string        `mapstructure:"password"`
	From              string        `mapstructure:"from"`
	UseStartTLS       bool          `mapstructure:"use_starttls"`
	DefaultRecipients []string      `mapstructure:"default_recipients"`
	QueueSize         int           `mapstructure:"queue_size"`
	Workers           int           `mapstructure:"workers"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffCap        time.Duration `mapstructure:"backoff_cap"`
	EnqueueTimeout    time.Duration `mapstructure:"enqueue_timeout"`
	AttemptTimeout    time.Duration `mapstructure:"attempt_timeout"`
	DrainTimeout      time.Duration `mapstructure:"drain_timeout"`
}

type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

type S3Config struct {
	Enabled   bool   `mapstructure:"enabled"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("app.name", "custos")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("backup.compress", true)
	v.SetDefault("backup.parallelism", 2)
	v.SetDefault("backup.retention_schedule", "0 0 3 * * *")
	v.SetDefault("retention.keep_days", 7)
	v.SetDefault("retention.keep_count", 10)
	v.SetDefault("notification.smtp_port", 587)
	v.SetDefault("notification.use_starttls", true)
	v.SetDefault("notification.queue_size", 64)
	v.SetDefault("notification.workers", 3)
	v.SetDefault("notification.max_attempts", 3)
	v.SetDefault("notification.backoff_base", "1s")
	v.SetDefault("notification.backoff_cap", "60s")
	v.SetDefault("notification.enqueue_timeout", "2s")
	v.SetDefault("notification.attempt_timeout", "30s")
	v.SetDefault("notification.drain_timeout", "30s")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Databases) == 0 {
		return fmt.Errorf("at least one database configuration is required")
	}

	seen := make(map[string]bool)
	for i, db := range c.Databases {
		if db.Name == "" {
			return fmt.Errorf("database[%d]: name is required", i)
		}
		if seen[db.Name] {
			return fmt.Errorf("database[%d]: duplicate name %q", i, db.Name)
		}
		seen[db.Name] = true
		if db.Enabled && db.Schedule == "" {
			return fmt.Errorf("database[%d]: schedule is required when enabled", i)
		}
	}

	if c.Backup.ArtifactRoot == "" {
		return fmt.Errorf("backup.artifact_root is required")
	}
	if c.Backup.Parallelism < 1 {
		return fmt.Errorf("backup.parallelism must be at least 1")
	}
	if c.Retention.KeepDays < 0 || c.Retention.KeepCount < 0 {
		return fmt.Errorf("retention values must not be negative")
	}

	if c.Notification.Enabled {
		if c.Notification.SMTPHost == "" {
			return fmt.Errorf("notification.smtp_host is required when enabled")
		}
		if c.Notification.From == "" {
			return fmt.Errorf("notification.from is required when enabled")
		}
	}
	if c.Notification.QueueSize < 1 || c.Notification.Workers < 1 {
		return fmt.Errorf("notification queue_size and workers must be at least 1")
	}
	if c.Notification.MaxAttempts < 1 {
		return fmt.Errorf("notification.max_attempts must be at least 1")
	}

	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id are required when enabled")
	}
	if c.S3.Enabled && (c.S3.Region == "" || c.S3.Bucket == "") {
		return fmt.Errorf("s3.region and s3.bucket are required when enabled")
	}

	return nil
}

func (c *Config) GetEnabledDatabases() []DatabaseConfig {
	var enabled []DatabaseConfig
	for _, db := range c.Databases {
		if db.Enabled {
			enabled = append(enabled, db)
		}
	}
	return enabled
}

func (c *Config) DatabaseNames() []string {
	names := make([]string, 0, len(c.Databases))
	for _, db := range c.Databases {
		names = append(names, db.Name)
	}
	return names
}
