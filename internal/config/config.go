package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	yaml "go.yaml.in/yaml/v3"

	"designqueue/internal/domain"
	"designqueue/internal/queue"
)

var ErrInvalid = errors.New("invalid config")

// Config is the on-disk process configuration.
//
// Example:
//
//	addr: ":8080"
//	storage: { driver: sqlite, path: ./designqueue.db }
//	rollover: "5 0 * * *"
//	notifications: { webhook_url: "https://hooks.example/schedule", rate_per_sec: 5 }
type Config struct {
	Addr            string `yaml:"addr"`
	DefaultDesigner string `yaml:"default_designer"`

	// Rollover is a standard cron expression for the daily reschedule. Empty disables it.
	Rollover string `yaml:"rollover"`

	Storage       StorageConfig      `yaml:"storage"`
	Engine        EngineConfig       `yaml:"engine"`
	Notifications NotificationConfig `yaml:"notifications"`
	Log           LogConfig          `yaml:"log"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"` // sqlite | memory
	Path   string `yaml:"path"`
}

type EngineConfig struct {
	DefaultEstimatedDays int  `yaml:"default_estimated_days"`
	SameDayHandoff       bool `yaml:"same_day_handoff"`
}

type NotificationConfig struct {
	InboxSize  int    `yaml:"inbox_size"`
	WebhookURL string `yaml:"webhook_url"`
	Workers    int    `yaml:"workers"`
	QueueSize  int    `yaml:"queue_size"`
	RatePerSec int    `yaml:"rate_per_sec"`
	RetryMax   int    `yaml:"retry_max"`
	// Timeout is a Go duration string, e.g. "10s".
	Timeout string `yaml:"timeout"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

func Default() Config {
	return Config{
		Addr:            ":8080",
		DefaultDesigner: domain.DefaultDesignerID,
		Rollover:        "5 0 * * *",
		Storage:         StorageConfig{Driver: "sqlite", Path: "designqueue.db"},
		Engine:          EngineConfig{DefaultEstimatedDays: domain.DefaultEstimatedDays},
		Notifications: NotificationConfig{
			InboxSize:  queue.DefaultInboxSize,
			Workers:    4,
			QueueSize:  256,
			RatePerSec: 5,
			RetryMax:   3,
			Timeout:    "10s",
		},
		Log: LogConfig{Level: "info", Console: true},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(data, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, keeping values for keys that are absent.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("yaml unmarshal: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	var problems []string
	switch c.Storage.Driver {
	case "sqlite":
		if strings.TrimSpace(c.Storage.Path) == "" {
			problems = append(problems, "storage.path is required for sqlite")
		}
	case "memory":
	default:
		problems = append(problems, fmt.Sprintf("unknown storage.driver %q", c.Storage.Driver))
	}
	if c.Rollover != "" {
		if _, err := cron.ParseStandard(c.Rollover); err != nil {
			problems = append(problems, fmt.Sprintf("rollover: %v", err))
		}
	}
	if c.Engine.DefaultEstimatedDays <= 0 {
		problems = append(problems, "engine.default_estimated_days must be positive")
	}
	if c.Notifications.InboxSize <= 0 {
		problems = append(problems, "notifications.inbox_size must be positive")
	}
	if c.Notifications.Timeout != "" {
		if _, err := time.ParseDuration(c.Notifications.Timeout); err != nil {
			problems = append(problems, fmt.Sprintf("notifications.timeout: %v", err))
		}
	}
	if strings.TrimSpace(c.DefaultDesigner) == "" {
		c.DefaultDesigner = domain.DefaultDesignerID
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// NotificationTimeout returns the parsed webhook timeout, or 0 when unset.
func (c Config) NotificationTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Notifications.Timeout)
	return d
}
