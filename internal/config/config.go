// Package config loads the p4review daemon and CLI configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete p4review configuration.
type Config struct {
	P4      P4Config      `yaml:"p4"`
	Reviews ReviewsConfig `yaml:"reviews"`
	Queue   QueueConfig   `yaml:"queue"`
	HTTP    HTTPConfig    `yaml:"http"`
	DB      DBConfig      `yaml:"db"`
	Log     LogConfig     `yaml:"log"`
	NATS    NATSConfig    `yaml:"nats"`
	Mail    MailConfig    `yaml:"mail"`
}

// P4Config describes how to reach the Perforce server.
type P4Config struct {
	Port    string        `yaml:"port"`
	User    string        `yaml:"user"`
	Client  string        `yaml:"client"`
	Binary  string        `yaml:"binary"`
	Timeout time.Duration `yaml:"timeout"`
}

// ReviewsConfig holds the workflow switches consulted by the transition
// engine.
type ReviewsConfig struct {
	DisableCommit      bool `yaml:"disable_commit"`
	DisableSelfApprove bool `yaml:"disable_self_approve"`
}

// QueueConfig controls the task worker.
type QueueConfig struct {
	// MaxAttempts is how many times a task is tried before it is parked
	// as failed.
	MaxAttempts int `yaml:"max_attempts"`

	// RetryDelay is the wait before a failed task is claimed again. It
	// doubles with each attempt.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// WorkerLifetime bounds a single worker invocation.
	WorkerLifetime time.Duration `yaml:"worker_lifetime"`
}

// HTTPConfig configures the JSON API listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`

	// PublicURL is how external clients reach the listener. Callback
	// URLs handed to test and deploy runners are built from it.
	PublicURL string `yaml:"public_url"`
}

// BaseURL returns PublicURL, falling back to a localhost URL on Addr.
func (h HTTPConfig) BaseURL() string {
	if h.PublicURL != "" {
		return strings.TrimRight(h.PublicURL, "/")
	}

	host, port, err := net.SplitHostPort(h.Addr)
	if err != nil {
		return "http://" + h.Addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}

	return "http://" + net.JoinHostPort(host, port)
}

// DBConfig points at the sqlite database.
type DBConfig struct {
	Path string `yaml:"path"`
}

// LogConfig configures daemon logging.
type LogConfig struct {
	Dir       string `yaml:"dir"`
	Level     string `yaml:"level"`
	MaxFiles  int    `yaml:"max_files"`
	MaxSizeMB int    `yaml:"max_size_mb"`
}

// NATSConfig enables task event publication when URL is set.
type NATSConfig struct {
	URL string `yaml:"url"`

	// Subject prefixes every published subject.
	Subject string `yaml:"subject"`
}

// MailConfig configures notification mail.
type MailConfig struct {
	// Sender selects the delivery backend: log or none.
	Sender string `yaml:"sender"`

	// Domain is used in message thread headers.
	Domain string `yaml:"domain"`
}

// DefaultConfig returns a Config with defaults suitable for a local daemon.
func DefaultConfig() *Config {
	return &Config{
		P4: P4Config{
			Port:    "perforce:1666",
			Binary:  "p4",
			Timeout: 30 * time.Second,
		},
		Queue: QueueConfig{
			MaxAttempts:    5,
			RetryDelay:     30 * time.Second,
			WorkerLifetime: 5 * time.Minute,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		DB: DBConfig{
			Path: defaultDBPath(),
		},
		Log: LogConfig{
			Level:     "info",
			MaxFiles:  10,
			MaxSizeMB: 20,
		},
		NATS: NATSConfig{
			Subject: "p4review",
		},
		Mail: MailConfig{
			Sender: "log",
			Domain: "p4review.local",
		},
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "p4review.db"
	}

	return filepath.Join(home, ".p4review", "p4review.db")
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	if c.P4.Port == "" {
		errs = append(errs, errors.New("p4.port is required"))
	}
	if c.P4.Binary == "" {
		errs = append(errs, errors.New("p4.binary is required"))
	}
	if c.P4.Timeout < 0 {
		errs = append(errs, errors.New("p4.timeout must not be negative"))
	}
	if c.Queue.MaxAttempts < 1 {
		errs = append(errs, errors.New("queue.max_attempts must be "+
			"at least 1"))
	}
	if c.Queue.RetryDelay < 0 {
		errs = append(errs, errors.New("queue.retry_delay must not "+
			"be negative"))
	}
	if c.Queue.WorkerLifetime <= 0 {
		errs = append(errs, errors.New("queue.worker_lifetime must "+
			"be positive"))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.DB.Path == "" {
		errs = append(errs, errors.New("db.path is required"))
	}
	if c.Log.MaxFiles < 0 || c.Log.MaxSizeMB < 0 {
		errs = append(errs, errors.New("log rotation limits must not "+
			"be negative"))
	}
	switch c.Mail.Sender {
	case "", "log", "none":
	default:
		errs = append(errs, fmt.Errorf("mail.sender %q must be log "+
			"or none", c.Mail.Sender))
	}

	return errors.Join(errs...)
}

// LoadFromFile parses a YAML file. Fields absent from the file stay at
// their zero value so the result can be merged over another Config.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	return &cfg, nil
}

// SaveToFile writes the configuration as YAML.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Merge overlays the non-zero values of other onto c.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	setString(&c.P4.Port, other.P4.Port)
	setString(&c.P4.User, other.P4.User)
	setString(&c.P4.Client, other.P4.Client)
	setString(&c.P4.Binary, other.P4.Binary)
	if other.P4.Timeout != 0 {
		c.P4.Timeout = other.P4.Timeout
	}

	// Workflow switches can only be turned on by an overlay.
	c.Reviews.DisableCommit = c.Reviews.DisableCommit ||
		other.Reviews.DisableCommit
	c.Reviews.DisableSelfApprove = c.Reviews.DisableSelfApprove ||
		other.Reviews.DisableSelfApprove

	if other.Queue.MaxAttempts != 0 {
		c.Queue.MaxAttempts = other.Queue.MaxAttempts
	}
	if other.Queue.RetryDelay != 0 {
		c.Queue.RetryDelay = other.Queue.RetryDelay
	}
	if other.Queue.WorkerLifetime != 0 {
		c.Queue.WorkerLifetime = other.Queue.WorkerLifetime
	}

	setString(&c.HTTP.Addr, other.HTTP.Addr)
	setString(&c.HTTP.PublicURL, other.HTTP.PublicURL)
	setString(&c.DB.Path, other.DB.Path)

	setString(&c.Log.Dir, other.Log.Dir)
	setString(&c.Log.Level, other.Log.Level)
	if other.Log.MaxFiles != 0 {
		c.Log.MaxFiles = other.Log.MaxFiles
	}
	if other.Log.MaxSizeMB != 0 {
		c.Log.MaxSizeMB = other.Log.MaxSizeMB
	}

	setString(&c.NATS.URL, other.NATS.URL)
	setString(&c.NATS.Subject, other.NATS.Subject)
	setString(&c.Mail.Sender, other.Mail.Sender)
	setString(&c.Mail.Domain, other.Mail.Domain)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
