package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// ProjectConfigFile is looked up in the working directory and its
	// parents.
	ProjectConfigFile = "p4review.yaml"

	// UserConfigDir is the per-user config directory under $HOME.
	UserConfigDir = ".config/p4review"

	// UserConfigFile is the file name inside UserConfigDir.
	UserConfigFile = "config.yaml"
)

// Loader assembles a Config from defaults, files and the environment.
type Loader struct {
	logger *slog.Logger

	// lookupEnv is swapped in tests.
	lookupEnv func(string) (string, bool)

	// workDir overrides os.Getwd when set.
	workDir string

	// homeDir overrides os.UserHomeDir when set.
	homeDir string
}

// NewLoader creates a configuration loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}

	return &Loader{
		logger:    logger,
		lookupEnv: os.LookupEnv,
	}
}

// Load applies, in increasing precedence: defaults, the user config file,
// the nearest project config file, an optional .env file, then process
// environment variables. An explicit path replaces both file layers.
func (l *Loader) Load(explicitPath string) (*Config, error) {
	cfg := DefaultConfig()

	if explicitPath != "" {
		fileCfg, err := LoadFromFile(explicitPath)
		if err != nil {
			return nil, err
		}
		cfg.Merge(fileCfg)
	} else {
		l.mergeFile(cfg, l.userConfigPath(), "user")
		if projectPath := l.findProjectConfig(); projectPath != "" {
			l.mergeFile(cfg, projectPath, "project")
		} else {
			l.logger.Debug("No project config found")
		}
	}

	// A missing .env file is the common case.
	envFile := filepath.Join(l.cwd(), ".env")
	if err := godotenv.Load(envFile); err == nil {
		l.logger.Debug("Loaded env file", slog.String("path", envFile))
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (l *Loader) mergeFile(cfg *Config, path, layer string) {
	if path == "" {
		return
	}

	fileCfg, err := LoadFromFile(path)
	switch {
	case err == nil:
		l.logger.Debug("Loaded config", slog.String("layer", layer),
			slog.String("path", path))
		cfg.Merge(fileCfg)

	case errors.Is(err, os.ErrNotExist):

	default:
		l.logger.Warn("Failed to load config",
			slog.String("layer", layer),
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}

// applyEnv overlays the standard Perforce variables and the P4REVIEW_*
// overrides.
func (l *Loader) applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"P4PORT":            &cfg.P4.Port,
		"P4USER":            &cfg.P4.User,
		"P4CLIENT":          &cfg.P4.Client,
		"P4REVIEW_P4_BIN":   &cfg.P4.Binary,
		"P4REVIEW_HTTP":     &cfg.HTTP.Addr,
		"P4REVIEW_URL":      &cfg.HTTP.PublicURL,
		"P4REVIEW_DB":       &cfg.DB.Path,
		"P4REVIEW_LOG_DIR":  &cfg.Log.Dir,
		"P4REVIEW_LOG":      &cfg.Log.Level,
		"P4REVIEW_NATS_URL": &cfg.NATS.URL,
		"P4REVIEW_MAIL":     &cfg.Mail.Sender,
	}
	for key, dst := range strs {
		if v, ok := l.lookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"P4REVIEW_DISABLE_COMMIT":       &cfg.Reviews.DisableCommit,
		"P4REVIEW_DISABLE_SELF_APPROVE": &cfg.Reviews.DisableSelfApprove,
	}
	for key, dst := range bools {
		v, ok := l.lookupEnv(key)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
	}

	if v, ok := l.lookupEnv("P4REVIEW_MAX_ATTEMPTS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("P4REVIEW_MAX_ATTEMPTS: %w", err)
		}
		cfg.Queue.MaxAttempts = n
	}

	if v, ok := l.lookupEnv("P4REVIEW_P4_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("P4REVIEW_P4_TIMEOUT: %w", err)
		}
		cfg.P4.Timeout = d
	}

	return nil
}

func (l *Loader) cwd() string {
	if l.workDir != "" {
		return l.workDir
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}

	return cwd
}

func (l *Loader) userConfigPath() string {
	home := l.homeDir
	if home == "" {
		var err error
		home, err = os.UserHomeDir()
		if err != nil {
			return ""
		}
	}

	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig walks from the working directory up to the root.
func (l *Loader) findProjectConfig() string {
	dir := l.cwd()
	for {
		path := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
