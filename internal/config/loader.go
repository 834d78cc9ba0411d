// Package config loads goextract settings from defaults, an optional config
// file, GOEXTRACT_* environment variables and runtime overrides, in
// increasing order of precedence.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/3leaps/goextract/pkg/client"
	"github.com/3leaps/goextract/pkg/job"
	"github.com/3leaps/goextract/pkg/source"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "GOEXTRACT_"

// ConfigFileEnv names an explicit config file, overriding discovery.
const ConfigFileEnv = EnvPrefix + "CONFIG"

// Registry drivers.
const (
	RegistryNone   = "none"
	RegistryFile   = "file"
	RegistrySQLite = "sqlite"
)

// Config is the full goextract configuration.
type Config struct {
	API      APIConfig          `mapstructure:"api"`
	Polling  job.PollingOptions `mapstructure:"polling"`
	Logging  LoggingConfig      `mapstructure:"logging"`
	Registry RegistryConfig     `mapstructure:"registry"`
	Batch    BatchConfig        `mapstructure:"batch"`
	S3       source.S3Config    `mapstructure:"s3"`
}

// APIConfig locates and authenticates against the document API.
type APIConfig struct {
	Key       string        `mapstructure:"key"`
	Host      string        `mapstructure:"host"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	UserAgent string        `mapstructure:"user_agent"`
}

// LoggingConfig selects the log level and encoding.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RegistryConfig selects where job snapshots are persisted.
type RegistryConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// BatchConfig tunes batch runs.
type BatchConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// EnvSpec maps one environment variable onto a config path.
type EnvSpec struct {
	Name string
	Path string
}

var (
	configMu  sync.RWMutex
	appConfig *Config
)

func getEnvSpecs() []EnvSpec {
	return []EnvSpec{
		{Name: EnvPrefix + "API_KEY", Path: "api.key"},
		{Name: EnvPrefix + "API_HOST", Path: "api.host"},
		{Name: EnvPrefix + "API_TIMEOUT", Path: "api.timeout"},
		{Name: EnvPrefix + "RATE_LIMIT", Path: "api.rate_limit"},
		{Name: EnvPrefix + "USER_AGENT", Path: "api.user_agent"},
		{Name: EnvPrefix + "POLLING_INITIAL_DELAY", Path: "polling.initial_delay_sec"},
		{Name: EnvPrefix + "POLLING_DELAY", Path: "polling.delay_sec"},
		{Name: EnvPrefix + "POLLING_MAX_RETRIES", Path: "polling.max_retries"},
		{Name: EnvPrefix + "LOG_LEVEL", Path: "logging.level"},
		{Name: EnvPrefix + "LOG_FORMAT", Path: "logging.format"},
		{Name: EnvPrefix + "REGISTRY_DRIVER", Path: "registry.driver"},
		{Name: EnvPrefix + "REGISTRY_PATH", Path: "registry.path"},
		{Name: EnvPrefix + "BATCH_CONCURRENCY", Path: "batch.concurrency"},
		{Name: EnvPrefix + "S3_REGION", Path: "s3.region"},
		{Name: EnvPrefix + "S3_ENDPOINT", Path: "s3.endpoint"},
		{Name: EnvPrefix + "S3_PROFILE", Path: "s3.profile"},
		{Name: EnvPrefix + "S3_FORCE_PATH_STYLE", Path: "s3.force_path_style"},
	}
}

func defaults() map[string]any {
	polling := job.DefaultPollingOptions()
	return map[string]any{
		"api.host":                  client.DefaultHost,
		"api.timeout":               "120s",
		"api.rate_limit":            0.0,
		"api.user_agent":            "goextract",
		"polling.initial_delay_sec": polling.InitialDelaySec,
		"polling.delay_sec":         polling.DelaySec,
		"polling.max_retries":       polling.MaxRetries,
		"logging.level":             "info",
		"logging.format":            "console",
		"registry.driver":           RegistryNone,
		"registry.path":             "",
		"batch.concurrency":         client.DefaultBatchConcurrency,
	}
}

// getUserConfigPaths lists candidate config files, most specific first.
func getUserConfigPaths() []string {
	if explicit := strings.TrimSpace(os.Getenv(ConfigFileEnv)); explicit != "" {
		return []string{explicit}
	}
	paths := []string{"goextract.yaml"}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "goextract", "config.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "goextract", "config.yaml"))
	}
	return paths
}

// Load builds the configuration and makes it available through GetConfig.
// Later overrides win over earlier ones; all overrides win over the
// environment.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	for key, val := range defaults() {
		v.SetDefault(key, val)
	}

	explicit := strings.TrimSpace(os.Getenv(ConfigFileEnv)) != ""
	for _, path := range getUserConfigPaths() {
		if _, err := os.Stat(path); err != nil {
			if explicit {
				return nil, fmt.Errorf("config file %s: %w", path, err)
			}
			continue
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		break
	}

	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", spec.Name, err)
		}
	}

	for _, o := range overrides {
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

// GetConfig returns the configuration from the most recent Load, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func flatten(prefix string, m map[string]any) map[string]any {
	out := map[string]any{}
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}

// Validate checks values that do not depend on the network. A missing API
// key is not an error here; it is reported by client.New.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}
	switch c.Registry.Driver {
	case "", RegistryNone:
	case RegistryFile, RegistrySQLite:
		if strings.TrimSpace(c.Registry.Path) == "" {
			errs = append(errs, fmt.Errorf("registry.path: required for driver %q", c.Registry.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("registry.driver: unknown driver %q", c.Registry.Driver))
	}
	if c.Batch.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("batch.concurrency: must not be negative"))
	}
	if c.API.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("api.rate_limit: must not be negative"))
	}
	if !c.Polling.IsZero() {
		if err := c.Polling.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.S3.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
