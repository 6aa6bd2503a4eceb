// Package config loads the orchestrator's process-wide configuration:
// defaults, then an optional YAML file, then environment variable
// overrides, in that priority order.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/limmutable/orchestrator/orchestrator"
)

// Config is the orchestrator's full runtime configuration.
type Config struct {
	DataDir       string                         `yaml:"data_dir" env:"DATA_DIR"`
	Orchestration orchestrator.OrchestrationConfig `yaml:"orchestration" env:"ORCHESTRATION"`
	Providers     []orchestrator.ProviderConfig    `yaml:"providers"`
	Log           LogConfig                        `yaml:"log" env:"LOG"`
	Redis         RedisConfig                      `yaml:"redis" env:"REDIS"`
	Metrics       MetricsConfig                    `yaml:"metrics" env:"METRICS"`
}

// LogConfig controls the zap logger built at startup.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"FORMAT"` // json, console
}

// RedisConfig points at the Redis instance backing the credential
// cache tier. Addr == "" disables the cache tier entirely (LookupSecret
// falls through to the environment only).
type RedisConfig struct {
	Addr       string        `yaml:"addr" env:"ADDR"`
	Password   string        `yaml:"password" env:"PASSWORD"`
	DB         int           `yaml:"db" env:"DB"`
	CacheTTL   time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

// MetricsConfig controls the Prometheus HTTP exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Addr    string `yaml:"addr" env:"ADDR"` // e.g. ":9091"
}

// DefaultConfig returns the documented defaults: failover strategy,
// JSON health/cost files under ./data, info-level JSON logging, no
// Redis cache tier, metrics disabled.
func DefaultConfig() *Config {
	return &Config{
		DataDir:       "./data",
		Orchestration: orchestrator.DefaultOrchestrationConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Redis: RedisConfig{
			Addr:     "",
			CacheTTL: 5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9091",
		},
	}
}

// Loader loads a Config from defaults, an optional YAML file, and
// environment variables, in that order, then runs any registered
// validators.
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("orchestrator.yaml").
//	    WithEnvPrefix("ORCH").
//	    Load()
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader returns a Loader with the "ORCH" environment prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "ORCH"}
}

func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load builds the Config: defaults, then YAML file (if configPath is
// set and exists), then environment overrides, then validators.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("config: loading file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: applying environment: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config: validation: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", l.configPath, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", l.configPath, err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv walks v's fields, recursing into nested structs and
// overriding any field whose env tag resolves to a set variable. Slice
// fields of non-string element type (Providers, in practice) are left
// to the YAML tier; they have no env tag.
func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("setting %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(n)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// Validate checks orchestration-level bounds beyond what
// ProviderConfig.Normalize clamps per provider, plus registry-shape
// invariants (at least one provider, unique priorities).
func (c *Config) Validate() error {
	var errs []string

	if c.Orchestration.UnhealthyThreshold <= 0 {
		errs = append(errs, "orchestration.unhealthy_threshold must be positive")
	}
	if c.Orchestration.ConsensusMinAgreement <= 0 {
		errs = append(errs, "orchestration.consensus_min_agreement must be positive")
	}
	if c.Orchestration.FuzzyThreshold < 0 || c.Orchestration.FuzzyThreshold > 1 {
		errs = append(errs, "orchestration.fuzzy_threshold must be in [0,1]")
	}
	if c.Orchestration.AbstentionConfidenceThreshold < 0 || c.Orchestration.AbstentionConfidenceThreshold > 1 {
		errs = append(errs, "orchestration.abstention_confidence_threshold must be in [0,1]")
	}
	if len(c.Providers) == 0 {
		errs = append(errs, "at least one provider must be configured")
	}

	seenPriority := make(map[int]orchestrator.ProviderID)
	for _, p := range c.Providers {
		if existing, ok := seenPriority[p.Priority]; ok {
			errs = append(errs, fmt.Sprintf("providers %s and %s share priority %d", existing, p.ProviderName, p.Priority))
		}
		seenPriority[p.Priority] = p.ProviderName
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
