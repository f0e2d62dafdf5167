// Package config loads the server configuration.
//
// Sources, highest precedence first:
//  1. CLI flags (applied by the caller after Load)
//  2. Environment variables (WEBSERVER_*, e.g. WEBSERVER_SERVER_PORT)
//  3. The YAML configuration file
//  4. Defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const ENV_PREFIX = "WEBSERVER"

type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	HTTP     HTTPConfig     `mapstructure:"http" yaml:"http"`
	Accounts AccountsConfig `mapstructure:"accounts" yaml:"accounts"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Output is stdout, stderr or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`

	// Async hands log lines to a background writer
	Async bool `mapstructure:"async" yaml:"async"`

	QueueSize  int `mapstructure:"queue_size" yaml:"queue_size" validate:"min=1"`
	MaxSizeMB  int `mapstructure:"max_size_mb" yaml:"max_size_mb" validate:"min=1"`
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups" validate:"min=0"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`

	// MaxConnections bounds the connection table; clients beyond it get 503
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections" validate:"min=1"`

	// MaxQueued bounds the work queue
	MaxQueued int `mapstructure:"max_queued" yaml:"max_queued" validate:"min=1"`

	Workers int `mapstructure:"workers" yaml:"workers" validate:"min=1"`

	// IdleTimeout is how long a connection may stay silent
	IdleTimeout Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"gt=0"`

	// TickInterval is the period of the idle sweep
	TickInterval Duration `mapstructure:"tick_interval" yaml:"tick_interval" validate:"gt=0"`

	// TriggerMode is level or edge
	TriggerMode string `mapstructure:"trigger_mode" yaml:"trigger_mode" validate:"oneof=level edge"`

	// AcceptRate limits accepted connections per second; 0 disables it
	AcceptRate  float64 `mapstructure:"accept_rate" yaml:"accept_rate" validate:"min=0"`
	AcceptBurst int     `mapstructure:"accept_burst" yaml:"accept_burst" validate:"min=0"`

	ShutdownTimeout Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
}

type HTTPConfig struct {
	DocRoot     string `mapstructure:"doc_root" yaml:"doc_root" validate:"required"`
	DefaultPage string `mapstructure:"default_page" yaml:"default_page" validate:"required,excludes=/"`

	// Aliases maps a one-character last path segment to a page
	Aliases map[string]string `mapstructure:"aliases" yaml:"aliases" validate:"dive,keys,len=1,endkeys,required"`

	Pages PagesConfig `mapstructure:"pages" yaml:"pages"`
}

type PagesConfig struct {
	Welcome       string `mapstructure:"welcome" yaml:"welcome" validate:"required"`
	LoginError    string `mapstructure:"login_error" yaml:"login_error" validate:"required"`
	Registered    string `mapstructure:"registered" yaml:"registered" validate:"required"`
	RegisterError string `mapstructure:"register_error" yaml:"register_error" validate:"required"`
}

// AccountsConfig selects the credential store behind the resource pool.
type AccountsConfig struct {
	// Type is memory or badger
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger"`

	// Capacity is the number of sessions in the resource pool
	Capacity int `mapstructure:"capacity" yaml:"capacity" validate:"min=1"`

	BcryptCost int `mapstructure:"bcrypt_cost" yaml:"bcrypt_cost" validate:"min=4,max=31"`

	// Seed registers these user/password pairs at startup if missing
	Seed map[string]string `mapstructure:"seed" yaml:"seed,omitempty"`

	// Memory holds the memory store options; used when Type = memory
	Memory map[string]any `mapstructure:"memory" yaml:"memory,omitempty"`

	// Badger holds the badger store options; used when Type = badger
	Badger map[string]any `mapstructure:"badger" yaml:"badger,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" yaml:"host"`
	Port    int    `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
}

// StoreOptions returns the option map for the configured store type.
func (c AccountsConfig) StoreOptions() map[string]any {
	if c.Type == "badger" {
		return c.Badger
	}
	return c.Memory
}

// Duration is a time.Duration written as "30s" in YAML.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

var durationType = reflect.TypeOf(Duration(0))

// durationHook decodes "90s" strings and plain numbers of nanoseconds into
// Duration.
var durationHook mapstructure.DecodeHookFuncType = func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", v, err)
		}
		return Duration(d), nil
	case time.Duration:
		return Duration(v), nil
	case int:
		return Duration(v), nil
	case int64:
		return Duration(v), nil
	case float64:
		return Duration(int64(v)), nil
	default:
		return data, nil
	}
}

// Load reads configuration from configPath (or the default location when
// empty), the environment and the defaults, then validates it.
func Load(configPath string) (*Config, error) {
	var v = viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationHook)); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setViperDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// setViperDefaults registers every scalar key so that environment variables
// override them even without a configuration file.
func setViperDefaults(v *viper.Viper) {
	var d = GetDefaultConfig()

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("logging.async", d.Logging.Async)
	v.SetDefault("logging.queue_size", d.Logging.QueueSize)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.max_connections", d.Server.MaxConnections)
	v.SetDefault("server.max_queued", d.Server.MaxQueued)
	v.SetDefault("server.workers", d.Server.Workers)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout.String())
	v.SetDefault("server.tick_interval", d.Server.TickInterval.String())
	v.SetDefault("server.trigger_mode", d.Server.TriggerMode)
	v.SetDefault("server.accept_rate", d.Server.AcceptRate)
	v.SetDefault("server.accept_burst", d.Server.AcceptBurst)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout.String())

	v.SetDefault("http.doc_root", d.HTTP.DocRoot)
	v.SetDefault("http.default_page", d.HTTP.DefaultPage)
	v.SetDefault("http.pages.welcome", d.HTTP.Pages.Welcome)
	v.SetDefault("http.pages.login_error", d.HTTP.Pages.LoginError)
	v.SetDefault("http.pages.registered", d.HTTP.Pages.Registered)
	v.SetDefault("http.pages.register_error", d.HTTP.Pages.RegisterError)

	v.SetDefault("accounts.type", d.Accounts.Type)
	v.SetDefault("accounts.capacity", d.Accounts.Capacity)
	v.SetDefault("accounts.bcrypt_cost", d.Accounts.BcryptCost)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.host", d.Metrics.Host)
	v.SetDefault("metrics.port", d.Metrics.Port)
}

func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir is $XDG_CONFIG_HOME/webserver, ~/.config/webserver, or "."
// when no home directory is known.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "webserver")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "webserver")
}

func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
