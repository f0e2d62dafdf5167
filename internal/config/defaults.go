package config

import (
	"runtime"
	"strings"
	"time"
)

const (
	DEFAULT_PORT             = 9006
	DEFAULT_MAX_CONNECTIONS  = 65536
	DEFAULT_MAX_QUEUED       = 10000
	DEFAULT_IDLE_TIMEOUT     = 15 * time.Second
	DEFAULT_TICK_INTERVAL    = 5 * time.Second
	DEFAULT_SHUTDOWN_TIMEOUT = 10 * time.Second
	DEFAULT_ACCOUNTS         = 8
	DEFAULT_BCRYPT_COST      = 10
	DEFAULT_METRICS_PORT     = 9090
	DEFAULT_LOG_QUEUE_SIZE   = 1024
	DEFAULT_LOG_MAX_SIZE_MB  = 100
)

func defaultWorkers() int {
	var n = runtime.NumCPU()
	if n < 8 {
		return 8
	}
	return n
}

// GetDefaultConfig returns a complete configuration with every default set.
func GetDefaultConfig() *Config {
	var cfg = &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero values. Explicit values are kept.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyHTTPDefaults(&cfg.HTTP)
	applyAccountsDefaults(&cfg.Accounts)
	applyMetricsDefaults(&cfg.Metrics)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = DEFAULT_LOG_QUEUE_SIZE
	}
	if cfg.MaxSizeMB == 0 {
		cfg.MaxSizeMB = DEFAULT_LOG_MAX_SIZE_MB
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = DEFAULT_PORT
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = DEFAULT_MAX_CONNECTIONS
	}
	if cfg.MaxQueued == 0 {
		cfg.MaxQueued = DEFAULT_MAX_QUEUED
	}
	if cfg.Workers == 0 {
		cfg.Workers = defaultWorkers()
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = Duration(DEFAULT_IDLE_TIMEOUT)
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = Duration(DEFAULT_TICK_INTERVAL)
	}
	if cfg.TriggerMode == "" {
		cfg.TriggerMode = "level"
	}
	cfg.TriggerMode = strings.ToLower(cfg.TriggerMode)
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(DEFAULT_SHUTDOWN_TIMEOUT)
	}
}

func applyHTTPDefaults(cfg *HTTPConfig) {
	if cfg.DocRoot == "" {
		cfg.DocRoot = "./root"
	}
	if cfg.DefaultPage == "" {
		cfg.DefaultPage = "judge.html"
	}
	if cfg.Aliases == nil {
		cfg.Aliases = map[string]string{
			"0": "register.html",
			"1": "log.html",
			"5": "picture.html",
			"6": "video.html",
			"7": "webbench.html",
		}
	}
	if cfg.Pages.Welcome == "" {
		cfg.Pages.Welcome = "welcome.html"
	}
	if cfg.Pages.LoginError == "" {
		cfg.Pages.LoginError = "logError.html"
	}
	if cfg.Pages.Registered == "" {
		cfg.Pages.Registered = "log.html"
	}
	if cfg.Pages.RegisterError == "" {
		cfg.Pages.RegisterError = "registerError.html"
	}
}

func applyAccountsDefaults(cfg *AccountsConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Capacity == 0 {
		cfg.Capacity = DEFAULT_ACCOUNTS
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = DEFAULT_BCRYPT_COST
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = DEFAULT_METRICS_PORT
	}
}
