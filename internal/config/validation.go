package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate checks struct tags, then the rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	if cfg.Server.TickInterval > cfg.Server.IdleTimeout {
		return fmt.Errorf("server.tick_interval (%s) must not exceed server.idle_timeout (%s)",
			cfg.Server.TickInterval, cfg.Server.IdleTimeout)
	}
	if cfg.Accounts.Type == "badger" {
		if path, _ := cfg.Accounts.Badger["path"].(string); path == "" {
			if inMemory, _ := cfg.Accounts.Badger["in_memory"].(bool); !inMemory {
				return fmt.Errorf("accounts.badger: path is required unless in_memory is set")
			}
		}
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.Server.Port && cfg.Metrics.Host == cfg.Server.Host {
		return fmt.Errorf("metrics.port must differ from server.port (%d)", cfg.Server.Port)
	}
	return nil
}

func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	var messages []string
	for _, e := range validationErrors {
		var field = strings.TrimPrefix(e.Namespace(), "Config.")
		switch e.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of [%s], got %v", field, e.Param(), e.Value()))
		case "min", "gt":
			messages = append(messages, fmt.Sprintf("%s must be at least %s, got %v", field, e.Param(), e.Value()))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s, got %v", field, e.Param(), e.Value()))
		default:
			messages = append(messages, fmt.Sprintf("%s failed %s validation (value %v)", field, e.Tag(), e.Value()))
		}
	}
	return fmt.Errorf("%s", strings.Join(messages, "; "))
}
