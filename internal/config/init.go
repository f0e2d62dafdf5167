package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

var ErrConfigExists = errors.New("config file already exists")

const configHeader = `# webserver configuration file
#
# Every key can be overridden by an environment variable named after its
# path, e.g. WEBSERVER_SERVER_PORT=8080 or WEBSERVER_LOGGING_LEVEL=debug.

`

// MarshalDefault renders the default configuration as YAML.
func MarshalDefault() ([]byte, error) {
	var cfg = GetDefaultConfig()
	cfg.Accounts.Memory = map[string]any{"capacity": 1024}
	cfg.Accounts.Badger = map[string]any{"path": "./data/accounts", "sync_writes": false}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	var enc = yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode default config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteDefault writes the default configuration to path, or to the default
// location when path is empty. An existing file is kept unless force is set.
func WriteDefault(path string, force bool) (string, error) {
	if path == "" {
		path = GetDefaultConfigPath()
	}
	if _, err := os.Stat(path); err == nil && !force {
		return "", fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	data, err := MarshalDefault()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write config file: %w", err)
	}
	return path, nil
}
