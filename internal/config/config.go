package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string           `yaml:"listen_addr"`
	DB         DBConfig         `yaml:"db"`
	RulesPath  string           `yaml:"rules_path"`
	Override   OverrideConfig   `yaml:"override"`
	Redaction  RedactionConfig  `yaml:"redaction"`
	SigningKey SigningKeyConfig `yaml:"signing_key"`
	LogLevel   string           `yaml:"log_level"`
}

type DBConfig struct {
	// Driver selects the audit store backend: "memory", "sqlite" or
	// "postgres". Empty means memory.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type OverrideConfig struct {
	// MinJustificationLen is the approval threshold for override
	// justifications. Zero means the built-in default.
	MinJustificationLen int `yaml:"min_justification_len"`
}

type RedactionConfig struct {
	// Marker replaces sensitive values in audit context. Empty means the
	// built-in marker.
	Marker string `yaml:"marker"`
}

type SigningKeyConfig struct {
	KeyID          string `yaml:"key_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

func Load(path string) (Config, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.RulesPath == "" {
		return fmt.Errorf("rules_path is required")
	}

	switch c.DB.Driver {
	case "", "memory":
	case "sqlite", "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required when db.driver is set")
		}
	default:
		return fmt.Errorf("unsupported db.driver: %q", c.DB.Driver)
	}

	if c.Override.MinJustificationLen < 0 {
		return fmt.Errorf("override.min_justification_len must not be negative")
	}

	if c.SigningKey.PrivateKeyPath != "" && c.SigningKey.KeyID == "" {
		return fmt.Errorf("signing_key.key_id is required when signing_key.private_key_path is set")
	}

	return nil
}
