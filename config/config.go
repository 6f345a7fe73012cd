package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/halbornteam/solana-test-framework/constant"
	"github.com/spf13/viper"
)

//go:embed default_config.json
var defaultConfigJSON []byte

var validCommitments = map[string]bool{
	"processed": true,
	"confirmed": true,
	"finalized": true,
}

func validateConfig(cfg *Config) error {
	// Validate log level
	if cfg.LogLevel < 0 || cfg.LogLevel > 5 {
		return fmt.Errorf("log level must be between 0 and 5")
	}

	// Validate log format
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return fmt.Errorf("log format must be 'json' or 'console'")
	}

	if len(cfg.RPCURLs) == 0 {
		cfg.RPCURLs = []string{"http://127.0.0.1:8899"}
	}

	if cfg.Commitment == "" {
		cfg.Commitment = "confirmed"
	}
	if !validCommitments[cfg.Commitment] {
		return fmt.Errorf("commitment must be 'processed', 'confirmed' or 'finalized'")
	}

	if cfg.KeypairPath == "" {
		cfg.KeypairPath = constant.DefaultKeypairPath
	}

	// Set defaults for submission
	if cfg.ConfirmTimeoutSeconds == 0 {
		cfg.ConfirmTimeoutSeconds = 60
	}
	if cfg.ConfirmPollIntervalMs == 0 {
		cfg.ConfirmPollIntervalMs = 500
	}
	if cfg.MaxConcurrentWrites == 0 {
		cfg.MaxConcurrentWrites = 8
	}
	if cfg.MaxConcurrentWrites < 0 {
		return fmt.Errorf("max concurrent writes must not be negative")
	}
	if cfg.BlockhashRetries < 0 {
		return fmt.Errorf("blockhash retries must not be negative")
	}

	return nil
}

// Save writes the given config to <basePath>/config/soltest_config.json.
func Save(cfg *Config, basePath string) error {
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	configDir := filepath.Join(basePath, constant.ConfigSubdir)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configDir, constant.ConfigFileName)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load layers the embedded defaults, <basePath>/config/soltest_config.json
// when present, and SOLTEST_* environment variables, in that order.
func Load(basePath string) (Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(defaultConfigJSON)); err != nil {
		return Config{}, fmt.Errorf("failed to read default config: %w", err)
	}

	configFile := filepath.Join(basePath, constant.ConfigSubdir, constant.ConfigFileName)
	if _, err := os.Stat(configFile); err == nil {
		v.SetConfigFile(filepath.Clean(configFile))
		if err := v.MergeInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to stat config file: %w", err)
	}

	v.SetEnvPrefix(constant.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadDefaultConfig loads the default configuration from embedded JSON
func LoadDefaultConfig() (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(defaultConfigJSON, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal default config: %w", err)
	}
	return &cfg, nil
}
