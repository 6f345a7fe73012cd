package config

import "time"

// Config holds the local-validator client and logging settings.
type Config struct {
	// Log Config
	LogLevel   int    `json:"log_level" mapstructure:"log_level"`   // e.g., 0 = debug, 1 = info, etc.
	LogFormat  string `json:"log_format" mapstructure:"log_format"` // "json" or "console"
	LogSampler bool   `json:"log_sampler" mapstructure:"log_sampler"`

	// Validator connection
	RPCURLs     []string `json:"rpc_urls" mapstructure:"rpc_urls"`
	GenesisHash string   `json:"genesis_hash" mapstructure:"genesis_hash"` // optional, prefix match
	Commitment  string   `json:"commitment" mapstructure:"commitment"`     // processed | confirmed | finalized
	KeypairPath string   `json:"keypair_path" mapstructure:"keypair_path"` // fee payer keypair file

	// Submission
	ConfirmTimeoutSeconds int `json:"confirm_timeout_seconds" mapstructure:"confirm_timeout_seconds"`
	ConfirmPollIntervalMs int `json:"confirm_poll_interval_ms" mapstructure:"confirm_poll_interval_ms"`
	MaxConcurrentWrites   int `json:"max_concurrent_writes" mapstructure:"max_concurrent_writes"`
	BlockhashRetries      int `json:"blockhash_retries" mapstructure:"blockhash_retries"` // 0 disables

	MetricsEnabled bool `json:"metrics_enabled" mapstructure:"metrics_enabled"`
}

// ConfirmTimeout returns the confirmation deadline for one submission.
func (c Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.ConfirmTimeoutSeconds) * time.Second
}

// ConfirmPollInterval returns the delay between signature status polls.
func (c Config) ConfirmPollInterval() time.Duration {
	return time.Duration(c.ConfirmPollIntervalMs) * time.Millisecond
}
