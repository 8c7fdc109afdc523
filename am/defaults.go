package am

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Default values
const (
	DefaultBaseURL           = "http://127.0.0.1:8000/"
	DefaultTimeoutSeconds    = 10
	DefaultHandshakeSeconds  = 10
	DefaultRequestsPerMinute = 120
	DefaultPageSize          = 3
	DefaultActiveQuota       = 5
	DefaultMockAddr          = "127.0.0.1:8000"
	DefaultMockStepMillis    = 1000
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", DefaultBaseURL)
	v.SetDefault("backend.timeout_seconds", DefaultTimeoutSeconds)
	v.SetDefault("backend.handshake_timeout_seconds", DefaultHandshakeSeconds)
	v.SetDefault("backend.requests_per_minute", DefaultRequestsPerMinute)

	v.SetDefault("dashboard.page_size", DefaultPageSize)
	v.SetDefault("dashboard.active_quota", DefaultActiveQuota)

	v.SetDefault("log.json", false)

	v.SetDefault("mock.addr", DefaultMockAddr)
	v.SetDefault("mock.step_millis", DefaultMockStepMillis)
}

// BindSensitiveEnvVars binds the keys most often overridden per deployment
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("backend.base_url", "SCRAPEDASH_BACKEND_URL")
}

// Defaults returns a Config populated with default values.
func Defaults() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:                 DefaultBaseURL,
			TimeoutSeconds:          DefaultTimeoutSeconds,
			HandshakeTimeoutSeconds: DefaultHandshakeSeconds,
			RequestsPerMinute:       DefaultRequestsPerMinute,
		},
		Dashboard: DashboardConfig{
			PageSize:    DefaultPageSize,
			ActiveQuota: DefaultActiveQuota,
		},
		Mock: MockConfig{
			Addr:       DefaultMockAddr,
			StepMillis: DefaultMockStepMillis,
		},
	}
}

// Timeout returns the HTTP request timeout
func (c *Config) Timeout() time.Duration {
	if c.Backend.TimeoutSeconds <= 0 {
		return DefaultTimeoutSeconds * time.Second
	}
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// HandshakeTimeout returns the push channel dial timeout
func (c *Config) HandshakeTimeout() time.Duration {
	if c.Backend.HandshakeTimeoutSeconds <= 0 {
		return DefaultHandshakeSeconds * time.Second
	}
	return time.Duration(c.Backend.HandshakeTimeoutSeconds) * time.Second
}

// MockStep returns the fake backend's lifecycle step delay
func (c *Config) MockStep() time.Duration {
	if c.Mock.StepMillis <= 0 {
		return DefaultMockStepMillis * time.Millisecond
	}
	return time.Duration(c.Mock.StepMillis) * time.Millisecond
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Backend: %s, Dashboard: {PageSize: %d, ActiveQuota: %d}}",
		c.Backend.BaseURL, c.Dashboard.PageSize, c.Dashboard.ActiveQuota)
}
