// Package am loads the dashboard configuration ("I am" the settings a
// session starts from).
package am

// Config represents the scrapedash configuration
type Config struct {
	Backend   BackendConfig   `mapstructure:"backend" toml:"backend"`
	Dashboard DashboardConfig `mapstructure:"dashboard" toml:"dashboard"`
	Log       LogConfig       `mapstructure:"log" toml:"log"`
	Mock      MockConfig      `mapstructure:"mock" toml:"mock"`
}

// BackendConfig configures the connection to the scraping backend
type BackendConfig struct {
	BaseURL                 string `mapstructure:"base_url" toml:"base_url"`                                   // Root of url/ and events/ routes
	TimeoutSeconds          int    `mapstructure:"timeout_seconds" toml:"timeout_seconds"`                     // Per-request HTTP timeout
	HandshakeTimeoutSeconds int    `mapstructure:"handshake_timeout_seconds" toml:"handshake_timeout_seconds"` // Push channel dial timeout
	RequestsPerMinute       int    `mapstructure:"requests_per_minute" toml:"requests_per_minute"`             // 0 = unlimited
}

// DashboardConfig configures pagination and admission
type DashboardConfig struct {
	PageSize    int `mapstructure:"page_size" toml:"page_size"`       // Jobs per page (default: 3)
	ActiveQuota int `mapstructure:"active_quota" toml:"active_quota"` // Unparsed jobs that block new submissions (default: 5)
}

// LogConfig configures logging output
type LogConfig struct {
	JSON bool `mapstructure:"json" toml:"json"`
}

// MockConfig configures the local fake backend
type MockConfig struct {
	Addr       string `mapstructure:"addr" toml:"addr"`
	StepMillis int    `mapstructure:"step_millis" toml:"step_millis"` // Delay between simulated lifecycle steps
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)
