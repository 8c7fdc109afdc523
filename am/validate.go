package am

import (
	"net/url"

	"github.com/teranos/scrapedash/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil {
		return errors.Wrapf(err, "backend.base_url %q is not a URL", c.Backend.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Newf("backend.base_url must be http or https, got %q", c.Backend.BaseURL)
	}
	if u.Host == "" {
		return errors.Newf("backend.base_url has no host: %q", c.Backend.BaseURL)
	}

	if c.Backend.TimeoutSeconds < 0 {
		return errors.Newf("backend.timeout_seconds must be >= 0, got %d", c.Backend.TimeoutSeconds)
	}
	if c.Backend.HandshakeTimeoutSeconds < 0 {
		return errors.Newf("backend.handshake_timeout_seconds must be >= 0, got %d", c.Backend.HandshakeTimeoutSeconds)
	}
	// 0 = no client-side limit
	if c.Backend.RequestsPerMinute < 0 {
		return errors.Newf("backend.requests_per_minute must be >= 0, got %d", c.Backend.RequestsPerMinute)
	}

	if c.Dashboard.PageSize < 1 {
		return errors.Newf("dashboard.page_size must be >= 1, got %d", c.Dashboard.PageSize)
	}
	if c.Dashboard.ActiveQuota < 1 {
		return errors.Newf("dashboard.active_quota must be >= 1, got %d", c.Dashboard.ActiveQuota)
	}

	if c.Mock.StepMillis < 0 {
		return errors.Newf("mock.step_millis must be >= 0, got %d", c.Mock.StepMillis)
	}
	return nil
}
