package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfoString(t *testing.T) {
	info := Info{CommitHash: "0123456789abcdef", BuildTime: "2026-10-01", Version: "v0.3.0"}
	assert.Equal(t, "scrapedash v0.3.0 (commit 0123456, built 2026-10-01)", info.String())
	assert.Equal(t, "scrapedash/v0.3.0 (0123456)", info.UserAgent())

	dev := Info{CommitHash: "dev", BuildTime: "unknown", Version: "dev"}
	assert.Equal(t, "scrapedash dev (commit dev, built unknown)", dev.String())
	assert.Equal(t, "dev", dev.Short())
}
