package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	assert.Equal(t, DefaultPortRangeStart, cfg.Server.PortRangeStart)
	assert.Equal(t, DefaultPortRangeEnd, cfg.Server.PortRangeEnd)
	assert.Equal(t, DefaultProbeTimeoutMs, cfg.Server.ProbeTimeoutMs)
	assert.Equal(t, DefaultScanConcurrency, cfg.Server.ScanConcurrency)
	assert.Equal(t, DefaultProbeRetries, cfg.Server.ProbeRetries)
	assert.Equal(t, DefaultCacheTTLMs, cfg.Server.CacheTTLMs)
}

func TestApplyDefaults_KeepsExplicitRange(t *testing.T) {
	cfg := Config{Server: ServerConfig{PortRangeStart: 40000, PortRangeEnd: 40010}}
	cfg.ApplyDefaults()

	assert.Equal(t, 40000, cfg.Server.PortRangeStart)
	assert.Equal(t, 40010, cfg.Server.PortRangeEnd)
}

func TestApplyDefaults_PartialRangeNotOverwritten(t *testing.T) {
	// Only one end set: the pair is left alone rather than half-defaulted.
	cfg := Config{Server: ServerConfig{PortRangeEnd: 40010}}
	cfg.ApplyDefaults()

	assert.Equal(t, 0, cfg.Server.PortRangeStart)
	assert.Equal(t, 40010, cfg.Server.PortRangeEnd)
}
