package types

// Config represents the bridgeport configuration.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Server holds the listener and port-allocation settings.
	Server ServerConfig `json:"server,omitempty" yaml:"server,omitempty"`

	// Log holds logging settings.
	Log LogConfig `json:"log,omitempty" yaml:"log,omitempty"`

	// Tools enables or disables individual editor tools by name.
	Tools map[string]bool `json:"tools,omitempty" yaml:"tools,omitempty"`
}

// ServerConfig holds the listener and port-allocation settings.
type ServerConfig struct {
	// PortRangeStart is the first port considered during a scan.
	PortRangeStart int `json:"portRangeStart,omitempty" yaml:"portRangeStart,omitempty" validate:"min=0,max=65535"`
	// PortRangeEnd is the last port considered during a scan.
	PortRangeEnd int `json:"portRangeEnd,omitempty" yaml:"portRangeEnd,omitempty" validate:"min=0,max=65535,gtefield=PortRangeStart"`
	// PreferredPorts are tried in order before the full range.
	PreferredPorts []int `json:"preferredPorts,omitempty" yaml:"preferredPorts,omitempty" validate:"dive,min=0,max=65535"`
	// ProbeTimeoutMs bounds a single port probe.
	ProbeTimeoutMs int `json:"probeTimeoutMs,omitempty" yaml:"probeTimeoutMs,omitempty" validate:"min=0"`
	// ScanConcurrency is the number of probes in flight per batch.
	ScanConcurrency int `json:"scanConcurrency,omitempty" yaml:"scanConcurrency,omitempty" validate:"min=0"`
	// ProbeRetries is the number of extra probe attempts per candidate.
	ProbeRetries int `json:"probeRetries,omitempty" yaml:"probeRetries,omitempty" validate:"min=0"`
	// CacheTTLMs is how long a probe verdict stays authoritative.
	CacheTTLMs int `json:"cacheTtlMs,omitempty" yaml:"cacheTtlMs,omitempty" validate:"min=0"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
	Pretty bool   `json:"pretty,omitempty" yaml:"pretty,omitempty"`
}

// Default configuration values for the server section.
const (
	DefaultPortRangeStart  = 9960
	DefaultPortRangeEnd    = 9990
	DefaultProbeTimeoutMs  = 400
	DefaultScanConcurrency = 8
	DefaultProbeRetries    = 1
	DefaultCacheTTLMs      = 30000
)

// ApplyDefaults fills zero-valued server settings with their defaults.
func (c *Config) ApplyDefaults() {
	s := &c.Server
	if s.PortRangeStart == 0 && s.PortRangeEnd == 0 {
		s.PortRangeStart = DefaultPortRangeStart
		s.PortRangeEnd = DefaultPortRangeEnd
	}
	if s.ProbeTimeoutMs == 0 {
		s.ProbeTimeoutMs = DefaultProbeTimeoutMs
	}
	if s.ScanConcurrency == 0 {
		s.ScanConcurrency = DefaultScanConcurrency
	}
	if s.ProbeRetries == 0 {
		s.ProbeRetries = DefaultProbeRetries
	}
	if s.CacheTTLMs == 0 {
		s.CacheTTLMs = DefaultCacheTTLMs
	}
}
