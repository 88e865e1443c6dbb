package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bridgeport-dev/bridgeport/pkg/types"
)

// validate checks struct tags on the loaded configuration.
var validate = validator.New()

// Load loads configuration from multiple sources (priority order):
//  1. Global config (~/.config/bridgeport/)
//  2. Project config (<directory>/.bridgeport/ or <directory>/)
//  3. BRIDGEPORT_CONFIG file
//  4. Environment variables
//
// Later sources override earlier ones. Missing files are skipped silently.
func Load(directory string) (*types.Config, error) {
	config := &types.Config{}

	loaded := make(map[string]bool)
	loadOnce := func(path string) {
		absPath, err := filepath.Abs(path)
		if err != nil || loaded[absPath] {
			return
		}
		if loadConfigFile(path, config) == nil {
			loaded[absPath] = true
		}
	}

	// 1. Global config
	globalPath := GetPaths().Config
	for _, name := range configFileNames() {
		loadOnce(filepath.Join(globalPath, name))
	}

	// 2. Project config
	if directory != "" {
		for _, name := range configFileNames() {
			loadOnce(filepath.Join(directory, name))
			loadOnce(filepath.Join(directory, ".bridgeport", name))
		}
	}

	// 3. BRIDGEPORT_CONFIG file override
	if configPath := os.Getenv("BRIDGEPORT_CONFIG"); configPath != "" {
		loadOnce(configPath)
	}

	// 4. Environment variables (highest priority)
	applyEnvOverrides(config)

	config.ApplyDefaults()

	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// configFileNames lists recognized config files, in load order.
func configFileNames() []string {
	return []string{
		"bridgeport.json",
		"bridgeport.jsonc",
		"bridgeport.yaml",
		"bridgeport.yml",
	}
}

// loadConfigFile loads a single JSONC or YAML config file with {env:VAR}
// interpolation.
func loadConfigFile(path string, config *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = interpolate(data)

	var fileConfig types.Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fileConfig); err != nil {
			return err
		}
	default:
		data = jsonc.ToJSON(data)
		if err := json.Unmarshal(data, &fileConfig); err != nil {
			return err
		}
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// interpolate replaces {env:VAR_NAME} placeholders with environment values.
var envPattern = regexp.MustCompile(`\{env:([^}]+)\}`)

func interpolate(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(varName)))
	})
}

// mergeConfig overlays src onto dst; non-zero src fields win.
func mergeConfig(dst, src *types.Config) {
	if src.Schema != "" {
		dst.Schema = src.Schema
	}
	if src.Server.PortRangeStart != 0 {
		dst.Server.PortRangeStart = src.Server.PortRangeStart
	}
	if src.Server.PortRangeEnd != 0 {
		dst.Server.PortRangeEnd = src.Server.PortRangeEnd
	}
	if len(src.Server.PreferredPorts) > 0 {
		dst.Server.PreferredPorts = src.Server.PreferredPorts
	}
	if src.Server.ProbeTimeoutMs != 0 {
		dst.Server.ProbeTimeoutMs = src.Server.ProbeTimeoutMs
	}
	if src.Server.ScanConcurrency != 0 {
		dst.Server.ScanConcurrency = src.Server.ScanConcurrency
	}
	if src.Server.ProbeRetries != 0 {
		dst.Server.ProbeRetries = src.Server.ProbeRetries
	}
	if src.Server.CacheTTLMs != 0 {
		dst.Server.CacheTTLMs = src.Server.CacheTTLMs
	}
	if src.Log.Level != "" {
		dst.Log.Level = src.Log.Level
	}
	if src.Log.Pretty {
		dst.Log.Pretty = true
	}
	if len(src.Tools) > 0 {
		if dst.Tools == nil {
			dst.Tools = make(map[string]bool)
		}
		for name, enabled := range src.Tools {
			dst.Tools[name] = enabled
		}
	}
}

// applyEnvOverrides applies BRIDGEPORT_* environment variables.
func applyEnvOverrides(config *types.Config) {
	if v, ok := envInt("BRIDGEPORT_PORT_RANGE_START"); ok {
		config.Server.PortRangeStart = v
	}
	if v, ok := envInt("BRIDGEPORT_PORT_RANGE_END"); ok {
		config.Server.PortRangeEnd = v
	}
	if v, ok := envInt("BRIDGEPORT_PROBE_TIMEOUT_MS"); ok {
		config.Server.ProbeTimeoutMs = v
	}
	if v, ok := envInt("BRIDGEPORT_SCAN_CONCURRENCY"); ok {
		config.Server.ScanConcurrency = v
	}
	if v := os.Getenv("BRIDGEPORT_LOG_LEVEL"); v != "" {
		config.Log.Level = v
	}
	if v := os.Getenv("BRIDGEPORT_PREFERRED_PORTS"); v != "" {
		var ports []int
		for _, part := range strings.Split(v, ",") {
			if port, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
				ports = append(ports, port)
			}
		}
		if len(ports) > 0 {
			config.Server.PreferredPorts = ports
		}
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
