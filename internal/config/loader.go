package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces memoryd environment variables.
const envPrefix = "MEMORYD_"

// Load reads configuration from a YAML file, then overrides with environment
// variables, then applies defaults and validates.
//
// Precedence (highest to lowest):
//  1. Environment variables (MEMORYD_QDRANT_HOST, MEMORYD_EMBEDDER_SIZE, ...)
//  2. YAML config file (configPath, optional)
//  3. Defaults
//
// Environment variables map to YAML paths by stripping the prefix,
// lowercasing, and splitting on the first underscore group that matches a
// top-level section:
//
//	MEMORYD_QDRANT_HOST          -> qdrant.host
//	MEMORYD_EMBEDDER_NAME        -> embedder.name
//	MEMORYD_SNAPSHOTS_PERSIST    -> snapshots.persist
//	MEMORYD_QDRANT_REQUEST_TIMEOUT -> qdrant.request_timeout
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
			}
		} else {
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", transformEnvKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// sections are the top-level config keys an environment variable can target.
var sections = []string{"embedder", "qdrant", "snapshots", "logging"}

// transformEnvKey maps MEMORYD_SECTION_FIELD_NAME to section.field_name.
func transformEnvKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	for _, section := range sections {
		if strings.HasPrefix(s, section+"_") {
			return section + "." + strings.TrimPrefix(s, section+"_")
		}
	}
	return s
}
