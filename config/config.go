// Package config loads the service configuration from a YAML or JSON file
// with environment variable overrides.
package config

import (
	gojson "encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	goyaml "gopkg.in/yaml.v3"

	"github.com/loadshift/loadshift/infra/carbonapi"
	"github.com/loadshift/loadshift/infra/mirror"
	"github.com/loadshift/loadshift/infra/mqtt"
)

type Config struct {
	API       carbonapi.Config `json:"api"`
	Scheduler SchedulerConfig  `json:"scheduler"`
	Mirror    mirror.Config    `json:"mirror"`
	Metrics   MetricsConfig    `json:"metrics"`
	MQTT      mqtt.Config      `json:"mqtt"`
	Logging   LoggingConfig    `json:"logging"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

func (c *Config) setDefaults() {
	c.API.SetDefaults()
	c.Scheduler.SetDefaults()
	c.Mirror.SetDefaults()
	c.MQTT.SetDefaults()
	c.Metrics.SetDefaults()
	c.Logging.SetDefaults()
}

func (c *Config) validate() error {
	if err := c.Scheduler.Validate(); err != nil {
		return err
	}
	if err := c.Mirror.Validate(); err != nil {
		return err
	}
	if err := c.MQTT.Validate(); err != nil {
		return err
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	return c.Logging.Validate()
}

// Load reads the config file and applies LS_ environment overrides
// (LS_API__BASE_HOST sets api.base_host). A missing file is not an error;
// defaults apply.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			ext := strings.ToLower(filepath.Ext(path))
			var parser koanf.Parser
			switch ext {
			case ".yaml", ".yml":
				parser = yaml.Parser()
			case ".json":
				parser = json.Parser()
			default:
				return nil, fmt.Errorf("unsupported config format: %s", ext)
			}
			if err := k.Load(file.Provider(path), parser); err != nil {
				return nil, err
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Optional environment overrides
	if err := k.Load(env.Provider("LS_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "ls_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WriteDefault writes the default configuration as YAML to path, creating
// parent directories as needed. Keys match what Load expects.
func WriteDefault(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	// Round-trip through JSON so the YAML keys carry the json tag names.
	raw, err := gojson.Marshal(Default())
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := gojson.Unmarshal(raw, &tree); err != nil {
		return err
	}
	out, err := goyaml.Marshal(tree)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}
