// Package config reads the ampctl configuration file.
package config

import (
	"fmt"
	"maps"
	"os"
	"slices"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const DefaultListen = ":8090"

// Config seeds the command line flags. Flags given explicitly win over
// the file.
//
//	model: 201
//	amp_file: /dev/ttyUSB0
//	serial_speed: 38400
//	log_level: debug
//	conf:
//	  tuner_bypass: "0"
//	catalog:
//	  listen: ":8090"
//	  discovery: true
type Config struct {
	Model       int               `yaml:"model"`
	AmpFile     string            `yaml:"amp_file"`
	SerialSpeed int               `yaml:"serial_speed"`
	LogLevel    string            `yaml:"log_level"`
	Conf        map[string]string `yaml:"conf"`
	Catalog     Catalog           `yaml:"catalog"`
}

type Catalog struct {
	Listen    string `yaml:"listen"`
	Discovery bool   `yaml:"discovery"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel: log.InfoLevel.String(),
		Conf:     map[string]string{},
		Catalog:  Catalog{Listen: DefaultListen},
	}
}

// Load reads and validates the YAML file at path. Missing keys keep the
// values of Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if cfg.Conf == nil {
		cfg.Conf = map[string]string{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Model < 0 {
		return fmt.Errorf("invalid model %d", c.Model)
	}
	if c.SerialSpeed < 0 {
		return fmt.Errorf("invalid serial speed %d", c.SerialSpeed)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	for name := range c.Conf {
		if name == "" {
			return fmt.Errorf("empty conf parameter name")
		}
	}
	return nil
}

// Level is the logrus level named by LogLevel, Info when unset.
func (c *Config) Level() (log.Level, error) {
	if c.LogLevel == "" {
		return log.InfoLevel, nil
	}
	return log.ParseLevel(c.LogLevel)
}

// ConfNames lists the conf parameter names in a stable order.
func (c *Config) ConfNames() []string {
	return slices.Sorted(maps.Keys(c.Conf))
}
