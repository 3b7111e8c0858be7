package config

import (
	"os"

	"github.com/evanphx/malta/device"
	"github.com/evanphx/malta/kernel"
	"github.com/evanphx/malta/loader"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is everything needed to boot a system.
type Config struct {
	Kernel   kernel.Config  `yaml:"kernel"`
	Serial   device.Config  `yaml:"serial"`
	Programs []loader.Image `yaml:"programs"`
}

func Default() *Config {
	return &Config{
		Kernel:   kernel.DefaultConfig(),
		Serial:   device.DefaultConfig(),
		Programs: loader.Defaults(),
	}
}

// Load reads path over the defaults. Keys missing from the file keep
// their default values; a programs list replaces the built-in table.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}

	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Kernel.Validate(); err != nil {
		return err
	}

	if err := c.Serial.Validate(); err != nil {
		return err
	}

	for _, img := range c.Programs {
		if err := img.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Registry builds the program registry for the configured images.
func (c *Config) Registry(l hclog.Logger) (*loader.Registry, error) {
	return loader.NewRegistry(l, c.Programs...)
}
