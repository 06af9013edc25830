package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ridgeline/flowvault/internal/flowerr"
)

// WriteSnapshot renders the effective configuration to
// <root>/runtime/current_config.toml at startup, for operator inspection.
// The file keeps the name the on-disk layout specifies; the content is the
// same YAML shape the rest of this package loads, since no TOML library is
// part of this codebase's stack.
func (c *Config) WriteSnapshot() error {
	const op = "config.WriteSnapshot"
	if err := os.MkdirAll(c.System.RuntimePath(), 0o755); err != nil {
		return flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return flowerr.Wrap(flowerr.KindInvalidInput, op, err)
	}
	if err := os.WriteFile(c.System.CurrentConfigPath(), data, 0o644); err != nil {
		return flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}
	return nil
}
