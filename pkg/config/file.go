package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// overlayFile merges a YAML document over c. Keys absent from the file keep
// their current values.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %q: %w", path, err)
	}
	return nil
}
