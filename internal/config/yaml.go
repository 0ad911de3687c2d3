package config

import (
	"fmt"

	"github.com/lordievader/matrix-zabbix-bot/internal/format"
	"gopkg.in/yaml.v3"
)

// YAMLLoader reads the YAML config layout
type YAMLLoader struct{}

// Load reads path, expands environment variables and parses the result
func (YAMLLoader) Load(path string) (*Config, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return ParseYAML(data)
}

// ParseYAML parses YAML config data after environment expansion
func ParseYAML(data []byte) (*Config, error) {
	expandedData, err := expandEnv(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to expand environment variables: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// ColorEntries is an ordered pattern -> "color,emoji" table. In YAML it is
// written as a mapping, whose key order is kept, or as a list of single
// entry mappings.
type ColorEntries []format.Entry

// UnmarshalYAML keeps the document order of the mapping keys
func (c *ColorEntries) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.MappingNode:
		entries, err := mappingEntries(value)
		if err != nil {
			return err
		}
		*c = entries
	case yaml.SequenceNode:
		var entries ColorEntries
		for _, item := range value.Content {
			if item.Kind != yaml.MappingNode {
				return fmt.Errorf("line %d: color list items must be mappings", item.Line)
			}
			more, err := mappingEntries(item)
			if err != nil {
				return err
			}
			entries = append(entries, more...)
		}
		*c = entries
	default:
		return fmt.Errorf("line %d: colors must be a mapping or a list", value.Line)
	}
	return nil
}

func mappingEntries(node *yaml.Node) ([]format.Entry, error) {
	entries := make([]format.Entry, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: color %q must be a \"color,emoji\" string", val.Line, key.Value)
		}
		entries = append(entries, format.Entry{Pattern: key.Value, Value: val.Value})
	}
	return entries, nil
}
