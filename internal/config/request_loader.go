package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadDocument decodes a JSON or YAML file into out. YAML is converted to
// JSON first so the target's json tags and custom unmarshalers apply to both.
func LoadDocument(filePath string, out interface{}) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse YAML document: %w", err)
		}
		data, err = json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to convert YAML document: %w", err)
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}
	return nil
}
