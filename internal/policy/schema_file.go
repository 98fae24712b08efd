package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// LoadSchemaFile reads a policy schema from a JSON or TOML file. TOML input
// is decoded through an intermediate map so keys follow the same names as
// the JSON form.
func LoadSchemaFile(path string) (Schema, error) {
	var schema Schema

	data, err := os.ReadFile(path)
	if err != nil {
		return schema, fmt.Errorf("read policy file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml", ".tml":
		var raw map[string]any
		if err := toml.Unmarshal(data, &raw); err != nil {
			return schema, fmt.Errorf("parse policy %s: %w", path, err)
		}
		data, err = json.Marshal(raw)
		if err != nil {
			return schema, fmt.Errorf("convert policy %s: %w", path, err)
		}
	}

	if err := json.Unmarshal(data, &schema); err != nil {
		return schema, fmt.Errorf("parse policy %s: %w", path, err)
	}
	if strings.TrimSpace(schema.Name) == "" {
		schema.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if len(schema.Phases) == 0 {
		return schema, fmt.Errorf("policy %s defines no phases", path)
	}
	return schema, nil
}
