package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/hatsunemiku3939/retrydlq/pkg/jsonschema"
)

// File is the on-disk layout of a retry configuration file.
type File struct {
	Events []Entry `yaml:"events" json:"events"`
}

var fileSchema = jsonschema.MustCompile(`{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "events": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "properties": {
          "name": { "type": "string", "minLength": 1 },
          "exchange_type": { "type": "string", "enum": ["", "direct", "topic"] },
          "retry_ttl": { "type": "integer", "minimum": 0 },
          "ttl_multiply": { "type": "number", "anyOf": [{ "enum": [0] }, { "minimum": 1 }] },
          "max_retries_attempts": { "type": "integer", "minimum": 0 },
          "connection": {
            "type": "object",
            "properties": {
              "port": { "type": "integer", "minimum": 0, "maximum": 65535 }
            }
          }
        },
        "required": ["name"]
      }
    }
  },
  "required": ["events"]
}`)

// Load reads a YAML configuration file, expanding ${VAR} references from the
// environment, and builds a Registry from it.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Registry from YAML content.
func Parse(data []byte) (*Registry, error) {
	var f File
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &f); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	doc, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config for validation: %w", err)
	}
	if err := fileSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return NewRegistry(f.Events...)
}
