package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML schema definition.
//
//	files:
//	  doctype: io.cozy.files
//	  relationships:
//	    albums:
//	      type: referenced-by
//	      doctype: io.cozy.photos.albums
//	      inverted: true
func LoadFile(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	return def, nil
}
