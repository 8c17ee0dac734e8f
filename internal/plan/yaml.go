package plan

import (
	"encoding/json"
	"fmt"

	"github.com/goccy/go-yaml"
)

// ParseYAML decodes a plan sketch written in YAML, the way a developer might
// hand-author a fixture without worrying about JSON's comma/quote ceremony.
// No command or test in this repository calls it. It re-uses Parse's invariant
// checks by round-tripping through JSON rather than duplicating them.
func ParseYAML(data []byte) (*Plan, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("parsing plan yaml: %w", err)
	}

	asJSON, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("converting plan yaml to json: %w", err)
	}

	return Parse(asJSON)
}
