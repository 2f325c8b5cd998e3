package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/lbastigk/Nebulite-sub003/internal/config"
)

// Scenario defines a simulation run and the conditions its outcome must
// meet.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// World is an optional CUE world directory. Relative paths are
	// resolved against the scenario file's directory by LoadScenario.
	World string `yaml:"world,omitempty"`

	// Tuning overlays config.Default(). Center and Ticks drive the run.
	Tuning config.Config `yaml:"tuning"`

	// Global is merged key by key into the world's global document.
	Global map[string]any `yaml:"global,omitempty"`

	// Entities are inserted after the world's entities, in order, so the
	// first one gets the id following the world's last.
	Entities []map[string]any `yaml:"entities,omitempty"`

	// RunID fixes the run id. If empty, "scenario-{name}" is used.
	RunID string `yaml:"run_id,omitempty"`

	// Assertions are checked after the last tick.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion checks one fact about the finished run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "value": entity document key equals Expect
	// - "global_value": global document key equals Expect
	// - "tile": entity is indexed in Tile
	// - "absent": entity has been deleted
	// - "count": number of indexed entities equals Count
	Type string `yaml:"type"`

	// Entity is the entity id (used by value, tile, absent).
	Entity uint64 `yaml:"entity,omitempty"`

	// Key is a document path (used by value, global_value).
	Key string `yaml:"key,omitempty"`

	// Expect is the expected value at Key (used by value, global_value).
	Expect any `yaml:"expect,omitempty"`

	// Tick selects a journaled tick instead of the final one (used by
	// value, global_value).
	Tick int64 `yaml:"tick,omitempty"`

	// Tile is the expected tile as [x, y] (used by tile).
	Tile []int `yaml:"tile,omitempty"`

	// Count is the expected entity count (used by count).
	Count *int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertValue       = "value"
	AssertGlobalValue = "global_value"
	AssertTile        = "tile"
	AssertAbsent      = "absent"
	AssertCount       = "count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML. A relative world path is resolved
// against baseDir.
func ParseScenario(data []byte, baseDir string) (*Scenario, error) {
	scenario := Scenario{Tuning: config.Default()}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.World != "" && !filepath.IsAbs(scenario.World) && baseDir != "" {
		scenario.World = filepath.Join(baseDir, scenario.World)
	}
	if scenario.RunID == "" {
		scenario.RunID = "scenario-" + scenario.Name
	}
	scenario.Tuning.Normalize()

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if err := s.Tuning.Validate(); err != nil {
		return fmt.Errorf("tuning: %w", err)
	}
	if s.Tuning.Ticks < 1 {
		return fmt.Errorf("tuning: ticks must be at least 1")
	}
	if s.World == "" && len(s.Entities) == 0 {
		return fmt.Errorf("world or entities is required")
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Tick < 0 {
		return fmt.Errorf("assertions[%d]: tick must be non-negative", index)
	}

	switch a.Type {
	case AssertValue:
		if a.Entity == 0 {
			return fmt.Errorf("assertions[%d]: entity is required for value", index)
		}
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for value", index)
		}
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for value", index)
		}
	case AssertGlobalValue:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for global_value", index)
		}
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for global_value", index)
		}
	case AssertTile:
		if a.Entity == 0 {
			return fmt.Errorf("assertions[%d]: entity is required for tile", index)
		}
		if len(a.Tile) != 2 {
			return fmt.Errorf("assertions[%d]: tile must be [x, y]", index)
		}
	case AssertAbsent:
		if a.Entity == 0 {
			return fmt.Errorf("assertions[%d]: entity is required for absent", index)
		}
	case AssertCount:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for count", index)
		}
		if *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
