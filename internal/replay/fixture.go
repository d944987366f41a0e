package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
	"github.com/danielpatrickdp/persuasion-state/internal/tracker"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string          `json:"description"`
	Targets     []FixtureTarget `json:"targets"`
}

// FixtureTarget is one scripted target: its starting beliefs and the steps
// applied to it in order.
type FixtureTarget struct {
	ID       string           `json:"id"`
	Initial  belief.Vector    `json:"initial_beliefs"`
	Metadata map[string]any   `json:"metadata,omitempty"`
	Steps    []FixtureStep    `json:"steps"`
	Expected *FixtureExpected `json:"expected,omitempty"`
}

// FixtureStep is either an interaction (event and persona) or a flag change.
type FixtureStep struct {
	Event   belief.Event   `json:"event,omitempty"`
	Persona belief.Persona `json:"persona,omitempty"`
	Flag    string         `json:"flag,omitempty"`
	// Value defaults to true for flag steps.
	Value *bool `json:"value,omitempty"`
}

// FixtureExpected is checked against the target after its last step.
type FixtureExpected struct {
	Stage        *belief.Stage  `json:"stage,omitempty"`
	Status       tracker.Status `json:"status,omitempty"`
	MinComposite *float64       `json:"min_composite,omitempty"`
	MaxComposite *float64       `json:"max_composite,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return &f, nil
}

// Validate checks ids are present and unique and that every step is either
// an interaction or a flag.
func (f *Fixture) Validate() error {
	seen := make(map[string]bool, len(f.Targets))
	for _, t := range f.Targets {
		if t.ID == "" {
			return fmt.Errorf("target without id")
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate target %s", t.ID)
		}
		seen[t.ID] = true
		for i, s := range t.Steps {
			interaction := s.Event != "" || s.Persona != ""
			switch {
			case interaction && s.Flag != "":
				return fmt.Errorf("target %s step %d: both interaction and flag", t.ID, i)
			case interaction && (s.Event == "" || s.Persona == ""):
				return fmt.Errorf("target %s step %d: interaction needs event and persona", t.ID, i)
			case !interaction && s.Flag == "":
				return fmt.Errorf("target %s step %d: empty step", t.ID, i)
			}
		}
	}
	return nil
}

// flagValue is the value a flag step sets.
func (s FixtureStep) flagValue() bool {
	return s.Value == nil || *s.Value
}

// #endregion fixture-loader
