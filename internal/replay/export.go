package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/danielpatrickdp/persuasion-state/internal/events"
	"github.com/danielpatrickdp/persuasion-state/internal/logging"
)

// #region export

// FixtureFromEvents rebuilds a replay script from persisted bus events. Only
// targets whose creation was logged are exported; interactions and flag
// changes become steps in timestamp order; entries with equal timestamps keep
// their order in entries, so pass them oldest first. Decay is not captured, so a replay
// matches the original only when no decay ran in between.
func FixtureFromEvents(description string, entries []logging.Entry) (*Fixture, error) {
	ordered := append([]logging.Entry(nil), entries...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	byID := map[string]*FixtureTarget{}
	var order []string
	for _, e := range ordered {
		if e.TargetID == "" {
			continue
		}
		switch e.Type {
		case events.TypeTargetAdded:
			var p events.TargetAdded
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				return nil, fmt.Errorf("decode %s: %w", e.ID, err)
			}
			if _, dup := byID[e.TargetID]; dup {
				continue
			}
			byID[e.TargetID] = &FixtureTarget{ID: e.TargetID, Initial: p.Initial}
			order = append(order, e.TargetID)

		case events.TypeBeliefUpdate:
			ft := byID[e.TargetID]
			if ft == nil {
				continue
			}
			var p events.BeliefUpdate
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				return nil, fmt.Errorf("decode %s: %w", e.ID, err)
			}
			ft.Steps = append(ft.Steps, FixtureStep{Event: p.Event, Persona: p.Persona})

		case events.TypeFlagSet:
			ft := byID[e.TargetID]
			if ft == nil {
				continue
			}
			var p events.FlagSet
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				return nil, fmt.Errorf("decode %s: %w", e.ID, err)
			}
			value := p.Value
			ft.Steps = append(ft.Steps, FixtureStep{Flag: p.Flag, Value: &value})
		}
	}

	f := &Fixture{Description: description, Targets: make([]FixtureTarget, 0, len(order))}
	for _, id := range order {
		f.Targets = append(f.Targets, *byID[id])
	}
	return f, nil
}

// WriteFixture writes f as indented JSON.
func WriteFixture(path string, f *Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// #endregion export
