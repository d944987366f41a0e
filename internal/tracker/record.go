package tracker

import (
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
)

// #region record
// Interaction is one belief-log entry in a persisted Record.
type Interaction struct {
	Event     belief.Event   `json:"event"`
	Persona   belief.Persona `json:"persona"`
	Timestamp int64          `json:"timestamp"`
	Deltas    belief.Vector  `json:"deltas"`
}

// HistoryItem is one compact history entry in a persisted Record.
type HistoryItem struct {
	Timestamp         int64          `json:"timestamp"`
	Event             belief.Event   `json:"event"`
	Persona           belief.Persona `json:"persona"`
	PreviousStage     belief.Stage   `json:"previousStage"`
	NewStage          belief.Stage   `json:"newStage"`
	PreviousComposite float64        `json:"previousComposite"`
	NewComposite      float64        `json:"newComposite"`
}

// Record is the persisted form of a Target. Timestamps are Unix milliseconds.
type Record struct {
	ID                 string          `json:"id"`
	Beliefs            belief.Vector   `json:"beliefs"`
	InteractionHistory []Interaction   `json:"interactionHistory"`
	ReferralMade       bool            `json:"referralMade"`
	LastInteraction    int64           `json:"lastInteraction"`
	CreatedAt          int64           `json:"createdAt"`
	Metadata           map[string]any  `json:"metadata"`
	Flags              map[string]bool `json:"flags"`
	ConversionStatus   Status          `json:"conversionStatus"`
	ConvertedAt        *int64          `json:"convertedAt,omitempty"`
	ConversionCriteria []string        `json:"conversionCriteria,omitempty"`
	PartialConvertedAt *int64          `json:"partialConvertedAt,omitempty"`
	PartialCriteria    []string        `json:"partialCriteria,omitempty"`
	History            []HistoryItem   `json:"history"`
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func optMillis(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

// EncodeTarget converts a target into its persisted form.
func EncodeTarget(t *Target) Record {
	rec := Record{
		ID:                 t.ID,
		Beliefs:            t.State.Vector,
		InteractionHistory: make([]Interaction, 0, len(t.State.History)),
		ReferralMade:       t.State.ReferralMade,
		LastInteraction:    millis(t.State.LastInteraction),
		CreatedAt:          millis(t.CreatedAt),
		Metadata:           t.Metadata,
		Flags:              t.Flags,
		ConversionStatus:   t.Status,
		ConvertedAt:        optMillis(t.ConvertedAt),
		ConversionCriteria: t.ConversionCriteria,
		PartialConvertedAt: optMillis(t.PartialAt),
		PartialCriteria:    t.PartialCriteria,
		History:            make([]HistoryItem, 0, len(t.History)),
	}
	for _, h := range t.State.History {
		rec.InteractionHistory = append(rec.InteractionHistory, Interaction{
			Event:     h.Event,
			Persona:   h.Persona,
			Timestamp: millis(h.Timestamp),
			Deltas:    h.Deltas,
		})
	}
	for _, h := range t.History {
		rec.History = append(rec.History, HistoryItem{
			Timestamp:         millis(h.Timestamp),
			Event:             h.Event,
			Persona:           h.Persona,
			PreviousStage:     h.PreviousStage,
			NewStage:          h.NewStage,
			PreviousComposite: h.PreviousComposite,
			NewComposite:      h.NewComposite,
		})
	}
	return rec
}

// DecodeTarget rebuilds a target from its persisted form.
func DecodeTarget(rec Record) (*Target, error) {
	if rec.ID == "" {
		return nil, fmt.Errorf("decode target: %w: empty id", ErrInvalidInput)
	}
	switch rec.ConversionStatus {
	case StatusNone, StatusPartial, StatusConverted:
	case "":
		rec.ConversionStatus = StatusNone
	default:
		return nil, fmt.Errorf("decode target %s: %w: status %q", rec.ID, ErrInvalidInput, rec.ConversionStatus)
	}

	t := &Target{
		ID: rec.ID,
		State: belief.State{
			Vector:          rec.Beliefs.Clamp(),
			LastInteraction: fromMillis(rec.LastInteraction),
			ReferralMade:    rec.ReferralMade,
		},
		Metadata:           map[string]any{},
		Flags:              map[string]bool{},
		Status:             rec.ConversionStatus,
		CreatedAt:          fromMillis(rec.CreatedAt),
		ConversionCriteria: rec.ConversionCriteria,
		PartialCriteria:    rec.PartialCriteria,
	}
	for k, v := range rec.Metadata {
		t.Metadata[k] = v
	}
	for k, v := range rec.Flags {
		t.Flags[k] = v
	}
	if rec.ConvertedAt != nil {
		t.ConvertedAt = fromMillis(*rec.ConvertedAt)
	}
	if rec.PartialConvertedAt != nil {
		t.PartialAt = fromMillis(*rec.PartialConvertedAt)
	}
	for _, h := range rec.InteractionHistory {
		t.State.History = append(t.State.History, belief.HistoryEntry{
			Event:     h.Event,
			Persona:   h.Persona,
			Timestamp: fromMillis(h.Timestamp),
			Deltas:    h.Deltas,
		})
	}
	for _, h := range rec.History {
		t.History = append(t.History, HistoryRecord{
			Timestamp:         fromMillis(h.Timestamp),
			Event:             h.Event,
			Persona:           h.Persona,
			PreviousStage:     h.PreviousStage,
			NewStage:          h.NewStage,
			PreviousComposite: h.PreviousComposite,
			NewComposite:      h.NewComposite,
		})
	}
	return t, nil
}

// #endregion record

// #region snapshot
// Snapshot is the full exportable tracker state.
type Snapshot struct {
	Targets      map[string]Record               `json:"targets"`
	Conversions  []ConversionRecord              `json:"conversions"`
	Partials     []PartialRecord                 `json:"partialConversions"`
	PersonaStats map[belief.Persona]PersonaStats `json:"agentStats"`
	ExportedAt   time.Time                       `json:"exportedAt"`
}

// Export captures every target and aggregate.
func (t *Tracker) Export() Snapshot {
	snap := Snapshot{
		Targets:      make(map[string]Record),
		Conversions:  t.Conversions(),
		Partials:     t.Partials(),
		PersonaStats: t.PersonaStats(),
		ExportedAt:   t.now(),
	}
	for _, tgt := range t.Targets() {
		snap.Targets[tgt.ID] = EncodeTarget(tgt)
	}
	return snap
}

// Import replaces the registry and aggregates with the snapshot. Targets are
// decoded before anything is replaced, so a bad record leaves the tracker
// untouched.
func (t *Tracker) Import(snap Snapshot) error {
	decoded := make(map[string]*Target, len(snap.Targets))
	for id, rec := range snap.Targets {
		if rec.ID == "" {
			rec.ID = id
		}
		tgt, err := DecodeTarget(rec)
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}
		decoded[tgt.ID] = tgt
	}

	// Hold every affected target lock so an in-flight interaction cannot
	// write a stale target back over the imported one. Keys are taken in
	// sorted order; no other path holds more than one at a time.
	ids := t.ids()
	for id := range decoded {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range slices.Compact(ids) {
		unlock := t.locks.Lock(id)
		defer unlock()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.targets = decoded
	t.conversions = append([]ConversionRecord(nil), snap.Conversions...)
	t.partials = append([]PartialRecord(nil), snap.Partials...)
	for p := range t.personaStats {
		t.personaStats[p] = &PersonaStats{}
	}
	for p, st := range snap.PersonaStats {
		s := st
		t.personaStats[p] = &s
	}
	t.logger.Info("tracker imported", zap.Int("targets", len(decoded)))
	return nil
}

// Restore inserts or replaces a single decoded target, as loaded from storage.
func (t *Tracker) Restore(tgt *Target) {
	unlock := t.locks.Lock(tgt.ID)
	defer unlock()
	t.mu.Lock()
	t.targets[tgt.ID] = tgt.clone()
	t.mu.Unlock()
}

// #endregion snapshot
