package tracker

import (
	"errors"
	"time"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
)

var (
	// ErrTargetNotFound is returned for operations on an unknown target id.
	ErrTargetNotFound = errors.New("target not found")
	// ErrDuplicateTarget is returned when adding an id that already exists.
	ErrDuplicateTarget = errors.New("target already exists")
	// ErrInvalidInput is returned for empty ids or flag names.
	ErrInvalidInput = errors.New("invalid input")
)

// #region status
// Status is the conversion state of a target. It only moves forward.
type Status string

const (
	StatusNone      Status = "none"
	StatusPartial   Status = "partial"
	StatusConverted Status = "converted"
)

// #endregion status

// #region target
// HistoryRecord is the compact per-interaction trail kept on a target.
type HistoryRecord struct {
	Timestamp         time.Time
	Event             belief.Event
	Persona           belief.Persona
	PreviousStage     belief.Stage
	NewStage          belief.Stage
	PreviousComposite float64
	NewComposite      float64
}

// Target is a tracked entity. Values handed out by the tracker are copies.
type Target struct {
	ID                 string
	State              belief.State
	Metadata           map[string]any
	Flags              map[string]bool
	Status             Status
	History            []HistoryRecord
	CreatedAt          time.Time
	ConvertedAt        time.Time
	ConversionCriteria []string
	PartialAt          time.Time
	PartialCriteria    []string
}

func (t *Target) clone() *Target {
	out := *t
	out.State = t.State.Clone()
	out.Metadata = make(map[string]any, len(t.Metadata))
	for k, v := range t.Metadata {
		out.Metadata[k] = v
	}
	out.Flags = make(map[string]bool, len(t.Flags))
	for k, v := range t.Flags {
		out.Flags[k] = v
	}
	out.History = append([]HistoryRecord(nil), t.History...)
	out.ConversionCriteria = append([]string(nil), t.ConversionCriteria...)
	out.PartialCriteria = append([]string(nil), t.PartialCriteria...)
	return &out
}

// #endregion target

// #region records
// ConversionRecord is appended once per fully converted target.
type ConversionRecord struct {
	TargetID          string         `json:"targetId"`
	Timestamp         time.Time      `json:"timestamp"`
	CriteriaMet       []string       `json:"criteriaMet"`
	PrimaryAgent      belief.Persona `json:"primaryAgent,omitempty"`
	FinalScore        float64        `json:"finalScore"`
	TotalInteractions int            `json:"totalInteractions"`
}

// PartialRecord is appended once per partially converted target.
type PartialRecord struct {
	TargetID    string    `json:"targetId"`
	Timestamp   time.Time `json:"timestamp"`
	CriteriaMet []string  `json:"criteriaMet"`
	Score       float64   `json:"score"`
}

// PersonaStats counts a persona's interactions and the conversions it led.
type PersonaStats struct {
	Interactions          int `json:"interactions"`
	ConversionsInfluenced int `json:"conversionsInfluenced"`
}

// LogEntry is one line of the tracker's bounded event log.
type LogEntry struct {
	Type      string         `json:"type"`
	TargetID  string         `json:"targetId,omitempty"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// #endregion records
