package events

import (
	"time"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
)

// #region event-type
// Type discriminates an Event. Handlers are registered per Type.
type Type string

const (
	TypeMessage             Type = "message"
	TypeConversationStarted Type = "conversationStarted"
	TypeConversationEnded   Type = "conversationEnded"
	TypeAgentSwitch         Type = "agentSwitch"
	TypeAgentError          Type = "agentError"
	TypeBeliefUpdate        Type = "beliefUpdate"
	TypeStageTransition     Type = "stageTransition"
	TypeObjectionDetected   Type = "objectionDetected"
	TypePositiveSignal      Type = "positiveSignal"
	TypeConversionTriggered Type = "conversionTriggered"
	TypePartialConversion   Type = "partialConversion"
	TypeConversion          Type = "conversion"
	TypeTargetAdded         Type = "targetAdded"
	TypeFlagSet             Type = "flagSet"
	TypeSystemError         Type = "systemError"
	TypeDecayApplied        Type = "decayApplied"

	// Wildcard handlers receive every event.
	Wildcard Type = "*"
)

// #endregion event-type

// #region event
// Payload is implemented by every event body. The concrete type fixes the
// event's Type.
type Payload interface {
	EventType() Type
}

// Event is one notification on the bus.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	TargetID  string    `json:"targetId,omitempty"`
	Payload   Payload   `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// #endregion event

// #region payloads
type Message struct {
	ConversationID string         `json:"conversationId"`
	Role           string         `json:"role"`
	Persona        belief.Persona `json:"persona,omitempty"`
	Content        string         `json:"content"`
	Objections     []string       `json:"objections,omitempty"`
	Positives      []string       `json:"positiveSignals,omitempty"`
	Sentiment      float64        `json:"sentiment"`
	InferredEvent  belief.Event   `json:"inferredEvent,omitempty"`
	HighEngagement bool           `json:"highEngagement,omitempty"`
}

type ConversationStarted struct {
	ConversationID string       `json:"conversationId"`
	Stage          belief.Stage `json:"stage"`
}

type ConversationEnded struct {
	ConversationID  string                 `json:"conversationId"`
	Duration        time.Duration          `json:"duration"`
	MessageCount    int                    `json:"messageCount"`
	PersonaSwitches int                    `json:"agentSwitches"`
	StartStage      belief.Stage           `json:"startStage"`
	EndStage        belief.Stage           `json:"endStage"`
	Status          string                 `json:"conversionStatus"`
	Beliefs         belief.Vector          `json:"finalBeliefs"`
	PersonaMessages map[belief.Persona]int `json:"agentMessages"`
}

type AgentSwitch struct {
	ConversationID string         `json:"conversationId"`
	From           belief.Persona `json:"from"`
	To             belief.Persona `json:"to"`
	Strategy       string         `json:"strategy,omitempty"`
}

type AgentError struct {
	ConversationID string         `json:"conversationId"`
	Persona        belief.Persona `json:"persona"`
	Error          string         `json:"error"`
}

type BeliefUpdate struct {
	Event     belief.Event   `json:"event"`
	Persona   belief.Persona `json:"persona"`
	Deltas    belief.Vector  `json:"deltas"`
	Composite float64        `json:"composite"`
	Stage     belief.Stage   `json:"stage"`
}

type StageTransition struct {
	From    belief.Stage   `json:"from"`
	To      belief.Stage   `json:"to"`
	Persona belief.Persona `json:"persona"`
}

type ObjectionDetected struct {
	ConversationID string   `json:"conversationId"`
	Objections     []string `json:"objections"`
	Message        string   `json:"message"`
}

type PositiveSignal struct {
	ConversationID string   `json:"conversationId"`
	Signals        []string `json:"signals"`
}

type ConversionTriggered struct {
	ConversationID string   `json:"conversationId"`
	Criteria       []string `json:"criteriaMet"`
	Composite      float64  `json:"composite"`
}

type PartialConversion struct {
	Criteria  []string `json:"criteriaMet"`
	Composite float64  `json:"composite"`
}

type Conversion struct {
	Criteria          []string       `json:"criteriaMet"`
	PrimaryAgent      belief.Persona `json:"primaryAgent,omitempty"`
	FinalScore        float64        `json:"finalScore"`
	TotalInteractions int            `json:"totalInteractions"`
}

type TargetAdded struct {
	Initial belief.Vector `json:"initialBeliefs"`
}

type FlagSet struct {
	Flag  string `json:"flag"`
	Value bool   `json:"value"`
}

type SystemError struct {
	Error    string `json:"error"`
	Original Type   `json:"originalType,omitempty"`
}

type DecayApplied struct {
	Days        float64 `json:"daysPassed"`
	TargetCount int     `json:"targetCount"`
}

func (Message) EventType() Type             { return TypeMessage }
func (ConversationStarted) EventType() Type { return TypeConversationStarted }
func (ConversationEnded) EventType() Type   { return TypeConversationEnded }
func (AgentSwitch) EventType() Type         { return TypeAgentSwitch }
func (AgentError) EventType() Type          { return TypeAgentError }
func (BeliefUpdate) EventType() Type        { return TypeBeliefUpdate }
func (StageTransition) EventType() Type     { return TypeStageTransition }
func (ObjectionDetected) EventType() Type   { return TypeObjectionDetected }
func (PositiveSignal) EventType() Type      { return TypePositiveSignal }
func (ConversionTriggered) EventType() Type { return TypeConversionTriggered }
func (PartialConversion) EventType() Type   { return TypePartialConversion }
func (Conversion) EventType() Type          { return TypeConversion }
func (TargetAdded) EventType() Type         { return TypeTargetAdded }
func (FlagSet) EventType() Type             { return TypeFlagSet }
func (SystemError) EventType() Type         { return TypeSystemError }
func (DecayApplied) EventType() Type        { return TypeDecayApplied }

// #endregion payloads
