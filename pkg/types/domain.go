package types

import (
	"encoding/json"
	"fmt"
)

// Channel identifies the chat transport a user belongs to. The set is open:
// adding a transport means adding a constant here and a shim for it.
type Channel string

const (
	// ChannelTelegram is the only transport currently wired.
	ChannelTelegram Channel = "telegram"
)

// UserID is the mailbox key for one chat user: the transport plus the
// transport's own identifier for that user.
type UserID struct {
	Channel    Channel `json:"channel"`
	ExternalID string  `json:"external_id"`
}

func (u UserID) String() string {
	return string(u.Channel) + ":" + u.ExternalID
}

// LLMInput is what a single inference call reacts to: either a fresh user
// message or the textual result of a tool the model asked for.
// Exactly one field is set.
type LLMInput struct {
	UserMessage *string `json:"UserMessage,omitempty"`
	ToolResult  *string `json:"ToolResult,omitempty"`
}

// NewUserMessage wraps text as a user-message input.
func NewUserMessage(text string) LLMInput {
	return LLMInput{UserMessage: &text}
}

// NewToolResultInput wraps tool output as an input.
func NewToolResultInput(text string) LLMInput {
	return LLMInput{ToolResult: &text}
}

// Final is the terminal verdict: reply and end the turn.
type Final struct {
	Response string `json:"response"`
}

// IntermediateToolCall asks for a tool run, optionally telling the user
// something first. A nil (or empty) intermediate response means the tool
// runs silently.
type IntermediateToolCall struct {
	MaybeIntermediateResponse *string  `json:"maybe_intermediate_response"`
	ToolCall                  ToolCall `json:"tool_call"`
}

// Outcome is the model's structured verdict for one inference call.
// Exactly one field is set; Validate reports violations.
type Outcome struct {
	Final                *Final                `json:"Final,omitempty"`
	IntermediateToolCall *IntermediateToolCall `json:"IntermediateToolCall,omitempty"`
}

// Validate checks that exactly one variant is populated.
func (o Outcome) Validate() error {
	n := 0
	if o.Final != nil {
		n++
	}
	if o.IntermediateToolCall != nil {
		n++
	}
	if n != 1 {
		return fmt.Errorf("outcome must have exactly one variant, got %d", n)
	}
	if o.IntermediateToolCall != nil {
		return o.IntermediateToolCall.ToolCall.Validate()
	}
	return nil
}

// GetWeather fetches current conditions for a location.
type GetWeather struct {
	Location string `json:"location"`
}

// ToolCall is the set of tool invocations the model may request. The kernel
// treats it opaquely; only the dispatcher pattern-matches it.
// Exactly one field is set.
type ToolCall struct {
	GetWeather *GetWeather `json:"GetWeather,omitempty"`
}

// Validate checks that exactly one tool variant is populated.
func (t ToolCall) Validate() error {
	n := 0
	if t.GetWeather != nil {
		n++
	}
	if n != 1 {
		return fmt.Errorf("tool call must have exactly one variant, got %d", n)
	}
	return nil
}

// Name returns the tool's wire name, for logs and metrics.
func (t ToolCall) Name() string {
	switch {
	case t.GetWeather != nil:
		return "GetWeather"
	default:
		return "unknown"
	}
}

// HistoryEntry is one step of a conversation: something fed to the model or
// something it decided. Exactly one field is set.
type HistoryEntry struct {
	UserMessage      *string  `json:"UserMessage,omitempty"`
	ToolResult       *string  `json:"ToolResult,omitempty"`
	AssistantOutcome *Outcome `json:"AssistantOutcome,omitempty"`
}

// History is the ordered conversation record carried through the state
// machine and serialized verbatim into prompts.
type History []HistoryEntry

// AppendInput records an LLMInput as a history entry.
func (h History) AppendInput(in LLMInput) History {
	switch {
	case in.UserMessage != nil:
		return append(h, HistoryEntry{UserMessage: in.UserMessage})
	case in.ToolResult != nil:
		return append(h, HistoryEntry{ToolResult: in.ToolResult})
	default:
		return h
	}
}

// AppendOutcome records a model verdict as a history entry.
func (h History) AppendOutcome(o Outcome) History {
	return append(h, HistoryEntry{AssistantOutcome: &o})
}

// JSON serializes the history as a JSON array, oldest first.
func (h History) JSON() ([]byte, error) {
	if len(h) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal([]HistoryEntry(h))
}
