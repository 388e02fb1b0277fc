package lifecycle

import "botd/pkg/types"

// ActionKind tags the action variant.
type ActionKind int

const (
	ActionForceReset ActionKind = iota
	ActionNewMessage
	ActionTimeout
	ActionLLMDecision
	ActionMessageSent
	ActionToolResult
)

func (k ActionKind) String() string {
	switch k {
	case ActionForceReset:
		return "ForceReset"
	case ActionNewMessage:
		return "NewMessage"
	case ActionTimeout:
		return "Timeout"
	case ActionLLMDecision:
		return "LLMDecisionResult"
	case ActionMessageSent:
		return "MessageSent"
	case ActionToolResult:
		return "ToolResult"
	default:
		return "unknown"
	}
}

// Action is one input to the transition function. Which fields are
// meaningful depends on Kind.
type Action struct {
	Kind ActionKind
	// NewMessage text or ToolResult text.
	Text              string
	StartConversation bool
	// LLMDecisionResult payload when Err is empty.
	Outcome types.Outcome
	// Error string for LLMDecisionResult and MessageSent. Empty means ok.
	Err string
}

// ForceReset returns the stuck-state escape action.
func ForceReset() Action { return Action{Kind: ActionForceReset} }

// NewMessage wraps an inbound, already-normalized chat message.
func NewMessage(text string, startConversation bool) Action {
	return Action{Kind: ActionNewMessage, Text: text, StartConversation: startConversation}
}

// Timeout is the scheduled inactivity wake-up.
func Timeout() Action { return Action{Kind: ActionTimeout} }

// LLMDecisionOK reports a successful inference.
func LLMDecisionOK(o types.Outcome) Action {
	return Action{Kind: ActionLLMDecision, Outcome: o}
}

// LLMDecisionErr reports a failed inference.
func LLMDecisionErr(msg string) Action {
	return Action{Kind: ActionLLMDecision, Err: msg}
}

// MessageSentResult reports an outbound send, failed or not.
func MessageSentResult(err error) Action {
	a := Action{Kind: ActionMessageSent}
	if err != nil {
		a.Err = err.Error()
	}
	return a
}

// ToolResult carries a tool's textual output (errors are stringified into
// the text by the dispatcher).
func ToolResult(text string) Action {
	return Action{Kind: ActionToolResult, Text: text}
}
