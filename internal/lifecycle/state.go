// Package lifecycle is the concrete chat-user state machine: four states,
// the transition matrix between them, the wake-up schedule, and the effect
// constructors the transitions hand to the kernel.
package lifecycle

import (
	"time"

	"botd/pkg/types"
)

// Kind tags the state variant. The zero value is Idle, which is the start
// state of every entity.
type Kind int

const (
	KindIdle Kind = iota
	KindAwaitingLLMDecision
	KindSendingMessage
	KindRunningTool
)

func (k Kind) String() string {
	switch k {
	case KindIdle:
		return "Idle"
	case KindAwaitingLLMDecision:
		return "AwaitingLLMDecision"
	case KindSendingMessage:
		return "SendingMessage"
	case KindRunningTool:
		return "RunningTool"
	default:
		return "unknown"
	}
}

// Memory is the carried-over context of a finished conversation: the
// model's own rolling summary plus when the user was last active.
type Memory struct {
	Summary   string
	LastTouch time.Time
}

// State is the tagged user state. Which fields are meaningful depends on
// Kind:
//
//	Idle                — Memory (optional)
//	AwaitingLLMDecision — TimeoutDriven, History
//	SendingMessage      — Outcome, History, TimeoutDriven
//	RunningTool         — Pending, History
type State struct {
	Kind          Kind
	Memory        *Memory
	TimeoutDriven bool
	History       types.History
	Outcome       types.Outcome
	Pending       types.ToolCall
}

// Idle returns the idle state, optionally carrying memory.
func Idle(m *Memory) State {
	return State{Kind: KindIdle, Memory: m}
}
