package lifecycle

import (
	"strings"

	"botd/pkg/types"
)

const (
	// summaryTailEntries bounds how much of the conversation feeds the
	// summary; the summary itself round-trips through the model verbatim.
	summaryTailEntries = 6
	summaryEntryLen    = 160
	summaryMaxLen      = 800
)

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// deriveSummary digests the tail of a finished conversation into the rolling
// memory string carried across turns.
func deriveSummary(h types.History, final types.Outcome) string {
	start := 0
	if len(h) > summaryTailEntries {
		start = len(h) - summaryTailEntries
	}
	var parts []string
	for _, e := range h[start:] {
		switch {
		case e.UserMessage != nil:
			parts = append(parts, "user: "+clip(*e.UserMessage, summaryEntryLen))
		case e.ToolResult != nil:
			parts = append(parts, "tool: "+clip(*e.ToolResult, summaryEntryLen))
		case e.AssistantOutcome != nil && e.AssistantOutcome.Final != nil:
			parts = append(parts, "assistant: "+clip(e.AssistantOutcome.Final.Response, summaryEntryLen))
		case e.AssistantOutcome != nil && e.AssistantOutcome.IntermediateToolCall != nil:
			parts = append(parts, "assistant called: "+e.AssistantOutcome.IntermediateToolCall.ToolCall.Name())
		}
	}
	if final.Final != nil {
		parts = append(parts, "assistant: "+clip(final.Final.Response, summaryEntryLen))
	}
	return clip(strings.Join(parts, " | "), summaryMaxLen)
}

// memorySeed turns carried memory into the opening history entry of a new
// conversation, so the model sees where it left off.
func memorySeed(m *Memory) types.History {
	if m == nil || m.Summary == "" {
		return nil
	}
	return types.History{}.AppendInput(
		types.NewToolResultInput("[PRIOR CONVERSATION SUMMARY]\n" + m.Summary))
}

// goodbyeInput synthesizes the inactivity-turn prompt from carried memory.
func goodbyeInput(m *Memory) types.LLMInput {
	return types.NewUserMessage(
		"The user has gone quiet. Say a brief goodbye, mentioning anything " +
			"still relevant from the conversation.\nCONVERSATION SUMMARY:\n" + m.Summary)
}
