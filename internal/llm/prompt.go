package llm

import (
	"strings"

	"botd/pkg/types"
)

// Chat-role sentinel markers. The base prompt supplies the system turn and
// the leading BOS; the dynamic prompt supplies everything after it.
const (
	roleStart = "<|im_start|>"
	roleEnd   = "<|im_end|>"

	historyHeader = "HISTORY:"

	// maxEntryLen clamps a single history entry's content so one huge tool
	// output cannot crowd out the rest of the conversation.
	maxEntryLen = 2000
)

func clampText(s string) string {
	if len(s) <= maxEntryLen {
		return s
	}
	return s[:maxEntryLen] + "... (truncated)"
}

// clampHistory returns a copy of h with oversized entry contents truncated.
func clampHistory(h types.History) types.History {
	out := make(types.History, 0, len(h))
	for _, e := range h {
		switch {
		case e.UserMessage != nil:
			t := clampText(*e.UserMessage)
			out = append(out, types.HistoryEntry{UserMessage: &t})
		case e.ToolResult != nil:
			t := clampText(*e.ToolResult)
			out = append(out, types.HistoryEntry{ToolResult: &t})
		default:
			out = append(out, e)
		}
	}
	return out
}

// formatInput wraps the current call's input in chat-role markers. The
// current input is never truncated; only history entries are.
func formatInput(in types.LLMInput) string {
	switch {
	case in.UserMessage != nil:
		return roleStart + "user\n" + *in.UserMessage + roleEnd
	case in.ToolResult != nil:
		return roleStart + "user\n[TOOL RESULT]:\n" + *in.ToolResult + roleEnd
	default:
		return roleStart + "user\n" + roleEnd
	}
}

// buildDynamicPrompt assembles the per-call suffix appended after the cached
// base prompt: the history as JSON under a fixed header, the current input,
// and the assistant opener the model completes from.
func buildDynamicPrompt(in types.LLMInput, history types.History) (string, error) {
	var parts []string

	if len(history) > 0 {
		b, err := clampHistory(history).JSON()
		if err != nil {
			return "", err
		}
		parts = append(parts, roleStart+"system\n"+historyHeader+"\n"+string(b)+roleEnd)
	}

	parts = append(parts, formatInput(in))

	return "\n" + strings.Join(parts, "\n\n") + "\n" + roleStart + "assistant\n", nil
}
