package lifecycle

import (
	"strings"
	"testing"

	"botd/pkg/types"
)

func TestDeriveSummaryIncludesTailAndResponse(t *testing.T) {
	h := types.History{}.
		AppendInput(types.NewUserMessage("weather in london")).
		AppendOutcome(types.Outcome{IntermediateToolCall: &types.IntermediateToolCall{
			ToolCall: weatherCall(),
		}}).
		AppendInput(types.NewToolResultInput("Clear 15C 10km/h 65%"))
	final := types.Outcome{Final: &types.Final{Response: "London is clear, 15°C."}}
	sum := deriveSummary(h, final)
	if sum == "" {
		t.Fatalf("summary must be non-empty")
	}
	for _, want := range []string{"weather in london", "GetWeather", "Clear 15C", "London is clear"} {
		if !strings.Contains(sum, want) {
			t.Fatalf("summary missing %q: %s", want, sum)
		}
	}
}

func TestDeriveSummaryBounded(t *testing.T) {
	long := strings.Repeat("word ", 500)
	var h types.History
	for i := 0; i < 20; i++ {
		h = h.AppendInput(types.NewUserMessage(long))
	}
	sum := deriveSummary(h, types.Outcome{Final: &types.Final{Response: long}})
	if len(sum) > summaryMaxLen+3 {
		t.Fatalf("summary too long: %d", len(sum))
	}
}

func TestMemorySeed(t *testing.T) {
	if got := memorySeed(nil); got != nil {
		t.Fatalf("nil memory must produce no seed")
	}
	if got := memorySeed(&Memory{}); got != nil {
		t.Fatalf("empty summary must produce no seed")
	}
	seed := memorySeed(&Memory{Summary: "paris trip plans"})
	if len(seed) != 1 || seed[0].ToolResult == nil {
		t.Fatalf("unexpected seed: %+v", seed)
	}
	if !strings.Contains(*seed[0].ToolResult, "paris trip plans") {
		t.Fatalf("seed missing summary: %s", *seed[0].ToolResult)
	}
}

func TestGoodbyeInputMentionsSummary(t *testing.T) {
	in := goodbyeInput(&Memory{Summary: "asked about the forecast"})
	if in.UserMessage == nil || !strings.Contains(*in.UserMessage, "asked about the forecast") {
		t.Fatalf("goodbye input: %+v", in)
	}
}

func TestClip(t *testing.T) {
	if clip("  hi  ", 10) != "hi" {
		t.Fatalf("clip must trim")
	}
	if got := clip(strings.Repeat("a", 20), 5); got != "aaaaa..." {
		t.Fatalf("clip: %q", got)
	}
}
