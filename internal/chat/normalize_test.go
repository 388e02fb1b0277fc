package chat

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, bot, want string
	}{
		{"Hello World", "", "hello world"},
		{"  Hello   World  ", "", "hello world"},
		{"/start hello", "", "start hello"},
		{"@WeatherBot what's the weather", "WeatherBot", "what's the weather"},
		{"what's up @weatherbot today", "WeatherBot", "what's up today"},
		{"HELLO", "", "hello"},
		{"", "", ""},
		{"   ", "", ""},
		{"/", "", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in, tc.bot); got != tc.want {
			t.Fatalf("Normalize(%q, %q) = %q, want %q", tc.in, tc.bot, got, tc.want)
		}
	}
}

func TestMentions(t *testing.T) {
	if !Mentions("hey @WeatherBot", "weatherbot") {
		t.Fatalf("case-insensitive mention not detected")
	}
	if Mentions("hey weatherbot", "weatherbot") {
		t.Fatalf("bare name must not count as mention")
	}
	if Mentions("hey @WeatherBot", "") {
		t.Fatalf("empty bot name cannot be mentioned")
	}
}

func TestSplitMessage(t *testing.T) {
	short := "Hello world"
	parts := splitMessage(short)
	if len(parts) != 1 || parts[0] != short {
		t.Fatalf("short message must be one part: %v", parts)
	}
}

func TestSplitMessageLong(t *testing.T) {
	long := strings.Repeat("a", 5000)
	parts := splitMessage(long)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if len(parts[0]) != maxTelegramMessage {
		t.Fatalf("first part length %d, want %d", len(parts[0]), maxTelegramMessage)
	}
	if len(parts[1]) != 5000-maxTelegramMessage {
		t.Fatalf("second part length %d", len(parts[1]))
	}
}
