package llm

import (
	"strings"
	"testing"

	"botd/pkg/types"
)

// use the byte-heuristic estimator so tests never depend on BPE data files
func heuristicEstimator() *estimator { return &estimator{} }

func entryOfLen(n int) types.HistoryEntry {
	s := strings.Repeat("a", n)
	return types.HistoryEntry{UserMessage: &s}
}

func TestTrimHistoryKeepsNewest(t *testing.T) {
	est := heuristicEstimator()
	h := types.History{entryOfLen(400), entryOfLen(400), entryOfLen(400)}
	per := est.countEntry(h[0])
	// room for exactly two entries
	out := trimHistory(h, per*2, est)
	if len(out) != 2 {
		t.Fatalf("kept %d entries, want 2", len(out))
	}
	// the oldest entry is the one dropped
	if &out[0] != &h[1] && *out[0].UserMessage != *h[1].UserMessage {
		t.Fatalf("wrong entries kept")
	}
}

func TestTrimHistoryAllFit(t *testing.T) {
	est := heuristicEstimator()
	h := types.History{entryOfLen(10), entryOfLen(10)}
	out := trimHistory(h, 1000, est)
	if len(out) != 2 {
		t.Fatalf("kept %d entries, want 2", len(out))
	}
}

func TestTrimHistoryNothingFits(t *testing.T) {
	est := heuristicEstimator()
	h := types.History{entryOfLen(4000)}
	if out := trimHistory(h, 10, est); len(out) != 0 {
		t.Fatalf("expected empty history, got %d", len(out))
	}
	if out := trimHistory(h, 0, est); out != nil {
		t.Fatalf("zero budget must return nil")
	}
	if out := trimHistory(nil, 100, est); len(out) != 0 {
		t.Fatalf("nil history must stay empty")
	}
}

func TestEstimatorFallbackCount(t *testing.T) {
	est := heuristicEstimator()
	if est.count("") != 1 {
		t.Fatalf("empty string estimate: %d", est.count(""))
	}
	if est.count(strings.Repeat("x", 40)) != 11 {
		t.Fatalf("heuristic estimate off: %d", est.count(strings.Repeat("x", 40)))
	}
}
