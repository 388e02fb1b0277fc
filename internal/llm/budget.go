package llm

import (
	"encoding/json"

	"github.com/pkoukk/tiktoken-go"

	"botd/pkg/types"
)

// estimator approximates token counts without touching the cgo tokenizer, so
// history trimming behaves the same in test builds. The BPE differs from the
// model's own vocabulary; the engine keeps a margin to absorb the error.
type estimator struct {
	enc *tiktoken.Tiktoken
}

func newEstimator() *estimator {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		// offline fallback: bytes/4 heuristic
		return &estimator{}
	}
	return &estimator{enc: enc}
}

func (e *estimator) count(text string) int {
	if e.enc != nil {
		return len(e.enc.Encode(text, nil, nil))
	}
	return len(text)/4 + 1
}

func (e *estimator) countEntry(entry types.HistoryEntry) int {
	b, err := json.Marshal(entry)
	if err != nil {
		return maxEntryLen / 4
	}
	return e.count(string(b))
}

// trimHistory drops the oldest entries until the estimated token total fits
// budget. The newest entries always win; an empty history is returned when
// nothing fits.
func trimHistory(h types.History, budget int, est *estimator) types.History {
	if budget <= 0 {
		return nil
	}
	total := 0
	cut := len(h)
	for i := len(h) - 1; i >= 0; i-- {
		n := est.countEntry(h[i])
		if total+n > budget {
			break
		}
		total += n
		cut = i
	}
	if cut >= len(h) {
		return nil
	}
	return h[cut:]
}
