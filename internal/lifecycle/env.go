package lifecycle

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"botd/pkg/types"
)

// Suggested production delays.
const (
	DefaultForceResetDelay = 120 * time.Second
	DefaultGoodbyeDelay    = 5 * time.Minute
)

// Decider runs one grammar-constrained inference.
type Decider interface {
	Infer(ctx context.Context, input types.LLMInput, history types.History) (types.Outcome, error)
}

// Sender delivers a direct message to a user.
type Sender interface {
	SendDM(ctx context.Context, id types.UserID, text string) error
}

// ToolRunner executes a tool call, stringifying any failure into the
// returned text.
type ToolRunner interface {
	Run(ctx context.Context, call types.ToolCall) string
}

// Env carries the lifecycle's collaborators. It is shared read-only across
// all users.
type Env struct {
	LLM   Decider
	Chat  Sender
	Tools ToolRunner
	Log   zerolog.Logger

	// Now is the clock; tests compress it.
	Now func() time.Time

	ForceResetDelay time.Duration
	GoodbyeDelay    time.Duration
}

// ApplyDefaults fills unset env fields.
func (e *Env) ApplyDefaults() {
	if e.Now == nil {
		e.Now = time.Now
	}
	if e.ForceResetDelay <= 0 {
		e.ForceResetDelay = DefaultForceResetDelay
	}
	if e.GoodbyeDelay <= 0 {
		e.GoodbyeDelay = DefaultGoodbyeDelay
	}
}
